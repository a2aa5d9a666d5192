// SPDX-License-Identifier: AGPL-3.0-or-later
// SubHub - A resumable long-poll subscription engine for pub/sub channels
// Copyright (C) 2023-2026 Jacob McSwain
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// The source code is available at <https://github.com/USA-RedDragon/SubHub>

package subscribe

import (
	"container/list"
	"sync"

	"github.com/mitchellh/hashstructure/v2"
)

// dedupKey is the identity a message is deduplicated by: channel plus
// publish timetoken plus a content hash, since the same timetoken can
// legitimately recur across a channel's presence/data mirrors.
type dedupKey struct {
	channel   string
	timetoken int64
	payload   uint64
}

// DuplicationFilter recognizes messages already delivered to listeners,
// needed because a reconnect can replay a small overlap window around the
// resume cursor. It keeps a bounded list of recently seen identities, moving
// an identity to the front whenever it is seen again; once capacity is
// exceeded the least recently seen identity is evicted.
type DuplicationFilter struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	seen     map[dedupKey]*list.Element
}

// NewDuplicationFilter constructs a filter retaining up to capacity
// identities. A non-positive capacity disables retention entirely: every
// message is reported as new.
func NewDuplicationFilter(capacity int) *DuplicationFilter {
	return &DuplicationFilter{
		capacity: capacity,
		order:    list.New(),
		seen:     make(map[dedupKey]*list.Element),
	}
}

// IsDuplicate reports whether msg has already passed through the filter,
// recording it for future calls when it has not.
func (d *DuplicationFilter) IsDuplicate(msg Message) bool {
	if d.capacity <= 0 {
		return false
	}

	key := dedupKey{
		channel:   msg.Channel,
		timetoken: msg.PublishTimetoken,
		payload:   hashPayload(msg.Payload),
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if elem, ok := d.seen[key]; ok {
		d.order.MoveToFront(elem)
		return true
	}

	elem := d.order.PushFront(key)
	d.seen[key] = elem
	if d.order.Len() > d.capacity {
		oldest := d.order.Back()
		if oldest != nil {
			d.order.Remove(oldest)
			delete(d.seen, oldest.Value.(dedupKey))
		}
	}
	return false
}

// Clear empties the filter, used when the channel/group mix changes and
// the resume window no longer overlaps anything previously seen.
func (d *DuplicationFilter) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.order.Init()
	d.seen = make(map[dedupKey]*list.Element)
}

// hashPayload reduces an arbitrary message payload to a fixed-width hash.
// A hashing failure (payload is not hashstructure-compatible, which never
// happens for json.RawMessage byte slices) degrades to 0 rather than
// panicking, at worst merging two distinct payloads in the same bucket.
func hashPayload(payload []byte) uint64 {
	h, err := hashstructure.Hash(payload, hashstructure.FormatV2, nil)
	if err != nil {
		return 0
	}
	return h
}
