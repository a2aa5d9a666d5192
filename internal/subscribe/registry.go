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
	"encoding/json"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
)

const presenceSuffix = "-pnpres"

type channelEntry struct {
	withPresence bool
	state        json.RawMessage
}

// Registry is the authoritative set of subscribed channels and groups, the
// per-channel/group state blobs, and the temporarily-unavailable subsets.
// Individual maps are xsync concurrent maps, the same structure the
// teacher uses for its per-repeater subscription table. The subscription
// mutations, the AddTemporaryUnavailable* calls and
// SubscribedToOnlyTemporaryUnavailable additionally take mu. The effective
// and target views, RemoveTemporaryUnavailable* and
// ResetTemporaryUnavailable do not take mu; they read or update each map
// on its own, so they are not atomic across maps.
type Registry struct {
	mu sync.Mutex

	channels *xsync.Map[string, *channelEntry]
	groups   *xsync.Map[string, *channelEntry]

	tempUnavailableChannels *xsync.Map[string, struct{}]
	tempUnavailableGroups   *xsync.Map[string, struct{}]
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		channels:                xsync.NewMap[string, *channelEntry](),
		groups:                  xsync.NewMap[string, *channelEntry](),
		tempUnavailableChannels: xsync.NewMap[string, struct{}](),
		tempUnavailableGroups:   xsync.NewMap[string, struct{}](),
	}
}

// SubscribeOp adds or updates channels/groups. Timetoken is an optional
// explicit cursor the Manager facade adopts instead of applying the
// default mix-change cursor policy; the Registry itself ignores it.
type SubscribeOp struct {
	Channels      []string
	ChannelGroups []string
	WithPresence  bool
	State         json.RawMessage
	Timetoken     *int64
}

// UnsubscribeOp removes channels/groups.
type UnsubscribeOp struct {
	Channels      []string
	ChannelGroups []string
}

// PresenceOp toggles presence mirroring for already-subscribed
// channels/groups.
type PresenceOp struct {
	Channels      []string
	ChannelGroups []string
	Connected     bool
}

// StateOp updates the opaque state blob for channels/groups.
type StateOp struct {
	Channels      []string
	ChannelGroups []string
	State         json.RawMessage
}

// ApplySubscribe merges op into the registry, returns true if the mix
// (the set of subscribed names) changed.
func (r *Registry) ApplySubscribe(op SubscribeOp) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := false
	for _, ch := range op.Channels {
		if _, ok := r.channels.Load(ch); !ok {
			changed = true
		}
		r.channels.Store(ch, &channelEntry{withPresence: op.WithPresence, state: op.State})
	}
	for _, g := range op.ChannelGroups {
		if _, ok := r.groups.Load(g); !ok {
			changed = true
		}
		r.groups.Store(g, &channelEntry{withPresence: op.WithPresence, state: op.State})
	}
	return changed
}

// ApplyUnsubscribe removes op's entries, returns true if anything was
// removed.
func (r *Registry) ApplyUnsubscribe(op UnsubscribeOp) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := false
	for _, ch := range op.Channels {
		if _, ok := r.channels.LoadAndDelete(ch); ok {
			changed = true
		}
		r.tempUnavailableChannels.Delete(ch)
	}
	for _, g := range op.ChannelGroups {
		if _, ok := r.groups.LoadAndDelete(g); ok {
			changed = true
		}
		r.tempUnavailableGroups.Delete(g)
	}
	return changed
}

// ApplyPresence toggles presence mirroring on already-subscribed entries.
func (r *Registry) ApplyPresence(op PresenceOp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range op.Channels {
		if entry, ok := r.channels.Load(ch); ok {
			entry.withPresence = op.Connected
		}
	}
	for _, g := range op.ChannelGroups {
		if entry, ok := r.groups.Load(g); ok {
			entry.withPresence = op.Connected
		}
	}
}

// ApplyState updates the state blob on already-subscribed entries.
func (r *Registry) ApplyState(op StateOp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range op.Channels {
		if entry, ok := r.channels.Load(ch); ok {
			entry.state = op.State
		}
	}
	for _, g := range op.ChannelGroups {
		if entry, ok := r.groups.Load(g); ok {
			entry.state = op.State
		}
	}
}

// IsEmpty reports whether no channel or group is subscribed.
func (r *Registry) IsEmpty() bool {
	return r.channels.Size() == 0 && r.groups.Size() == 0
}

// HasAnythingToSubscribe reports whether the registry has any subscribed
// channel or group at all, regardless of temporary-unavailable filtering.
// This is deliberately not EffectiveChannels/EffectiveChannelGroups: the
// loop distinguishes "nothing subscribed" (idle) from "subscribed but
// everything is temporarily unavailable" (sleep-and-retry), and the
// latter would be unreachable if this method filtered by availability.
func (r *Registry) HasAnythingToSubscribe() bool {
	return !r.IsEmpty()
}

// SubscribedToOnlyTemporaryUnavailable reports whether every subscribed
// channel and group is currently temporarily unavailable — the signal to
// sleep rather than issue a request that would have no effect.
func (r *Registry) SubscribedToOnlyTemporaryUnavailable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	any := false
	allUnavailable := true
	r.channels.Range(func(ch string, _ *channelEntry) bool {
		any = true
		if _, unavailable := r.tempUnavailableChannels.Load(ch); !unavailable {
			allUnavailable = false
			return false
		}
		return true
	})
	if allUnavailable {
		r.groups.Range(func(g string, _ *channelEntry) bool {
			any = true
			if _, unavailable := r.tempUnavailableGroups.Load(g); !unavailable {
				allUnavailable = false
				return false
			}
			return true
		})
	}
	return any && allUnavailable
}

// AddTemporaryUnavailableChannel marks ch unavailable, provided it is
// still subscribed (invariant 5: unavailable implies subscribed).
func (r *Registry) AddTemporaryUnavailableChannel(ch string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.channels.Load(ch); ok {
		r.tempUnavailableChannels.Store(ch, struct{}{})
	}
}

// AddTemporaryUnavailableGroup marks g unavailable, provided it is still
// subscribed.
func (r *Registry) AddTemporaryUnavailableGroup(g string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups.Load(g); ok {
		r.tempUnavailableGroups.Store(g, struct{}{})
	}
}

// RemoveTemporaryUnavailableChannel clears ch's unavailable marking.
func (r *Registry) RemoveTemporaryUnavailableChannel(ch string) {
	r.tempUnavailableChannels.Delete(ch)
}

// RemoveTemporaryUnavailableGroup clears g's unavailable marking.
func (r *Registry) RemoveTemporaryUnavailableGroup(g string) {
	r.tempUnavailableGroups.Delete(g)
}

// ResetTemporaryUnavailable clears every unavailable marking, used by
// disconnect().
func (r *Registry) ResetTemporaryUnavailable() {
	r.tempUnavailableChannels.Clear()
	r.tempUnavailableGroups.Clear()
}

// EffectiveChannels is the subscribed channel set, unioned with each
// channel's presence-mirror name when subscribed with presence, minus
// temporarily-unavailable channels.
func (r *Registry) EffectiveChannels() []string {
	var out []string
	r.channels.Range(func(ch string, entry *channelEntry) bool {
		if _, unavailable := r.tempUnavailableChannels.Load(ch); !unavailable {
			out = append(out, ch)
			if entry.withPresence {
				if _, unavailable := r.tempUnavailableChannels.Load(ch + presenceSuffix); !unavailable {
					out = append(out, ch+presenceSuffix)
				}
			}
		}
		return true
	})
	return out
}

// EffectiveChannelGroups is the channel-group analogue of EffectiveChannels.
func (r *Registry) EffectiveChannelGroups() []string {
	var out []string
	r.groups.Range(func(g string, entry *channelEntry) bool {
		if _, unavailable := r.tempUnavailableGroups.Load(g); !unavailable {
			out = append(out, g)
			if entry.withPresence {
				if _, unavailable := r.tempUnavailableGroups.Load(g + presenceSuffix); !unavailable {
					out = append(out, g+presenceSuffix)
				}
			}
		}
		return true
	})
	return out
}

// TargetChannels is the plain subscribed channel set without presence
// mirrors, used for presence/leave/heartbeat listings. When
// withPresenceOnly is true, only channels subscribed with presence are
// returned.
func (r *Registry) TargetChannels(withPresenceOnly bool) []string {
	var out []string
	r.channels.Range(func(ch string, entry *channelEntry) bool {
		if !withPresenceOnly || entry.withPresence {
			out = append(out, ch)
		}
		return true
	})
	return out
}

// TargetGroups is the TargetChannels analogue for channel groups.
func (r *Registry) TargetGroups(withPresenceOnly bool) []string {
	var out []string
	r.groups.Range(func(g string, entry *channelEntry) bool {
		if !withPresenceOnly || entry.withPresence {
			out = append(out, g)
		}
		return true
	})
	return out
}

// CreateStatePayload returns the mapping from channel/group name to
// opaque state blob, for every entry that has one.
func (r *Registry) CreateStatePayload() map[string]json.RawMessage {
	payload := make(map[string]json.RawMessage)
	r.channels.Range(func(ch string, entry *channelEntry) bool {
		if len(entry.state) > 0 {
			payload[ch] = entry.state
		}
		return true
	})
	r.groups.Range(func(g string, entry *channelEntry) bool {
		if len(entry.state) > 0 {
			payload[g] = entry.state
		}
		return true
	})
	return payload
}
