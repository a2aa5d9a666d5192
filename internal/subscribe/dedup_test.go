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

package subscribe_test

import (
	"testing"

	"github.com/USA-RedDragon/SubHub/internal/subscribe"
	"github.com/stretchr/testify/assert"
)

func TestDuplicationFilterFirstSeenIsNotDuplicate(t *testing.T) {
	f := subscribe.NewDuplicationFilter(10)
	msg := subscribe.Message{Channel: "a", PublishTimetoken: 1, Payload: []byte(`{"x":1}`)}
	assert.False(t, f.IsDuplicate(msg))
}

func TestDuplicationFilterRepeatIsDuplicate(t *testing.T) {
	f := subscribe.NewDuplicationFilter(10)
	msg := subscribe.Message{Channel: "a", PublishTimetoken: 1, Payload: []byte(`{"x":1}`)}
	assert.False(t, f.IsDuplicate(msg))
	assert.True(t, f.IsDuplicate(msg))
}

func TestDuplicationFilterDistinguishesByTimetokenAndPayload(t *testing.T) {
	f := subscribe.NewDuplicationFilter(10)
	m1 := subscribe.Message{Channel: "a", PublishTimetoken: 1, Payload: []byte(`{"x":1}`)}
	m2 := subscribe.Message{Channel: "a", PublishTimetoken: 2, Payload: []byte(`{"x":1}`)}
	m3 := subscribe.Message{Channel: "a", PublishTimetoken: 1, Payload: []byte(`{"x":2}`)}

	assert.False(t, f.IsDuplicate(m1))
	assert.False(t, f.IsDuplicate(m2))
	assert.False(t, f.IsDuplicate(m3))
}

func TestDuplicationFilterEvictsOldestPastCapacity(t *testing.T) {
	f := subscribe.NewDuplicationFilter(2)
	m1 := subscribe.Message{Channel: "a", PublishTimetoken: 1}
	m2 := subscribe.Message{Channel: "a", PublishTimetoken: 2}
	m3 := subscribe.Message{Channel: "a", PublishTimetoken: 3}

	assert.False(t, f.IsDuplicate(m1))
	assert.False(t, f.IsDuplicate(m2))
	assert.False(t, f.IsDuplicate(m3))

	// m1 should have been evicted to make room for m3.
	assert.False(t, f.IsDuplicate(m1))
	assert.True(t, f.IsDuplicate(m3))
}

func TestDuplicationFilterClear(t *testing.T) {
	f := subscribe.NewDuplicationFilter(10)
	msg := subscribe.Message{Channel: "a", PublishTimetoken: 1}
	assert.False(t, f.IsDuplicate(msg))
	f.Clear()
	assert.False(t, f.IsDuplicate(msg))
}

func TestDuplicationFilterZeroCapacityNeverDeduplicates(t *testing.T) {
	f := subscribe.NewDuplicationFilter(0)
	msg := subscribe.Message{Channel: "a", PublishTimetoken: 1}
	assert.False(t, f.IsDuplicate(msg))
	assert.False(t, f.IsDuplicate(msg))
}
