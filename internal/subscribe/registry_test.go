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
	"sort"
	"testing"

	"github.com/USA-RedDragon/SubHub/internal/subscribe"
	"github.com/stretchr/testify/assert"
)

func TestRegistryEmptyByDefault(t *testing.T) {
	r := subscribe.NewRegistry()
	assert.True(t, r.IsEmpty())
	assert.False(t, r.HasAnythingToSubscribe())
}

func TestRegistryApplySubscribeChangesMix(t *testing.T) {
	r := subscribe.NewRegistry()
	changed := r.ApplySubscribe(subscribe.SubscribeOp{Channels: []string{"a", "b"}})
	assert.True(t, changed)
	assert.False(t, r.IsEmpty())

	changed = r.ApplySubscribe(subscribe.SubscribeOp{Channels: []string{"a"}})
	assert.False(t, changed)
}

func TestRegistryEffectiveChannelsWithPresence(t *testing.T) {
	r := subscribe.NewRegistry()
	r.ApplySubscribe(subscribe.SubscribeOp{Channels: []string{"room1"}, WithPresence: true})
	r.ApplySubscribe(subscribe.SubscribeOp{Channels: []string{"room2"}})

	got := r.EffectiveChannels()
	sort.Strings(got)
	assert.Equal(t, []string{"room1", "room1-pnpres", "room2"}, got)
}

func TestRegistryTargetChannelsWithPresenceOnly(t *testing.T) {
	r := subscribe.NewRegistry()
	r.ApplySubscribe(subscribe.SubscribeOp{Channels: []string{"room1"}, WithPresence: true})
	r.ApplySubscribe(subscribe.SubscribeOp{Channels: []string{"room2"}})

	got := r.TargetChannels(true)
	assert.Equal(t, []string{"room1"}, got)

	got = r.TargetChannels(false)
	sort.Strings(got)
	assert.Equal(t, []string{"room1", "room2"}, got)
}

func TestRegistryApplyUnsubscribeRemovesAndClearsUnavailable(t *testing.T) {
	r := subscribe.NewRegistry()
	r.ApplySubscribe(subscribe.SubscribeOp{Channels: []string{"a"}})
	r.AddTemporaryUnavailableChannel("a")

	changed := r.ApplyUnsubscribe(subscribe.UnsubscribeOp{Channels: []string{"a"}})
	assert.True(t, changed)
	assert.True(t, r.IsEmpty())

	r.ApplySubscribe(subscribe.SubscribeOp{Channels: []string{"a"}})
	assert.Equal(t, []string{"a"}, r.EffectiveChannels())
}

func TestRegistryAddTemporaryUnavailableRequiresSubscribed(t *testing.T) {
	r := subscribe.NewRegistry()
	r.AddTemporaryUnavailableChannel("unsubscribed")
	assert.Equal(t, []string(nil), r.EffectiveChannels())

	r.ApplySubscribe(subscribe.SubscribeOp{Channels: []string{"a"}})
	r.AddTemporaryUnavailableChannel("a")
	assert.Equal(t, []string(nil), r.EffectiveChannels())
}

func TestRegistrySubscribedToOnlyTemporaryUnavailable(t *testing.T) {
	r := subscribe.NewRegistry()
	assert.False(t, r.SubscribedToOnlyTemporaryUnavailable())

	r.ApplySubscribe(subscribe.SubscribeOp{Channels: []string{"a", "b"}})
	assert.False(t, r.SubscribedToOnlyTemporaryUnavailable())

	r.AddTemporaryUnavailableChannel("a")
	assert.False(t, r.SubscribedToOnlyTemporaryUnavailable())

	r.AddTemporaryUnavailableChannel("b")
	assert.True(t, r.SubscribedToOnlyTemporaryUnavailable())

	r.RemoveTemporaryUnavailableChannel("a")
	assert.False(t, r.SubscribedToOnlyTemporaryUnavailable())
}

func TestRegistryResetTemporaryUnavailable(t *testing.T) {
	r := subscribe.NewRegistry()
	r.ApplySubscribe(subscribe.SubscribeOp{Channels: []string{"a"}})
	r.AddTemporaryUnavailableChannel("a")
	assert.Equal(t, []string(nil), r.EffectiveChannels())

	r.ResetTemporaryUnavailable()
	assert.Equal(t, []string{"a"}, r.EffectiveChannels())
}

func TestRegistryApplyStateAndCreateStatePayload(t *testing.T) {
	r := subscribe.NewRegistry()
	r.ApplySubscribe(subscribe.SubscribeOp{Channels: []string{"a"}})
	r.ApplyState(subscribe.StateOp{Channels: []string{"a"}, State: []byte(`{"x":1}`)})

	payload := r.CreateStatePayload()
	assert.JSONEq(t, `{"x":1}`, string(payload["a"]))
}

func TestRegistryApplyPresenceTogglesMirror(t *testing.T) {
	r := subscribe.NewRegistry()
	r.ApplySubscribe(subscribe.SubscribeOp{Channels: []string{"a"}})
	assert.Equal(t, []string{"a"}, r.EffectiveChannels())

	r.ApplyPresence(subscribe.PresenceOp{Channels: []string{"a"}, Connected: true})
	assert.ElementsMatch(t, []string{"a", "a-pnpres"}, r.EffectiveChannels())

	r.ApplyPresence(subscribe.PresenceOp{Channels: []string{"a"}, Connected: false})
	assert.Equal(t, []string{"a"}, r.EffectiveChannels())
}
