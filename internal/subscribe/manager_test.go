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
	"time"

	"github.com/USA-RedDragon/SubHub/internal/subscribe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*subscribe.Manager, *fakeTransport, *recordingListener) {
	t.Helper()
	transport := newFakeTransport()
	cfg := subscribe.DefaultConfig()
	cfg.DelayedReconnectionInterval = 20 * time.Millisecond
	cfg.HeartbeatInterval = 0 // disabled unless a test opts in

	m, err := subscribe.NewManager(transport, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { m.Destroy(true) })

	l := &recordingListener{}
	m.AddListener(l)
	return m, transport, l
}

func TestManagerSubscribeUnsubscribeRoundTrip(t *testing.T) {
	m, transport, _ := newTestManager(t)

	transport.enqueueSubscribe(subscribe.SubscribeResult{
		Envelope: subscribe.Envelope{Metadata: subscribe.EnvelopeMetadata{Timetoken: 500, Region: "1"}},
	})
	m.Subscribe(subscribe.SubscribeOp{Channels: []string{"a"}})

	require.True(t, waitForCondition(t, time.Second, func() bool {
		return len(m.GetSubscribedChannels()) == 1
	}))

	m.Unsubscribe(subscribe.UnsubscribeOp{Channels: []string{"a"}})
	assert.Empty(t, m.GetSubscribedChannels())
}

func TestManagerUnsubscribeAll(t *testing.T) {
	m, transport, _ := newTestManager(t)
	transport.enqueueSubscribe(subscribe.SubscribeResult{})
	m.Subscribe(subscribe.SubscribeOp{Channels: []string{"a", "b"}, ChannelGroups: []string{"g"}})

	m.UnsubscribeAll()
	assert.Empty(t, m.GetSubscribedChannels())
	assert.Empty(t, m.GetSubscribedChannelGroups())
}

func TestManagerAddRemoveListener(t *testing.T) {
	m, transport, l := newTestManager(t)
	transport.enqueueSubscribe(subscribe.SubscribeResult{
		Envelope: subscribe.Envelope{Metadata: subscribe.EnvelopeMetadata{Timetoken: 10}},
	})
	transport.enqueueSubscribe(subscribe.SubscribeResult{Status: subscribe.Status{Category: subscribe.PNTimeoutCategory}})

	m.Subscribe(subscribe.SubscribeOp{Channels: []string{"a"}})
	require.True(t, waitForCondition(t, time.Second, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return len(l.statuses) >= 1
	}))

	m.RemoveListener(l)
	l.mu.Lock()
	before := len(l.statuses)
	l.mu.Unlock()

	m.Disconnect()
	time.Sleep(20 * time.Millisecond)
	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Equal(t, before, len(l.statuses))
}

func TestManagerDestroyStopsDispatcher(t *testing.T) {
	transport := newFakeTransport()
	cfg := subscribe.DefaultConfig()
	m, err := subscribe.NewManager(transport, cfg, nil)
	require.NoError(t, err)
	m.Destroy(true)
	// Destroy is expected to be safe to call from a deferred cleanup
	// too; calling it twice must not panic.
	m.Destroy(true)
}
