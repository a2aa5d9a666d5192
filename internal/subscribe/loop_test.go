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
	"sync"
	"testing"
	"time"

	"github.com/USA-RedDragon/SubHub/internal/subscribe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loopHarness struct {
	facadeMu  *sync.Mutex
	registry  *subscribe.Registry
	listeners *subscribe.ListenerRegistry
	l         *recordingListener
	transport *fakeTransport
	dispatcher *subscribe.Dispatcher
	loop      *subscribe.Loop
}

func newLoopHarness(t *testing.T, cfg subscribe.Config) *loopHarness {
	t.Helper()
	facadeMu := &sync.Mutex{}
	registry := subscribe.NewRegistry()
	dedup := subscribe.NewDuplicationFilter(cfg.DuplicationFilterCapacity)
	listeners := subscribe.NewListenerRegistry()
	l := &recordingListener{}
	listeners.AddListener(l)
	dispatcher := subscribe.NewDispatcher(dedup, listeners, nil)
	dispatcher.Start()
	t.Cleanup(dispatcher.Destroy)

	transport := newFakeTransport()
	delayed := subscribe.NewDelayedReconnection()
	scheduler := newTestGocronScheduler(t)

	h := &loopHarness{facadeMu: facadeMu, registry: registry, listeners: listeners, l: l, transport: transport, dispatcher: dispatcher}

	reconnect := subscribe.NewReconnectionController(scheduler, transport, listeners, nil, cfg.ReconnectionPolicy, cfg.MaxReconnectionAttempts, func() {
		facadeMu.Lock()
		defer facadeMu.Unlock()
		h.loop.SetConnected(true)
		h.loop.Start()
	})

	loop := subscribe.NewLoop(facadeMu, registry, dedup, dispatcher, listeners, transport, delayed, reconnect, nil, cfg)
	h.loop = loop
	t.Cleanup(func() {
		facadeMu.Lock()
		defer facadeMu.Unlock()
		loop.Disconnect()
	})
	return h
}

func testConfig() subscribe.Config {
	cfg := subscribe.DefaultConfig()
	cfg.DelayedReconnectionInterval = 20 * time.Millisecond
	return cfg
}

func statusCategories(l *recordingListener) []subscribe.Category {
	l.mu.Lock()
	defer l.mu.Unlock()
	var cats []subscribe.Category
	for _, s := range l.statuses {
		cats = append(cats, s.Category)
	}
	return cats
}

func TestLoopColdSubscribeAnnouncesConnected(t *testing.T) {
	h := newLoopHarness(t, testConfig())
	h.registry.ApplySubscribe(subscribe.SubscribeOp{Channels: []string{"a", "b"}})

	h.transport.enqueueSubscribe(subscribe.SubscribeResult{
		Envelope: subscribe.Envelope{Metadata: subscribe.EnvelopeMetadata{Timetoken: 1000, Region: "1"}},
	})
	h.transport.enqueueSubscribe(subscribe.SubscribeResult{Status: subscribe.Status{Category: subscribe.PNTimeoutCategory}})

	h.facadeMu.Lock()
	h.loop.SetConnected(true)
	h.loop.Start()
	h.facadeMu.Unlock()

	require.True(t, waitForCondition(t, time.Second, func() bool {
		return len(statusCategories(h.l)) >= 1
	}))
	assert.Equal(t, []subscribe.Category{subscribe.PNConnectedCategory}, statusCategories(h.l))

	require.True(t, waitForCondition(t, time.Second, func() bool {
		req := h.transport.lastRequest()
		return req.Timetoken == 1000 && req.Region == "1"
	}))
}

func TestLoopMixChangePreservesCursor(t *testing.T) {
	h := newLoopHarness(t, testConfig())
	h.registry.ApplySubscribe(subscribe.SubscribeOp{Channels: []string{"a", "b"}})

	h.transport.enqueueSubscribe(subscribe.SubscribeResult{
		Envelope: subscribe.Envelope{Metadata: subscribe.EnvelopeMetadata{Timetoken: 1000, Region: "1"}},
	})

	h.facadeMu.Lock()
	h.loop.SetConnected(true)
	h.loop.Start()
	h.facadeMu.Unlock()

	require.True(t, waitForCondition(t, time.Second, func() bool {
		return h.transport.lastRequest().Timetoken == 1000
	}))

	// Simulate the manager's mix-change cursor policy for subscribe("c").
	h.facadeMu.Lock()
	h.loop.PreserveCursorAcrossMixChange()
	h.loop.MarkMixChanged()
	h.registry.ApplySubscribe(subscribe.SubscribeOp{Channels: []string{"c"}})
	h.facadeMu.Unlock()

	assert.Equal(t, int64(0), h.loop.Timetoken())

	h.transport.enqueueSubscribe(subscribe.SubscribeResult{
		Envelope: subscribe.Envelope{Metadata: subscribe.EnvelopeMetadata{Timetoken: 1200, Region: "2"}},
	})
	h.transport.enqueueSubscribe(subscribe.SubscribeResult{Status: subscribe.Status{Category: subscribe.PNTimeoutCategory}})

	h.facadeMu.Lock()
	h.loop.Start()
	h.facadeMu.Unlock()

	require.True(t, waitForCondition(t, time.Second, func() bool {
		return h.transport.lastRequest().Timetoken == 1000
	}))

	h.transport.enqueueSubscribe(subscribe.SubscribeResult{
		Envelope: subscribe.Envelope{Metadata: subscribe.EnvelopeMetadata{Timetoken: 1300, Region: "2"}},
	})
	require.True(t, waitForCondition(t, time.Second, func() bool {
		return h.transport.lastRequest().Timetoken == 1300
	}))
}

func TestLoopAccessDeniedIsolatesChannel(t *testing.T) {
	h := newLoopHarness(t, testConfig())
	h.registry.ApplySubscribe(subscribe.SubscribeOp{Channels: []string{"a", "b", "c"}})

	h.transport.enqueueSubscribe(subscribe.SubscribeResult{Status: subscribe.Status{
		Category:         subscribe.PNAccessDeniedCategory,
		AffectedChannels: []string{"b"},
	}})
	h.transport.enqueueSubscribe(subscribe.SubscribeResult{Status: subscribe.Status{Category: subscribe.PNTimeoutCategory}})

	h.facadeMu.Lock()
	h.loop.SetConnected(true)
	h.loop.Start()
	h.facadeMu.Unlock()

	require.True(t, waitForCondition(t, time.Second, func() bool {
		req := h.transport.lastRequest()
		return len(req.Channels) == 2
	}))
	req := h.transport.lastRequest()
	assert.ElementsMatch(t, []string{"a", "c"}, req.Channels)

	h.transport.enqueueSubscribe(subscribe.SubscribeResult{Status: subscribe.Status{
		Category:         subscribe.PNAcknowledgmentCategory,
		AffectedChannels: []string{"b"},
	}})
	h.transport.enqueueSubscribe(subscribe.SubscribeResult{Status: subscribe.Status{Category: subscribe.PNTimeoutCategory}})

	require.True(t, waitForCondition(t, time.Second, func() bool {
		req := h.transport.lastRequest()
		return len(req.Channels) == 3
	}))
}

func TestLoopAllTemporarilyUnavailableSleepsThenRetries(t *testing.T) {
	cfg := testConfig()
	h := newLoopHarness(t, cfg)
	h.registry.ApplySubscribe(subscribe.SubscribeOp{Channels: []string{"x"}})
	h.registry.AddTemporaryUnavailableChannel("x")

	h.facadeMu.Lock()
	h.loop.SetConnected(true)
	h.loop.Start()
	h.facadeMu.Unlock()

	// While x stays temporarily unavailable, the loop keeps sleeping and
	// never issues a subscribe call: a channel excluded from every
	// request can never learn from the server that it's available again.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), h.transport.subscribeCalls)

	// Recovery comes from outside the loop (e.g. an explicit resubscribe
	// or operator action clearing the mark); the next scheduled re-entry
	// then issues a real request.
	h.transport.enqueueSubscribe(subscribe.SubscribeResult{Status: subscribe.Status{Category: subscribe.PNTimeoutCategory}})
	h.registry.RemoveTemporaryUnavailableChannel("x")

	require.True(t, waitForCondition(t, time.Second, func() bool {
		return h.transport.subscribeCalls >= 1
	}))
}

func TestLoopHardDisconnectStartsReconnection(t *testing.T) {
	h := newLoopHarness(t, testConfig())
	h.registry.ApplySubscribe(subscribe.SubscribeOp{Channels: []string{"a"}})

	h.transport.enqueueSubscribe(subscribe.SubscribeResult{Status: subscribe.Status{Category: subscribe.PNUnexpectedDisconnectCategory}})
	h.transport.enqueueProbe(subscribe.ProbeResult{OK: true})

	h.facadeMu.Lock()
	h.loop.SetConnected(true)
	h.loop.Start()
	h.facadeMu.Unlock()

	require.True(t, waitForCondition(t, time.Second, func() bool {
		cats := statusCategories(h.l)
		for _, c := range cats {
			if c == subscribe.PNReconnectedCategory {
				return true
			}
		}
		return false
	}))

	cats := statusCategories(h.l)
	assert.Contains(t, cats, subscribe.PNUnexpectedDisconnectCategory)
	assert.Contains(t, cats, subscribe.PNReconnectedCategory)
}

func TestLoopFatalErrorStopsWithoutReconnection(t *testing.T) {
	h := newLoopHarness(t, testConfig())
	h.registry.ApplySubscribe(subscribe.SubscribeOp{Channels: []string{"a"}})

	h.transport.enqueueSubscribe(subscribe.SubscribeResult{Status: subscribe.Status{Category: subscribe.PNBadRequestCategory}})

	h.facadeMu.Lock()
	h.loop.SetConnected(true)
	h.loop.Start()
	h.facadeMu.Unlock()

	require.True(t, waitForCondition(t, time.Second, func() bool {
		return len(statusCategories(h.l)) >= 1
	}))

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), h.transport.subscribeCalls)
	assert.Equal(t, []subscribe.Category{subscribe.PNBadRequestCategory}, statusCategories(h.l))
}

func TestLoopCancellationIsSilent(t *testing.T) {
	h := newLoopHarness(t, testConfig())
	h.registry.ApplySubscribe(subscribe.SubscribeOp{Channels: []string{"a"}})

	h.facadeMu.Lock()
	h.loop.SetConnected(true)
	h.loop.Disconnect()
	h.facadeMu.Unlock()

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, statusCategories(h.l))
}
