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

package reftransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/USA-RedDragon/SubHub/internal/pubsub"
	"github.com/USA-RedDragon/SubHub/internal/subscribe"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const defaultLongPollTimeout = 20 * time.Second

// Transport implements subscribe.Transport on top of an internal/pubsub
// backend. A Subscribe call fans out to one pubsub subscription per
// requested channel/group, waits for the first published message or a
// timeout, and resolves with whatever it collected.
//
// clientUUID identifies this Transport instance the way a PubNub client's
// uuid configuration value identifies it to the rest of the system: it has
// no bearing on routing, it just gives the debug logs something stable to
// correlate on across the lifetime of one subscriber.
type Transport struct {
	ps              pubsub.PubSub
	longPollTimeout time.Duration
	timetoken       int64
	clientUUID      string
}

// New constructs a Transport backed by ps.
func New(ps pubsub.PubSub) *Transport {
	return &Transport{ps: ps, longPollTimeout: defaultLongPollTimeout, clientUUID: uuid.NewString()}
}

// WithLongPollTimeout overrides the default long-poll timeout, mainly for
// tests that don't want to wait 20 seconds to observe a timeout category.
func (t *Transport) WithLongPollTimeout(d time.Duration) *Transport {
	t.longPollTimeout = d
	return t
}

// Subscribe implements subscribe.Transport.
func (t *Transport) Subscribe(ctx context.Context, req subscribe.SubscribeRequest) (<-chan subscribe.SubscribeResult, subscribe.Cancel) {
	resultCh := make(chan subscribe.SubscribeResult, 1)
	subCtx, cancel := context.WithCancel(ctx)

	topics := make([]string, 0, len(req.Channels)+len(req.ChannelGroups))
	topics = append(topics, req.Channels...)
	topics = append(topics, req.ChannelGroups...)

	aggregated := make(chan []byte, 32)
	subs := make([]pubsub.Subscription, 0, len(topics))
	group, groupCtx := errgroup.WithContext(subCtx)
	for _, topic := range topics {
		sub := t.ps.Subscribe(topic)
		subs = append(subs, sub)
		group.Go(func() error {
			forwardUntilCancelled(groupCtx, sub, aggregated)
			return nil
		})
	}

	slog.Debug("long-poll subscribe started", "client_uuid", t.clientUUID, "topics", len(topics))

	go func() {
		defer func() {
			cancel()
			for _, sub := range subs {
				_ = sub.Close()
			}
			_ = group.Wait()
		}()

		var messages []subscribe.Message
		timer := time.NewTimer(t.longPollTimeout)
		defer timer.Stop()

		select {
		case raw := <-aggregated:
			messages = append(messages, decodeOrEmpty(raw))
			messages = append(messages, drainNonBlocking(aggregated)...)
		case <-timer.C:
			resultCh <- subscribe.SubscribeResult{Status: subscribe.Status{Category: subscribe.PNTimeoutCategory, Operation: "Subscribe"}}
			return
		case <-subCtx.Done():
			// Cancelled: silent, per the at-most-one-outstanding-call
			// contract. No result is ever sent for a cancelled call.
			return
		}

		tt := atomic.AddInt64(&t.timetoken, 1)
		slog.Debug("long-poll subscribe resolved", "client_uuid", t.clientUUID, "messages", len(messages))
		resultCh <- subscribe.SubscribeResult{
			Envelope: subscribe.Envelope{
				Messages: messages,
				Metadata: subscribe.EnvelopeMetadata{Timetoken: tt, Region: "1"},
			},
			Status: subscribe.Status{Category: subscribe.PNAcknowledgmentCategory, Operation: "Subscribe"},
		}
	}()

	return resultCh, subscribe.Cancel(cancel)
}

// Heartbeat implements subscribe.Transport. The reference backend has no
// server-side presence concept to fail against, so every heartbeat
// succeeds.
func (t *Transport) Heartbeat(_ context.Context, _ subscribe.HeartbeatRequest) (<-chan subscribe.HeartbeatResult, subscribe.Cancel) {
	ch := make(chan subscribe.HeartbeatResult, 1)
	ch <- subscribe.HeartbeatResult{OK: true, Status: subscribe.Status{Category: subscribe.PNAcknowledgmentCategory, Operation: "Heartbeat"}}
	return ch, func() {}
}

// Leave implements subscribe.Transport.
func (t *Transport) Leave(_ context.Context, _ subscribe.LeaveRequest) (<-chan subscribe.LeaveResult, subscribe.Cancel) {
	ch := make(chan subscribe.LeaveResult, 1)
	ch <- subscribe.LeaveResult{OK: true, Status: subscribe.Status{Category: subscribe.PNAcknowledgmentCategory, Operation: "Leave"}}
	return ch, func() {}
}

// Probe implements subscribe.Transport. The in-memory and Redis backends
// are both reachable for as long as the process holding this Transport is
// alive, so a probe never fails; the reconnection controller exists for
// real transports where that is not true.
func (t *Transport) Probe(_ context.Context) (<-chan subscribe.ProbeResult, subscribe.Cancel) {
	ch := make(chan subscribe.ProbeResult, 1)
	ch <- subscribe.ProbeResult{OK: true, Status: subscribe.Status{Category: subscribe.PNAcknowledgmentCategory, Operation: "Probe"}}
	return ch, func() {}
}

func forwardUntilCancelled(ctx context.Context, sub pubsub.Subscription, out chan<- []byte) {
	for {
		select {
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func drainNonBlocking(in <-chan []byte) []subscribe.Message {
	var extra []subscribe.Message
	for {
		select {
		case raw := <-in:
			extra = append(extra, decodeOrEmpty(raw))
		default:
			return extra
		}
	}
}

func decodeOrEmpty(raw []byte) subscribe.Message {
	var msg subscribe.Message
	_ = json.Unmarshal(raw, &msg)
	return msg
}
