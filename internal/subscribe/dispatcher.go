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
	"log/slog"
	"sync"

	"github.com/USA-RedDragon/SubHub/internal/queue"
)

// Dispatcher owns the message queue and the background goroutine that
// drains it: deduplicating, classifying by MessageType, and announcing to
// the listener registry. Splitting enqueue (PushEnvelope, called from the
// subscribe loop) from drain (the dispatch goroutine) keeps the loop from
// ever blocking on a slow listener.
type Dispatcher struct {
	q         *queue.Queue
	dedup     *DuplicationFilter
	listeners *ListenerRegistry
	metrics   DispatcherMetrics

	wg sync.WaitGroup
}

// DispatcherMetrics is the subset of metrics the dispatcher reports
// through. A nil-method-set NoopDispatcherMetrics satisfies it when the
// caller has no metrics backend wired up.
type DispatcherMetrics interface {
	RecordDispatch()
	RecordDedup()
	SetQueueDepth(depth int)
}

// NoopDispatcherMetrics discards every call, for callers and tests that do
// not care about metrics.
type NoopDispatcherMetrics struct{}

func (NoopDispatcherMetrics) RecordDispatch()        {}
func (NoopDispatcherMetrics) RecordDedup()           {}
func (NoopDispatcherMetrics) SetQueueDepth(int)      {}

// NewDispatcher constructs a Dispatcher. Nothing drains the queue until
// Start is called; Manager honors StartSubscriberThread by choosing whether
// to call Start.
func NewDispatcher(dedup *DuplicationFilter, listeners *ListenerRegistry, metrics DispatcherMetrics) *Dispatcher {
	if metrics == nil {
		metrics = NoopDispatcherMetrics{}
	}
	return &Dispatcher{
		q:         queue.NewQueue(),
		dedup:     dedup,
		listeners: listeners,
		metrics:   metrics,
	}
}

// PushEnvelope enqueues every message of env for dispatch.
func (d *Dispatcher) PushEnvelope(env Envelope) {
	for _, msg := range env.Messages {
		encoded, err := json.Marshal(msg)
		if err != nil {
			slog.Error("dropping message that failed to encode for the dispatch queue", "error", err)
			continue
		}
		depth := d.q.Push(encoded)
		d.metrics.SetQueueDepth(depth)
	}
}

// Start launches the background dispatch goroutine. Destroy stops it.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.run()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		raw, ok := d.q.Pop()
		if !ok {
			return
		}
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			slog.Error("dropping message that failed to decode off the dispatch queue", "error", err)
			continue
		}
		d.metrics.SetQueueDepth(d.q.Len())

		if d.dedup.IsDuplicate(msg) {
			d.metrics.RecordDedup()
			continue
		}

		switch msg.Type {
		case MessageTypePresence:
			d.listeners.AnnouncePresence(msg)
		case MessageTypeSignal:
			d.listeners.AnnounceSignal(msg)
		case MessageTypeObject:
			d.listeners.AnnounceObject(msg)
		case MessageTypeFile:
			d.listeners.AnnounceFile(msg)
		default:
			d.listeners.AnnounceMessage(msg)
		}
		d.metrics.RecordDispatch()
	}
}

// Destroy closes the underlying queue, which unblocks and terminates the
// dispatch goroutine, then waits for it to exit.
func (d *Dispatcher) Destroy() {
	d.q.Close()
	d.wg.Wait()
}

// QueueDepth reports the current number of undelivered messages.
func (d *Dispatcher) QueueDepth() int {
	return d.q.Len()
}
