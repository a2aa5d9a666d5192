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
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// ReconnectionState is the polling reconnection controller's state
// machine position.
type ReconnectionState string

const (
	ReconnectionStateIdle         ReconnectionState = "idle"
	ReconnectionStatePolling      ReconnectionState = "polling"
	ReconnectionStateReconnected  ReconnectionState = "reconnected"
	ReconnectionStateExhausted    ReconnectionState = "exhausted"
)

// ReconnectionMetrics is the subset of metrics the reconnection controller
// reports through.
type ReconnectionMetrics interface {
	RecordReconnectAttempt(succeeded bool)
	RecordReconnectExhausted()
}

// NoopReconnectionMetrics discards every call.
type NoopReconnectionMetrics struct{}

func (NoopReconnectionMetrics) RecordReconnectAttempt(bool) {}
func (NoopReconnectionMetrics) RecordReconnectExhausted()   {}

const reconnectJobNamePrefix = "subhub-reconnect-probe-"

// ReconnectionController drives a sequence of probe calls on backoff after
// a hard disconnect, until either a probe succeeds (PNReconnectedCategory)
// or MaxReconnectionAttempts is exhausted
// (PNReconnectionAttemptsExhaustedCategory). Each probe is scheduled as a
// one-shot gocron job on the shared scheduler rather than a dedicated
// timer, so the whole engine's scheduled work funnels through one
// gocron.Scheduler instance.
type ReconnectionController struct {
	scheduler  gocron.Scheduler
	transport  Transport
	listeners  *ListenerRegistry
	metrics    ReconnectionMetrics
	policy     ReconnectionPolicy
	maxAttempts int

	mu       sync.Mutex
	state    ReconnectionState
	attempt  int
	cancelFn context.CancelFunc
	onReconnected func()
	generation int
}

// NewReconnectionController constructs a ReconnectionController against a
// shared gocron scheduler. onReconnected is invoked once the controller
// reaches ReconnectionStateReconnected, giving the caller (the Manager) a
// hook to resume normal polling.
func NewReconnectionController(scheduler gocron.Scheduler, transport Transport, listeners *ListenerRegistry, metrics ReconnectionMetrics, policy ReconnectionPolicy, maxAttempts int, onReconnected func()) *ReconnectionController {
	if metrics == nil {
		metrics = NoopReconnectionMetrics{}
	}
	return &ReconnectionController{
		scheduler:     scheduler,
		transport:     transport,
		listeners:     listeners,
		metrics:       metrics,
		policy:        policy,
		maxAttempts:   maxAttempts,
		state:         ReconnectionStateIdle,
		onReconnected: onReconnected,
	}
}

// State reports the controller's current state.
func (rc *ReconnectionController) State() ReconnectionState {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.state
}

// Start transitions idle->polling and schedules the first probe. Calling
// Start while already polling is a no-op.
func (rc *ReconnectionController) Start() {
	rc.mu.Lock()
	if rc.state == ReconnectionStatePolling {
		rc.mu.Unlock()
		return
	}
	rc.state = ReconnectionStatePolling
	rc.attempt = 0
	rc.generation++
	gen := rc.generation
	rc.mu.Unlock()

	rc.scheduleNext(gen, 0)
}

// Cancel abandons polling unconditionally, returning to idle with no
// status announced — used when a caller-driven disconnect() or destroy()
// makes the outstanding probe moot.
func (rc *ReconnectionController) Cancel() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.generation++
	if rc.cancelFn != nil {
		rc.cancelFn()
		rc.cancelFn = nil
	}
	rc.state = ReconnectionStateIdle
}

func (rc *ReconnectionController) scheduleNext(gen int, attempt int) {
	delay := rc.backoff(attempt)
	_, err := rc.scheduler.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(time.Now().Add(delay))),
		gocron.NewTask(func() { rc.probe(gen, attempt) }),
		gocron.WithName(reconnectJobNamePrefix+time.Now().String()),
	)
	if err != nil {
		slog.Error("failed to schedule reconnection probe", "error", err)
	}
}

func (rc *ReconnectionController) backoff(attempt int) time.Duration {
	const base = 250 * time.Millisecond
	const ceiling = 30 * time.Second
	if rc.policy == ReconnectionPolicyExponential {
		d := base << attempt //nolint:gosec // attempt is bounded by maxAttempts
		if d > ceiling || d <= 0 {
			return ceiling
		}
		return d
	}
	d := base * time.Duration(attempt+1)
	if d > ceiling {
		return ceiling
	}
	return d
}

func (rc *ReconnectionController) probe(gen int, attempt int) {
	rc.mu.Lock()
	if gen != rc.generation {
		rc.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	rc.cancelFn = cancel
	rc.mu.Unlock()
	defer cancel()

	results, transportCancel := rc.transport.Probe(ctx)
	defer transportCancel()
	result := <-results

	rc.mu.Lock()
	if gen != rc.generation {
		rc.mu.Unlock()
		return
	}
	rc.cancelFn = nil

	if result.OK {
		rc.state = ReconnectionStateReconnected
		rc.mu.Unlock()
		rc.metrics.RecordReconnectAttempt(true)
		rc.listeners.AnnounceStatus(projectPublicStatus(PNReconnectedCategory, nil, result.Status))
		if rc.onReconnected != nil {
			rc.onReconnected()
		}
		return
	}

	rc.metrics.RecordReconnectAttempt(false)
	next := attempt + 1
	if next >= rc.maxAttempts {
		rc.state = ReconnectionStateExhausted
		rc.mu.Unlock()
		rc.metrics.RecordReconnectExhausted()
		rc.listeners.AnnounceStatus(projectPublicStatus(PNReconnectionAttemptsExhaustedCategory, result.Status.Error, result.Status))
		return
	}
	rc.attempt = next
	rc.mu.Unlock()
	rc.scheduleNext(gen, next)
}
