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
	"sync"

	"go.opentelemetry.io/otel"
)

var loopTracer = otel.Tracer("github.com/USA-RedDragon/SubHub/internal/subscribe")

// LoopMetrics is the subset of metrics the subscribe loop reports through.
type LoopMetrics interface {
	RecordLoopIteration(category string)
	RecordLoopError(category string)
	RecordSubscribeCall()
}

// NoopLoopMetrics discards every call.
type NoopLoopMetrics struct{}

func (NoopLoopMetrics) RecordLoopIteration(string) {}
func (NoopLoopMetrics) RecordLoopError(string)     {}
func (NoopLoopMetrics) RecordSubscribeCall()       {}

// Loop implements the subscribe loop state machine of section 4.8: it
// builds, launches, and handles one outstanding long-poll at a time,
// tail-calling itself on every completion rather than growing a call
// stack. It never locks its own mutex — facadeMu, shared with the owning
// Manager, is the single lock serializing every state transition, so that
// a response handler re-entering the facade never races a concurrent
// builder mutation.
type Loop struct {
	facadeMu *sync.Mutex

	registry   *Registry
	dedup      *DuplicationFilter
	dispatcher *Dispatcher
	listeners  *ListenerRegistry
	transport  Transport
	delayed    *DelayedReconnection
	reconnect  *ReconnectionController
	metrics    LoopMetrics
	cfg        Config

	connected                   bool
	timetoken                   int64
	storedTimetoken             *int64
	region                      string
	subscriptionStatusAnnounced bool

	generation     int
	cancelOutstanding Cancel
}

// NewLoop constructs a Loop. facadeMu must be the same mutex the owning
// Manager locks around every public mutation method.
func NewLoop(facadeMu *sync.Mutex, registry *Registry, dedup *DuplicationFilter, dispatcher *Dispatcher, listeners *ListenerRegistry, transport Transport, delayed *DelayedReconnection, reconnect *ReconnectionController, metrics LoopMetrics, cfg Config) *Loop {
	if metrics == nil {
		metrics = NoopLoopMetrics{}
	}
	return &Loop{
		facadeMu:   facadeMu,
		registry:   registry,
		dedup:      dedup,
		dispatcher: dispatcher,
		listeners:  listeners,
		transport:  transport,
		delayed:    delayed,
		reconnect:  reconnect,
		metrics:    metrics,
		cfg:        cfg,
	}
}

// SetConnected marks the loop's desired running state. Callers must hold
// facadeMu.
func (l *Loop) SetConnected(connected bool) {
	l.connected = connected
}

// Timetoken returns the current cursor. Callers must hold facadeMu.
func (l *Loop) Timetoken() int64 {
	return l.timetoken
}

// Region returns the current region token. Callers must hold facadeMu.
func (l *Loop) Region() string {
	return l.region
}

// ResetCursorForEmptyMix clears region and the cursor entirely, used when
// the registry becomes empty on unsubscribe.
func (l *Loop) ResetCursorForEmptyMix() {
	l.region = ""
	l.storedTimetoken = nil
	l.timetoken = 0
}

// PreserveCursorAcrossMixChange stashes the current nonzero timetoken into
// storedTimetoken and resets timetoken to zero, per the manager's mix
// change cursor policy.
func (l *Loop) PreserveCursorAcrossMixChange() {
	if l.timetoken != 0 {
		stored := l.timetoken
		l.storedTimetoken = &stored
	}
	l.timetoken = 0
}

// AdoptExplicitTimetoken sets the cursor to an explicitly provided value,
// clearing any pending storedTimetoken restoration.
func (l *Loop) AdoptExplicitTimetoken(tt int64) {
	l.timetoken = tt
	l.storedTimetoken = nil
}

// MarkMixChanged clears the duplication filter and the once-per-episode
// connected announcement flag, called by the Manager whenever a mutation
// changes the subscribed set.
func (l *Loop) MarkMixChanged() {
	l.dedup.Clear()
	l.subscriptionStatusAnnounced = false
}

// cancelCurrent cancels any outstanding call silently and bumps the
// generation counter so a late-arriving result from it is discarded
// instead of acted on.
func (l *Loop) cancelCurrent() {
	l.generation++
	if l.cancelOutstanding != nil {
		l.cancelOutstanding()
		l.cancelOutstanding = nil
	}
}

// Disconnect tears down all outstanding calls and timers. Callers must
// hold facadeMu.
func (l *Loop) Disconnect() {
	l.connected = false
	l.cancelCurrent()
	l.delayed.Cancel()
	l.reconnect.Cancel()
	l.registry.ResetTemporaryUnavailable()
}

// Start is the entry point of section 4.8: snapshot the registry,
// decide whether to poll, sleep, or do nothing, and issue the next
// long-poll. Callers must hold facadeMu; Start returns immediately, the
// response is handled asynchronously by a background goroutine that
// re-acquires facadeMu.
func (l *Loop) Start() {
	if !l.connected {
		return
	}
	l.cancelCurrent()

	if !l.registry.HasAnythingToSubscribe() {
		return
	}

	if l.registry.SubscribedToOnlyTemporaryUnavailable() {
		l.delayed.Schedule(l.cfg.DelayedReconnectionInterval, l.reenter)
		return
	}

	req := SubscribeRequest{
		Channels:         l.registry.EffectiveChannels(),
		ChannelGroups:    l.registry.EffectiveChannelGroups(),
		Timetoken:        l.timetoken,
		Region:           l.region,
		FilterExpression: l.cfg.FilterExpression,
		State:            l.registry.CreateStatePayload(),
	}

	ctx, span := loopTracer.Start(context.Background(), "SubHub.SubscribeLoop")
	l.metrics.RecordSubscribeCall()

	gen := l.generation
	results, cancel := l.transport.Subscribe(ctx, req)
	l.cancelOutstanding = func() {
		cancel()
		span.End()
	}

	go func() {
		result, ok := <-results
		if !ok {
			return
		}
		l.facadeMu.Lock()
		defer l.facadeMu.Unlock()
		if gen != l.generation {
			// Superseded or cancelled: silent, per the cancellation
			// contract in section 5.
			return
		}
		span.End()
		l.cancelOutstanding = nil
		l.handleResult(result)
	}()
}

// reenter is the delayed-reconnection callback: re-acquire facadeMu and
// tail-call Start.
func (l *Loop) reenter() {
	l.facadeMu.Lock()
	defer l.facadeMu.Unlock()
	if !l.connected {
		return
	}
	l.Start()
}

// handleResult dispatches a completed long-poll by category, per the
// section 4.8 routing table. Callers must hold facadeMu.
func (l *Loop) handleResult(result SubscribeResult) {
	status := result.Status
	l.metrics.RecordLoopIteration(string(status.Category))

	switch status.Category {
	case "", PNAcknowledgmentCategory:
		l.handleSuccess(result)
		return
	case PNTimeoutCategory:
		l.Start()
		return
	case PNUnexpectedDisconnectCategory:
		l.metrics.RecordLoopError(string(status.Category))
		l.connected = false
		l.cancelCurrent()
		l.delayed.Cancel()
		l.listeners.AnnounceStatus(projectPublicStatus(status.Category, status.Error, status))
		l.reconnect.Start()
		return
	case PNBadRequestCategory, PNURITooLongCategory:
		l.metrics.RecordLoopError(string(status.Category))
		l.connected = false
		l.cancelCurrent()
		l.delayed.Cancel()
		l.reconnect.Cancel()
		l.listeners.AnnounceStatus(projectPublicStatus(status.Category, status.Error, status))
		return
	case PNAccessDeniedCategory:
		l.metrics.RecordLoopError(string(status.Category))
		l.listeners.AnnounceStatus(projectPublicStatus(status.Category, status.Error, status))
		affected := false
		for _, ch := range status.AffectedChannels {
			l.registry.AddTemporaryUnavailableChannel(ch)
			affected = true
		}
		for _, g := range status.AffectedChannelGroups {
			l.registry.AddTemporaryUnavailableGroup(g)
			affected = true
		}
		if affected {
			l.Start()
		}
		return
	default:
		l.metrics.RecordLoopError(string(status.Category))
		l.listeners.AnnounceStatus(projectPublicStatus(status.Category, status.Error, status))
		l.delayed.Schedule(l.cfg.DelayedReconnectionInterval, l.reenter)
		return
	}
}

// handleSuccess implements section 4.8.1.
func (l *Loop) handleSuccess(result SubscribeResult) {
	status := result.Status
	for _, ch := range status.AffectedChannels {
		l.registry.RemoveTemporaryUnavailableChannel(ch)
	}
	for _, g := range status.AffectedChannelGroups {
		l.registry.RemoveTemporaryUnavailableGroup(g)
	}

	if !l.subscriptionStatusAnnounced {
		l.subscriptionStatusAnnounced = true
		l.listeners.AnnounceStatus(projectPublicStatus(PNConnectedCategory, nil, status))
	}

	messages := result.Envelope.Messages
	if l.cfg.RequestMessageCountThreshold > 0 && len(messages) >= l.cfg.RequestMessageCountThreshold {
		l.listeners.AnnounceStatus(projectPublicStatus(PNRequestMessageCountExceededCategory, nil, status))
	}

	if len(messages) > 0 {
		l.dispatcher.PushEnvelope(result.Envelope)
	}

	if l.storedTimetoken != nil {
		l.timetoken = *l.storedTimetoken
		l.storedTimetoken = nil
	} else {
		l.timetoken = result.Envelope.Metadata.Timetoken
	}
	l.region = result.Envelope.Metadata.Region

	l.Start()
}
