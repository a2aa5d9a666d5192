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

	"github.com/go-co-op/gocron/v2"
)

// ManagerMetrics bundles every metrics interface the facade's owned
// components report through. A nil ManagerMetrics wires every component
// to its no-op implementation.
type ManagerMetrics interface {
	DispatcherMetrics
	HeartbeatMetrics
	ReconnectionMetrics
	LoopMetrics
}

// Manager is the Subscription Manager facade of section 4.9: it
// serializes every mutation behind a single facade lock and wires the
// Registry, Duplication Filter, Dispatcher, Listener Registry, Heartbeat
// Scheduler, Reconnection Controller, Delayed Reconnection, and Subscribe
// Loop together. The facade lock is always acquired before the Registry's
// own internal lock (never the reverse), per the nesting order in
// section 5.
type Manager struct {
	mu sync.Mutex

	cfg       Config
	transport Transport
	scheduler gocron.Scheduler

	registry   *Registry
	dedup      *DuplicationFilter
	dispatcher *Dispatcher
	listeners  *ListenerRegistry
	heartbeat  *HeartbeatScheduler
	reconnect  *ReconnectionController
	delayed    *DelayedReconnection
	loop       *Loop

	// leaveWG tracks in-flight sendLeave goroutines so Destroy can wait
	// for them to land their listener announcements before tearing down.
	leaveWG sync.WaitGroup
}

// NewManager constructs a Manager and starts the dispatcher goroutine if
// cfg.StartSubscriberThread is set. The returned Manager is disconnected;
// call Reconnect (directly, or implicitly via Subscribe) to begin
// polling.
func NewManager(transport Transport, cfg Config, metrics ManagerMetrics) (*Manager, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	var dispatcherMetrics DispatcherMetrics = NoopDispatcherMetrics{}
	var heartbeatMetrics HeartbeatMetrics = NoopHeartbeatMetrics{}
	var reconnectMetrics ReconnectionMetrics = NoopReconnectionMetrics{}
	var loopMetrics LoopMetrics = NoopLoopMetrics{}
	if metrics != nil {
		dispatcherMetrics = metrics
		heartbeatMetrics = metrics
		reconnectMetrics = metrics
		loopMetrics = metrics
	}

	registry := NewRegistry()
	dedup := NewDuplicationFilter(cfg.DuplicationFilterCapacity)
	listeners := NewListenerRegistry()
	dispatcher := NewDispatcher(dedup, listeners, dispatcherMetrics)
	delayed := NewDelayedReconnection()

	m := &Manager{
		cfg:        cfg,
		transport:  transport,
		scheduler:  scheduler,
		registry:   registry,
		dedup:      dedup,
		dispatcher: dispatcher,
		listeners:  listeners,
		delayed:    delayed,
	}

	m.reconnect = NewReconnectionController(scheduler, transport, listeners, reconnectMetrics, cfg.ReconnectionPolicy, cfg.MaxReconnectionAttempts, m.onReconnected)
	m.heartbeat = NewHeartbeatScheduler(scheduler, transport, registry, listeners, heartbeatMetrics, cfg.HeartbeatNotifications)
	m.loop = NewLoop(&m.mu, registry, dedup, dispatcher, listeners, transport, delayed, m.reconnect, loopMetrics, cfg)

	scheduler.Start()
	if cfg.StartSubscriberThread {
		dispatcher.Start()
	}

	return m, nil
}

// onReconnected is the ReconnectionController's onReconnected hook: it
// re-acquires the facade lock and resumes normal polling.
func (m *Manager) onReconnected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loop.SetConnected(true)
	m.loop.Start()
	m.heartbeat.Start(m.cfg.HeartbeatInterval)
}

// AddListener registers l.
func (m *Manager) AddListener(l Listener) {
	m.listeners.AddListener(l)
}

// RemoveListener unregisters l.
func (m *Manager) RemoveListener(l Listener) {
	m.listeners.RemoveListener(l)
}

// Subscribe merges op into the subscribed set and resumes polling,
// applying the mix-change cursor policy of section 4.9.
func (m *Manager) Subscribe(op SubscribeOp) {
	m.mu.Lock()
	defer m.mu.Unlock()

	changed := m.registry.ApplySubscribe(op)
	if changed {
		m.loop.MarkMixChanged()
	}

	switch {
	case op.Timetoken != nil:
		m.loop.AdoptExplicitTimetoken(*op.Timetoken)
	case changed:
		m.loop.PreserveCursorAcrossMixChange()
	}

	m.reconnectLocked()
}

// Unsubscribe removes op's entries from the subscribed set, optionally
// sending a Leave request, and resumes polling.
func (m *Manager) Unsubscribe(op UnsubscribeOp) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsubscribeLocked(op)
}

func (m *Manager) unsubscribeLocked(op UnsubscribeOp) {
	changed := m.registry.ApplyUnsubscribe(op)
	if changed {
		m.loop.MarkMixChanged()
	}

	if m.registry.IsEmpty() {
		m.loop.ResetCursorForEmptyMix()
	} else if changed {
		m.loop.PreserveCursorAcrossMixChange()
	}

	if !m.cfg.SuppressLeaveEvents && (len(op.Channels) > 0 || len(op.ChannelGroups) > 0) {
		m.sendLeave(op)
	}

	m.reconnectLocked()
}

// sendLeave issues a best-effort, asynchronous Leave call: per section
// 4.9(d), Leave is fire-and-forget relative to the mutation that
// triggered it, so this must not block the caller (and, since callers
// always hold m.mu, must not block the facade lock) on the transport
// round trip. Failures with PNAccessDeniedCategory are never announced;
// any other failure is.
func (m *Manager) sendLeave(op UnsubscribeOp) {
	m.leaveWG.Add(1)
	go func() {
		defer m.leaveWG.Done()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		results, leaveCancel := m.transport.Leave(ctx, LeaveRequest{Channels: op.Channels, ChannelGroups: op.ChannelGroups})
		defer leaveCancel()
		result := <-results
		if !result.OK && result.Status.Category != PNAccessDeniedCategory {
			m.listeners.AnnounceStatus(projectPublicStatus(result.Status.Category, result.Status.Error, result.Status))
		}
	}()
}

// UnsubscribeAll unsubscribes from every currently subscribed channel and
// group.
func (m *Manager) UnsubscribeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	op := UnsubscribeOp{
		Channels:      m.registry.TargetChannels(false),
		ChannelGroups: m.registry.TargetGroups(false),
	}
	m.unsubscribeLocked(op)
}

// SetPresenceState updates the opaque state blob carried on future
// subscribe/heartbeat requests.
func (m *Manager) SetPresenceState(op StateOp) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registry.ApplyState(op)
	m.reconnectLocked()
}

// SetPresenceConnected toggles presence mirroring for already-subscribed
// channels/groups, which changes the effective channel mix exactly like a
// subscribe mutation does.
func (m *Manager) SetPresenceConnected(op PresenceOp) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registry.ApplyPresence(op)
	m.loop.MarkMixChanged()
	m.loop.PreserveCursorAcrossMixChange()
	m.reconnectLocked()
}

// Reconnect sets connected, (re)starts the subscribe loop, and
// re-registers the heartbeat timer.
func (m *Manager) Reconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnectLocked()
}

func (m *Manager) reconnectLocked() {
	m.loop.SetConnected(true)
	m.loop.Start()
	m.heartbeat.Start(m.cfg.HeartbeatInterval)
}

// Disconnect tears down the outstanding call, the heartbeat timer, the
// delayed-reconnection timer, and the reconnection controller, and clears
// the temporarily-unavailable sets.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnectLocked()
}

func (m *Manager) disconnectLocked() {
	m.loop.Disconnect()
	m.heartbeat.Stop()
}

// Destroy disconnects and permanently terminates the dispatcher and the
// shared scheduler. When force is true, outstanding scheduler jobs are
// stopped immediately rather than allowed to drain.
func (m *Manager) Destroy(force bool) {
	m.mu.Lock()
	m.disconnectLocked()
	m.mu.Unlock()

	m.leaveWG.Wait()

	if force {
		if err := m.scheduler.StopJobs(); err != nil {
			slog.Error("failed to stop subscription manager scheduler jobs", "error", err)
		}
	}
	if err := m.scheduler.Shutdown(); err != nil {
		slog.Error("failed to shut down subscription manager scheduler", "error", err)
	}
	m.dispatcher.Destroy()
}

// GetSubscribedChannels returns the plain subscribed channel set.
func (m *Manager) GetSubscribedChannels() []string {
	return m.registry.TargetChannels(false)
}

// GetSubscribedChannelGroups returns the plain subscribed group set.
func (m *Manager) GetSubscribedChannelGroups() []string {
	return m.registry.TargetGroups(false)
}
