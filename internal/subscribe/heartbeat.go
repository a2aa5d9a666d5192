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
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// HeartbeatMetrics is the subset of metrics the heartbeat scheduler reports
// through.
type HeartbeatMetrics interface {
	RecordHeartbeat(success bool)
}

// NoopHeartbeatMetrics discards every call.
type NoopHeartbeatMetrics struct{}

func (NoopHeartbeatMetrics) RecordHeartbeat(bool) {}

// HeartbeatScheduler fires a heartbeat call on a fixed interval against a
// shared gocron scheduler, announcing outcomes to listeners according to
// the configured HeartbeatNotifications verbosity. A heartbeat call that
// itself fails because the transport's underlying connection is down
// self-stops, per the spec: the subscribe loop's own reconnection handling
// takes over from there rather than hammering a dead transport on a timer.
type HeartbeatScheduler struct {
	scheduler    gocron.Scheduler
	transport    Transport
	registry     *Registry
	listeners    *ListenerRegistry
	metrics      HeartbeatMetrics
	notify       HeartbeatNotifications

	mu      sync.Mutex
	job     gocron.Job
	running bool
}

// NewHeartbeatScheduler constructs a HeartbeatScheduler against a shared
// gocron scheduler owned by the Manager facade.
func NewHeartbeatScheduler(scheduler gocron.Scheduler, transport Transport, registry *Registry, listeners *ListenerRegistry, metrics HeartbeatMetrics, notify HeartbeatNotifications) *HeartbeatScheduler {
	if metrics == nil {
		metrics = NoopHeartbeatMetrics{}
	}
	return &HeartbeatScheduler{
		scheduler: scheduler,
		transport: transport,
		registry:  registry,
		listeners: listeners,
		metrics:   metrics,
		notify:    notify,
	}
}

// Start registers the recurring heartbeat job. interval <= 0 disables
// heartbeats entirely. Calling Start while already running is a no-op.
func (h *HeartbeatScheduler) Start(interval time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running || interval <= 0 {
		return
	}

	job, err := h.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(h.fire),
		gocron.WithName("subhub-heartbeat"),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		slog.Error("failed to schedule heartbeat job", "error", err)
		return
	}
	h.job = job
	h.running = true
}

// Stop removes the heartbeat job, if one is registered.
func (h *HeartbeatScheduler) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	if err := h.scheduler.RemoveJob(h.job.ID()); err != nil {
		slog.Error("failed to remove heartbeat job", "error", err)
	}
	h.running = false
}

// fire issues one heartbeat call and announces the outcome per the
// configured verbosity.
func (h *HeartbeatScheduler) fire() {
	channels := h.registry.TargetChannels(false)
	groups := h.registry.TargetGroups(false)
	if len(channels) == 0 && len(groups) == 0 {
		return
	}

	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	results, cancel := h.transport.Heartbeat(ctx, HeartbeatRequest{
		Channels:      channels,
		ChannelGroups: groups,
		State:         h.registry.CreateStatePayload(),
	})
	defer cancel()

	result := <-results
	h.metrics.RecordHeartbeat(result.OK)

	switch {
	case result.OK && h.notify == HeartbeatNotificationsAll:
		h.listeners.AnnounceStatus(projectPublicStatus(PNAcknowledgmentCategory, nil, result.Status))
	case !result.OK && h.notify != HeartbeatNotificationsNone:
		h.listeners.AnnounceStatus(projectPublicStatus(result.Status.Category, fmt.Errorf("heartbeat failed: %w", result.Status.Error), result.Status))
	}
	if !result.OK {
		h.Stop()
	}
}
