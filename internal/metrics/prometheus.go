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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector exposed by the subscription
// engine and its CLI host process. It implements subscribe.ManagerMetrics
// so a *Metrics can be passed straight into subscribe.NewManager.
type Metrics struct {
	LoopIterationsTotal *prometheus.CounterVec
	LoopIterationErrors *prometheus.CounterVec
	SubscribeCallsTotal prometheus.Counter

	MessagesDispatchedTotal prometheus.Counter
	MessagesDedupedTotal    prometheus.Counter
	QueueDepth              prometheus.Gauge

	HeartbeatsTotal        *prometheus.CounterVec
	HeartbeatFailuresTotal prometheus.Counter

	ReconnectAttemptsTotal  *prometheus.CounterVec
	ReconnectExhaustedTotal prometheus.Counter

	ListenerCount prometheus.Gauge
}

// NewMetrics constructs and registers the Metrics collectors.
func NewMetrics() *Metrics {
	metrics := &Metrics{
		LoopIterationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subhub_loop_iterations_total",
			Help: "The total number of subscribe loop iterations, labeled by terminal state",
		}, []string{"state"}),
		LoopIterationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subhub_loop_errors_total",
			Help: "The total number of subscribe loop errors, labeled by status category",
		}, []string{"category"}),
		SubscribeCallsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subhub_subscribe_calls_total",
			Help: "The total number of outbound subscribe transport calls issued",
		}),
		MessagesDispatchedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subhub_messages_dispatched_total",
			Help: "The total number of messages handed to listeners",
		}),
		MessagesDedupedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subhub_messages_deduped_total",
			Help: "The total number of messages dropped by the duplication filter",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "subhub_queue_depth",
			Help: "The current number of envelopes waiting in the message queue",
		}),
		HeartbeatsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subhub_heartbeats_total",
			Help: "The total number of heartbeat calls, labeled by outcome",
		}, []string{"outcome"}),
		HeartbeatFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subhub_heartbeat_failures_total",
			Help: "The total number of heartbeat calls that failed",
		}),
		ReconnectAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subhub_reconnect_attempts_total",
			Help: "The total number of reconnection attempts, labeled by outcome",
		}, []string{"outcome"}),
		ReconnectExhaustedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subhub_reconnect_attempts_exhausted_total",
			Help: "The total number of times reconnection attempts were exhausted",
		}),
		ListenerCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "subhub_listeners",
			Help: "The current number of registered listeners",
		}),
	}
	metrics.register()
	return metrics
}

func (m *Metrics) register() {
	prometheus.MustRegister(m.LoopIterationsTotal)
	prometheus.MustRegister(m.LoopIterationErrors)
	prometheus.MustRegister(m.SubscribeCallsTotal)
	prometheus.MustRegister(m.MessagesDispatchedTotal)
	prometheus.MustRegister(m.MessagesDedupedTotal)
	prometheus.MustRegister(m.QueueDepth)
	prometheus.MustRegister(m.HeartbeatsTotal)
	prometheus.MustRegister(m.HeartbeatFailuresTotal)
	prometheus.MustRegister(m.ReconnectAttemptsTotal)
	prometheus.MustRegister(m.ReconnectExhaustedTotal)
	prometheus.MustRegister(m.ListenerCount)
}

// RecordLoopIteration implements subscribe.LoopMetrics.
func (m *Metrics) RecordLoopIteration(category string) {
	m.LoopIterationsTotal.WithLabelValues(category).Inc()
}

// RecordLoopError implements subscribe.LoopMetrics.
func (m *Metrics) RecordLoopError(category string) {
	m.LoopIterationErrors.WithLabelValues(category).Inc()
}

// RecordSubscribeCall implements subscribe.LoopMetrics.
func (m *Metrics) RecordSubscribeCall() {
	m.SubscribeCallsTotal.Inc()
}

// RecordDispatch implements subscribe.DispatcherMetrics.
func (m *Metrics) RecordDispatch() {
	m.MessagesDispatchedTotal.Inc()
}

// RecordDedup implements subscribe.DispatcherMetrics.
func (m *Metrics) RecordDedup() {
	m.MessagesDedupedTotal.Inc()
}

// SetQueueDepth implements subscribe.DispatcherMetrics.
func (m *Metrics) SetQueueDepth(depth int) {
	m.QueueDepth.Set(float64(depth))
}

// RecordHeartbeat implements subscribe.HeartbeatMetrics.
func (m *Metrics) RecordHeartbeat(success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.HeartbeatsTotal.WithLabelValues(outcome).Inc()
	if !success {
		m.HeartbeatFailuresTotal.Inc()
	}
}

// RecordReconnectAttempt implements subscribe.ReconnectionMetrics.
func (m *Metrics) RecordReconnectAttempt(succeeded bool) {
	outcome := "failure"
	if succeeded {
		outcome = "success"
	}
	m.ReconnectAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordReconnectExhausted implements subscribe.ReconnectionMetrics.
func (m *Metrics) RecordReconnectExhausted() {
	m.ReconnectExhaustedTotal.Inc()
}

// SetListenerCount sets the current listener count gauge. The engine has
// no hook for this one; the CLI host calls it directly after
// AddListener/RemoveListener.
func (m *Metrics) SetListenerCount(count int) {
	m.ListenerCount.Set(float64(count))
}
