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

package config

import "time"

// Config stores the application configuration for the SubHub CLI and its
// reference transport. The subscription engine itself (internal/subscribe)
// takes its own Config value, assembled from this one in internal/cmd — the
// two stay separate so internal/subscribe never depends on configulator or
// any other process-bootstrap concern.
type Config struct {
	LogLevel LogLevel `yaml:"log_level" name:"log-level" default:"info"`

	Metrics Metrics `yaml:"metrics" name:"metrics"`
	Tracing Tracing `yaml:"tracing" name:"tracing"`
	PProf   PProf   `yaml:"pprof" name:"pprof"`
	Redis   Redis   `yaml:"redis" name:"redis"`

	Engine EngineDefaults `yaml:"engine" name:"engine"`
	Demo   Demo           `yaml:"demo" name:"demo"`
}

// Metrics configures the Prometheus metrics server.
type Metrics struct {
	Enabled bool   `yaml:"enabled" name:"enabled" default:"true"`
	Bind    string `yaml:"bind" name:"bind" default:"0.0.0.0"`
	Port    int    `yaml:"port" name:"port" default:"9090"`
}

// Tracing configures the OpenTelemetry tracer provider the subscribe loop
// emits spans to.
type Tracing struct {
	Enabled bool `yaml:"enabled" name:"enabled" default:"false"`
}

// PProf configures the stdlib net/http/pprof debug server.
type PProf struct {
	Enabled bool   `yaml:"enabled" name:"enabled" default:"false"`
	Bind    string `yaml:"bind" name:"bind" default:"127.0.0.1"`
	Port    int    `yaml:"port" name:"port" default:"6060"`
}

// Redis configures the backing store for the reference transport
// (internal/pubsub). When disabled, the reference transport runs against an
// in-process pubsub instead of a real Redis instance.
type Redis struct {
	Enabled  bool   `yaml:"enabled" name:"enabled" default:"false"`
	Host     string `yaml:"host" name:"host" default:"localhost"`
	Port     int    `yaml:"port" name:"port" default:"6379"`
	Password string `yaml:"password" name:"password"`
}

// Demo configures the reference-transport demo the CLI runs against the
// in-process (or Redis-backed) pubsub when no real long-poll backend is
// available.
type Demo struct {
	Channels        []string      `yaml:"channels" name:"channels" default:"[\"demo-channel\"]"`
	PublishInterval time.Duration `yaml:"publish_interval" name:"publish-interval" default:"5s"`
}

// EngineDefaults seeds the subscribe.Config the CLI builds for a run.
type EngineDefaults struct {
	HeartbeatInterval            time.Duration `yaml:"heartbeat_interval" name:"heartbeat-interval" default:"60s"`
	HeartbeatNotifications       string        `yaml:"heartbeat_notifications" name:"heartbeat-notifications" default:"failures"`
	RequestMessageCountThreshold int           `yaml:"request_message_count_threshold" name:"request-message-count-threshold" default:"0"`
	SuppressLeaveEvents          bool          `yaml:"suppress_leave_events" name:"suppress-leave-events" default:"false"`
	ReconnectionPolicy           string        `yaml:"reconnection_policy" name:"reconnection-policy" default:"exponential"`
	MaxReconnectionAttempts      int           `yaml:"max_reconnection_attempts" name:"max-reconnection-attempts" default:"10"`
}
