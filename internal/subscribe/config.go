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

import "time"

// HeartbeatNotifications selects which heartbeat outcomes are announced to
// listeners.
type HeartbeatNotifications string

const (
	HeartbeatNotificationsNone     HeartbeatNotifications = "none"
	HeartbeatNotificationsFailures HeartbeatNotifications = "failures"
	HeartbeatNotificationsAll      HeartbeatNotifications = "all"
)

// ReconnectionPolicy selects the backoff shape the polling reconnection
// controller uses between probe attempts.
type ReconnectionPolicy string

const (
	ReconnectionPolicyLinear      ReconnectionPolicy = "linear"
	ReconnectionPolicyExponential ReconnectionPolicy = "exponential"
)

// Config is the engine's own configuration surface. It intentionally does
// not depend on configulator or any other process-bootstrap concern — the
// CLI host translates its own config.Config into this type.
type Config struct {
	// HeartbeatInterval is the period between heartbeat firings; zero
	// disables heartbeats entirely.
	HeartbeatInterval time.Duration
	// HeartbeatNotifications controls which heartbeat outcomes are
	// announced.
	HeartbeatNotifications HeartbeatNotifications
	// RequestMessageCountThreshold, when positive, makes the loop
	// announce PNRequestMessageCountExceededCategory whenever a response
	// carries at least this many messages.
	RequestMessageCountThreshold int
	// FilterExpression is forwarded verbatim on every subscribe call.
	FilterExpression string
	// SuppressLeaveEvents disables the leave request the manager would
	// otherwise send on unsubscribe.
	SuppressLeaveEvents bool
	// StartSubscriberThread controls whether the dispatcher goroutine is
	// launched at all.
	StartSubscriberThread bool
	// ReconnectionPolicy selects the polling backoff shape.
	ReconnectionPolicy ReconnectionPolicy
	// MaxReconnectionAttempts caps the polling reconnection controller.
	MaxReconnectionAttempts int
	// DuplicationFilterCapacity bounds the duplication filter's ring of
	// recently seen message identities.
	DuplicationFilterCapacity int
	// DelayedReconnectionInterval is the fixed delay used both for soft
	// error re-entry and the all-temporarily-unavailable sleep. The
	// specification fixes this at 2 seconds; it is configurable here so
	// tests are not bound to a 2-second wall-clock wait.
	DelayedReconnectionInterval time.Duration
}

// DefaultConfig returns a Config matching the values spec.md names
// explicitly: a 2-second delayed reconnection interval, a 100-entry
// duplication filter, and exponential backoff with 10 max attempts.
func DefaultConfig() Config {
	const (
		defaultDedupCapacity  = 100
		defaultMaxAttempts    = 10
		defaultDelayedRetry   = 2 * time.Second
		defaultHeartbeatEvery = 60 * time.Second
	)
	return Config{
		HeartbeatInterval:           defaultHeartbeatEvery,
		HeartbeatNotifications:      HeartbeatNotificationsFailures,
		StartSubscriberThread:       true,
		ReconnectionPolicy:          ReconnectionPolicyExponential,
		MaxReconnectionAttempts:     defaultMaxAttempts,
		DuplicationFilterCapacity:   defaultDedupCapacity,
		DelayedReconnectionInterval: defaultDelayedRetry,
	}
}
