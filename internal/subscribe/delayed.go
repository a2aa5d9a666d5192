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
	"sync"
	"time"
)

// DelayedReconnection is a one-shot timer used both for the soft-error
// retry-after-pause and for sleeping while every subscribed channel is
// temporarily unavailable. A plain time.AfterFunc is used rather than the
// shared gocron.Scheduler the heartbeat and polling reconnection
// controllers use: this timer is replaced far more often (every soft
// error re-entry), and gocron.Scheduler has no cheap cancel-and-replace
// primitive for a single ad hoc one-shot job.
type DelayedReconnection struct {
	mu    sync.Mutex
	timer *time.Timer
}

// NewDelayedReconnection constructs an idle DelayedReconnection.
func NewDelayedReconnection() *DelayedReconnection {
	return &DelayedReconnection{}
}

// Schedule arms the timer to call fn after delay, cancelling and
// discarding any previously scheduled, not-yet-fired timer.
func (d *DelayedReconnection) Schedule(delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(delay, fn)
}

// Cancel stops any pending timer without firing fn.
func (d *DelayedReconnection) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
