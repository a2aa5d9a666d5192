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

package subscribe_test

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/USA-RedDragon/SubHub/internal/subscribe"
)

// fakeTransport is a scripted subscribe.Transport for tests: each method
// call pulls the next queued result, blocking if none is queued yet, so
// tests can precisely control when a call "resolves."
type fakeTransport struct {
	mu sync.Mutex

	subscribeResults []subscribe.SubscribeResult
	heartbeatResults []subscribe.HeartbeatResult
	leaveResults     []subscribe.LeaveResult
	probeResults     []subscribe.ProbeResult

	subscribeCalls int32
	heartbeatCalls int32
	leaveCalls     int32
	probeCalls     int32

	cancelled int32

	lastSubscribeRequest subscribe.SubscribeRequest
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{}
}

func (f *fakeTransport) lastRequest() subscribe.SubscribeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSubscribeRequest
}

func (f *fakeTransport) enqueueSubscribe(r subscribe.SubscribeResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribeResults = append(f.subscribeResults, r)
}

func (f *fakeTransport) enqueueHeartbeat(r subscribe.HeartbeatResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeatResults = append(f.heartbeatResults, r)
}

func (f *fakeTransport) enqueueProbe(r subscribe.ProbeResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probeResults = append(f.probeResults, r)
}

func (f *fakeTransport) Subscribe(_ context.Context, req subscribe.SubscribeRequest) (<-chan subscribe.SubscribeResult, subscribe.Cancel) {
	atomic.AddInt32(&f.subscribeCalls, 1)
	ch := make(chan subscribe.SubscribeResult, 1)
	f.mu.Lock()
	f.lastSubscribeRequest = req
	var result subscribe.SubscribeResult
	if len(f.subscribeResults) > 0 {
		result = f.subscribeResults[0]
		f.subscribeResults = f.subscribeResults[1:]
	}
	f.mu.Unlock()
	ch <- result
	return ch, func() { atomic.AddInt32(&f.cancelled, 1) }
}

func (f *fakeTransport) Heartbeat(_ context.Context, _ subscribe.HeartbeatRequest) (<-chan subscribe.HeartbeatResult, subscribe.Cancel) {
	atomic.AddInt32(&f.heartbeatCalls, 1)
	ch := make(chan subscribe.HeartbeatResult, 1)
	f.mu.Lock()
	var result subscribe.HeartbeatResult
	if len(f.heartbeatResults) > 0 {
		result = f.heartbeatResults[0]
		f.heartbeatResults = f.heartbeatResults[1:]
	}
	f.mu.Unlock()
	ch <- result
	return ch, func() {}
}

func (f *fakeTransport) Leave(_ context.Context, _ subscribe.LeaveRequest) (<-chan subscribe.LeaveResult, subscribe.Cancel) {
	atomic.AddInt32(&f.leaveCalls, 1)
	ch := make(chan subscribe.LeaveResult, 1)
	f.mu.Lock()
	var result subscribe.LeaveResult
	if len(f.leaveResults) > 0 {
		result = f.leaveResults[0]
		f.leaveResults = f.leaveResults[1:]
	}
	f.mu.Unlock()
	ch <- result
	return ch, func() {}
}

func (f *fakeTransport) Probe(_ context.Context) (<-chan subscribe.ProbeResult, subscribe.Cancel) {
	atomic.AddInt32(&f.probeCalls, 1)
	ch := make(chan subscribe.ProbeResult, 1)
	f.mu.Lock()
	var result subscribe.ProbeResult
	if len(f.probeResults) > 0 {
		result = f.probeResults[0]
		f.probeResults = f.probeResults[1:]
	}
	f.mu.Unlock()
	ch <- result
	return ch, func() {}
}
