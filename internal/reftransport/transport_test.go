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

package reftransport_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/USA-RedDragon/SubHub/internal/config"
	"github.com/USA-RedDragon/SubHub/internal/pubsub"
	"github.com/USA-RedDragon/SubHub/internal/reftransport"
	"github.com/USA-RedDragon/SubHub/internal/subscribe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryPubSub(t *testing.T) pubsub.PubSub {
	t.Helper()
	ps, err := pubsub.MakePubSub(context.Background(), &config.Config{})
	require.NoError(t, err)
	return ps
}

func TestTransportSubscribeReceivesPublishedMessage(t *testing.T) {
	ps := newMemoryPubSub(t)
	transport := reftransport.New(ps).WithLongPollTimeout(time.Second)
	server := reftransport.NewSimServer(ps)

	results, cancel := transport.Subscribe(context.Background(), subscribe.SubscribeRequest{Channels: []string{"room-1"}})
	defer cancel()

	require.NoError(t, server.Publish("room-1", subscribe.MessageTypeData, json.RawMessage(`"hello"`)))

	select {
	case result := <-results:
		assert.Equal(t, subscribe.PNAcknowledgmentCategory, result.Status.Category)
		require.Len(t, result.Envelope.Messages, 1)
		assert.Equal(t, "room-1", result.Envelope.Messages[0].Channel)
		assert.Equal(t, json.RawMessage(`"hello"`), result.Envelope.Messages[0].Payload)
		assert.NotZero(t, result.Envelope.Metadata.Timetoken)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscribe result")
	}
}

func TestTransportSubscribeTimesOutWhenNothingPublished(t *testing.T) {
	ps := newMemoryPubSub(t)
	transport := reftransport.New(ps).WithLongPollTimeout(20 * time.Millisecond)

	results, cancel := transport.Subscribe(context.Background(), subscribe.SubscribeRequest{Channels: []string{"quiet"}})
	defer cancel()

	select {
	case result := <-results:
		assert.Equal(t, subscribe.PNTimeoutCategory, result.Status.Category)
		assert.Empty(t, result.Envelope.Messages)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for timeout result")
	}
}

func TestTransportSubscribeCancelIsSilent(t *testing.T) {
	ps := newMemoryPubSub(t)
	transport := reftransport.New(ps).WithLongPollTimeout(5 * time.Second)

	results, cancel := transport.Subscribe(context.Background(), subscribe.SubscribeRequest{Channels: []string{"never"}})
	cancel()

	select {
	case result, ok := <-results:
		if ok {
			t.Fatalf("expected no result after cancel, got %+v", result)
		}
	case <-time.After(100 * time.Millisecond):
		// No result delivered within a reasonable window: the cancel was
		// silent, as required.
	}
}

func TestTransportHeartbeatLeaveProbeSucceed(t *testing.T) {
	ps := newMemoryPubSub(t)
	transport := reftransport.New(ps)

	hbResults, hbCancel := transport.Heartbeat(context.Background(), subscribe.HeartbeatRequest{Channels: []string{"a"}})
	defer hbCancel()
	hb := <-hbResults
	assert.True(t, hb.OK)

	leaveResults, leaveCancel := transport.Leave(context.Background(), subscribe.LeaveRequest{Channels: []string{"a"}})
	defer leaveCancel()
	leave := <-leaveResults
	assert.True(t, leave.OK)

	probeResults, probeCancel := transport.Probe(context.Background())
	defer probeCancel()
	probe := <-probeResults
	assert.True(t, probe.OK)
}
