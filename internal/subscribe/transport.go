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
	"encoding/json"
)

// MessageType classifies an entry of a SubscribeEnvelope for dispatch
// routing.
type MessageType string

const (
	MessageTypeData     MessageType = "data"
	MessageTypePresence MessageType = "presence"
	MessageTypeSignal   MessageType = "signal"
	MessageTypeObject   MessageType = "object"
	MessageTypeFile     MessageType = "file"
)

// Message is one raw entry of a subscribe response. Decoding/decrypting
// the payload is the downstream consumer's responsibility.
type Message struct {
	Type             MessageType
	Channel          string
	Subscription     string
	PublishTimetoken int64
	Payload          json.RawMessage
}

// Envelope is the response to one successful long-poll.
type Envelope struct {
	Messages []Message
	Metadata EnvelopeMetadata
}

// EnvelopeMetadata carries the cursor advance for the next long-poll.
type EnvelopeMetadata struct {
	Timetoken int64
	Region    string
}

// SubscribeRequest is the argument to one long-poll call.
type SubscribeRequest struct {
	Channels          []string
	ChannelGroups     []string
	Timetoken         int64
	Region            string
	FilterExpression  string
	State             map[string]json.RawMessage
}

// SubscribeResult is what a Transport delivers when a long-poll resolves.
type SubscribeResult struct {
	Envelope Envelope
	Status   Status
}

// HeartbeatRequest is the argument to one heartbeat call.
type HeartbeatRequest struct {
	Channels      []string
	ChannelGroups []string
	State         map[string]json.RawMessage
}

// HeartbeatResult is what a Transport delivers when a heartbeat resolves.
type HeartbeatResult struct {
	OK     bool
	Status Status
}

// LeaveRequest is the argument to one leave call.
type LeaveRequest struct {
	Channels      []string
	ChannelGroups []string
}

// LeaveResult is what a Transport delivers when a leave resolves.
type LeaveResult struct {
	OK     bool
	Status Status
}

// ProbeResult is what a Transport delivers when a reconnection probe
// resolves.
type ProbeResult struct {
	OK     bool
	Status Status
}

// Cancel stops an in-flight call. Cancelling must be silent: no Status is
// ever delivered for a cancelled call.
type Cancel func()

// Transport is the out-of-scope external collaborator: construction and
// cancellation of the actual Subscribe/Heartbeat/Leave/Probe HTTP calls,
// and wire-format parsing of the subscribe envelope, are left entirely to
// the implementation. Each method returns a single-value result channel
// and a cancel function rather than taking a callback, since the engine
// never needs more than one outstanding call of each kind (the at-most-one
// invariants in the data model) and channels compose naturally with
// select and context cancellation.
type Transport interface {
	Subscribe(ctx context.Context, req SubscribeRequest) (<-chan SubscribeResult, Cancel)
	Heartbeat(ctx context.Context, req HeartbeatRequest) (<-chan HeartbeatResult, Cancel)
	Leave(ctx context.Context, req LeaveRequest) (<-chan LeaveResult, Cancel)
	Probe(ctx context.Context) (<-chan ProbeResult, Cancel)
}
