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

package reftransport

import (
	"encoding/json"
	"sync/atomic"

	"github.com/USA-RedDragon/SubHub/internal/pubsub"
	"github.com/USA-RedDragon/SubHub/internal/subscribe"
)

// SimServer is the publishing side of the reference transport: it delivers
// messages onto the same pubsub topics a Transport's Subscribe call is
// waiting on, standing in for a real publish HTTP endpoint.
type SimServer struct {
	ps               pubsub.PubSub
	publishTimetoken int64
}

// NewSimServer constructs a SimServer publishing onto ps.
func NewSimServer(ps pubsub.PubSub) *SimServer {
	return &SimServer{ps: ps}
}

// Publish delivers payload to channel as a message of the given type. The
// message is assigned a monotonically increasing synthetic publish
// timetoken.
func (s *SimServer) Publish(channel string, messageType subscribe.MessageType, payload json.RawMessage) error {
	msg := subscribe.Message{
		Type:             messageType,
		Channel:          channel,
		PublishTimetoken: atomic.AddInt64(&s.publishTimetoken, 1),
		Payload:          payload,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.ps.Publish(channel, data)
}
