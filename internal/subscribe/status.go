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

// Category identifies the terminal outcome of a subscribe, heartbeat, or
// leave call, mirroring the status categories a long-poll pub/sub
// transport is expected to surface.
type Category string

const (
	// PNAcknowledgmentCategory is a plain successful response with no
	// further meaning attached.
	PNAcknowledgmentCategory Category = "PNAcknowledgmentCategory"
	// PNConnectedCategory is the synthetic status announced the first
	// time a channel-mix episode receives a successful response.
	PNConnectedCategory Category = "PNConnectedCategory"
	// PNReconnectedCategory is announced when the reconnection controller
	// restores connectivity after a hard disconnect.
	PNReconnectedCategory Category = "PNReconnectedCategory"
	// PNReconnectionAttemptsExhaustedCategory is announced when the
	// reconnection controller reaches its maximum attempt count.
	PNReconnectionAttemptsExhaustedCategory Category = "PNReconnectionAttemptsExhaustedCategory"
	// PNTimeoutCategory is a normal long-poll timeout; never announced.
	PNTimeoutCategory Category = "PNTimeoutCategory"
	// PNUnexpectedDisconnectCategory indicates the transport believes the
	// network connection itself has been lost.
	PNUnexpectedDisconnectCategory Category = "PNUnexpectedDisconnectCategory"
	// PNBadRequestCategory is a fatal client configuration error.
	PNBadRequestCategory Category = "PNBadRequestCategory"
	// PNURITooLongCategory is a fatal client configuration error caused
	// by too large a channel/group mix.
	PNURITooLongCategory Category = "PNURITooLongCategory"
	// PNAccessDeniedCategory indicates one or more channels/groups were
	// refused by the server, typically via an HTTP 403.
	PNAccessDeniedCategory Category = "PNAccessDeniedCategory"
	// PNRequestMessageCountExceededCategory is announced alongside a
	// successful response whose message count met the configured
	// threshold.
	PNRequestMessageCountExceededCategory Category = "PNRequestMessageCountExceededCategory"
)

// Status is what a transport call resolves to. Only a subset of fields is
// forwarded to user listeners — see PublicStatus.
type Status struct {
	Category              Category
	Error                 error
	StatusCode            int
	AuthKey               string
	Operation             string
	AffectedChannels      []string
	AffectedChannelGroups []string
	ClientRequest         any
	Origin                string
	TLSEnabled            bool
}

// PublicStatus is the subset of an internal Status forwarded to user
// listeners. Category and Error are always set explicitly by the caller
// announcing the event, not copied from the originating internal status.
type PublicStatus struct {
	Category              Category
	Error                 error
	StatusCode            int
	AuthKey               string
	Operation             string
	AffectedChannels      []string
	AffectedChannelGroups []string
	ClientRequest         any
	Origin                string
	TLSEnabled            bool
}

// projectPublicStatus derives a PublicStatus from an internal Status,
// forwarding only the fields the public status projection exposes.
func projectPublicStatus(category Category, err error, s Status) PublicStatus {
	return PublicStatus{
		Category:              category,
		Error:                 err,
		StatusCode:            s.StatusCode,
		AuthKey:               s.AuthKey,
		Operation:             s.Operation,
		AffectedChannels:      s.AffectedChannels,
		AffectedChannelGroups: s.AffectedChannelGroups,
		ClientRequest:         s.ClientRequest,
		Origin:                s.Origin,
		TLSEnabled:            s.TLSEnabled,
	}
}
