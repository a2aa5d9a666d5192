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

// Package reftransport implements subscribe.Transport against
// internal/pubsub, standing in for the real Subscribe/Heartbeat/Leave/Probe
// HTTP endpoints the specification leaves out of scope. It turns a
// long-poll into a bounded wait on one or more pubsub topics (one per
// channel or channel group), so the subscribe engine can be exercised
// end to end without a real network service. SimServer is the publishing
// side: it is what a message producer (or, in tests, a scripted scenario)
// calls to deliver messages onto those same topics.
package reftransport
