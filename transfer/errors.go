// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transfer

import (
	"errors"
)

var (
	// ErrHandshakeTimeout is returned when the peer neither signalled
	// readiness nor started pulling within the handshake bound.
	ErrHandshakeTimeout = errors.New("transfer: peer did not signal readiness in time")

	// ErrChunkTimeout is returned when a chunked payload was not fully
	// received within the reassembly bound.
	ErrChunkTimeout = errors.New("transfer: chunked payload was not fully received in time")

	// ErrResponseTimeout is returned when the response did not arrive within
	// the response bound.
	ErrResponseTimeout = errors.New("transfer: response did not arrive in time")

	// ErrPeerDisconnected is returned when the streaming connection closed
	// while the transfer was still in flight.
	ErrPeerDisconnected = errors.New("transfer: connection closed during the transfer")

	// ErrPortResponse is returned when a response is requested from a port
	// target. Port messages are one-directional by this protocol's
	// convention, so such a wait could never be satisfied.
	ErrPortResponse = errors.New("transfer: a port target cannot return a response")
)
