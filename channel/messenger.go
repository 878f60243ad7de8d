// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package channel

import (
	"encoding/json"
	"errors"

	"github.com/ferrymsg/ferry-go/port"
)

var (
	// ErrUnrouted is returned when no context handled a direct message or
	// accepted a connection. The transfer path recovers from it.
	ErrUnrouted = errors.New("channel: no context handled the message")

	// ErrTooLarge is returned when a direct message exceeds the channel's
	// size limit. The transfer path recovers from it.
	ErrTooLarge = errors.New("channel: message exceeds the channel size limit")
)

// RemoteError carries a handler failure from another context. It is never
// recovered by falling back to the transfer path.
type RemoteError struct {
	Msg string
}

func (e *RemoteError) Error() string {
	return e.Msg
}

// Messenger is one context's view of its environment, the seam the transfer
// protocol is written against. bus.Context implements it between goroutines
// of one process, hub.Connector between processes through a broker.
type Messenger interface {
	// SendDirect fires one serialized message at target through the native
	// channel and returns the handler's direct reply. A nil reply with nil
	// error means the handler ran and returned nothing. ErrUnrouted and
	// ErrTooLarge report channel failures; a *RemoteError reports that the
	// handler itself failed.
	SendDirect(target Target, payload []byte) (json.RawMessage, error)

	// OpenPort opens a streaming connection named name toward target. The
	// accepting context registers the far end under the same name.
	OpenPort(target Target, name string) (*port.Port, error)

	// Ports is this context's registry of inbound connections.
	Ports() *port.Registry

	// Limits is the size policy of the underlying channel.
	Limits() Limits
}
