// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package channel defines the environment seam of the transfer protocol:
// message targets, the Messenger every context implementation provides, and
// the size policy of the underlying channel.
package channel

import (
	"fmt"

	"github.com/ferrymsg/ferry-go/port"
)

// ContextID identifies an execution context attached to a bus or hub.
type ContextID uint64

// FrameID sub-addresses a unit within a context, 0 being the context itself.
// It is delivered alongside the message; routing below context granularity
// is the context's own business.
type FrameID uint64

// Target addresses the destination of a message or connection. The set of
// implementations is closed.
type Target interface {
	target()
	fmt.Stringer
}

// Broadcast addresses the anchor context, the topology's coordinator.
type Broadcast struct{}

func (Broadcast) target() {}

func (Broadcast) String() string {
	return "broadcast"
}

// Unicast addresses one specific context.
type Unicast struct {
	Context ContextID
	Frame   FrameID
}

func (Unicast) target() {}

func (u Unicast) String() string {
	return fmt.Sprintf("context(%d/%d)", u.Context, u.Frame)
}

// Via addresses the peer of an already open streaming connection.
type Via struct {
	Port *port.Port
}

func (Via) target() {}

func (v Via) String() string {
	return fmt.Sprintf("via(%s)", v.Port.Name())
}

// Sender describes the origin of an inbound message, handed to the handler.
type Sender struct {
	Context ContextID
	Frame   FrameID
	Label   string

	// Port is the streaming connection the message arrived over, nil for
	// direct deliveries.
	Port *port.Port
}

func (s Sender) String() string {
	if s.Port != nil {
		return fmt.Sprintf("%s:via(%s)", s.Label, s.Port.Name())
	}
	return fmt.Sprintf("%s:context(%d/%d)", s.Label, s.Context, s.Frame)
}
