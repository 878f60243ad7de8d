// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package port

import (
	"github.com/ferrymsg/ferry-go/wire"
)

// Pair creates both ends of an in-memory connection named name. Units sent
// on one end are delivered to the other; closing one end disconnects both.
// maxData bounds the payload bytes of a single unit, 0 lifts the bound.
func Pair(name string, maxData int) (near, far *Port) {
	near = &Port{name: name, disconnected: make(chan struct{})}
	far = &Port{name: name, disconnected: make(chan struct{})}

	near.sendFn = pairSend(far, maxData)
	far.sendFn = pairSend(near, maxData)
	near.closeFn = far.Close
	far.closeFn = near.Close

	return
}

func pairSend(peer *Port, maxData int) func(wire.Unit) error {
	return func(u wire.Unit) error {
		if maxData > 0 && wire.DataLen(u) > maxData {
			return ErrUnitTooLarge
		}
		return peer.Deliver(u)
	}
}
