// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package port

import (
	"errors"
	"time"

	"github.com/ferrymsg/ferry-go/wire"
)

// DefaultAwaitTimeout bounds a wait whose caller did not pick a timeout.
const DefaultAwaitTimeout = 2 * time.Minute

// ErrAwaitTimeout is returned when a bounded wait expires before a matching
// unit arrives.
var ErrAwaitTimeout = errors.New("port: wait expired before a matching unit arrived")

// Await parks until a unit satisfying match arrives on p, until p
// disconnects (ErrClosed), or until the timeout expires (ErrAwaitTimeout).
// A timeout <= 0 selects DefaultAwaitTimeout. Non-matching units are
// discarded. Units already delivered before the call, including the retained
// backlog, are matched first, and a delivered match wins over a concurrent
// disconnect. All resources are released on every exit path; Await never
// resolves twice.
func Await(p *Port, timeout time.Duration, match func(wire.Unit) bool) (wire.Unit, error) {
	if timeout <= 0 {
		timeout = DefaultAwaitTimeout
	}

	sub := p.Subscribe()
	defer sub.Cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		// Drain delivered units before honoring disconnect or timeout, so a
		// match that raced either of them still wins.
		select {
		case u := <-sub.C:
			if match(u) {
				return u, nil
			}
			continue
		default:
		}

		select {
		case u := <-sub.C:
			if match(u) {
				return u, nil
			}

		case <-p.Disconnected():
			return nil, ErrClosed

		case <-timer.C:
			return nil, ErrAwaitTimeout
		}
	}
}
