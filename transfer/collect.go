// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transfer

import (
	"time"

	"github.com/ferrymsg/ferry-go/channel"
	"github.com/ferrymsg/ferry-go/chunk"
	"github.com/ferrymsg/ferry-go/port"
	"github.com/ferrymsg/ferry-go/wire"
)

// awaitUnit parks on sub until a unit matches, the connection dies, a pending
// envelope delivery reports an error, or the deadline passes. Units already
// delivered win over a concurrent disconnect.
func awaitUnit(conn *port.Port, sub *port.Subscription, deliverErr <-chan error,
	timeout time.Duration, timeoutErr error, match func(wire.Unit) bool) (wire.Unit, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		var u wire.Unit

		select {
		case u = <-sub.C:

		default:
			select {
			case u = <-sub.C:

			case err := <-deliverErr:
				if err != nil {
					return nil, err
				}
				deliverErr = nil
				continue

			case <-conn.Disconnected():
				return nil, ErrPeerDisconnected

			case <-timer.C:
				return nil, timeoutErr
			}
		}

		if match(u) {
			return u, nil
		}
	}
}

// collectMessage reassembles the request payload of the transfer id from its
// inbound frames: either a single atomic message frame or a stream of chunked
// message fragments closed by the terminal frame.
func collectMessage(conn *port.Port, sub *port.Subscription, id wire.TransferID, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var fragments []string
	for {
		var u wire.Unit

		select {
		case u = <-sub.C:

		default:
			select {
			case u = <-sub.C:

			case <-conn.Disconnected():
				return "", ErrPeerDisconnected

			case <-timer.C:
				return "", ErrChunkTimeout
			}
		}

		switch f := u.(type) {
		case *wire.MessageFrame:
			if f.ID == id {
				return f.Data, nil
			}

		case *wire.ChunkedMessageFrame:
			switch {
			case f.ID != id || f.IsPullRequest():

			case f.Complete:
				return chunk.Join(fragments), nil

			default:
				fragments = append(fragments, f.Data)
			}
		}
	}
}

// collectResponse reassembles the response payload of the transfer id: either
// a single atomic response frame or a stream of chunked response fragments
// closed by the terminal frame.
func collectResponse(conn *port.Port, sub *port.Subscription, deliverErr <-chan error,
	id wire.TransferID, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var fragments []string
	for {
		var u wire.Unit

		select {
		case u = <-sub.C:

		default:
			select {
			case u = <-sub.C:

			case err := <-deliverErr:
				if err != nil {
					return "", err
				}
				deliverErr = nil
				continue

			case <-conn.Disconnected():
				return "", ErrPeerDisconnected

			case <-timer.C:
				return "", ErrResponseTimeout
			}
		}

		switch f := u.(type) {
		case *wire.ResponseFrame:
			if f.ID == id {
				return f.Data, nil
			}

		case *wire.ChunkedResponseFrame:
			switch {
			case f.ID != id:

			case f.Complete:
				return chunk.Join(fragments), nil

			default:
				fragments = append(fragments, f.Data)
			}
		}
	}
}

// pushPayload streams the serialized request over the connection. A payload
// fitting one fragment travels as a single atomic message frame, everything
// else as chunked message fragments closed by the terminal frame.
func pushPayload(conn *port.Port, id wire.TransferID, payload string, maxFragment int) error {
	fragments, err := chunk.Split(payload, maxFragment)
	if err != nil {
		return err
	}

	if len(fragments) == 1 {
		return conn.Send(&wire.MessageFrame{ID: id, Data: fragments[0]})
	}

	for _, fragment := range fragments {
		if err := conn.Send(&wire.ChunkedMessageFrame{ID: id, Data: fragment}); err != nil {
			return err
		}
	}
	return conn.Send(&wire.ChunkedMessageFrame{ID: id, Complete: true})
}

// pushResponse sends the handler's result back over the connection. Small
// results travel as one atomic response frame, results above the channel's
// message ceiling as chunked response fragments closed by the terminal frame.
func pushResponse(conn *port.Port, id wire.TransferID, data string, limits channel.Limits) error {
	if len(data) <= limits.MaxMessageSize {
		return conn.Send(&wire.ResponseFrame{ID: id, Data: data})
	}

	fragments, err := chunk.Split(data, limits.MaxFragmentSize)
	if err != nil {
		return err
	}

	for _, fragment := range fragments {
		if err := conn.Send(&wire.ChunkedResponseFrame{ID: id, Data: fragment}); err != nil {
			return err
		}
	}
	return conn.Send(&wire.ChunkedResponseFrame{ID: id, Complete: true})
}
