// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package transfer implements the large message protocol on top of the
// channel abstraction: a direct send is attempted first and, where the
// channel's limits or routing get in the way, the payload falls back to an
// acknowledged chunk stream over a dedicated streaming connection.
package transfer

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ferrymsg/ferry-go/channel"
	"github.com/ferrymsg/ferry-go/port"
	"github.com/ferrymsg/ferry-go/wire"
)

const (
	// DefaultHandshakeTimeout bounds the wait for a streaming connection to
	// become ready and for the peer to start pulling.
	DefaultHandshakeTimeout = time.Minute

	// DefaultResponseTimeout bounds the wait for the peer's response.
	DefaultResponseTimeout = 2 * time.Minute

	// reassembleTimeout bounds the reconstruction of an inbound chunk stream.
	reassembleTimeout = 2 * time.Minute
)

// Options configure a single Send call.
type Options struct {
	// Target addresses the receiving side, one of channel.Broadcast,
	// channel.Unicast or channel.Via.
	Target channel.Target

	// Message is the payload. A json.RawMessage travels as it is, anything
	// else is serialized with encoding/json first.
	Message interface{}

	// WantResponse makes Send wait for the handler's result and return it.
	// Requesting a response from a channel.Via target fails with
	// ErrPortResponse.
	WantResponse bool

	// OpenPort skips the direct attempt and lets the receiver open the
	// streaming connection back to the caller. For a channel.Via target it
	// marks the supplied connection as freshly opened instead, so Send waits
	// for the peer's readiness signal before any payload flows.
	OpenPort bool

	// HandshakeTimeout overrides DefaultHandshakeTimeout when positive.
	HandshakeTimeout time.Duration

	// ResponseTimeout overrides DefaultResponseTimeout when positive.
	ResponseTimeout time.Duration
}

func (o Options) handshakeTimeout() time.Duration {
	if o.HandshakeTimeout > 0 {
		return o.HandshakeTimeout
	}
	return DefaultHandshakeTimeout
}

func (o Options) responseTimeout() time.Duration {
	if o.ResponseTimeout > 0 {
		return o.ResponseTimeout
	}
	return DefaultResponseTimeout
}

// Send delivers a message to the target addressed in the Options, entering
// the transfer protocol when the direct channel cannot carry it. The returned
// payload is the peer's direct reply or, with WantResponse set, the response
// that travelled back over the transfer's connection. All resources a call
// acquired are released before it returns, no matter how it ends.
func Send(m channel.Messenger, o Options) (json.RawMessage, error) {
	payload, err := marshalMessage(o.Message)
	if err != nil {
		return nil, fmt.Errorf("transfer: serializing the message failed: %v", err)
	}

	via, isVia := o.Target.(channel.Via)
	if isVia && o.WantResponse {
		return nil, ErrPortResponse
	}

	limits := m.Limits()
	oversized := len(payload) > limits.MaxMessageSize

	directFailed := false
	if !o.OpenPort && !oversized {
		var reply json.RawMessage
		var directErr error

		if isVia {
			directErr = via.Port.Send(&wire.PlainMessage{Data: string(payload)})
		} else {
			reply, directErr = m.SendDirect(o.Target, payload)
		}

		if directErr == nil {
			return reply, nil
		} else if !recoverable(directErr) {
			return nil, directErr
		}

		directFailed = true
		log.WithFields(log.Fields{
			"target": o.Target,
			"error":  directErr,
		}).Debug("Direct send failed, entering the transfer path")
	}

	id := wire.NewTransferID()
	meta := wire.TransferMeta{
		ID:               id,
		TransferMessage:  directFailed || oversized || (!isVia && !wire.IsObject(payload)),
		TransferResponse: o.WantResponse,
		OpenConnection:   o.OpenPort,
	}

	logger := log.WithFields(log.Fields{
		"transfer": id,
		"target":   o.Target,
	})
	logger.WithFields(log.Fields{
		"chunked": meta.TransferMessage,
		"size":    len(payload),
	}).Debug("Starting transfer")

	needsConn := meta.TransferMessage || o.WantResponse

	var (
		conn       *port.Port
		sub        *port.Subscription
		deliverErr chan error
	)

	switch {
	case isVia:
		conn = via.Port
		if o.OpenPort {
			if _, err := port.Await(conn, o.handshakeTimeout(), readinessSignal); err != nil {
				return nil, handshakeFailure(err)
			}
		}

	case !o.OpenPort:
		if conn, err = m.OpenPort(o.Target, string(id)); err != nil {
			return nil, fmt.Errorf("transfer %s: opening the connection failed: %v", id, err)
		}
		defer conn.Close()

	default:
		// The receiver opens the connection back, named after the transfer.
		// Claiming the name keeps the context's accepting side from serving
		// a connection this call is about to consume.
		if needsConn {
			m.Ports().Claim(string(id))
			defer m.Ports().Unclaim(string(id))
		}
	}

	if conn != nil {
		sub = conn.Subscribe()
		defer sub.Cancel()
	}

	if isVia {
		env := &wire.Envelope{Meta: meta}
		if !meta.TransferMessage {
			env.Payload = string(payload)
		}
		if err := conn.Send(env); err != nil {
			return nil, deliveryFailure(err)
		}
	} else {
		var inline json.RawMessage
		if !meta.TransferMessage {
			inline = payload
		}
		combined, err := wire.AttachJSON(inline, meta)
		if err != nil {
			return nil, err
		}

		deliverErr = make(chan error, 1)
		go func() {
			_, err := m.SendDirect(o.Target, combined)
			deliverErr <- err
		}()
	}

	if conn == nil {
		if !needsConn {
			// No frames will ever flow, the envelope's delivery is the only
			// signal left to wait for.
			if err := <-deliverErr; err != nil {
				return nil, err
			}
			return nil, nil
		}

		if conn, err = resolveBack(m, id, o.handshakeTimeout(), deliverErr); err != nil {
			return nil, err
		}
		sub = conn.Subscribe()
		defer sub.Cancel()
	}

	if meta.TransferMessage {
		pull := func(u wire.Unit) bool {
			f, ok := u.(*wire.ChunkedMessageFrame)
			return ok && f.ID == id && f.IsPullRequest()
		}
		if _, err := awaitUnit(conn, sub, deliverErr, o.handshakeTimeout(), ErrHandshakeTimeout, pull); err != nil {
			return nil, err
		}

		if err := pushPayload(conn, id, string(payload), limits.MaxFragmentSize); err != nil {
			return nil, deliveryFailure(err)
		}
		logger.Debug("Pushed the payload")
	}

	if o.WantResponse {
		data, err := collectResponse(conn, sub, deliverErr, id, o.responseTimeout())
		if err != nil {
			return nil, err
		}

		logger.Debug("Transfer finished with a response")
		if data == "" {
			return nil, nil
		}
		return json.RawMessage(data), nil
	}

	if !meta.TransferMessage && deliverErr != nil {
		if err := <-deliverErr; err != nil {
			return nil, err
		}
	}

	logger.Debug("Transfer finished")
	return nil, nil
}

// resolveBack waits for the connection the receiver opens toward this
// context. After a fruitless wait the envelope's delivery error, if any,
// names the actual culprit.
func resolveBack(m channel.Messenger, id wire.TransferID, timeout time.Duration, deliverErr chan error) (*port.Port, error) {
	conn, err := m.Ports().Resolve(string(id), timeout)
	if err == nil {
		return conn, nil
	}

	select {
	case derr := <-deliverErr:
		if derr != nil {
			return nil, derr
		}
	default:
	}
	return nil, handshakeFailure(err)
}

func marshalMessage(message interface{}) (json.RawMessage, error) {
	if raw, ok := message.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(message)
}

// recoverable reports whether a direct send failure may be repaired by the
// transfer path. A remote handler rejection is final and never falls back.
func recoverable(err error) bool {
	return errors.Is(err, channel.ErrUnrouted) ||
		errors.Is(err, channel.ErrTooLarge) ||
		errors.Is(err, port.ErrUnitTooLarge)
}

func readinessSignal(u wire.Unit) bool {
	f, ok := u.(*wire.ConnectionFrame)
	return ok && f.Complete
}

func handshakeFailure(err error) error {
	switch {
	case errors.Is(err, port.ErrAwaitTimeout):
		return ErrHandshakeTimeout
	case errors.Is(err, port.ErrClosed):
		return ErrPeerDisconnected
	default:
		return err
	}
}

func deliveryFailure(err error) error {
	if errors.Is(err, port.ErrClosed) {
		return ErrPeerDisconnected
	}
	return err
}
