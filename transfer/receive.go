// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transfer

import (
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/ferrymsg/ferry-go/channel"
	"github.com/ferrymsg/ferry-go/port"
	"github.com/ferrymsg/ferry-go/wire"
)

// Handler consumes one inbound request and may return a response payload.
// A nil result stands for a handler without anything to say.
type Handler func(request json.RawMessage, from channel.Sender) (json.RawMessage, error)

// PortLookup resolves the streaming connection belonging to a transfer,
// parking until the sender's connection arrives at this context.
type PortLookup func(id wire.TransferID) (*port.Port, error)

// Receive dispatches one delivery that arrived over the direct channel.
// Plain payloads go straight to the handler, transfer envelopes enter the
// chunk protocol and stray control frames are swallowed. The returned payload
// travels back as the delivery's direct reply.
func Receive(m channel.Messenger, raw json.RawMessage, from channel.Sender, h Handler, lookup PortLookup) (json.RawMessage, error) {
	kind, payload, meta, err := wire.DetachJSON(raw)
	if err != nil {
		return nil, err
	}

	switch kind {
	case wire.KindFrame:
		log.WithField("sender", from.String()).Debug("Swallowing a stray control frame")
		return nil, nil

	case wire.KindPlain:
		return h(payload, from)

	default:
		return receiveTransfer(m, payload, meta, from, nil, h, lookup)
	}
}

// ReceivePort dispatches a transfer envelope that arrived over a streaming
// connection. Responses never travel back on that connection, the handler's
// result is only returned to the local caller.
func ReceivePort(m channel.Messenger, conn *port.Port, env *wire.Envelope, from channel.Sender, h Handler) (json.RawMessage, error) {
	var payload json.RawMessage
	if !env.Meta.TransferMessage {
		payload = json.RawMessage(env.Payload)
	}
	return receiveTransfer(m, payload, env.Meta, from, conn, h, nil)
}

// receiveTransfer runs the receiving half of the transfer protocol: resolve
// the streaming connection, pull and reassemble the request if it did not
// travel inline, hand it to the handler and route the result back the way
// the metadata asks for.
func receiveTransfer(m channel.Messenger, payload json.RawMessage, meta wire.TransferMeta,
	from channel.Sender, arrived *port.Port, h Handler, lookup PortLookup) (json.RawMessage, error) {
	logger := log.WithFields(log.Fields{
		"transfer": meta.ID,
		"sender":   from.String(),
	})

	if h == nil {
		return nil, fmt.Errorf("transfer %s: no handler installed", meta.ID)
	}

	conn := arrived
	needsConn := meta.TransferMessage || meta.TransferResponse

	var sub *port.Subscription

	switch {
	case conn != nil:

	case meta.OpenConnection:
		back := channel.Unicast{Context: from.Context, Frame: from.Frame}
		var err error
		if conn, err = m.OpenPort(back, string(meta.ID)); err != nil {
			return nil, fmt.Errorf("transfer %s: opening the connection back failed: %v", meta.ID, err)
		}
		defer conn.Close()

		sub = conn.Subscribe()
		if err := conn.Send(&wire.ConnectionFrame{ID: meta.ID, Complete: true}); err != nil {
			sub.Cancel()
			return nil, deliveryFailure(err)
		}

	case needsConn:
		if lookup == nil {
			return nil, fmt.Errorf("transfer %s: no connection lookup available", meta.ID)
		}
		var err error
		if conn, err = lookup(meta.ID); err != nil {
			return nil, handshakeFailure(err)
		}
	}

	if conn != nil {
		if sub == nil {
			sub = conn.Subscribe()
		}
		defer sub.Cancel()
	}

	request := payload
	if meta.TransferMessage {
		if err := conn.Send(&wire.ChunkedMessageFrame{ID: meta.ID}); err != nil {
			return nil, deliveryFailure(err)
		}

		data, err := collectMessage(conn, sub, meta.ID, reassembleTimeout)
		if err != nil {
			return nil, err
		}
		request = json.RawMessage(data)
		logger.WithField("size", len(data)).Debug("Reassembled the request")
	}

	result, err := h(request, from)
	if err != nil {
		// A handler rejection is the local caller's business. No response
		// frame exists to carry it, so an owned connection simply closes and
		// the waiting sender observes the disconnect.
		return nil, err
	}

	if arrived != nil || !meta.TransferResponse {
		return result, nil
	}

	if err := pushResponse(conn, meta.ID, string(result), m.Limits()); err != nil {
		return nil, deliveryFailure(err)
	}
	logger.WithField("size", len(result)).Debug("Pushed the response")

	return result, nil
}
