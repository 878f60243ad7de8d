// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transfer

import (
	"encoding/json"

	log "github.com/sirupsen/logrus"

	"github.com/ferrymsg/ferry-go/channel"
	"github.com/ferrymsg/ferry-go/port"
	"github.com/ferrymsg/ferry-go/wire"
)

// AcceptPort wires a freshly accepted inbound connection into a context. The
// connection is registered for lookups and, unless a local transfer claimed
// its name beforehand, the readiness handshake is answered and the
// connection's traffic served with h until it closes.
func AcceptPort(m channel.Messenger, conn *port.Port, from channel.Sender, h Handler) {
	reg := m.Ports()
	if reg.Claimed(conn.Name()) {
		reg.Put(conn)
		return
	}
	reg.Put(conn)

	if err := conn.Send(&wire.ConnectionFrame{ID: wire.TransferID(conn.Name()), Complete: true}); err != nil {
		log.WithFields(log.Fields{
			"port":  conn.Name(),
			"error": err,
		}).Debug("Answering the readiness handshake failed")
		return
	}

	go ServePort(m, conn, from, h)
}

// ServePort pumps a connection's inbound traffic until it closes. Plain
// messages and transfer envelopes are dispatched to h on their own
// goroutines, keeping the pump responsive while a chunk exchange runs.
// Everything else belongs to transfers holding their own subscriptions and
// falls through.
func ServePort(m channel.Messenger, conn *port.Port, from channel.Sender, h Handler) {
	sub := conn.Subscribe()
	defer sub.Cancel()

	from.Port = conn

	for {
		select {
		case u := <-sub.C:
			switch v := u.(type) {
			case *wire.PlainMessage:
				go dispatchPlain(conn, json.RawMessage(v.Data), from, h)

			case *wire.Envelope:
				env := v
				go func() {
					if _, err := ReceivePort(m, conn, env, from, h); err != nil {
						log.WithFields(log.Fields{
							"port":     conn.Name(),
							"transfer": env.Meta.ID,
							"error":    err,
						}).Warn("Transfer over a connection failed")
					}
				}()
			}

		case <-conn.Disconnected():
			return
		}
	}
}

func dispatchPlain(conn *port.Port, payload json.RawMessage, from channel.Sender, h Handler) {
	if h == nil {
		log.WithField("port", conn.Name()).Debug("No handler for a connection message")
		return
	}
	if _, err := h(payload, from); err != nil {
		log.WithFields(log.Fields{
			"port":  conn.Name(),
			"error": err,
		}).Warn("Connection message handler failed")
	}
}
