// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bus

import (
	"encoding/json"
	"sync"

	"github.com/ferrymsg/ferry-go/channel"
	"github.com/ferrymsg/ferry-go/port"
	"github.com/ferrymsg/ferry-go/transfer"
	"github.com/ferrymsg/ferry-go/wire"
)

// Context is one isolated execution context on a Bus. It implements
// channel.Messenger, so the transfer protocol runs on top of it unchanged.
type Context struct {
	bus   *Bus
	id    channel.ContextID
	label string

	hmu     sync.RWMutex
	handler transfer.Handler

	ports *port.Registry

	omu    sync.Mutex
	opened []*port.Port
}

func newContext(b *Bus, id channel.ContextID, label string) *Context {
	return &Context{
		bus:   b,
		id:    id,
		label: label,
		ports: port.NewRegistry(),
	}
}

// ID returns the context's address on the bus.
func (c *Context) ID() channel.ContextID {
	return c.id
}

// Label returns the human readable name the context was attached with.
func (c *Context) Label() string {
	return c.label
}

// Handle installs the handler invoked for inbound messages. A context
// without a handler is unreachable for direct sends.
func (c *Context) Handle(h transfer.Handler) {
	c.hmu.Lock()
	c.handler = h
	c.hmu.Unlock()
}

func (c *Context) currentHandler() transfer.Handler {
	c.hmu.RLock()
	defer c.hmu.RUnlock()

	return c.handler
}

// Ports returns the context's rendezvous registry for inbound connections.
func (c *Context) Ports() *port.Registry {
	return c.ports
}

// Limits returns the bus wide size policy.
func (c *Context) Limits() channel.Limits {
	return c.bus.limits
}

// SendDirect delivers one payload over the direct channel and returns the
// receiving handler's reply. Payloads above the message ceiling are rejected
// with channel.ErrTooLarge before anything leaves the context, unreachable
// targets with channel.ErrUnrouted. A rejection on the receiving side comes
// back as a *channel.RemoteError.
func (c *Context) SendDirect(target channel.Target, payload []byte) (json.RawMessage, error) {
	if len(payload) > c.bus.limits.MaxMessageSize {
		return nil, channel.ErrTooLarge
	}

	peer, err := c.bus.route(target)
	if err != nil {
		return nil, err
	}

	h := peer.currentHandler()
	if h == nil {
		return nil, channel.ErrUnrouted
	}

	from := channel.Sender{Context: c.id, Label: c.label}
	reply, err := transfer.Receive(peer, json.RawMessage(payload), from, h, peer.lookup)
	if err != nil {
		return nil, &channel.RemoteError{Msg: err.Error()}
	}
	return reply, nil
}

// OpenPort opens a streaming connection to the target. The far half is
// handed to the target context, which registers it and answers the readiness
// handshake unless a transfer over there claimed the name for itself.
func (c *Context) OpenPort(target channel.Target, name string) (*port.Port, error) {
	peer, err := c.bus.route(target)
	if err != nil {
		return nil, err
	}

	near, far := port.Pair(name, c.bus.limits.MaxMessageSize)

	c.omu.Lock()
	c.opened = append(c.opened, near)
	c.omu.Unlock()

	from := channel.Sender{Context: c.id, Label: c.label}
	transfer.AcceptPort(peer, far, from, peer.currentHandler())

	return near, nil
}

func (c *Context) lookup(id wire.TransferID) (*port.Port, error) {
	return c.ports.Resolve(string(id), transfer.DefaultHandshakeTimeout)
}

// Close detaches the context from the bus and closes every connection it
// opened or accepted. Closing twice is harmless.
func (c *Context) Close() {
	c.bus.detach(c)

	c.omu.Lock()
	opened := c.opened
	c.opened = nil
	c.omu.Unlock()

	for _, p := range opened {
		p.Close()
	}
	for _, p := range c.ports.All() {
		p.Close()
	}
}
