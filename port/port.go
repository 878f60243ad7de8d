// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package port implements the streaming connection primitive of the transfer
// protocol: a named, bidirectional pipe for wire.Units with subscription
// fan-out, a rendezvous registry, and a bounded waiter.
package port

import (
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/ferrymsg/ferry-go/wire"
)

var (
	// ErrClosed is returned when sending on, or delivering to, a closed
	// connection.
	ErrClosed = errors.New("port: connection is closed")

	// ErrUnitTooLarge is returned when a unit's payload exceeds the
	// connection's size ceiling.
	ErrUnitTooLarge = errors.New("port: unit exceeds the connection's size ceiling")
)

// subscriptionBuffer is the per-subscription channel capacity. A full buffer
// blocks delivery, backpressuring the transport's read loop.
const subscriptionBuffer = 128

// Port is one end of a streaming connection between two execution contexts.
// Transports deliver inbound units through Deliver; consumers observe them
// through Subscribe. Units arriving while no subscription exists are
// retained and replayed to every later subscription, so a consumer arming
// itself after the peer has already spoken misses nothing.
//
// A Port services at most one transfer at a time. This is a protocol
// convention, not enforced here.
type Port struct {
	name string

	sendFn  func(wire.Unit) error
	closeFn func() error

	mu      sync.Mutex
	subs    []*Subscription
	backlog []wire.Unit
	closed  bool

	closeOnce    sync.Once
	disconnected chan struct{}
}

// New creates a Port whose outbound units are handed to send and whose Close
// additionally runs closeFn, which may be nil, to tear the transport down.
func New(name string, send func(wire.Unit) error, closeFn func() error) *Port {
	return &Port{
		name:         name,
		sendFn:       send,
		closeFn:      closeFn,
		disconnected: make(chan struct{}),
	}
}

func (p *Port) logger() *log.Entry {
	return log.WithField("port", p.name)
}

// Name of this connection, the rendezvous key of the registry.
func (p *Port) Name() string {
	return p.name
}

// Send a unit to the peer.
func (p *Port) Send(u wire.Unit) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	if closed {
		return ErrClosed
	}
	return p.sendFn(u)
}

// Deliver hands an inbound unit to this Port's subscriptions. Transports
// call it from their read loop; delivery order is the call order.
func (p *Port) Deliver(u wire.Unit) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if len(p.subs) == 0 {
		p.backlog = append(p.backlog, u)
		return nil
	}

	for _, sub := range p.subs {
		sub.deliver(u)
	}
	return nil
}

// Subscribe returns a fan-out of all units arriving on this Port, starting
// with the retained backlog. The caller must Cancel the Subscription when
// done.
func (p *Port) Subscribe() *Subscription {
	sub := &Subscription{
		ch:   make(chan wire.Unit, subscriptionBuffer),
		done: make(chan struct{}),
		port: p,
	}
	sub.C = sub.ch

	p.mu.Lock()
	for _, u := range p.backlog {
		sub.deliver(u)
	}
	p.subs = append(p.subs, sub)
	p.mu.Unlock()

	return sub
}

// Disconnected is closed once this Port is no longer usable, regardless of
// which side closed it.
func (p *Port) Disconnected() <-chan struct{} {
	return p.disconnected
}

// Close this connection. Closing is idempotent and propagates to the peer
// through the transport.
func (p *Port) Close() (err error) {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		close(p.disconnected)
		if p.closeFn != nil {
			err = p.closeFn()
		}

		p.logger().Debug("Closed connection")
	})

	return
}

// Subscription is one consumer's view of a Port's inbound units.
type Subscription struct {
	// C yields the units in arrival order.
	C <-chan wire.Unit

	ch   chan wire.Unit
	done chan struct{}
	port *Port

	cancelOnce sync.Once
}

// Cancel detaches this Subscription from its Port. Canceling is idempotent;
// a blocked delivery is released.
func (s *Subscription) Cancel() {
	s.cancelOnce.Do(func() {
		close(s.done)

		s.port.mu.Lock()
		for i, sub := range s.port.subs {
			if sub == s {
				s.port.subs = append(s.port.subs[:i], s.port.subs[i+1:]...)
				break
			}
		}
		s.port.mu.Unlock()
	})
}

func (s *Subscription) deliver(u wire.Unit) {
	select {
	case s.ch <- u:
	case <-s.done:
	}
}
