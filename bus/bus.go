// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package bus provides an in-process message channel: isolated contexts
// attached to a shared bus exchange JSON payloads over a size-limited direct
// channel and open streaming connections to each other. One context may be
// attached as the anchor, the stable endpoint broadcasts are routed to.
package bus

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/ferrymsg/ferry-go/channel"
)

// Bus connects attached contexts. All traffic between them obeys the size
// policy of the profile the bus was created with.
type Bus struct {
	mu       sync.Mutex
	limits   channel.Limits
	contexts map[channel.ContextID]*Context
	anchor   *Context
	nextID   channel.ContextID
}

// New creates an empty Bus enforcing the given size policy, usually the
// Limits of a channel.Profile.
func New(limits channel.Limits) *Bus {
	return &Bus{
		limits:   limits,
		contexts: make(map[channel.ContextID]*Context),
		nextID:   1,
	}
}

// Limits returns the size policy all attached contexts share.
func (b *Bus) Limits() channel.Limits {
	return b.limits
}

// Attach creates a new context on the bus.
func (b *Bus) Attach(label string) *Context {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := newContext(b, b.nextID, label)
	b.contexts[c.id] = c
	b.nextID++

	log.WithFields(log.Fields{
		"context": c.id,
		"label":   label,
	}).Debug("Attached a context")

	return c
}

// AttachAnchor creates a new context and makes it the broadcast target.
func (b *Bus) AttachAnchor(label string) *Context {
	c := b.Attach(label)

	b.mu.Lock()
	b.anchor = c
	b.mu.Unlock()

	return c
}

// route resolves a target to the context behind it.
func (b *Bus) route(target channel.Target) (*Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch t := target.(type) {
	case channel.Broadcast:
		if b.anchor == nil {
			return nil, channel.ErrUnrouted
		}
		return b.anchor, nil

	case channel.Unicast:
		if c, ok := b.contexts[t.Context]; ok {
			return c, nil
		}
		return nil, channel.ErrUnrouted

	default:
		return nil, channel.ErrUnrouted
	}
}

func (b *Bus) detach(c *Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.contexts[c.id] == c {
		delete(b.contexts, c.id)
	}
	if b.anchor == c {
		b.anchor = nil
	}
}
