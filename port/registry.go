// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package port

import (
	"sync"
	"time"
)

// Registry is a context's rendezvous point for inbound connections, keyed by
// connection name. Transfer connections are named by their TransferID, so a
// receiver can park on Resolve until the sender's connection shows up.
type Registry struct {
	mu      sync.Mutex
	ports   map[string]*Port
	waiters map[string][]chan *Port
	claimed map[string]int
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		ports:   make(map[string]*Port),
		waiters: make(map[string][]chan *Port),
		claimed: make(map[string]int),
	}
}

// Claim marks name as awaited by a local caller. An accepting side should
// register a claimed connection without consuming from it, leaving its
// traffic to whoever resolves it. Claims nest and each one must be paired
// with an Unclaim.
func (r *Registry) Claim(name string) {
	r.mu.Lock()
	r.claimed[name]++
	r.mu.Unlock()
}

// Unclaim drops one claim on name. With the last claim gone, a disconnected
// connection kept around for the claimant loses its entry.
func (r *Registry) Unclaim(name string) {
	r.mu.Lock()
	if r.claimed[name] > 1 {
		r.claimed[name]--
	} else {
		delete(r.claimed, name)

		if p, ok := r.ports[name]; ok {
			select {
			case <-p.Disconnected():
				delete(r.ports, name)
			default:
			}
		}
	}
	r.mu.Unlock()
}

// Claimed reports whether name currently carries a claim.
func (r *Registry) Claimed(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.claimed[name] > 0
}

// All returns the currently registered connections.
func (r *Registry) All() []*Port {
	r.mu.Lock()
	defer r.mu.Unlock()

	ps := make([]*Port, 0, len(r.ports))
	for _, p := range r.ports {
		ps = append(ps, p)
	}
	return ps
}

// Put registers an inbound connection under its name. Parked Resolve calls
// for that name are released. The entry evicts itself once the connection
// disconnects, unless its name is claimed: the claimant may still need the
// connection's retained units, so a claimed entry stays resolvable until the
// last claim is dropped.
func (r *Registry) Put(p *Port) {
	r.mu.Lock()
	r.ports[p.Name()] = p
	for _, w := range r.waiters[p.Name()] {
		w <- p
	}
	delete(r.waiters, p.Name())
	r.mu.Unlock()

	go func() {
		<-p.Disconnected()

		r.mu.Lock()
		if r.ports[p.Name()] == p && r.claimed[p.Name()] == 0 {
			delete(r.ports, p.Name())
		}
		r.mu.Unlock()
	}()
}

// Resolve returns the connection registered under name, parking up to
// timeout for it to appear. A timeout <= 0 selects DefaultAwaitTimeout.
func (r *Registry) Resolve(name string, timeout time.Duration) (*Port, error) {
	if timeout <= 0 {
		timeout = DefaultAwaitTimeout
	}

	r.mu.Lock()
	if p, ok := r.ports[name]; ok {
		r.mu.Unlock()
		return p, nil
	}
	w := make(chan *Port, 1)
	r.waiters[name] = append(r.waiters[name], w)
	r.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case p := <-w:
		return p, nil

	case <-timer.C:
		r.mu.Lock()
		for i, waiter := range r.waiters[name] {
			if waiter == w {
				r.waiters[name] = append(r.waiters[name][:i], r.waiters[name][i+1:]...)
				break
			}
		}
		r.mu.Unlock()

		// Put may have fired between the timeout and the cleanup.
		select {
		case p := <-w:
			return p, nil
		default:
			return nil, ErrAwaitTimeout
		}
	}
}
