// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package discovery announces running hubs on the local network through UDP
// multicast beacons and finds them again, so tools can attach to a hub
// without a configured address.
package discovery

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/schollz/peerdiscovery"
	log "github.com/sirupsen/logrus"
)

const (
	// address4 is the multicast IPv4 address beacons travel on.
	address4 = "224.23.23.42"

	// address6 is the multicast IPv6 address beacons travel on.
	address6 = "ff02::2a"

	// port is the multicast UDP port beacons travel on.
	port = 35042
)

// DefaultFindTimeout is how long Find listens when no timeout is given. It
// must outlast a hub's announcement interval.
const DefaultFindTimeout = 5 * time.Second

// Announcer periodically multicasts a hub's Beacon until closed.
type Announcer struct {
	stopChan4 chan struct{}
	stopChan6 chan struct{}
}

// Announce starts multicasting beacon every interval on the selected IP
// versions.
func Announce(beacon Beacon, interval time.Duration, ipv4, ipv6 bool) (*Announcer, error) {
	announcer := &Announcer{}
	if ipv4 {
		announcer.stopChan4 = make(chan struct{})
	}
	if ipv6 {
		announcer.stopChan6 = make(chan struct{})
	}

	log.WithFields(log.Fields{
		"beacon":   beacon,
		"interval": interval,
		"IPv4":     ipv4,
		"IPv6":     ipv6,
	}).Info("Starting to announce the hub")

	msg, err := MarshalBeacon(beacon)
	if err != nil {
		return nil, err
	}

	sets := []struct {
		active           bool
		multicastAddress string
		stopChan         chan struct{}
		ipVersion        peerdiscovery.IPVersion
	}{
		{ipv4, address4, announcer.stopChan4, peerdiscovery.IPv4},
		{ipv6, address6, announcer.stopChan6, peerdiscovery.IPv6},
	}

	for _, set := range sets {
		if !set.active {
			continue
		}

		settings := peerdiscovery.Settings{
			Limit:            -1,
			Port:             fmt.Sprintf("%d", port),
			MulticastAddress: set.multicastAddress,
			Payload:          msg,
			Delay:            interval,
			TimeLimit:        -1,
			StopChan:         set.stopChan,
			AllowSelf:        true,
			IPVersion:        set.ipVersion,
		}

		discoverErrChan := make(chan error)
		go func() {
			_, discoverErr := peerdiscovery.Discover(settings)
			discoverErrChan <- discoverErr
		}()

		// Discover blocks for the Announcer's whole lifetime; an error
		// surfacing quickly means the socket setup failed.
		select {
		case discoverErr := <-discoverErrChan:
			if discoverErr != nil {
				return nil, discoverErr
			}

		case <-time.After(time.Second):
		}
	}

	return announcer, nil
}

// Close stops the announcements.
func (announcer *Announcer) Close() {
	for _, c := range []chan struct{}{announcer.stopChan4, announcer.stopChan6} {
		if c != nil {
			c <- struct{}{}
		}
	}
}

// Find listens for beacons until the timeout, a non-positive one selecting
// DefaultFindTimeout, and returns every distinct hub heard. An empty result
// without an error means the network stayed silent.
func Find(timeout time.Duration) ([]Hub, error) {
	if timeout <= 0 {
		timeout = DefaultFindTimeout
	}

	var (
		mu   sync.Mutex
		hubs []Hub
		seen = make(map[string]bool)
	)

	notify := func(discovered peerdiscovery.Discovered) {
		beacon, err := UnmarshalBeacon(discovered.Payload)
		if err != nil {
			log.WithError(err).WithField("peer", discovered.Address).Warn("Parsing a beacon failed")
			return
		}

		mu.Lock()
		defer mu.Unlock()

		key := discovered.Address + "|" + beacon.Label
		if seen[key] {
			return
		}
		seen[key] = true
		hubs = append(hubs, Hub{Beacon: beacon, Addr: discovered.Address})
	}

	sets := []struct {
		multicastAddress string
		ipVersion        peerdiscovery.IPVersion
	}{
		{address4, peerdiscovery.IPv4},
		{address6, peerdiscovery.IPv6},
	}

	var wg sync.WaitGroup
	errs := make([]error, len(sets))

	for i, set := range sets {
		settings := peerdiscovery.Settings{
			Limit:            -1,
			Port:             fmt.Sprintf("%d", port),
			MulticastAddress: set.multicastAddress,
			Delay:            time.Second,
			TimeLimit:        timeout,
			AllowSelf:        true,
			IPVersion:        set.ipVersion,
			Notify:           notify,
		}

		wg.Add(1)
		go func(i int, settings peerdiscovery.Settings) {
			defer wg.Done()
			_, errs[i] = peerdiscovery.Discover(settings)
		}(i, settings)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()

	if len(hubs) == 0 {
		var result *multierror.Error
		for _, err := range errs {
			if err != nil {
				result = multierror.Append(result, err)
			}
		}
		if err := result.ErrorOrNil(); err != nil {
			return nil, err
		}
	}

	return hubs, nil
}
