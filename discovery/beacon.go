// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"bytes"
	"fmt"
	"io"
	"net"

	"github.com/dtn7/cboring"
)

// Beacon is the payload a hub multicasts: where its listeners are reachable
// and the size profile it enforces. Listener fields carry the hub's listen
// addresses, whose ports a finder joins with the announcing host.
type Beacon struct {
	Label     string
	WebSocket string
	QUIC      string
	Profile   string
}

// MarshalBeacon serializes a Beacon into a CBOR byte string.
func MarshalBeacon(beacon Beacon) ([]byte, error) {
	buff := new(bytes.Buffer)
	if err := cboring.Marshal(&beacon, buff); err != nil {
		return nil, err
	}
	return buff.Bytes(), nil
}

// UnmarshalBeacon parses a Beacon from its CBOR byte string.
func UnmarshalBeacon(data []byte) (beacon Beacon, err error) {
	err = cboring.Unmarshal(&beacon, bytes.NewBuffer(data))
	return
}

// MarshalCbor creates the CBOR representation of a Beacon.
func (beacon *Beacon) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(4, w); err != nil {
		return err
	}

	for _, field := range []string{beacon.Label, beacon.WebSocket, beacon.QUIC, beacon.Profile} {
		if err := cboring.WriteTextString(field, w); err != nil {
			return err
		}
	}

	return nil
}

// UnmarshalCbor reads a Beacon from its CBOR representation.
func (beacon *Beacon) UnmarshalCbor(r io.Reader) error {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l != 4 {
		return fmt.Errorf("wrong array length: %d instead of 4", l)
	}

	fields := []*string{&beacon.Label, &beacon.WebSocket, &beacon.QUIC, &beacon.Profile}
	for _, field := range fields {
		s, err := cboring.ReadTextString(r)
		if err != nil {
			return err
		}
		*field = s
	}

	return nil
}

func (beacon Beacon) String() string {
	return fmt.Sprintf("Beacon(%s,ws=%s,quic=%s,%s)", beacon.Label, beacon.WebSocket, beacon.QUIC, beacon.Profile)
}

// Hub is a Beacon heard from the network, bound to its announcing host.
type Hub struct {
	Beacon

	// Addr is the address the beacon arrived from.
	Addr string
}

// WebSocketURL builds the URL of the hub's WebSocket endpoint, or an empty
// string if the hub announced none.
func (hub Hub) WebSocketURL() string {
	hostport := joinAnnounced(hub.Addr, hub.Beacon.WebSocket)
	if hostport == "" {
		return ""
	}
	return fmt.Sprintf("ws://%s/ws", hostport)
}

// QUICAddr builds the dialable address of the hub's QUIC listener, or an
// empty string if the hub announced none.
func (hub Hub) QUICAddr() string {
	return joinAnnounced(hub.Addr, hub.Beacon.QUIC)
}

func (hub Hub) String() string {
	return fmt.Sprintf("Hub(%s,%s)", hub.Label, hub.Addr)
}

// joinAnnounced combines the announcing host with the port of a listen
// address like ":8080" or "0.0.0.0:8080".
func joinAnnounced(host, listen string) string {
	if listen == "" {
		return ""
	}

	_, port, err := net.SplitHostPort(listen)
	if err != nil {
		return ""
	}
	return net.JoinHostPort(host, port)
}
