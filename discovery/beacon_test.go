// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/dtn7/cboring"
)

func TestBeaconCbor(t *testing.T) {
	tests := []Beacon{
		{Label: "hallway", WebSocket: ":8080", QUIC: ":4433", Profile: "compact"},
		{Label: "lab", WebSocket: "", QUIC: "[::]:4433", Profile: "expanded"},
		{Label: "", WebSocket: "127.0.0.1:80", QUIC: "", Profile: "compact"},
	}

	for _, beacon := range tests {
		data, err := MarshalBeacon(beacon)
		if err != nil {
			t.Fatalf("marshalling %v failed: %v", beacon, err)
		}

		parsed, err := UnmarshalBeacon(data)
		if err != nil {
			t.Fatalf("unmarshalling %v failed: %v", beacon, err)
		}

		if !reflect.DeepEqual(beacon, parsed) {
			t.Fatalf("expected %v, got %v", beacon, parsed)
		}
	}
}

func TestBeaconCborInvalid(t *testing.T) {
	buff := new(bytes.Buffer)
	if err := cboring.WriteArrayLength(2, buff); err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{"a", "b"} {
		if err := cboring.WriteTextString(s, buff); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := UnmarshalBeacon(buff.Bytes()); err == nil {
		t.Fatal("expected an error for the wrong array length")
	}
}

func TestHubAddresses(t *testing.T) {
	hub := Hub{
		Addr:   "192.168.23.5",
		Beacon: Beacon{WebSocket: ":8080", QUIC: "0.0.0.0:4433"},
	}
	if got := hub.WebSocketURL(); got != "ws://192.168.23.5:8080/ws" {
		t.Fatalf("unexpected WebSocket URL %q", got)
	}
	if got := hub.QUICAddr(); got != "192.168.23.5:4433" {
		t.Fatalf("unexpected QUIC address %q", got)
	}

	v6 := Hub{Addr: "fe80::1", Beacon: Beacon{WebSocket: "[::]:8080"}}
	if got := v6.WebSocketURL(); got != "ws://[fe80::1]:8080/ws" {
		t.Fatalf("unexpected IPv6 WebSocket URL %q", got)
	}

	bare := Hub{Addr: "10.0.0.1", Beacon: Beacon{QUIC: ":4433"}}
	if got := bare.WebSocketURL(); got != "" {
		t.Fatalf("expected no URL without a WebSocket listener, got %q", got)
	}
}
