// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package port

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/ferrymsg/ferry-go/wire"
)

func TestPairRoundtrip(t *testing.T) {
	near, far := Pair("test", 0)
	defer near.Close()

	sub := far.Subscribe()
	defer sub.Cancel()

	id := wire.NewTransferID()
	units := []wire.Unit{
		&wire.ConnectionFrame{ID: id, Complete: true},
		&wire.ChunkedMessageFrame{ID: id, Data: "one"},
		&wire.ChunkedMessageFrame{ID: id, Complete: true},
	}

	for _, u := range units {
		if err := near.Send(u); err != nil {
			t.Fatal(err)
		}
	}

	for _, expected := range units {
		select {
		case got := <-sub.C:
			if !reflect.DeepEqual(expected, got) {
				t.Fatalf("units differ: %v != %v", expected, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %v", expected)
		}
	}
}

func TestPortBacklogReplay(t *testing.T) {
	near, far := Pair("test", 0)
	defer near.Close()

	u := &wire.PlainMessage{Data: "early"}
	if err := near.Send(u); err != nil {
		t.Fatal(err)
	}

	// both late subscriptions see the retained unit
	for i := 0; i < 2; i++ {
		sub := far.Subscribe()

		select {
		case got := <-sub.C:
			if !reflect.DeepEqual(u, got) {
				t.Fatalf("units differ: %v != %v", u, got)
			}
		case <-time.After(time.Second):
			t.Fatal("backlog was not replayed")
		}

		sub.Cancel()
	}
}

func TestPortFanOut(t *testing.T) {
	near, far := Pair("test", 0)
	defer near.Close()

	sub1 := far.Subscribe()
	defer sub1.Cancel()
	sub2 := far.Subscribe()
	defer sub2.Cancel()

	u := &wire.PlainMessage{Data: "both"}
	if err := near.Send(u); err != nil {
		t.Fatal(err)
	}

	for _, sub := range []*Subscription{sub1, sub2} {
		select {
		case got := <-sub.C:
			if !reflect.DeepEqual(u, got) {
				t.Fatalf("units differ: %v != %v", u, got)
			}
		case <-time.After(time.Second):
			t.Fatal("fan-out missed a subscription")
		}
	}
}

func TestPortClose(t *testing.T) {
	near, far := Pair("test", 0)

	if err := near.Close(); err != nil {
		t.Fatal(err)
	}

	select {
	case <-far.Disconnected():
	case <-time.After(time.Second):
		t.Fatal("far end did not observe the disconnect")
	}

	if err := near.Send(&wire.PlainMessage{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := far.Send(&wire.PlainMessage{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}

	// closing again must stay a no-op
	if err := near.Close(); err != nil {
		t.Fatal(err)
	}
	if err := far.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSubscriptionCancelIdempotent(t *testing.T) {
	near, far := Pair("test", 0)
	defer near.Close()

	sub := far.Subscribe()
	sub.Cancel()
	sub.Cancel()

	// a delivery after cancel must neither block nor panic
	if err := near.Send(&wire.PlainMessage{Data: "late"}); err != nil {
		t.Fatal(err)
	}
}

func TestPairSizeCeiling(t *testing.T) {
	near, far := Pair("test", 8)
	defer near.Close()

	sub := far.Subscribe()
	defer sub.Cancel()

	if err := near.Send(&wire.PlainMessage{Data: "12345678"}); err != nil {
		t.Fatal(err)
	}
	err := near.Send(&wire.PlainMessage{Data: "123456789"})
	if !errors.Is(err, ErrUnitTooLarge) {
		t.Fatalf("expected ErrUnitTooLarge, got %v", err)
	}
}
