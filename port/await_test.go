// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package port

import (
	"errors"
	"testing"
	"time"

	"github.com/ferrymsg/ferry-go/wire"
)

func isComplete(u wire.Unit) bool {
	cf, ok := u.(*wire.ConnectionFrame)
	return ok && cf.Complete
}

func TestAwaitMatch(t *testing.T) {
	near, far := Pair("test", 0)
	defer near.Close()

	id := wire.NewTransferID()
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = near.Send(&wire.PlainMessage{Data: "noise"})
		_ = near.Send(&wire.ConnectionFrame{ID: id, Complete: true})
	}()

	u, err := Await(far, time.Second, isComplete)
	if err != nil {
		t.Fatal(err)
	}
	if cf := u.(*wire.ConnectionFrame); cf.ID != id {
		t.Fatalf("matched the wrong unit: %v", u)
	}
}

func TestAwaitTimeout(t *testing.T) {
	near, far := Pair("test", 0)
	defer near.Close()

	start := time.Now()
	if _, err := Await(far, 50*time.Millisecond, isComplete); !errors.Is(err, ErrAwaitTimeout) {
		t.Fatalf("expected ErrAwaitTimeout, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("timeout fired far too late")
	}

	// a unit arriving after the rejection must not disturb anything
	if err := near.Send(&wire.ConnectionFrame{ID: wire.NewTransferID(), Complete: true}); err != nil {
		t.Fatal(err)
	}
}

func TestAwaitDisconnect(t *testing.T) {
	near, far := Pair("test", 0)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = near.Close()
	}()

	if _, err := Await(far, time.Second, isComplete); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestAwaitPrefersDeliveredOverDisconnect(t *testing.T) {
	near, far := Pair("test", 0)

	id := wire.NewTransferID()
	if err := near.Send(&wire.ConnectionFrame{ID: id, Complete: true}); err != nil {
		t.Fatal(err)
	}
	if err := near.Close(); err != nil {
		t.Fatal(err)
	}

	// the match was delivered before the disconnect and must win
	u, err := Await(far, time.Second, isComplete)
	if err != nil {
		t.Fatal(err)
	}
	if cf := u.(*wire.ConnectionFrame); cf.ID != id {
		t.Fatalf("matched the wrong unit: %v", u)
	}
}

func TestAwaitDiscardsNonMatching(t *testing.T) {
	near, far := Pair("test", 0)
	defer near.Close()

	id := wire.NewTransferID()
	go func() {
		for i := 0; i < 3; i++ {
			_ = near.Send(&wire.ChunkedMessageFrame{ID: id, Data: "fragment"})
		}
		_ = near.Send(&wire.ConnectionFrame{ID: id, Complete: true})
	}()

	if _, err := Await(far, time.Second, isComplete); err != nil {
		t.Fatal(err)
	}
}
