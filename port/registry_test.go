// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package port

import (
	"errors"
	"testing"
	"time"
)

func TestRegistryPutResolve(t *testing.T) {
	registry := NewRegistry()

	near, _ := Pair("conn-a", 0)
	defer near.Close()
	registry.Put(near)

	p, err := registry.Resolve("conn-a", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if p != near {
		t.Fatal("resolved the wrong connection")
	}
}

func TestRegistryParkedResolve(t *testing.T) {
	registry := NewRegistry()

	near, _ := Pair("conn-b", 0)
	defer near.Close()

	done := make(chan error, 1)
	go func() {
		p, err := registry.Resolve("conn-b", time.Second)
		if err == nil && p != near {
			err = errors.New("resolved the wrong connection")
		}
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	registry.Put(near)

	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestRegistryResolveTimeout(t *testing.T) {
	registry := NewRegistry()

	if _, err := registry.Resolve("ghost", 30*time.Millisecond); !errors.Is(err, ErrAwaitTimeout) {
		t.Fatalf("expected ErrAwaitTimeout, got %v", err)
	}
}

func TestRegistryEviction(t *testing.T) {
	registry := NewRegistry()

	near, _ := Pair("conn-c", 0)
	registry.Put(near)
	if err := near.Close(); err != nil {
		t.Fatal(err)
	}

	time.Sleep(20 * time.Millisecond)

	if _, err := registry.Resolve("conn-c", 30*time.Millisecond); !errors.Is(err, ErrAwaitTimeout) {
		t.Fatalf("expected the entry to be evicted, got %v", err)
	}
}

func TestRegistryClaimedSurvivesDisconnect(t *testing.T) {
	registry := NewRegistry()
	registry.Claim("conn-d")

	// A fast peer may deliver everything and hang up before the claimant
	// resolves; its retained units must stay reachable.
	near, far := Pair("conn-d", 0)
	registry.Put(near)
	if err := far.Close(); err != nil {
		t.Fatal(err)
	}

	time.Sleep(20 * time.Millisecond)

	p, err := registry.Resolve("conn-d", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if p != near {
		t.Fatal("resolved the wrong connection")
	}

	registry.Unclaim("conn-d")

	if _, err := registry.Resolve("conn-d", 30*time.Millisecond); !errors.Is(err, ErrAwaitTimeout) {
		t.Fatalf("expected the entry to be gone after the unclaim, got %v", err)
	}
}
