// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"bytes"
	"fmt"
	"reflect"
	"testing"

	"github.com/dtn7/cboring"
)

func TestUnitCbor(t *testing.T) {
	id := NewTransferID()

	units := []Unit{
		&PlainMessage{Data: `{"action":"ping"}`},
		&Envelope{Payload: `{"action":"ping"}`, Meta: TransferMeta{ID: id, TransferResponse: true}},
		&Envelope{Meta: TransferMeta{ID: id, TransferMessage: true, OpenConnection: true}},
		&ConnectionFrame{ID: id, Complete: true},
		&ChunkedMessageFrame{ID: id},
		&ChunkedMessageFrame{ID: id, Data: "fragment"},
		&ChunkedMessageFrame{ID: id, Complete: true},
		&ChunkedResponseFrame{ID: id, Data: "fragment"},
		&ChunkedResponseFrame{ID: id, Complete: true},
		&MessageFrame{ID: id, Data: `"atomic"`},
		&ResponseFrame{ID: id},
	}

	for _, u1 := range units {
		t.Run(u1.String(), func(t *testing.T) {
			var buff bytes.Buffer
			if err := WriteUnit(u1, &buff); err != nil {
				t.Fatal(err)
			}

			u2, err := ReadUnit(&buff)
			if err != nil {
				t.Fatal(err)
			}

			if !reflect.DeepEqual(u1, u2) {
				t.Fatalf("units differ: %v != %v", u1, u2)
			}
		})
	}
}

func TestReadUnitUndefinedCode(t *testing.T) {
	var buff bytes.Buffer
	if err := cboring.WriteArrayLength(2, &buff); err != nil {
		t.Fatal(err)
	}
	if err := cboring.WriteUInt(23, &buff); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadUnit(&buff); err == nil {
		t.Fatal("expected an error for an undefined type code")
	}
}

func TestUnitCheckValid(t *testing.T) {
	id := NewTransferID()

	tests := []struct {
		unit  Unit
		valid bool
	}{
		{&ConnectionFrame{ID: id, Complete: true}, true},
		{&ConnectionFrame{ID: "nope"}, false},
		{&ChunkedMessageFrame{ID: id, Data: "fragment"}, true},
		{&ChunkedMessageFrame{ID: id, Data: "fragment", Complete: true}, false},
		{&ChunkedResponseFrame{ID: id, Complete: true}, true},
		{&ChunkedResponseFrame{ID: id}, false},
		{&Envelope{Payload: "{}", Meta: TransferMeta{ID: id}}, true},
		{&Envelope{Payload: "{}", Meta: TransferMeta{ID: id, TransferMessage: true}}, false},
		{&Envelope{Meta: TransferMeta{}}, false},
		{&ResponseFrame{ID: id}, true},
	}

	for i, test := range tests {
		t.Run(fmt.Sprintf("%d_%s", i, test.unit.String()), func(t *testing.T) {
			if err := test.unit.CheckValid(); (err == nil) != test.valid {
				t.Fatalf("valid = %t, but CheckValid returned %v", test.valid, err)
			}
		})
	}
}

func TestChunkedMessageFramePullRequest(t *testing.T) {
	id := NewTransferID()

	if !(&ChunkedMessageFrame{ID: id}).IsPullRequest() {
		t.Fatal("empty non-terminal frame must be a pull request")
	}
	if (&ChunkedMessageFrame{ID: id, Data: "x"}).IsPullRequest() {
		t.Fatal("data fragment must not be a pull request")
	}
	if (&ChunkedMessageFrame{ID: id, Complete: true}).IsPullRequest() {
		t.Fatal("terminal frame must not be a pull request")
	}
}
