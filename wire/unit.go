// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package wire defines the data units exchanged between execution contexts:
// the transfer envelope, the closed set of transfer frames, and plain
// messages without transfer semantics. Units crossing a process boundary are
// serialized as a CBOR array of two elements, the type code followed by the
// unit's own representation. On the direct channel the envelope is spliced
// into the message's JSON object instead, see AttachJSON and DetachJSON.
package wire

import (
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

const (
	// UnitPlainMessage is the PlainMessage type code, uint 0.
	UnitPlainMessage uint64 = 0

	// UnitEnvelope is the Envelope type code, uint 1.
	UnitEnvelope uint64 = 1

	// UnitConnection is the ConnectionFrame type code, uint 2.
	UnitConnection uint64 = 2

	// UnitChunkedMessage is the ChunkedMessageFrame type code, uint 3.
	UnitChunkedMessage uint64 = 3

	// UnitChunkedResponse is the ChunkedResponseFrame type code, uint 4.
	UnitChunkedResponse uint64 = 4

	// UnitMessage is the MessageFrame type code, uint 5.
	UnitMessage uint64 = 5

	// UnitResponse is the ResponseFrame type code, uint 6.
	UnitResponse uint64 = 6
)

// Unit is a data unit travelling over a streaming connection, identified by
// its type code. The set of implementations is closed.
type Unit interface {
	// Type code of this Unit.
	Type() uint64

	// CheckValid errors if the Unit violates its own invariants.
	CheckValid() error

	fmt.Stringer
	cboring.CborMarshaler
}

// WriteUnit serializes a Unit as a CBOR array of two elements: type code
// followed by the Unit's representation.
func WriteUnit(u Unit, w io.Writer) (err error) {
	if err = cboring.WriteArrayLength(2, w); err != nil {
		return
	}

	if err = cboring.WriteUInt(u.Type(), w); err != nil {
		return
	}
	if err = cboring.Marshal(u, w); err != nil {
		return
	}

	return
}

// DataLen reports the serialized payload bytes a Unit carries, the quantity
// bounded by the channel size policy. Handshake signals carry none.
func DataLen(u Unit) int {
	switch v := u.(type) {
	case *PlainMessage:
		return len(v.Data)
	case *Envelope:
		return len(v.Payload)
	case *ChunkedMessageFrame:
		return len(v.Data)
	case *ChunkedResponseFrame:
		return len(v.Data)
	case *MessageFrame:
		return len(v.Data)
	case *ResponseFrame:
		return len(v.Data)
	default:
		return 0
	}
}

// ReadUnit deserializes the next Unit from the Reader.
func ReadUnit(r io.Reader) (u Unit, err error) {
	if n, arrErr := cboring.ReadArrayLength(r); arrErr != nil {
		return nil, arrErr
	} else if n != 2 {
		return nil, fmt.Errorf("Unit expected array of length 2, got %d", n)
	}

	if typeCode, typeErr := cboring.ReadUInt(r); typeErr != nil {
		return nil, typeErr
	} else {
		switch typeCode {
		case UnitPlainMessage:
			u = new(PlainMessage)
		case UnitEnvelope:
			u = new(Envelope)
		case UnitConnection:
			u = new(ConnectionFrame)
		case UnitChunkedMessage:
			u = new(ChunkedMessageFrame)
		case UnitChunkedResponse:
			u = new(ChunkedResponseFrame)
		case UnitMessage:
			u = new(MessageFrame)
		case UnitResponse:
			u = new(ResponseFrame)
		default:
			return nil, fmt.Errorf("Unit type code %d is undefined", typeCode)
		}

		if err = cboring.Unmarshal(u, r); err != nil {
			return nil, err
		}
	}

	return
}
