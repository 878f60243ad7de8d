// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"fmt"
	"io"

	"github.com/dtn7/cboring"
	"github.com/hashicorp/go-multierror"
)

// TransferMeta is the transfer block attached to a message when it enters
// the transfer path. It announces how payload and response will travel.
type TransferMeta struct {
	// ID correlates all traffic of this transfer.
	ID TransferID

	// TransferMessage marks the payload as travelling chunked over the
	// streaming connection. The envelope is then metadata-only.
	TransferMessage bool

	// TransferResponse marks the response as travelling back as frames over
	// the streaming connection.
	TransferResponse bool

	// OpenConnection asks the receiver to open the streaming connection back
	// toward the sender and to signal readiness.
	OpenConnection bool
}

// CheckValid errors if the TransferMeta violates its invariants.
func (tm TransferMeta) CheckValid() error {
	return tm.ID.CheckValid()
}

func (tm TransferMeta) String() string {
	return fmt.Sprintf("transfer(%s,message=%t,response=%t,open=%t)",
		tm.ID, tm.TransferMessage, tm.TransferResponse, tm.OpenConnection)
}

// MarshalCbor creates a CBOR array of four elements: the id followed by the
// three mode flags.
func (tm *TransferMeta) MarshalCbor(w io.Writer) (err error) {
	if err = cboring.WriteArrayLength(4, w); err != nil {
		return
	}

	if err = cboring.WriteTextString(string(tm.ID), w); err != nil {
		return
	}
	for _, flag := range []bool{tm.TransferMessage, tm.TransferResponse, tm.OpenConnection} {
		if err = cboring.WriteBoolean(flag, w); err != nil {
			return
		}
	}

	return
}

// UnmarshalCbor a CBOR array back to a TransferMeta.
func (tm *TransferMeta) UnmarshalCbor(r io.Reader) (err error) {
	if n, arrErr := cboring.ReadArrayLength(r); arrErr != nil {
		return arrErr
	} else if n != 4 {
		return fmt.Errorf("TransferMeta expected array of length 4, got %d", n)
	}

	if id, idErr := cboring.ReadTextString(r); idErr != nil {
		return idErr
	} else {
		tm.ID = TransferID(id)
	}

	for _, flag := range []*bool{&tm.TransferMessage, &tm.TransferResponse, &tm.OpenConnection} {
		if *flag, err = cboring.ReadBoolean(r); err != nil {
			return
		}
	}

	return
}

// Envelope announces a transfer to the receiver. When the serialized payload
// is small enough it rides inline in the envelope; otherwise the envelope is
// metadata-only and the payload follows chunked over the streaming
// connection.
type Envelope struct {
	// Payload is the inline serialized message, empty for metadata-only
	// envelopes.
	Payload string

	// Meta is the transfer block.
	Meta TransferMeta
}

// Type code of an Envelope is always 1.
func (e *Envelope) Type() uint64 {
	return UnitEnvelope
}

func (e *Envelope) String() string {
	return fmt.Sprintf("envelope(%s,inline=%d)", e.Meta.ID, len(e.Payload))
}

// CheckValid errors if the Envelope violates its invariants: the transfer
// block must be well-formed and a chunked-payload envelope carries no inline
// payload.
func (e *Envelope) CheckValid() (errs error) {
	if err := e.Meta.CheckValid(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if e.Meta.TransferMessage && len(e.Payload) > 0 {
		errs = multierror.Append(errs,
			fmt.Errorf("envelope %s announces a chunked payload, but carries %d inline bytes", e.Meta.ID, len(e.Payload)))
	}

	return
}

// MarshalCbor creates a CBOR array of two elements: the inline payload and
// the transfer block.
func (e *Envelope) MarshalCbor(w io.Writer) (err error) {
	if err = cboring.WriteArrayLength(2, w); err != nil {
		return
	}

	if err = cboring.WriteTextString(e.Payload, w); err != nil {
		return
	}
	if err = cboring.Marshal(&e.Meta, w); err != nil {
		return
	}

	return
}

// UnmarshalCbor a CBOR array back to an Envelope.
func (e *Envelope) UnmarshalCbor(r io.Reader) (err error) {
	if n, arrErr := cboring.ReadArrayLength(r); arrErr != nil {
		return arrErr
	} else if n != 2 {
		return fmt.Errorf("Envelope expected array of length 2, got %d", n)
	}

	if e.Payload, err = cboring.ReadTextString(r); err != nil {
		return
	}
	if err = cboring.Unmarshal(&e.Meta, r); err != nil {
		return
	}

	return
}
