// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

// MessageFrame carries a request payload that fits in a single frame,
// pushed atomically instead of a chunked stream. It is intrinsically
// complete; no terminal frame follows.
type MessageFrame struct {
	ID   TransferID
	Data string
}

// Type code of a MessageFrame is always 5.
func (mf *MessageFrame) Type() uint64 {
	return UnitMessage
}

func (mf *MessageFrame) String() string {
	return fmt.Sprintf("message(%s,%d)", mf.ID, len(mf.Data))
}

// CheckValid errors if the MessageFrame violates its invariants.
func (mf *MessageFrame) CheckValid() error {
	return mf.ID.CheckValid()
}

// MarshalCbor creates a CBOR array of two elements: id and payload.
func (mf *MessageFrame) MarshalCbor(w io.Writer) error {
	return marshalAtomicFrame(string(mf.ID), mf.Data, w)
}

// UnmarshalCbor a CBOR array back to a MessageFrame.
func (mf *MessageFrame) UnmarshalCbor(r io.Reader) (err error) {
	var id string
	if id, mf.Data, err = unmarshalAtomicFrame(r); err == nil {
		mf.ID = TransferID(id)
	}
	return
}

// marshalAtomicFrame writes the shared [id, data] representation of both
// atomic frame directions.
func marshalAtomicFrame(id, data string, w io.Writer) (err error) {
	if err = cboring.WriteArrayLength(2, w); err != nil {
		return
	}

	if err = cboring.WriteTextString(id, w); err != nil {
		return
	}
	if err = cboring.WriteTextString(data, w); err != nil {
		return
	}

	return
}

// unmarshalAtomicFrame reads the shared [id, data] representation of both
// atomic frame directions.
func unmarshalAtomicFrame(r io.Reader) (id, data string, err error) {
	if n, arrErr := cboring.ReadArrayLength(r); arrErr != nil {
		err = arrErr
		return
	} else if n != 2 {
		err = fmt.Errorf("atomic frame expected array of length 2, got %d", n)
		return
	}

	if id, err = cboring.ReadTextString(r); err != nil {
		return
	}
	if data, err = cboring.ReadTextString(r); err != nil {
		return
	}

	return
}
