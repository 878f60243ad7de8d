// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

// ConnectionFrame is the handshake signal of a streaming connection. A peer
// sends it with Complete set once its listeners are armed, guaranteeing the
// counterpart that no subsequent frame will be lost.
type ConnectionFrame struct {
	ID       TransferID
	Complete bool
}

// Type code of a ConnectionFrame is always 2.
func (cf *ConnectionFrame) Type() uint64 {
	return UnitConnection
}

func (cf *ConnectionFrame) String() string {
	return fmt.Sprintf("connection(%s,complete=%t)", cf.ID, cf.Complete)
}

// CheckValid errors if the ConnectionFrame violates its invariants.
func (cf *ConnectionFrame) CheckValid() error {
	return cf.ID.CheckValid()
}

// MarshalCbor creates a CBOR array of two elements: id and complete flag.
func (cf *ConnectionFrame) MarshalCbor(w io.Writer) (err error) {
	if err = cboring.WriteArrayLength(2, w); err != nil {
		return
	}

	if err = cboring.WriteTextString(string(cf.ID), w); err != nil {
		return
	}
	if err = cboring.WriteBoolean(cf.Complete, w); err != nil {
		return
	}

	return
}

// UnmarshalCbor a CBOR array back to a ConnectionFrame.
func (cf *ConnectionFrame) UnmarshalCbor(r io.Reader) (err error) {
	if n, arrErr := cboring.ReadArrayLength(r); arrErr != nil {
		return arrErr
	} else if n != 2 {
		return fmt.Errorf("ConnectionFrame expected array of length 2, got %d", n)
	}

	if id, idErr := cboring.ReadTextString(r); idErr != nil {
		return idErr
	} else {
		cf.ID = TransferID(id)
	}
	if cf.Complete, err = cboring.ReadBoolean(r); err != nil {
		return
	}

	return
}
