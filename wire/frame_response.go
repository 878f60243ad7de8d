// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"fmt"
	"io"
)

// ResponseFrame carries a response payload that fits in a single frame,
// pushed atomically from receiver back to sender. Empty data stands for a
// handler that returned no result.
type ResponseFrame struct {
	ID   TransferID
	Data string
}

// Type code of a ResponseFrame is always 6.
func (rf *ResponseFrame) Type() uint64 {
	return UnitResponse
}

func (rf *ResponseFrame) String() string {
	return fmt.Sprintf("response(%s,%d)", rf.ID, len(rf.Data))
}

// CheckValid errors if the ResponseFrame violates its invariants.
func (rf *ResponseFrame) CheckValid() error {
	return rf.ID.CheckValid()
}

// MarshalCbor creates a CBOR array of two elements: id and payload.
func (rf *ResponseFrame) MarshalCbor(w io.Writer) error {
	return marshalAtomicFrame(string(rf.ID), rf.Data, w)
}

// UnmarshalCbor a CBOR array back to a ResponseFrame.
func (rf *ResponseFrame) UnmarshalCbor(r io.Reader) (err error) {
	var id string
	if id, rf.Data, err = unmarshalAtomicFrame(r); err == nil {
		rf.ID = TransferID(id)
	}
	return
}
