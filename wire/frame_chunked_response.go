// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
)

// ChunkedResponseFrame carries the response payload in fragments from
// receiver back to sender. Unlike the request direction it has no pull
// request form; the receiver starts pushing on its own.
type ChunkedResponseFrame struct {
	ID       TransferID
	Data     string
	Complete bool
}

// Type code of a ChunkedResponseFrame is always 4.
func (cr *ChunkedResponseFrame) Type() uint64 {
	return UnitChunkedResponse
}

func (cr *ChunkedResponseFrame) String() string {
	return fmt.Sprintf("chunkedResponse(%s,%d,complete=%t)", cr.ID, len(cr.Data), cr.Complete)
}

// CheckValid errors if the ChunkedResponseFrame violates its invariants:
// the terminal frame carries no data and an empty non-terminal frame has no
// meaning in the response direction.
func (cr *ChunkedResponseFrame) CheckValid() (errs error) {
	if err := cr.ID.CheckValid(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if cr.Complete && len(cr.Data) > 0 {
		errs = multierror.Append(errs,
			fmt.Errorf("terminal chunkedResponse frame %s carries %d data bytes", cr.ID, len(cr.Data)))
	}
	if !cr.Complete && len(cr.Data) == 0 {
		errs = multierror.Append(errs,
			fmt.Errorf("chunkedResponse frame %s is neither fragment nor terminal", cr.ID))
	}

	return
}

// MarshalCbor creates a CBOR array of three elements: id, data fragment and
// complete flag.
func (cr *ChunkedResponseFrame) MarshalCbor(w io.Writer) error {
	return marshalChunkFrame(string(cr.ID), cr.Data, cr.Complete, w)
}

// UnmarshalCbor a CBOR array back to a ChunkedResponseFrame.
func (cr *ChunkedResponseFrame) UnmarshalCbor(r io.Reader) (err error) {
	var id string
	if id, cr.Data, cr.Complete, err = unmarshalChunkFrame(r); err == nil {
		cr.ID = TransferID(id)
	}
	return
}
