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

// ChunkedMessageFrame carries the request payload in fragments from sender
// to receiver. It appears in three forms:
//
//   - pull request: no data, Complete unset, sent by the receiver to start
//     the push,
//   - data fragment: one fragment of the payload, Complete unset,
//   - terminal frame: no data, Complete set, closing the stream.
type ChunkedMessageFrame struct {
	ID       TransferID
	Data     string
	Complete bool
}

// Type code of a ChunkedMessageFrame is always 3.
func (cm *ChunkedMessageFrame) Type() uint64 {
	return UnitChunkedMessage
}

func (cm *ChunkedMessageFrame) String() string {
	return fmt.Sprintf("chunkedMessage(%s,%d,complete=%t)", cm.ID, len(cm.Data), cm.Complete)
}

// IsPullRequest is satisfied by the receiver's initial pull request form.
func (cm *ChunkedMessageFrame) IsPullRequest() bool {
	return len(cm.Data) == 0 && !cm.Complete
}

// CheckValid errors if the ChunkedMessageFrame violates its invariants. The
// terminal frame carries no data.
func (cm *ChunkedMessageFrame) CheckValid() (errs error) {
	if err := cm.ID.CheckValid(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if cm.Complete && len(cm.Data) > 0 {
		errs = multierror.Append(errs,
			fmt.Errorf("terminal chunkedMessage frame %s carries %d data bytes", cm.ID, len(cm.Data)))
	}

	return
}

// MarshalCbor creates a CBOR array of three elements: id, data fragment and
// complete flag.
func (cm *ChunkedMessageFrame) MarshalCbor(w io.Writer) error {
	return marshalChunkFrame(string(cm.ID), cm.Data, cm.Complete, w)
}

// UnmarshalCbor a CBOR array back to a ChunkedMessageFrame.
func (cm *ChunkedMessageFrame) UnmarshalCbor(r io.Reader) (err error) {
	var id string
	if id, cm.Data, cm.Complete, err = unmarshalChunkFrame(r); err == nil {
		cm.ID = TransferID(id)
	}
	return
}

// marshalChunkFrame writes the shared [id, data, complete] representation of
// both chunked frame directions.
func marshalChunkFrame(id, data string, complete bool, w io.Writer) (err error) {
	if err = cboring.WriteArrayLength(3, w); err != nil {
		return
	}

	if err = cboring.WriteTextString(id, w); err != nil {
		return
	}
	if err = cboring.WriteTextString(data, w); err != nil {
		return
	}
	if err = cboring.WriteBoolean(complete, w); err != nil {
		return
	}

	return
}

// unmarshalChunkFrame reads the shared [id, data, complete] representation
// of both chunked frame directions.
func unmarshalChunkFrame(r io.Reader) (id, data string, complete bool, err error) {
	if n, arrErr := cboring.ReadArrayLength(r); arrErr != nil {
		err = arrErr
		return
	} else if n != 3 {
		err = fmt.Errorf("chunked frame expected array of length 3, got %d", n)
		return
	}

	if id, err = cboring.ReadTextString(r); err != nil {
		return
	}
	if data, err = cboring.ReadTextString(r); err != nil {
		return
	}
	if complete, err = cboring.ReadBoolean(r); err != nil {
		return
	}

	return
}
