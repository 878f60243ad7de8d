// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

// PlainMessage is an ordinary serialized message without any transfer
// semantics, posted over a streaming connection. The receiver hands it to
// its message handler directly; no response travels back.
type PlainMessage struct {
	Data string
}

// Type code of a PlainMessage is always 0.
func (pm *PlainMessage) Type() uint64 {
	return UnitPlainMessage
}

func (pm *PlainMessage) String() string {
	return fmt.Sprintf("plain(%d)", len(pm.Data))
}

// CheckValid is always satisfied for a PlainMessage.
func (pm *PlainMessage) CheckValid() error {
	return nil
}

// MarshalCbor writes the data as a CBOR text string.
func (pm *PlainMessage) MarshalCbor(w io.Writer) error {
	return cboring.WriteTextString(pm.Data, w)
}

// UnmarshalCbor reads the data back from a CBOR text string.
func (pm *PlainMessage) UnmarshalCbor(r io.Reader) (err error) {
	pm.Data, err = cboring.ReadTextString(r)
	return
}
