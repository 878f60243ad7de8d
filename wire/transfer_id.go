// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"fmt"

	"github.com/google/uuid"
)

// TransferID correlates every envelope and frame belonging to one transfer.
// It is a random 128 bit identity in its canonical UUID string form. Both
// peers treat it as opaque; uniqueness is assumed, not enforced.
type TransferID string

// NewTransferID mints a fresh random TransferID.
func NewTransferID() TransferID {
	return TransferID(uuid.New().String())
}

func (id TransferID) String() string {
	return string(id)
}

// CheckValid errors if this TransferID is not a well-formed UUID string.
func (id TransferID) CheckValid() error {
	if _, err := uuid.Parse(string(id)); err != nil {
		return fmt.Errorf("malformed transfer id %q: %v", string(id), err)
	}
	return nil
}
