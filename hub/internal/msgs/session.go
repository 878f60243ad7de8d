// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

// HelloMessage opens a session. It is the first message a connector sends
// after the link is up. A connector registering as the anchor becomes the
// target of broadcasts.
type HelloMessage struct {
	Label  string
	Anchor bool
}

func (h *HelloMessage) typeCode() uint64 {
	return helloCode
}

func (h *HelloMessage) String() string {
	return fmt.Sprintf("HELLO(%s,anchor=%t)", h.Label, h.Anchor)
}

func (h *HelloMessage) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}
	if err := cboring.WriteTextString(h.Label, w); err != nil {
		return err
	}
	return cboring.WriteBoolean(h.Anchor, w)
}

func (h *HelloMessage) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 2 {
		return fmt.Errorf("HelloMessage: expected array of two elements, got %d", n)
	}

	if label, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		h.Label = label
	}

	if anchor, err := cboring.ReadBoolean(r); err != nil {
		return err
	} else {
		h.Anchor = anchor
	}

	return nil
}

// WelcomeMessage answers a HelloMessage: it assigns the connector its context
// id and names the profile whose limits rule the hub's channel.
type WelcomeMessage struct {
	Context uint64
	Profile string
}

func (wm *WelcomeMessage) typeCode() uint64 {
	return welcomeCode
}

func (wm *WelcomeMessage) String() string {
	return fmt.Sprintf("WELCOME(%d,%s)", wm.Context, wm.Profile)
}

func (wm *WelcomeMessage) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(wm.Context, w); err != nil {
		return err
	}
	return cboring.WriteTextString(wm.Profile, w)
}

func (wm *WelcomeMessage) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 2 {
		return fmt.Errorf("WelcomeMessage: expected array of two elements, got %d", n)
	}

	if context, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		wm.Context = context
	}

	if profile, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		wm.Profile = profile
	}

	return nil
}
