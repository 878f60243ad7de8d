// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

// PortOpenMessage asks the hub to open a streaming connection toward the
// addressed context. The hub answers with a PortOpenedMessage carrying the
// same Seq and relays a PortAcceptMessage to the target.
type PortOpenMessage struct {
	Seq       uint64
	Name      string
	Broadcast bool
	Context   uint64
	Frame     uint64
}

func (p *PortOpenMessage) typeCode() uint64 {
	return portOpenCode
}

func (p *PortOpenMessage) String() string {
	return fmt.Sprintf("PORT_OPEN(%d,%s)", p.Seq, p.Name)
}

func (p *PortOpenMessage) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(5, w); err != nil {
		return err
	}
	for _, n := range []uint64{p.Seq, p.Context, p.Frame} {
		if err := cboring.WriteUInt(n, w); err != nil {
			return err
		}
	}
	if err := cboring.WriteBoolean(p.Broadcast, w); err != nil {
		return err
	}
	return cboring.WriteTextString(p.Name, w)
}

func (p *PortOpenMessage) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 5 {
		return fmt.Errorf("PortOpenMessage: expected array of five elements, got %d", n)
	}

	for _, field := range []*uint64{&p.Seq, &p.Context, &p.Frame} {
		if n, err := cboring.ReadUInt(r); err != nil {
			return err
		} else {
			*field = n
		}
	}

	if broadcast, err := cboring.ReadBoolean(r); err != nil {
		return err
	} else {
		p.Broadcast = broadcast
	}

	if name, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		p.Name = name
	}

	return nil
}

// PortOpenedMessage tells the opener the hub-wide id of its new connection.
type PortOpenedMessage struct {
	Seq  uint64
	Port uint64
}

func (p *PortOpenedMessage) typeCode() uint64 {
	return portOpenedCode
}

func (p *PortOpenedMessage) String() string {
	return fmt.Sprintf("PORT_OPENED(%d,%d)", p.Seq, p.Port)
}

func (p *PortOpenedMessage) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(p.Seq, w); err != nil {
		return err
	}
	return cboring.WriteUInt(p.Port, w)
}

func (p *PortOpenedMessage) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 2 {
		return fmt.Errorf("PortOpenedMessage: expected array of two elements, got %d", n)
	}

	if seq, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		p.Seq = seq
	}

	if port, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		p.Port = port
	}

	return nil
}

// PortAcceptMessage hands the far half of a freshly opened connection to its
// target. Context and Label identify the opener.
type PortAcceptMessage struct {
	Port    uint64
	Name    string
	Context uint64
	Label   string
}

func (p *PortAcceptMessage) typeCode() uint64 {
	return portAcceptCode
}

func (p *PortAcceptMessage) String() string {
	return fmt.Sprintf("PORT_ACCEPT(%d,%s,from=%d)", p.Port, p.Name, p.Context)
}

func (p *PortAcceptMessage) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(4, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(p.Port, w); err != nil {
		return err
	}
	if err := cboring.WriteTextString(p.Name, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(p.Context, w); err != nil {
		return err
	}
	return cboring.WriteTextString(p.Label, w)
}

func (p *PortAcceptMessage) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 4 {
		return fmt.Errorf("PortAcceptMessage: expected array of four elements, got %d", n)
	}

	if port, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		p.Port = port
	}

	if name, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		p.Name = name
	}

	if context, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		p.Context = context
	}

	if label, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		p.Label = label
	}

	return nil
}

// PortDataMessage carries one serialized wire unit over a connection.
type PortDataMessage struct {
	Port uint64
	Unit []byte
}

func (p *PortDataMessage) typeCode() uint64 {
	return portDataCode
}

func (p *PortDataMessage) String() string {
	return fmt.Sprintf("PORT_DATA(%d,%d)", p.Port, len(p.Unit))
}

func (p *PortDataMessage) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(p.Port, w); err != nil {
		return err
	}
	return cboring.WriteByteString(p.Unit, w)
}

func (p *PortDataMessage) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 2 {
		return fmt.Errorf("PortDataMessage: expected array of two elements, got %d", n)
	}

	if port, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		p.Port = port
	}

	if unit, err := cboring.ReadByteString(r); err != nil {
		return err
	} else {
		p.Unit = unit
	}

	return nil
}

// PortCloseMessage tears a connection down. Both a connector and the hub may
// send it, closing an already closed connection has no effect.
type PortCloseMessage struct {
	Port uint64
}

func (p *PortCloseMessage) typeCode() uint64 {
	return portCloseCode
}

func (p *PortCloseMessage) String() string {
	return fmt.Sprintf("PORT_CLOSE(%d)", p.Port)
}

func (p *PortCloseMessage) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(1, w); err != nil {
		return err
	}
	return cboring.WriteUInt(p.Port, w)
}

func (p *PortCloseMessage) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 1 {
		return fmt.Errorf("PortCloseMessage: expected array of one element, got %d", n)
	}

	if port, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		p.Port = port
	}

	return nil
}
