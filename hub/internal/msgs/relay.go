// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

// Status codes carried by a ReplyMessage.
const (
	// StatusOK marks a delivered message, Payload holds the reply.
	StatusOK uint64 = 0

	// StatusUnrouted marks a target no connector is registered for.
	StatusUnrouted uint64 = 1

	// StatusTooLarge marks a payload above the hub's message ceiling.
	StatusTooLarge uint64 = 2

	// StatusRejected marks a message the receiving side failed on, Reason
	// holds its error text.
	StatusRejected uint64 = 3
)

// SendMessage asks the hub to deliver Payload over the direct channel,
// either to the anchor or to the addressed context. The hub answers with a
// ReplyMessage carrying the same Seq.
type SendMessage struct {
	Seq       uint64
	Broadcast bool
	Context   uint64
	Frame     uint64
	Payload   []byte
}

func (s *SendMessage) typeCode() uint64 {
	return sendCode
}

func (s *SendMessage) String() string {
	if s.Broadcast {
		return fmt.Sprintf("SEND(%d,broadcast,%d)", s.Seq, len(s.Payload))
	}
	return fmt.Sprintf("SEND(%d,%d/%d,%d)", s.Seq, s.Context, s.Frame, len(s.Payload))
}

func (s *SendMessage) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(5, w); err != nil {
		return err
	}
	for _, n := range []uint64{s.Seq, s.Context, s.Frame} {
		if err := cboring.WriteUInt(n, w); err != nil {
			return err
		}
	}
	if err := cboring.WriteBoolean(s.Broadcast, w); err != nil {
		return err
	}
	return cboring.WriteByteString(s.Payload, w)
}

func (s *SendMessage) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 5 {
		return fmt.Errorf("SendMessage: expected array of five elements, got %d", n)
	}

	for _, field := range []*uint64{&s.Seq, &s.Context, &s.Frame} {
		if n, err := cboring.ReadUInt(r); err != nil {
			return err
		} else {
			*field = n
		}
	}

	if broadcast, err := cboring.ReadBoolean(r); err != nil {
		return err
	} else {
		s.Broadcast = broadcast
	}

	if payload, err := cboring.ReadByteString(r); err != nil {
		return err
	} else {
		s.Payload = payload
	}

	return nil
}

// DeliverMessage hands a direct channel payload to its target connector.
// Context and Label identify the original sender. The target must answer
// with a ReplyMessage carrying the same Seq.
type DeliverMessage struct {
	Seq     uint64
	Context uint64
	Label   string
	Payload []byte
}

func (d *DeliverMessage) typeCode() uint64 {
	return deliverCode
}

func (d *DeliverMessage) String() string {
	return fmt.Sprintf("DELIVER(%d,from=%d,%d)", d.Seq, d.Context, len(d.Payload))
}

func (d *DeliverMessage) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(4, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(d.Seq, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(d.Context, w); err != nil {
		return err
	}
	if err := cboring.WriteTextString(d.Label, w); err != nil {
		return err
	}
	return cboring.WriteByteString(d.Payload, w)
}

func (d *DeliverMessage) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 4 {
		return fmt.Errorf("DeliverMessage: expected array of four elements, got %d", n)
	}

	if seq, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		d.Seq = seq
	}

	if context, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		d.Context = context
	}

	if label, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		d.Label = label
	}

	if payload, err := cboring.ReadByteString(r); err != nil {
		return err
	} else {
		d.Payload = payload
	}

	return nil
}

// ReplyMessage finishes a SendMessage or DeliverMessage exchange. Payload is
// only meaningful for StatusOK, Reason only for StatusRejected.
type ReplyMessage struct {
	Seq     uint64
	Status  uint64
	Payload []byte
	Reason  string
}

func (rm *ReplyMessage) typeCode() uint64 {
	return replyCode
}

func (rm *ReplyMessage) String() string {
	return fmt.Sprintf("REPLY(%d,status=%d)", rm.Seq, rm.Status)
}

func (rm *ReplyMessage) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(4, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(rm.Seq, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(rm.Status, w); err != nil {
		return err
	}
	if err := cboring.WriteByteString(rm.Payload, w); err != nil {
		return err
	}
	return cboring.WriteTextString(rm.Reason, w)
}

func (rm *ReplyMessage) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 4 {
		return fmt.Errorf("ReplyMessage: expected array of four elements, got %d", n)
	}

	if seq, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		rm.Seq = seq
	}

	if status, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		rm.Status = status
	}

	if payload, err := cboring.ReadByteString(r); err != nil {
		return err
	} else {
		rm.Payload = payload
	}

	if reason, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		rm.Reason = reason
	}

	return nil
}
