// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package msgs holds the messages exchanged between a hub and its connectors,
// each one wrapped with its type code as a CBOR array.
package msgs

import (
	"fmt"
	"io"
	"reflect"

	"github.com/dtn7/cboring"
)

// Message is the union of everything a hub link may carry.
// Implementations follow below, one file per concern.
type Message interface {
	// typeCode is the unique identifier of each message type.
	typeCode() uint64

	fmt.Stringer

	// CborMarshaler must only cover the type's body. The type code wrapper
	// is handled by WriteMessage and ReadMessage.
	cboring.CborMarshaler
}

const (
	helloCode      uint64 = 0
	welcomeCode    uint64 = 1
	sendCode       uint64 = 2
	deliverCode    uint64 = 3
	replyCode      uint64 = 4
	portOpenCode   uint64 = 5
	portOpenedCode uint64 = 6
	portAcceptCode uint64 = 7
	portDataCode   uint64 = 8
	portCloseCode  uint64 = 9
)

var messageMapping = map[interface{}]reflect.Type{
	helloCode:      reflect.TypeOf(HelloMessage{}),
	welcomeCode:    reflect.TypeOf(WelcomeMessage{}),
	sendCode:       reflect.TypeOf(SendMessage{}),
	deliverCode:    reflect.TypeOf(DeliverMessage{}),
	replyCode:      reflect.TypeOf(ReplyMessage{}),
	portOpenCode:   reflect.TypeOf(PortOpenMessage{}),
	portOpenedCode: reflect.TypeOf(PortOpenedMessage{}),
	portAcceptCode: reflect.TypeOf(PortAcceptMessage{}),
	portDataCode:   reflect.TypeOf(PortDataMessage{}),
	portCloseCode:  reflect.TypeOf(PortCloseMessage{}),
}

// WriteMessage writes a Message wrapped with its type code as CBOR.
func WriteMessage(m Message, w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}

	if err := cboring.WriteUInt(m.typeCode(), w); err != nil {
		return err
	}

	if err := cboring.Marshal(m, w); err != nil {
		return err
	}

	return nil
}

// ReadMessage reads the next Message based on its type code from CBOR.
func ReadMessage(r io.Reader) (m Message, err error) {
	if n, arrErr := cboring.ReadArrayLength(r); arrErr != nil {
		err = arrErr
		return
	} else if n != 2 {
		err = fmt.Errorf("expected array of two elements, got %d", n)
		return
	}

	if n, typeErr := cboring.ReadUInt(r); typeErr != nil {
		err = typeErr
		return
	} else if t, ok := messageMapping[n]; !ok {
		err = fmt.Errorf("no hub message registered for type code %d", n)
		return
	} else {
		m = reflect.New(t).Interface().(Message)
	}

	if msgErr := cboring.Unmarshal(m, r); msgErr != nil {
		err = msgErr
		return
	}

	return
}
