// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/dtn7/cboring"
)

func TestMessageCbor(t *testing.T) {
	tests := []Message{
		&HelloMessage{Label: "content", Anchor: false},
		&HelloMessage{Label: "background", Anchor: true},
		&WelcomeMessage{Context: 7, Profile: "compact"},
		&SendMessage{Seq: 1, Broadcast: true, Payload: []byte(`{"a":1}`)},
		&SendMessage{Seq: 2, Context: 3, Frame: 1, Payload: []byte(`"x"`)},
		&DeliverMessage{Seq: 9, Context: 4, Label: "devtools", Payload: []byte(`{}`)},
		&ReplyMessage{Seq: 9, Status: StatusOK, Payload: []byte(`null`)},
		&ReplyMessage{Seq: 3, Status: StatusRejected, Payload: []byte{}, Reason: "handler failed"},
		&PortOpenMessage{Seq: 4, Name: "app-port", Context: 2},
		&PortOpenMessage{Seq: 5, Name: "b", Broadcast: true},
		&PortOpenedMessage{Seq: 4, Port: 11},
		&PortAcceptMessage{Port: 11, Name: "app-port", Context: 1, Label: "content"},
		&PortDataMessage{Port: 11, Unit: []byte{0x82, 0x00, 0x60}},
		&PortCloseMessage{Port: 11},
	}

	for _, m1 := range tests {
		t.Run(m1.String(), func(t *testing.T) {
			var buff bytes.Buffer
			if err := WriteMessage(m1, &buff); err != nil {
				t.Fatalf("writing failed: %v", err)
			}

			m2, err := ReadMessage(&buff)
			if err != nil {
				t.Fatalf("reading failed: %v", err)
			}

			if !reflect.DeepEqual(m1, m2) {
				t.Fatalf("messages differ: %v, %v", m1, m2)
			}
		})
	}
}

func TestReadMessageUnknownCode(t *testing.T) {
	var buff bytes.Buffer
	if err := cboring.WriteArrayLength(2, &buff); err != nil {
		t.Fatal(err)
	}
	if err := cboring.WriteUInt(99, &buff); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadMessage(&buff); err == nil {
		t.Fatal("expected an error for an unknown type code")
	}
}
