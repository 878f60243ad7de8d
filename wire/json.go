// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// transferKey is the reserved top-level key that announces transfer
// semantics inside a direct-channel JSON message.
const transferKey = "transfer"

// jsonMeta mirrors TransferMeta on the JSON direct channel.
type jsonMeta struct {
	ID               TransferID `json:"transferId"`
	TransferMessage  bool       `json:"transferMessage"`
	TransferResponse bool       `json:"transferResponse"`
	OpenConnection   bool       `json:"openConnection"`
}

// Kind classifies a direct-channel message for dispatch.
type Kind uint8

const (
	// KindPlain is an ordinary message without transfer semantics.
	KindPlain Kind = iota

	// KindEnvelope is a message carrying a transfer block.
	KindEnvelope

	// KindFrame is a stray control frame. On the direct channel frames are
	// protocol noise and never reach a handler.
	KindFrame
)

// IsObject is satisfied by payloads able to carry a spliced transfer block,
// that is, well-formed JSON objects.
func IsObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(raw)
}

// AttachJSON splices the transfer block into a message's JSON object and
// returns the combined envelope. A nil payload yields a metadata-only
// envelope. Payloads that are not JSON objects, or already use the reserved
// key, are rejected.
func AttachJSON(payload json.RawMessage, meta TransferMeta) (json.RawMessage, error) {
	fields := make(map[string]json.RawMessage)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &fields); err != nil {
			return nil, fmt.Errorf("envelope payload must be a JSON object: %v", err)
		}
		if _, taken := fields[transferKey]; taken {
			return nil, fmt.Errorf("payload already carries a %q field", transferKey)
		}
	}

	metaRaw, err := json.Marshal(jsonMeta{
		ID:               meta.ID,
		TransferMessage:  meta.TransferMessage,
		TransferResponse: meta.TransferResponse,
		OpenConnection:   meta.OpenConnection,
	})
	if err != nil {
		return nil, err
	}

	fields[transferKey] = metaRaw
	return json.Marshal(fields)
}

// DetachJSON classifies a direct-channel message. For envelopes it returns
// the original payload with the transfer block stripped, nil for
// metadata-only envelopes. Messages that are no JSON objects, or objects
// without the reserved key, pass through as KindPlain.
func DetachJSON(raw json.RawMessage) (kind Kind, payload json.RawMessage, meta TransferMeta, err error) {
	var fields map[string]json.RawMessage
	if json.Unmarshal(raw, &fields) != nil {
		payload = raw
		return
	}

	blockRaw, ok := fields[transferKey]
	if !ok {
		payload = raw
		return
	}

	var probe struct {
		Type *string `json:"type"`
	}
	if err = json.Unmarshal(blockRaw, &probe); err != nil {
		err = fmt.Errorf("malformed %q block: %v", transferKey, err)
		return
	}
	if probe.Type != nil {
		kind = KindFrame
		return
	}

	var jm jsonMeta
	if err = json.Unmarshal(blockRaw, &jm); err != nil {
		err = fmt.Errorf("malformed %q block: %v", transferKey, err)
		return
	}
	meta = TransferMeta{
		ID:               jm.ID,
		TransferMessage:  jm.TransferMessage,
		TransferResponse: jm.TransferResponse,
		OpenConnection:   jm.OpenConnection,
	}
	if err = meta.CheckValid(); err != nil {
		return
	}

	kind = KindEnvelope
	if !meta.TransferMessage {
		delete(fields, transferKey)
		payload, err = json.Marshal(fields)
	}

	return
}
