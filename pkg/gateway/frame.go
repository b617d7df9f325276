// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caloric Labs

// Package gateway reaches thermostats through a remote BLE gateway over a
// WebSocket link, for hosts without a local radio. Each frame is a CBOR
// array [op, payload_map] carrying one characteristic-level operation.
package gateway

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Frame opcodes - requests (client → gateway)
const (
	OpFindDevice = 0x10
	OpConnect    = 0x11
	OpDisconnect = 0x12
	OpRead       = 0x20
	OpWrite      = 0x21
)

// Frame opcodes - responses and events (gateway → client)
const (
	OpResult       = 0x30
	OpDisconnected = 0x40
)

// Request payload keys
const (
	KeyAddress      = 0
	KeyTimeoutMs    = 1
	KeyChar         = 0
	KeyData         = 1
	KeyWithResponse = 2
)

// Result payload keys
const (
	KeyOK        = 0
	KeyValue     = 1
	KeyErrorText = 2
)

// KeySeq carries the request sequence number, echoed by the gateway in the
// matching result so a late result cannot be mistaken for the response to
// a later request.
const KeySeq = 3

// EncodeFrame builds a CBOR frame: [op, payload_map]. A nil payload
// encodes as CBOR null.
func EncodeFrame(op uint8, payload map[int]interface{}) ([]byte, error) {
	var msg interface{}
	if len(payload) == 0 {
		msg = []interface{}{uint64(op), nil}
	} else {
		msg = []interface{}{uint64(op), payload}
	}
	data, err := cbor.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}

// DecodeFrame parses a CBOR frame into its opcode and payload map (nil for
// empty payloads).
func DecodeFrame(data []byte) (op uint8, payload map[int]interface{}, err error) {
	if len(data) == 0 {
		return 0, nil, fmt.Errorf("empty frame")
	}

	var msg []interface{}
	if err := cbor.Unmarshal(data, &msg); err != nil {
		return 0, nil, fmt.Errorf("decode frame: %w", err)
	}
	if len(msg) != 2 {
		return 0, nil, fmt.Errorf("expected 2-element array, got %d elements", len(msg))
	}

	switch v := msg[0].(type) {
	case uint64:
		if v > 255 {
			return 0, nil, fmt.Errorf("opcode out of range: %d", v)
		}
		op = uint8(v)
	default:
		return 0, nil, fmt.Errorf("expected uint opcode, got %T", msg[0])
	}

	if msg[1] == nil {
		return op, nil, nil
	}

	raw, ok := msg[1].(map[interface{}]interface{})
	if !ok {
		return 0, nil, fmt.Errorf("expected map or nil payload, got %T", msg[1])
	}
	payload = make(map[int]interface{}, len(raw))
	for key, val := range raw {
		switch k := key.(type) {
		case uint64:
			payload[int(k)] = val
		case int64:
			payload[int(k)] = val
		default:
			return 0, nil, fmt.Errorf("expected integer payload key, got %T", key)
		}
	}
	return op, payload, nil
}

// GetBytes extracts a byte string from a frame payload by key.
func GetBytes(m map[int]interface{}, key int) ([]byte, bool) {
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

// GetString extracts a string from a frame payload by key.
func GetString(m map[int]interface{}, key int) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetUint extracts an unsigned integer from a frame payload by key. CBOR
// decoders surface small integers as either uint64 or int64.
func GetUint(m map[int]interface{}, key int) (uint64, bool) {
	switch v := m[key].(type) {
	case uint64:
		return v, true
	case int64:
		if v >= 0 {
			return uint64(v), true
		}
	}
	return 0, false
}

// GetBool extracts a bool from a frame payload by key.
func GetBool(m map[int]interface{}, key int) (bool, bool) {
	v, ok := m[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
