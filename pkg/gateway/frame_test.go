// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caloric Labs

package gateway

import (
	"bytes"
	"testing"

	"github.com/fxamacker/cbor/v2"
)

func TestFrame_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		op      uint8
		payload map[int]interface{}
	}{
		{
			name: "find device",
			op:   OpFindDevice,
			payload: map[int]interface{}{
				KeyAddress:   "AA:BB:CC:DD:EE:FF",
				KeyTimeoutMs: uint64(60000),
			},
		},
		{
			name: "write with response",
			op:   OpWrite,
			payload: map[int]interface{}{
				KeyChar:         "47e9ee30-47e9-11e4-8939-164230d1df67",
				KeyData:         []byte{0x40, 0xE2, 0x01, 0x00},
				KeyWithResponse: true,
			},
		},
		{
			name:    "empty payload",
			op:      OpDisconnect,
			payload: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeFrame(tt.op, tt.payload)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}

			op, payload, err := DecodeFrame(data)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if op != tt.op {
				t.Errorf("opcode: expected 0x%02X, got 0x%02X", tt.op, op)
			}
			if tt.payload == nil {
				if payload != nil {
					t.Errorf("expected nil payload, got %v", payload)
				}
				return
			}
			if len(payload) != len(tt.payload) {
				t.Errorf("payload size: expected %d, got %d", len(tt.payload), len(payload))
			}
		})
	}
}

func TestFrame_PayloadAccessors(t *testing.T) {
	data, err := EncodeFrame(OpWrite, map[int]interface{}{
		KeyChar:         "47e9ee2b-47e9-11e4-8939-164230d1df67",
		KeyData:         []byte{0x80, 42, 0x80, 0x80, 0x80, 0x80, 0x80},
		KeyWithResponse: true,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	_, payload, err := DecodeFrame(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	char, ok := GetString(payload, KeyChar)
	if !ok || char != "47e9ee2b-47e9-11e4-8939-164230d1df67" {
		t.Errorf("GetString: got %q, ok=%v", char, ok)
	}
	raw, ok := GetBytes(payload, KeyData)
	if !ok || !bytes.Equal(raw, []byte{0x80, 42, 0x80, 0x80, 0x80, 0x80, 0x80}) {
		t.Errorf("GetBytes: got % X, ok=%v", raw, ok)
	}
	wr, ok := GetBool(payload, KeyWithResponse)
	if !ok || !wr {
		t.Errorf("GetBool: got %v, ok=%v", wr, ok)
	}

	// Missing and mistyped keys report not-ok.
	if _, ok := GetString(payload, 99); ok {
		t.Error("missing key should not be ok")
	}
	if _, ok := GetBool(payload, KeyChar); ok {
		t.Error("mistyped key should not be ok")
	}
}

func TestDecodeFrame_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated cbor", []byte{0x82, 0x18}},
		{"not an array", mustMarshal(t, map[int]int{1: 2})},
		{"wrong arity", mustMarshal(t, []interface{}{uint64(OpRead)})},
		{"opcode out of range", mustMarshal(t, []interface{}{uint64(300), nil})},
		{"string opcode", mustMarshal(t, []interface{}{"read", nil})},
		{"string payload", mustMarshal(t, []interface{}{uint64(OpRead), "oops"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := DecodeFrame(tt.data); err == nil {
				t.Error("malformed frame should be rejected")
			}
		})
	}
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := cbor.Marshal(v)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	return data
}
