// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caloric Labs

package cometblue

import (
	"context"
	"time"
)

// DeviceHandle is an opaque transport-specific reference to a resolved
// device, produced by FindDevice and consumed by Connect.
type DeviceHandle any

// Conn is an established GATT session. The link allows exactly one
// outstanding characteristic operation at a time; callers serialize access
// themselves (the engine does so through its per-device operation lock).
type Conn interface {
	// ReadCharacteristic reads the value of the characteristic with the
	// given UUID.
	ReadCharacteristic(ctx context.Context, char string) ([]byte, error)

	// WriteCharacteristic writes the characteristic, with a response
	// round trip when withResponse is set.
	WriteCharacteristic(ctx context.Context, char string, data []byte, withResponse bool) error

	// Disconnect tears the link down.
	Disconnect() error
}

// Transport abstracts the BLE layer: device resolution and connection
// establishment. Implementations own radio-level timeouts and retries; a
// stalled operation must surface as an error rather than hang.
type Transport interface {
	// FindDevice resolves address to a handle, scanning if necessary.
	FindDevice(ctx context.Context, address string, timeout time.Duration) (DeviceHandle, error)

	// Connect opens a GATT session on a resolved handle. onDisconnect is
	// invoked by the transport, from its own goroutine, when the link is
	// lost for any reason.
	Connect(ctx context.Context, handle DeviceHandle, onDisconnect func()) (Conn, error)
}
