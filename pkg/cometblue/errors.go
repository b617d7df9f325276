// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caloric Labs

package cometblue

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceNotFound is returned when discovery cannot resolve the
	// configured address, after the one internal retry.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrAuthenticationFailed is returned when the device rejects the PIN.
	// It indicates a configuration error and is never retried internally.
	ErrAuthenticationFailed = errors.New("pin not accepted by device")

	// ErrNotConnected is returned for characteristic operations attempted
	// outside an established session.
	ErrNotConnected = errors.New("not connected")

	// ErrInvalidYear is returned by EncodeDateTime for years outside
	// 2000-2255, which the one-byte wire encoding cannot represent.
	ErrInvalidYear = errors.New("year not representable in clock telegram")
)

// InvalidTelegramError reports a telegram that failed validation and was
// discarded. A temperature frame carrying the sentinel in any position is
// never partially adopted; the caller keeps its previous state and retries
// on the next cycle.
type InvalidTelegramError struct {
	Characteristic string
	Data           []byte
	Reason         string
}

func (e *InvalidTelegramError) Error() string {
	return fmt.Sprintf("invalid %s telegram (% X): %s", e.Characteristic, e.Data, e.Reason)
}
