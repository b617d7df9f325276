// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caloric Labs

// Package cometblue implements the GATT protocol of Eurotronic Comet Blue
// radiator thermostats (also sold as Sygonix and Xavax).
//
// The device exposes a handful of proprietary characteristics carrying
// compact fixed-width binary telegrams. This package provides the telegram
// codec, a current/target dual-state store, and a synchronization engine
// that reconciles pending setpoint changes over an intermittently-connected
// BLE link.
package cometblue

import "time"

// Characteristic UUIDs. These are part of the device protocol and must
// match exactly.
const (
	CharPassword     = "47e9ee30-47e9-11e4-8939-164230d1df67"
	CharTemperature  = "47e9ee2b-47e9-11e4-8939-164230d1df67"
	CharBattery      = "47e9ee2c-47e9-11e4-8939-164230d1df67"
	CharStatus       = "47e9ee2a-47e9-11e4-8939-164230d1df67"
	CharDateTime     = "47e9ee01-47e9-11e4-8939-164230d1df67"
	CharModel        = "00002a24-0000-1000-8000-00805f9b34fb" // model_number (Comet Blue)
	CharManufacturer = "00002a29-0000-1000-8000-00805f9b34fb" // manufacturer_name (EUROtronic GmbH)
	CharSoftwareRev  = "00002a28-0000-1000-8000-00805f9b34fb" // software_revision (0.0.6-sygonix1)

	// The firmware revision lives on a vendor characteristic, not on the
	// standard 0x2a26 one (COBL0126).
	CharFirmwareRev = "47e9ee2d-47e9-11e4-8939-164230d1df67"
)

// Telegram sizes
const (
	TemperatureTelegramSize = 7
	StatusTelegramSize      = 3
	DateTimeTelegramSize    = 5
	PinTelegramSize         = 4
)

// Sentinel is the reserved signed-byte value meaning "field absent / not
// applicable" in a temperature telegram. Real temperatures occupy the rest
// of the signed byte range at 0.5 degree resolution (-64.0 to +63.5).
const Sentinel int8 = -128

// TemperatureOff is the reserved setpoint meaning "valve forced closed".
const TemperatureOff = 7.5

// DisconnectDelay is how long an authenticated session stays up without
// traffic before it is proactively torn down to spare the device battery.
const DisconnectDelay = 49 * time.Second

// Status flag names
const (
	FlagChildlock          = "childlock"
	FlagManualMode         = "manual_mode"
	FlagAdapting           = "adapting"
	FlagNotReady           = "not_ready"
	FlagInstalling         = "installing"
	FlagMotorMoving        = "motor_moving"
	FlagAntifrostActivated = "antifrost_activated"
	FlagSatisfied          = "satisfied"
	FlagLowBattery         = "low_battery"
	FlagUnknown            = "unknown"
)

// statusMasks maps flag names to their bit masks within the 24-bit status
// word. Multi-bit masks (installing) decode with full containment: every
// constituent bit must be set.
var statusMasks = map[string]uint32{
	FlagChildlock:          0x80,
	FlagManualMode:         0x1,
	FlagAdapting:           0x400,
	FlagNotReady:           0x200,
	FlagInstalling:         0x400 | 0x200 | 0x100,
	FlagMotorMoving:        0x100,
	FlagAntifrostActivated: 0x10,
	FlagSatisfied:          0x80000,
	FlagLowBattery:         0x800,
	FlagUnknown:            0x2000,
}

// activityPrecedence orders the transient activity flags for the derived
// status classification. The first flag that is set wins; overlapping
// multi-bit states rely on this (installing implies motor_moving and
// not_ready).
var activityPrecedence = []string{
	FlagAdapting,
	FlagNotReady,
	FlagInstalling,
	FlagMotorMoving,
	FlagUnknown,
	FlagSatisfied,
}
