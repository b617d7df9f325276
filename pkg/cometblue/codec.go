// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caloric Labs

package cometblue

import (
	"encoding/binary"
	"math"
	"time"
)

// Temperatures holds the decoded fields of a 7-byte temperature telegram.
// A nil field means "absent": unknown on read, no change requested on write.
type Temperatures struct {
	CurrentTemp         *float64
	Target              *float64
	TargetLow           *float64
	TargetHigh          *float64
	Offset              *float64
	WindowOpenDetection *int
	WindowOpenMinutes   *int
}

// StatusReport is the result of decoding a 3-byte status telegram. Word is
// the reconstructed flag dword and UnusedBits the residual not covered by
// any named mask, so nothing is silently dropped on read-modify-write.
type StatusReport struct {
	Flags      map[string]bool
	Word       uint32
	UnusedBits uint32
}

func floatToWire(v *float64) int8 {
	if v == nil {
		return Sentinel
	}
	return int8(math.Round(*v * 2.0))
}

func intToWire(v *int) int8 {
	if v == nil {
		return Sentinel
	}
	return int8(*v)
}

// EncodeTemperatures packs a temperature telegram. The current-temperature
// position always carries the sentinel: it is read-only on the device and
// never written back. Absent fields encode as the sentinel and leave the
// stored value untouched.
func EncodeTemperatures(t Temperatures) []byte {
	return []byte{
		byte(floatToWire(nil)), // current temperature, never written
		byte(floatToWire(t.Target)),
		byte(floatToWire(t.TargetLow)),
		byte(floatToWire(t.TargetHigh)),
		byte(floatToWire(t.Offset)),
		byte(intToWire(t.WindowOpenDetection)),
		byte(intToWire(t.WindowOpenMinutes)),
	}
}

// DecodeTemperatures unpacks a temperature telegram. A frame of the wrong
// length, or one carrying the sentinel in any position, is rejected whole
// with InvalidTelegramError: the device never populates a partial frame on
// a healthy read, so partial adoption would risk applying stale setpoints.
func DecodeTemperatures(data []byte) (Temperatures, error) {
	if len(data) != TemperatureTelegramSize {
		return Temperatures{}, &InvalidTelegramError{
			Characteristic: "temperature",
			Data:           append([]byte(nil), data...),
			Reason:         "wrong length",
		}
	}
	raw := make([]int8, TemperatureTelegramSize)
	for i, b := range data {
		raw[i] = int8(b)
		if raw[i] == Sentinel {
			return Temperatures{}, &InvalidTelegramError{
				Characteristic: "temperature",
				Data:           append([]byte(nil), data...),
				Reason:         "sentinel in frame",
			}
		}
	}

	half := func(v int8) *float64 {
		f := float64(v) / 2.0
		return &f
	}
	whole := func(v int8) *int {
		n := int(v)
		return &n
	}
	return Temperatures{
		CurrentTemp:         half(raw[0]),
		Target:              half(raw[1]),
		TargetLow:           half(raw[2]),
		TargetHigh:          half(raw[3]),
		Offset:              half(raw[4]),
		WindowOpenDetection: whole(raw[5]),
		WindowOpenMinutes:   whole(raw[6]),
	}, nil
}

// EncodeStatus packs the set flags into a 3-byte little-endian status
// telegram. The 32-bit flag word is truncated to its low 3 bytes; no named
// mask reaches above bit 19, so the narrowing is lossless for named flags.
func EncodeStatus(flags map[string]bool) []byte {
	var word uint32
	for name, set := range flags {
		if !set {
			continue
		}
		mask, ok := statusMasks[name]
		if !ok {
			continue
		}
		word |= mask
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], word)
	return buf[:StatusTelegramSize]
}

// DecodeStatus unpacks a 3-byte status telegram. Each named mask is tested
// with full containment, so a multi-bit mask reports true only when all of
// its bits are set.
func DecodeStatus(data []byte) (StatusReport, error) {
	if len(data) != StatusTelegramSize {
		return StatusReport{}, &InvalidTelegramError{
			Characteristic: "status",
			Data:           append([]byte(nil), data...),
			Reason:         "wrong length",
		}
	}
	word := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16

	flags := make(map[string]bool, len(statusMasks))
	var covered uint32
	for name, mask := range statusMasks {
		flags[name] = word&mask == mask
		covered |= mask
	}
	return StatusReport{
		Flags:      flags,
		Word:       word,
		UnusedBits: word &^ covered,
	}, nil
}

// ClassifyStatus derives the single reported device activity from the flag
// set: the first set flag in precedence order wins. Precedence, not
// recency, decides between overlapping transient states.
func ClassifyStatus(flags map[string]bool) string {
	for _, name := range activityPrecedence {
		if flags[name] {
			return name
		}
	}
	return FlagUnknown
}

// EncodeDateTime packs the device clock telegram: minute, hour, day, month
// and a one-byte year relative to 2000, so only 2000 through 2255 is
// representable.
func EncodeDateTime(t time.Time) ([]byte, error) {
	if t.Year() < 2000 || t.Year() > 2255 {
		return nil, ErrInvalidYear
	}
	return []byte{
		byte(t.Minute()),
		byte(t.Hour()),
		byte(t.Day()),
		byte(t.Month()),
		byte(t.Year() - 2000),
	}, nil
}

// EncodePIN packs the 4-byte little-endian password telegram.
func EncodePIN(pin uint32) []byte {
	var buf [PinTelegramSize]byte
	binary.LittleEndian.PutUint32(buf[:], pin)
	return buf[:]
}

// DecodeBattery unpacks the battery characteristic, a single raw byte.
func DecodeBattery(data []byte) (int, error) {
	if len(data) < 1 {
		return 0, &InvalidTelegramError{
			Characteristic: "battery",
			Data:           append([]byte(nil), data...),
			Reason:         "empty frame",
		}
	}
	return int(data[0]), nil
}

// DecodeString unpacks a device-info string characteristic, trimming any
// trailing NUL padding.
func DecodeString(data []byte) string {
	end := len(data)
	for end > 0 && data[end-1] == 0 {
		end--
	}
	return string(data[:end])
}
