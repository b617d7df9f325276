// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caloric Labs

package cometblue

// DeviceInfo holds the static identification strings of a thermostat.
// Immutable once fetched.
type DeviceInfo struct {
	Model        string
	Manufacturer string
	FirmwareRev  string
	SoftwareRev  string
}

// Known reports whether every identification string has been fetched.
func (i DeviceInfo) Known() bool {
	return i.Model != "" && i.Manufacturer != "" && i.FirmwareRev != "" && i.SoftwareRev != ""
}

// State is one half of the dual-state store: either the last observed
// device state or the set of pending desired changes. A nil field means
// "no value known" on the current side and "no change requested" on the
// target side, which is what lets the target act as a sparse patch over
// the current state.
type State struct {
	TargetTemperature   *float64
	TargetTempLow       *float64
	TargetTempHigh      *float64
	Offset              *float64
	CurrentTemp         *float64 // observed only, never encoded outbound
	WindowOpenDetection *int
	WindowOpenMinutes   *int

	// Status holds decoded flags (current) or requested flag changes
	// (target). An empty or nil map means no status known/pending.
	Status       map[string]bool
	StatusWord   uint32
	StatusUnused uint32

	Info    DeviceInfo
	Battery *int

	// IsOff is derived from the observed manual setpoint equalling the
	// reserved OFF value (valve forced closed).
	IsOff bool
}

// Temperature returns the observed temperature adjusted by the calibration
// offset, or nil while no reading is known.
func (s *State) Temperature() *float64 {
	if s.CurrentTemp == nil {
		return nil
	}
	t := *s.CurrentTemp
	if s.Offset != nil {
		t += *s.Offset
	}
	return &t
}

// Flag reports a single status flag, false when no status is known.
func (s State) Flag(name string) bool {
	return s.Status[name]
}

func (s State) temperatures() Temperatures {
	return Temperatures{
		Target:              s.TargetTemperature,
		TargetLow:           s.TargetTempLow,
		TargetHigh:          s.TargetTempHigh,
		Offset:              s.Offset,
		WindowOpenDetection: s.WindowOpenDetection,
		WindowOpenMinutes:   s.WindowOpenMinutes,
	}
}

func (s *State) temperaturesPending() bool {
	return s.TargetTemperature != nil ||
		s.TargetTempLow != nil ||
		s.TargetTempHigh != nil ||
		s.Offset != nil ||
		s.WindowOpenDetection != nil ||
		s.WindowOpenMinutes != nil
}

// clone returns a deep copy safe to hand out without holding the store lock.
func (s *State) clone() State {
	out := *s
	out.TargetTemperature = cloneFloat(s.TargetTemperature)
	out.TargetTempLow = cloneFloat(s.TargetTempLow)
	out.TargetTempHigh = cloneFloat(s.TargetTempHigh)
	out.Offset = cloneFloat(s.Offset)
	out.CurrentTemp = cloneFloat(s.CurrentTemp)
	out.WindowOpenDetection = cloneInt(s.WindowOpenDetection)
	out.WindowOpenMinutes = cloneInt(s.WindowOpenMinutes)
	out.Battery = cloneInt(s.Battery)
	if s.Status != nil {
		out.Status = make(map[string]bool, len(s.Status))
		for k, v := range s.Status {
			out.Status[k] = v
		}
	}
	return out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	f := *v
	return &f
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
