// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caloric Labs

package cometblue

import "sync"

// Store owns the two State halves of a device: current (last observed) and
// target (pending desired changes). Setters may run concurrently with an
// in-flight synchronization cycle, so every access to the pending fields
// goes through the store mutex, and pending writes clear with
// compare-and-clear semantics: a setter racing the cycle is never lost.
type Store struct {
	mu      sync.Mutex
	current State
	target  State
}

// NewStore returns an empty store: nothing observed, nothing pending.
func NewStore() *Store {
	return &Store{}
}

// Current returns a copy of the last observed state.
func (s *Store) Current() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.clone()
}

// HasPendingWrites reports whether any target field awaits a write: a
// non-absent temperature-family field or a non-empty status flag set.
func (s *Store) HasPendingWrites() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target.temperaturesPending() || len(s.target.Status) > 0
}

// SetTargetTemperature queues a manual-mode setpoint change. While the
// device is observed OFF, the value is applied to the current state
// instead: leaving OFF mode must restore a previously-known setpoint
// without a radio round trip.
func (s *Store) SetTargetTemperature(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current.IsOff {
		s.current.TargetTemperature = &v
		return
	}
	s.target.TargetTemperature = &v
}

// SetTargetTemperatureLow queues a scheduled low setpoint change.
func (s *Store) SetTargetTemperatureLow(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target.TargetTempLow = &v
}

// SetTargetTemperatureHigh queues a scheduled high setpoint change.
func (s *Store) SetTargetTemperatureHigh(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target.TargetTempHigh = &v
}

// SetOffsetTemperature queues a calibration offset change.
func (s *Store) SetOffsetTemperature(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target.Offset = &v
}

// SetWindowOpenConfig queues antifrost-detection tuning changes.
func (s *Store) SetWindowOpenConfig(detection, minutes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target.WindowOpenDetection = &detection
	s.target.WindowOpenMinutes = &minutes
}

// SetManualMode queues a manual/auto mode change.
func (s *Store) SetManualMode(manual bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setTargetFlagLocked(FlagManualMode, manual)
}

// SetLocked queues a child-lock change.
func (s *Store) SetLocked(locked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setTargetFlagLocked(FlagChildlock, locked)
}

// SetOff switches the valve-forced-closed mode. Turning off queues manual
// mode plus the reserved OFF setpoint. Turning on restores the last known
// target temperature, falling back to the scheduled high setpoint.
func (s *Store) SetOff(off bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if off {
		s.setTargetFlagLocked(FlagManualMode, true)
		v := float64(TemperatureOff)
		s.target.TargetTemperature = &v
		return
	}
	switch {
	case s.current.TargetTemperature != nil:
		s.target.TargetTemperature = cloneFloat(s.current.TargetTemperature)
	default:
		s.target.TargetTemperature = cloneFloat(s.current.TargetTempHigh)
	}
}

func (s *Store) setTargetFlagLocked(name string, v bool) {
	if s.target.Status == nil {
		s.target.Status = make(map[string]bool)
	}
	s.target.Status[name] = v
}

// PendingTemperatures encodes the pending temperature telegram. The
// returned snapshot must be passed back to ClearTemperatures once the
// transport confirms the write; until then the fields stay pending so a
// failed cycle retries them.
func (s *Store) PendingTemperatures() (data []byte, snapshot Temperatures, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.target.temperaturesPending() {
		return nil, Temperatures{}, false
	}
	snapshot = s.target.clone().temperatures()
	return EncodeTemperatures(snapshot), snapshot, true
}

// ClearTemperatures marks the snapshot written: each pending field still
// holding its snapshot value becomes absent. A field changed by a setter
// since the snapshot was taken stays pending for the next cycle. Clearing
// the same snapshot twice is a no-op.
func (s *Store) ClearTemperatures(snapshot Temperatures) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target.TargetTemperature = clearFloat(s.target.TargetTemperature, snapshot.Target)
	s.target.TargetTempLow = clearFloat(s.target.TargetTempLow, snapshot.TargetLow)
	s.target.TargetTempHigh = clearFloat(s.target.TargetTempHigh, snapshot.TargetHigh)
	s.target.Offset = clearFloat(s.target.Offset, snapshot.Offset)
	s.target.WindowOpenDetection = clearInt(s.target.WindowOpenDetection, snapshot.WindowOpenDetection)
	s.target.WindowOpenMinutes = clearInt(s.target.WindowOpenMinutes, snapshot.WindowOpenMinutes)
}

// PendingStatus encodes the pending status telegram, if any flag change is
// queued. Clearing follows the same confirm-then-clear contract as
// PendingTemperatures.
func (s *Store) PendingStatus() (data []byte, snapshot map[string]bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.target.Status) == 0 {
		return nil, nil, false
	}
	snapshot = make(map[string]bool, len(s.target.Status))
	for k, v := range s.target.Status {
		snapshot[k] = v
	}
	return EncodeStatus(snapshot), snapshot, true
}

// ClearStatus removes pending flags that still match the written snapshot.
func (s *Store) ClearStatus(snapshot map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, v := range snapshot {
		if cur, ok := s.target.Status[name]; ok && cur == v {
			delete(s.target.Status, name)
		}
	}
	if len(s.target.Status) == 0 {
		s.target.Status = nil
	}
}

// ApplyTemperatures decodes a temperature telegram into the current state.
// An invalid frame is returned as a soft error and leaves the current
// state untouched: stale beats corrupt. Observing the reserved OFF
// setpoint raises IsOff and preserves the previously known target
// temperature for restoring later.
func (s *Store) ApplyTemperatures(data []byte) error {
	t, err := DecodeTemperatures(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Target != nil && *t.Target == TemperatureOff {
		s.current.IsOff = true
	} else {
		s.current.IsOff = false
		s.current.TargetTemperature = t.Target
	}
	s.current.CurrentTemp = t.CurrentTemp
	s.current.TargetTempLow = t.TargetLow
	s.current.TargetTempHigh = t.TargetHigh
	s.current.Offset = t.Offset
	s.current.WindowOpenDetection = t.WindowOpenDetection
	s.current.WindowOpenMinutes = t.WindowOpenMinutes
	return nil
}

// ApplyStatus decodes a status telegram into the current state, keeping
// the full reconstructed word and the residual bits.
func (s *Store) ApplyStatus(data []byte) error {
	rep, err := DecodeStatus(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Status = rep.Flags
	s.current.StatusWord = rep.Word
	s.current.StatusUnused = rep.UnusedBits
	return nil
}

// ApplyBattery decodes the battery characteristic into the current state.
func (s *Store) ApplyBattery(data []byte) error {
	level, err := DecodeBattery(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Battery = &level
	return nil
}

// SetDeviceInfo caches the static identification strings.
func (s *Store) SetDeviceInfo(info DeviceInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Info = info
}

// InfoKnown reports whether the device information has been fetched.
func (s *Store) InfoKnown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Info.Known()
}

func clearFloat(cur, written *float64) *float64 {
	if cur != nil && written != nil && *cur == *written {
		return nil
	}
	return cur
}

func clearInt(cur, written *int) *int {
	if cur != nil && written != nil && *cur == *written {
		return nil
	}
	return cur
}
