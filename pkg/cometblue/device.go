// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caloric Labs

package cometblue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Device is the public driver for one thermostat. Reads reflect the last
// observed state; setters queue pending changes that the next Update cycle
// writes out. Setters are safe to call concurrently with an in-flight
// Update.
type Device struct {
	address string
	store   *Store
	session *Session
	log     *zap.SugaredLogger

	// opMu serializes synchronization cycles: the BLE link permits one
	// outstanding characteristic operation, so at most one cycle runs per
	// device.
	opMu      sync.Mutex
	available atomic.Bool
}

// New creates a driver for the thermostat at address, authenticating with
// pin. A nil logger disables logging.
func New(tr Transport, address string, pin uint32, log *zap.SugaredLogger) *Device {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Device{
		address: address,
		store:   NewStore(),
		session: NewSession(tr, address, pin, log),
		log:     log,
	}
}

// Address returns the configured device address.
func (d *Device) Address() string { return d.address }

// Available reports whether the last synchronization cycle completed.
func (d *Device) Available() bool { return d.available.Load() }

// ShouldUpdate reports whether the next scheduled cycle has work to do:
// the device is unavailable or a target change is pending.
func (d *Device) ShouldUpdate() bool {
	return !d.available.Load() || d.store.HasPendingWrites()
}

// Update runs one synchronization cycle: ensure the link, fetch static
// device information once, flush pending writes, then read fresh
// telemetry. Writes go first so the read-back reflects the just-written
// values. Any transport failure aborts the cycle, leaves the device
// unavailable and keeps pending writes queued for the next cycle.
func (d *Device) Update(ctx context.Context) error {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	d.available.Store(false)

	if err := d.session.EnsureConnected(ctx); err != nil {
		return err
	}

	if !d.store.InfoKnown() {
		if err := d.fetchDeviceInfo(ctx); err != nil {
			return err
		}
	}

	if data, snapshot, ok := d.store.PendingTemperatures(); ok {
		if err := d.session.Write(ctx, CharTemperature, data, true); err != nil {
			return err
		}
		d.store.ClearTemperatures(snapshot)
		d.log.Debugw("temperatures written", "address", d.address, "data", data)
	}

	if data, snapshot, ok := d.store.PendingStatus(); ok {
		if err := d.session.Write(ctx, CharStatus, data, true); err != nil {
			return err
		}
		d.store.ClearStatus(snapshot)
		d.log.Debugw("status written", "address", d.address, "data", data)
	}

	if err := d.readTelemetry(ctx); err != nil {
		return err
	}

	d.available.Store(true)
	return nil
}

func (d *Device) fetchDeviceInfo(ctx context.Context) error {
	d.log.Debugw("fetching device information", "address", d.address)
	var info DeviceInfo
	for _, f := range []struct {
		char string
		dst  *string
	}{
		{CharModel, &info.Model},
		{CharFirmwareRev, &info.FirmwareRev},
		{CharManufacturer, &info.Manufacturer},
		{CharSoftwareRev, &info.SoftwareRev},
	} {
		data, err := d.session.Read(ctx, f.char)
		if err != nil {
			return err
		}
		*f.dst = DecodeString(data)
	}
	d.store.SetDeviceInfo(info)
	d.log.Debugw("device information fetched",
		"address", d.address, "model", info.Model, "firmware", info.FirmwareRev)
	return nil
}

func (d *Device) readTelemetry(ctx context.Context) error {
	data, err := d.session.Read(ctx, CharTemperature)
	if err != nil {
		return err
	}
	if err := d.store.ApplyTemperatures(data); err != nil {
		var invalid *InvalidTelegramError
		if !errors.As(err, &invalid) {
			return err
		}
		// A corrupt frame must not block the next scheduled cycle; keep
		// the previous reading and move on.
		d.log.Warnw("discarding temperature telegram", "address", d.address, "err", err)
	}

	data, err = d.session.Read(ctx, CharStatus)
	if err != nil {
		return err
	}
	if err := d.store.ApplyStatus(data); err != nil {
		return err
	}

	data, err = d.session.Read(ctx, CharBattery)
	if err != nil {
		return err
	}
	return d.store.ApplyBattery(data)
}

// SyncTime writes the host clock to the device's datetime characteristic.
func (d *Device) SyncTime(ctx context.Context, t time.Time) error {
	data, err := EncodeDateTime(t)
	if err != nil {
		return err
	}
	d.opMu.Lock()
	defer d.opMu.Unlock()
	if err := d.session.EnsureConnected(ctx); err != nil {
		return err
	}
	if err := d.session.Write(ctx, CharDateTime, data, true); err != nil {
		return err
	}
	d.log.Debugw("device clock synchronized", "address", d.address, "time", t)
	return nil
}

// Disconnect deliberately drops the link, e.g. on shutdown.
func (d *Device) Disconnect() {
	d.session.Disconnect()
}

// Temperature returns the observed temperature adjusted by the calibration
// offset, or nil while unknown.
func (d *Device) Temperature() *float64 {
	cur := d.store.Current()
	return cur.Temperature()
}

// TargetTemperature returns the observed manual-mode setpoint.
func (d *Device) TargetTemperature() *float64 {
	return d.store.Current().TargetTemperature
}

// TargetTemperatureLow returns the observed scheduled low setpoint.
func (d *Device) TargetTemperatureLow() *float64 {
	return d.store.Current().TargetTempLow
}

// TargetTemperatureHigh returns the observed scheduled high setpoint.
func (d *Device) TargetTemperatureHigh() *float64 {
	return d.store.Current().TargetTempHigh
}

// OffsetTemperature returns the observed calibration offset.
func (d *Device) OffsetTemperature() *float64 {
	return d.store.Current().Offset
}

// WindowOpenConfig returns the observed antifrost-detection tuning.
func (d *Device) WindowOpenConfig() (detection, minutes *int) {
	cur := d.store.Current()
	return cur.WindowOpenDetection, cur.WindowOpenMinutes
}

// BatteryLevel returns the observed raw battery byte (0-255).
func (d *Device) BatteryLevel() *int {
	return d.store.Current().Battery
}

// Status returns the derived device activity, one of: adapting, not_ready,
// installing, motor_moving, unknown, satisfied.
func (d *Device) Status() string {
	return ClassifyStatus(d.store.Current().Status)
}

// IsOff reports whether the valve is observed forced closed.
func (d *Device) IsOff() bool { return d.store.Current().IsOff }

// Locked reports the observed child lock.
func (d *Device) Locked() bool { return d.store.Current().Flag(FlagChildlock) }

// LowBattery reports the observed low-battery warning.
func (d *Device) LowBattery() bool { return d.store.Current().Flag(FlagLowBattery) }

// ManualMode reports the observed manual/auto mode.
func (d *Device) ManualMode() bool { return d.store.Current().Flag(FlagManualMode) }

// WindowOpen reports whether the device detected an open window.
func (d *Device) WindowOpen() bool { return d.store.Current().Flag(FlagAntifrostActivated) }

// Info returns the cached device identification strings.
func (d *Device) Info() DeviceInfo { return d.store.Current().Info }

// SetTargetTemperature queues a manual setpoint change for the next Update.
func (d *Device) SetTargetTemperature(v float64) { d.store.SetTargetTemperature(v) }

// SetTargetTemperatureLow queues a scheduled low setpoint change.
func (d *Device) SetTargetTemperatureLow(v float64) { d.store.SetTargetTemperatureLow(v) }

// SetTargetTemperatureHigh queues a scheduled high setpoint change.
func (d *Device) SetTargetTemperatureHigh(v float64) { d.store.SetTargetTemperatureHigh(v) }

// SetOffsetTemperature queues a calibration offset change.
func (d *Device) SetOffsetTemperature(v float64) { d.store.SetOffsetTemperature(v) }

// SetWindowOpenConfig queues antifrost-detection tuning.
func (d *Device) SetWindowOpenConfig(detection, minutes int) {
	d.store.SetWindowOpenConfig(detection, minutes)
}

// SetManualMode queues a manual/auto mode change.
func (d *Device) SetManualMode(manual bool) { d.store.SetManualMode(manual) }

// SetLocked queues a child-lock change.
func (d *Device) SetLocked(locked bool) { d.store.SetLocked(locked) }

// SetOff queues the valve-forced-closed mode change.
func (d *Device) SetOff(off bool) { d.store.SetOff(off) }
