// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caloric Labs

package cometblue

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// ============================================================
// Fake Transport
// ============================================================

type fakeOp struct {
	kind         string // "read" or "write"
	char         string
	data         []byte
	withResponse bool
}

type fakeConn struct {
	mu           sync.Mutex
	reads        map[string][]byte
	readErr      map[string]error
	writeErr     map[string]error
	ops          []fakeOp
	disconnected bool
}

func (c *fakeConn) ReadCharacteristic(ctx context.Context, char string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.readErr[char]; err != nil {
		return nil, err
	}
	data, ok := c.reads[char]
	if !ok {
		return nil, fmt.Errorf("no fixture for characteristic %s", char)
	}
	c.ops = append(c.ops, fakeOp{kind: "read", char: char})
	return append([]byte(nil), data...), nil
}

func (c *fakeConn) WriteCharacteristic(ctx context.Context, char string, data []byte, withResponse bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.writeErr[char]; err != nil {
		return err
	}
	c.ops = append(c.ops, fakeOp{
		kind: "write", char: char,
		data:         append([]byte(nil), data...),
		withResponse: withResponse,
	})
	return nil
}

func (c *fakeConn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	return nil
}

// opIndex returns the position of the first matching operation, or -1.
func (c *fakeConn) opIndex(kind, char string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, op := range c.ops {
		if op.kind == kind && op.char == char {
			return i
		}
	}
	return -1
}

func (c *fakeConn) opCount(kind, char string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, op := range c.ops {
		if op.kind == kind && op.char == char {
			n++
		}
	}
	return n
}

func (c *fakeConn) lastWrite(char string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.ops) - 1; i >= 0; i-- {
		if c.ops[i].kind == "write" && c.ops[i].char == char {
			return c.ops[i].data
		}
	}
	return nil
}

type fakeTransport struct {
	mu           sync.Mutex
	conn         *fakeConn
	findErrs     []error // consumed one per FindDevice call
	findCalls    int
	connectErr   error
	connectCalls int
	onDisconnect func()
}

func (t *fakeTransport) FindDevice(ctx context.Context, address string, timeout time.Duration) (DeviceHandle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.findCalls++
	if len(t.findErrs) > 0 {
		err := t.findErrs[0]
		t.findErrs = t.findErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return address, nil
}

func (t *fakeTransport) Connect(ctx context.Context, handle DeviceHandle, onDisconnect func()) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connectCalls++
	if t.connectErr != nil {
		return nil, t.connectErr
	}
	t.onDisconnect = onDisconnect
	return t.conn, nil
}

func (t *fakeTransport) fireDisconnect() {
	t.mu.Lock()
	cb := t.onDisconnect
	t.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		reads: map[string][]byte{
			CharModel:        []byte("Comet Blue\x00"),
			CharFirmwareRev:  []byte("COBL0126"),
			CharManufacturer: []byte("EUROtronic GmbH"),
			CharSoftwareRev:  []byte("0.0.6-sygonix1"),
			CharTemperature:  {38, 42, 32, 44, 0, 2, 10},
			CharStatus:       {0x01, 0x00, 0x00},
			CharBattery:      {64},
		},
		readErr:  map[string]error{},
		writeErr: map[string]error{},
	}
}

func newFakeDevice() (*Device, *fakeTransport, *fakeConn) {
	conn := newFakeConn()
	tr := &fakeTransport{conn: conn}
	dev := New(tr, "AA:BB:CC:DD:EE:FF", 0, nil)
	return dev, tr, conn
}

// ============================================================
// Update Cycle Tests
// ============================================================

func TestDevice_UpdateCycle(t *testing.T) {
	dev, _, conn := newFakeDevice()

	if dev.Available() {
		t.Error("device should start unavailable")
	}

	if err := dev.Update(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !dev.Available() {
		t.Error("device should be available after a clean cycle")
	}
	if got := dev.Temperature(); got == nil || *got != 19.0 {
		t.Errorf("temperature: expected 19.0, got %v", got)
	}
	if got := dev.TargetTemperature(); got == nil || *got != 21.0 {
		t.Errorf("target: expected 21.0, got %v", got)
	}
	if got := dev.BatteryLevel(); got == nil || *got != 64 {
		t.Errorf("battery: expected 64, got %v", got)
	}
	if !dev.ManualMode() {
		t.Error("manual mode should be observed")
	}
	if got := dev.Info().Model; got != "Comet Blue" {
		t.Errorf("model: expected Comet Blue, got %q", got)
	}

	// Authentication is the very first operation on the link.
	if idx := conn.opIndex("write", CharPassword); idx != 0 {
		t.Errorf("PIN write should be the first operation, was at index %d", idx)
	}
	if data := conn.lastWrite(CharPassword); !bytes.Equal(data, []byte{0, 0, 0, 0}) {
		t.Errorf("PIN 0 should encode as four zero bytes, got % X", data)
	}
}

func TestDevice_WritesBeforeReads(t *testing.T) {
	dev, _, conn := newFakeDevice()
	dev.SetTargetTemperature(22.0)
	dev.SetManualMode(true)

	if err := dev.Update(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tempWrite := conn.opIndex("write", CharTemperature)
	tempRead := conn.opIndex("read", CharTemperature)
	if tempWrite == -1 || tempRead == -1 {
		t.Fatal("expected both a temperature write and read")
	}
	if tempWrite > tempRead {
		t.Error("pending writes must flush before the telemetry read-back")
	}

	data := conn.lastWrite(CharTemperature)
	if data[1] != 44 {
		t.Errorf("expected written target 22.0 (44), got %d", data[1])
	}
	if !bytes.Equal(conn.lastWrite(CharStatus), []byte{0x01, 0x00, 0x00}) {
		t.Errorf("expected manual-mode status write, got % X", conn.lastWrite(CharStatus))
	}

	if dev.ShouldUpdate() {
		t.Error("nothing pending after a clean cycle")
	}
}

func TestDevice_InfoFetchedOnce(t *testing.T) {
	dev, _, conn := newFakeDevice()

	for i := 0; i < 3; i++ {
		if err := dev.Update(context.Background()); err != nil {
			t.Fatalf("cycle %d: unexpected error: %v", i, err)
		}
	}

	if n := conn.opCount("read", CharModel); n != 1 {
		t.Errorf("device info should be fetched once, model read %d times", n)
	}
}

func TestDevice_WriteFailureKeepsPending(t *testing.T) {
	dev, _, conn := newFakeDevice()
	conn.writeErr[CharTemperature] = errors.New("att write failed")
	dev.SetTargetTemperature(22.0)

	if err := dev.Update(context.Background()); err == nil {
		t.Fatal("cycle should fail when the write fails")
	}

	if dev.Available() {
		t.Error("failed cycle should leave the device unavailable")
	}
	if !dev.ShouldUpdate() {
		t.Error("pending write must survive the failed cycle")
	}

	// Next cycle retries the same write.
	conn.mu.Lock()
	delete(conn.writeErr, CharTemperature)
	conn.mu.Unlock()

	if err := dev.Update(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data := conn.lastWrite(CharTemperature); data == nil || data[1] != 44 {
		t.Error("retried cycle should write the still-pending setpoint")
	}
}

func TestDevice_CorruptTemperatureFrameSkipped(t *testing.T) {
	dev, _, conn := newFakeDevice()

	if err := dev.Update(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The device occasionally serves an all-sentinel frame; the cycle
	// keeps the previous reading and still completes.
	conn.mu.Lock()
	conn.reads[CharTemperature] = bytes.Repeat([]byte{0x80}, TemperatureTelegramSize)
	conn.mu.Unlock()

	if err := dev.Update(context.Background()); err != nil {
		t.Fatalf("corrupt frame should not fail the cycle: %v", err)
	}
	if !dev.Available() {
		t.Error("device should stay available")
	}
	if got := dev.Temperature(); got == nil || *got != 19.0 {
		t.Errorf("previous reading should survive, got %v", got)
	}
}

func TestDevice_StatusReadFailureAborts(t *testing.T) {
	dev, _, conn := newFakeDevice()
	conn.readErr[CharStatus] = errors.New("att read failed")

	if err := dev.Update(context.Background()); err == nil {
		t.Fatal("status read failure should abort the cycle")
	}
	if dev.Available() {
		t.Error("aborted cycle should leave the device unavailable")
	}
}

func TestDevice_ShouldUpdate(t *testing.T) {
	dev, _, _ := newFakeDevice()

	if !dev.ShouldUpdate() {
		t.Error("unavailable device should want a cycle")
	}

	if err := dev.Update(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dev.ShouldUpdate() {
		t.Error("available device with nothing pending should be idle")
	}

	dev.SetLocked(true)
	if !dev.ShouldUpdate() {
		t.Error("pending change should want a cycle")
	}
}

func TestDevice_SyncTime(t *testing.T) {
	dev, _, conn := newFakeDevice()

	ts := time.Date(2026, time.August, 27, 9, 41, 0, 0, time.Local)
	if err := dev.SyncTime(context.Background(), ts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data := conn.lastWrite(CharDateTime)
	expected := []byte{41, 9, 27, 8, 26}
	if !bytes.Equal(data, expected) {
		t.Errorf("expected clock telegram % X, got % X", expected, data)
	}
}

func TestDevice_SyncTime_RejectsPreEpoch(t *testing.T) {
	dev, tr, _ := newFakeDevice()

	ts := time.Date(1995, time.June, 1, 0, 0, 0, 0, time.UTC)
	if err := dev.SyncTime(context.Background(), ts); !errors.Is(err, ErrInvalidYear) {
		t.Errorf("expected ErrInvalidYear, got %v", err)
	}
	if tr.connectCalls != 0 {
		t.Error("invalid time should be rejected before touching the radio")
	}
}
