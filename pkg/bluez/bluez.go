// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caloric Labs

// Package bluez talks to thermostats through the BlueZ daemon's D-Bus GATT
// API. It implements the transport contract consumed by pkg/cometblue.
package bluez

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/caloric/cryostat/pkg/cometblue"
)

const (
	busName             = "org.bluez"
	adapterInterface    = "org.bluez.Adapter1"
	deviceInterface     = "org.bluez.Device1"
	charInterface       = "org.bluez.GattCharacteristic1"
	propertiesInterface = "org.freedesktop.DBus.Properties"
	objectManager       = "org.freedesktop.DBus.ObjectManager"
)

// scanPollInterval is how often discovery polls the object tree for the
// target device while a scan is running.
const scanPollInterval = time.Second

// connectSettleTimeout bounds the wait for Connected and ServicesResolved
// after Device1.Connect returns.
const connectSettleTimeout = 30 * time.Second

// Transport resolves and connects devices through one BlueZ adapter.
type Transport struct {
	conn    *dbus.Conn
	adapter dbus.ObjectPath
	log     *zap.SugaredLogger

	// discoveryMu serializes StartDiscovery/StopDiscovery; BlueZ rejects
	// concurrent discovery on the same adapter.
	discoveryMu sync.Mutex
}

// New connects to the system bus and binds the named adapter ("hci0" when
// empty).
func New(adapter string, log *zap.SugaredLogger) (*Transport, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if adapter == "" {
		adapter = "hci0"
	}
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("system bus: %w", err)
	}
	return &Transport{
		conn:    conn,
		adapter: dbus.ObjectPath("/org/bluez/" + adapter),
		log:     log,
	}, nil
}

// devicePath maps a MAC address onto the BlueZ object path naming scheme.
func devicePath(adapter dbus.ObjectPath, address string) dbus.ObjectPath {
	return dbus.ObjectPath(string(adapter) + "/dev_" + strings.ReplaceAll(strings.ToUpper(address), ":", "_"))
}

// FindDevice resolves address to its BlueZ object path. A device already
// known to the daemon (paired or previously seen) resolves without radio
// traffic; otherwise an LE scan runs until the device shows up or the
// timeout elapses.
func (t *Transport) FindDevice(ctx context.Context, address string, timeout time.Duration) (cometblue.DeviceHandle, error) {
	path := devicePath(t.adapter, address)

	if t.deviceKnown(path) {
		return path, nil
	}

	t.log.Debugw("device not cached, scanning", "address", address)
	found, err := t.scanFor(ctx, timeout, true, func(props map[string]dbus.Variant) bool {
		addr, _ := props["Address"].Value().(string)
		return strings.EqualFold(addr, address)
	})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("no advertisement from %s", address)
	}
	return path, nil
}

// Connect establishes the GATT link, waits for service resolution and maps
// characteristic UUIDs to their object paths. onDisconnect fires once from
// a watcher goroutine when BlueZ reports Connected=false.
func (t *Transport) Connect(ctx context.Context, handle cometblue.DeviceHandle, onDisconnect func()) (cometblue.Conn, error) {
	path, ok := handle.(dbus.ObjectPath)
	if !ok {
		return nil, fmt.Errorf("bad device handle %T", handle)
	}
	obj := t.conn.Object(busName, path)

	var connected bool
	if err := obj.CallWithContext(ctx, propertiesInterface+".Get", 0, deviceInterface, "Connected").Store(&connected); err != nil {
		return nil, fmt.Errorf("get device properties: %w", err)
	}

	if !connected {
		if err := obj.CallWithContext(ctx, deviceInterface+".Connect", 0).Err; err != nil {
			// Another BlueZ client may have started the connect; wait for
			// it below instead of failing.
			if !strings.Contains(err.Error(), "InProgress") {
				return nil, fmt.Errorf("connect: %w", err)
			}
		}
	}

	if err := t.waitDeviceReady(ctx, obj); err != nil {
		return nil, err
	}

	chars, err := t.mapCharacteristics(ctx, path)
	if err != nil {
		return nil, err
	}

	c := &Conn{
		bus:        t.conn,
		devicePath: path,
		chars:      chars,
		log:        t.log,
		stop:       make(chan struct{}),
	}
	c.watchDisconnect(onDisconnect)
	t.log.Debugw("gatt link established", "path", string(path), "characteristics", len(chars))
	return c, nil
}

func (t *Transport) deviceKnown(path dbus.ObjectPath) bool {
	obj := t.conn.Object(busName, path)
	var props map[string]dbus.Variant
	return obj.Call(propertiesInterface+".GetAll", 0, deviceInterface).Store(&props) == nil
}

// waitDeviceReady polls for Connected and ServicesResolved. BlueZ resolves
// services asynchronously after the link comes up.
func (t *Transport) waitDeviceReady(ctx context.Context, obj dbus.BusObject) error {
	deadline := time.Now().Add(connectSettleTimeout)
	for {
		var connected, resolved bool
		if err := obj.CallWithContext(ctx, propertiesInterface+".Get", 0, deviceInterface, "Connected").Store(&connected); err == nil && connected {
			if err := obj.CallWithContext(ctx, propertiesInterface+".Get", 0, deviceInterface, "ServicesResolved").Store(&resolved); err == nil && resolved {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for device to become ready")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(scanPollInterval):
		}
	}
}

// mapCharacteristics walks the managed object tree and indexes every GATT
// characteristic under the device by lowercased UUID.
func (t *Transport) mapCharacteristics(ctx context.Context, device dbus.ObjectPath) (map[string]dbus.ObjectPath, error) {
	objects := make(map[dbus.ObjectPath]map[string]map[string]dbus.Variant)
	root := t.conn.Object(busName, "/")
	if err := root.CallWithContext(ctx, objectManager+".GetManagedObjects", 0).Store(&objects); err != nil {
		return nil, fmt.Errorf("get managed objects: %w", err)
	}

	chars := make(map[string]dbus.ObjectPath)
	prefix := string(device) + "/service"
	for path, interfaces := range objects {
		if !strings.HasPrefix(string(path), prefix) {
			continue
		}
		charIface, ok := interfaces[charInterface]
		if !ok {
			continue
		}
		uuidVariant, ok := charIface["UUID"]
		if !ok {
			continue
		}
		if uuid, ok := uuidVariant.Value().(string); ok {
			chars[strings.ToLower(uuid)] = path
		}
	}
	if len(chars) == 0 {
		return nil, fmt.Errorf("no GATT characteristics under %s", device)
	}
	return chars, nil
}

// DiscoveredDevice describes one advertisement seen during a scan.
type DiscoveredDevice struct {
	Address string
	Name    string
	RSSI    int16
}

// Scan runs an LE discovery for the full given duration and returns every
// device whose advertised name matches name ("" matches all).
func (t *Transport) Scan(ctx context.Context, name string, timeout time.Duration) ([]DiscoveredDevice, error) {
	matches, err := t.scanFor(ctx, timeout, false, func(props map[string]dbus.Variant) bool {
		if name == "" {
			return true
		}
		n, _ := props["Name"].Value().(string)
		return n == name
	})
	if err != nil {
		return nil, err
	}

	out := make([]DiscoveredDevice, 0, len(matches))
	for _, props := range matches {
		d := DiscoveredDevice{}
		d.Address, _ = props["Address"].Value().(string)
		d.Name, _ = props["Name"].Value().(string)
		if rssi, ok := props["RSSI"].Value().(int16); ok {
			d.RSSI = rssi
		}
		out = append(out, d)
	}
	return out, nil
}

// scanFor runs an LE discovery, polling the object tree and collecting the
// Device1 property sets accepted by match. With stopEarly set it returns
// as soon as anything matches; otherwise it scans the full window.
func (t *Transport) scanFor(ctx context.Context, timeout time.Duration, stopEarly bool, match func(map[string]dbus.Variant) bool) (map[string]map[string]dbus.Variant, error) {
	t.discoveryMu.Lock()
	defer t.discoveryMu.Unlock()

	adapter := t.conn.Object(busName, t.adapter)

	filter := map[string]interface{}{
		"Transport":     "le",
		"DuplicateData": false,
	}
	if err := adapter.Call(adapterInterface+".SetDiscoveryFilter", 0, filter).Err; err != nil {
		// Some adapters reject filters; scan unfiltered.
		t.log.Debugw("discovery filter rejected", "err", err)
	}
	if err := adapter.Call(adapterInterface+".StartDiscovery", 0).Err; err != nil {
		return nil, fmt.Errorf("start discovery: %w", err)
	}
	defer func() {
		if err := adapter.Call(adapterInterface+".StopDiscovery", 0).Err; err != nil {
			t.log.Debugw("stop discovery", "err", err)
		}
	}()

	deadline := time.Now().Add(timeout)
	matches := make(map[string]map[string]dbus.Variant)
	for {
		objects := make(map[dbus.ObjectPath]map[string]map[string]dbus.Variant)
		root := t.conn.Object(busName, "/")
		if err := root.CallWithContext(ctx, objectManager+".GetManagedObjects", 0).Store(&objects); err != nil {
			return nil, fmt.Errorf("get managed objects: %w", err)
		}
		for path, interfaces := range objects {
			if !strings.HasPrefix(string(path), string(t.adapter)+"/dev_") {
				continue
			}
			props, ok := interfaces[deviceInterface]
			if !ok || !match(props) {
				continue
			}
			if addr, ok := props["Address"].Value().(string); ok {
				matches[addr] = props
			}
		}
		if (stopEarly && len(matches) > 0) || time.Now().After(deadline) {
			return matches, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(scanPollInterval):
		}
	}
}
