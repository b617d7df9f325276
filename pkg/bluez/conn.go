// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caloric Labs

package bluez

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

// Conn is one established GATT link. Characteristic operations hit the
// org.bluez.GattCharacteristic1 interface of the paths resolved at connect
// time.
type Conn struct {
	bus        *dbus.Conn
	devicePath dbus.ObjectPath
	chars      map[string]dbus.ObjectPath
	log        *zap.SugaredLogger

	stop     chan struct{}
	stopOnce sync.Once
}

func (c *Conn) charObject(char string) (dbus.BusObject, error) {
	path, ok := c.chars[strings.ToLower(char)]
	if !ok {
		return nil, fmt.Errorf("characteristic %s not present on device", char)
	}
	return c.bus.Object(busName, path), nil
}

// ReadCharacteristic reads the characteristic value via BlueZ ReadValue.
func (c *Conn) ReadCharacteristic(ctx context.Context, char string) ([]byte, error) {
	obj, err := c.charObject(char)
	if err != nil {
		return nil, err
	}
	options := map[string]interface{}{}
	var value []byte
	if err := obj.CallWithContext(ctx, charInterface+".ReadValue", 0, options).Store(&value); err != nil {
		return nil, fmt.Errorf("ReadValue %s: %w", char, err)
	}
	return value, nil
}

// WriteCharacteristic writes the characteristic value via BlueZ
// WriteValue, as a request (write-with-response) or command.
func (c *Conn) WriteCharacteristic(ctx context.Context, char string, data []byte, withResponse bool) error {
	obj, err := c.charObject(char)
	if err != nil {
		return err
	}
	writeType := "command"
	if withResponse {
		writeType = "request"
	}
	options := map[string]interface{}{"type": writeType}
	if err := obj.CallWithContext(ctx, charInterface+".WriteValue", 0, data, options).Err; err != nil {
		return fmt.Errorf("WriteValue %s: %w", char, err)
	}
	return nil
}

// Disconnect drops the link and stops the property watcher.
func (c *Conn) Disconnect() error {
	c.stopOnce.Do(func() { close(c.stop) })
	obj := c.bus.Object(busName, c.devicePath)
	if err := obj.Call(deviceInterface+".Disconnect", 0).Err; err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	return nil
}

// watchDisconnect subscribes to PropertiesChanged on the device object and
// invokes onDisconnect once when BlueZ reports the link down.
func (c *Conn) watchDisconnect(onDisconnect func()) {
	rule := fmt.Sprintf(
		"type='signal',interface='%s',member='PropertiesChanged',path='%s'",
		propertiesInterface, c.devicePath)
	if err := c.bus.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule).Err; err != nil {
		c.log.Warnw("link watch unavailable", "err", err)
		return
	}

	signals := make(chan *dbus.Signal, 16)
	c.bus.Signal(signals)

	go func() {
		defer func() {
			c.bus.RemoveSignal(signals)
			c.bus.BusObject().Call("org.freedesktop.DBus.RemoveMatch", 0, rule)
		}()
		var fired sync.Once
		for {
			select {
			case <-c.stop:
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				if sig == nil || sig.Path != c.devicePath || len(sig.Body) < 2 {
					continue
				}
				iface, _ := sig.Body[0].(string)
				if iface != deviceInterface {
					continue
				}
				changed, ok := sig.Body[1].(map[string]dbus.Variant)
				if !ok {
					continue
				}
				if connected, ok := changed["Connected"].Value().(bool); ok && !connected {
					if onDisconnect != nil {
						fired.Do(onDisconnect)
					}
					return
				}
			}
		}
	}()
}
