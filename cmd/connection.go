// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Caloric Labs

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/caloric/cryostat/pkg/bluez"
	"github.com/caloric/cryostat/pkg/cometblue"
	"github.com/caloric/cryostat/pkg/gateway"
)

// promptSecret reads a hidden value from the terminal.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	secretBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		secret, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read input: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(secret), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(secretBytes), nil
}

// getGatewayPassword retrieves the gateway password from the environment
// or prompts the user.
func getGatewayPassword() (string, error) {
	if pw := os.Getenv("CRYOSTAT_GATEWAY_PASSWORD"); pw != "" {
		return pw, nil
	}
	return promptSecret("Gateway password: ")
}

// resolvePIN determines the device PIN. Flag and config file values come
// through viper, which also maps the CRYOSTAT_PIN environment variable;
// when all are empty the user is prompted interactively.
func resolvePIN() (uint32, error) {
	s := viper.GetString("pin")
	if s == "" {
		var err error
		s, err = promptSecret("Device PIN: ")
		if err != nil {
			return 0, err
		}
	}

	pin, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid PIN %q: must be a decimal number", s)
	}
	return uint32(pin), nil
}

// openTransport opens either a local BlueZ or remote gateway transport
// based on flags. The returned closer tears the transport down; it is nil
// for BlueZ, which has no connection of its own to close.
func openTransport(log *zap.SugaredLogger) (cometblue.Transport, func() error, string, error) {
	if url := viper.GetString("url"); url != "" {
		user := viper.GetString("username")
		password := ""
		if user != "" {
			var err error
			password, err = getGatewayPassword()
			if err != nil {
				return nil, nil, "", err
			}
		}

		tr, err := gateway.Dial(url, user, password, viper.GetBool("no-ssl-verify"), log)
		if err != nil {
			return nil, nil, "", err
		}
		return tr, tr.Close, fmt.Sprintf("Gateway: %s", url), nil
	}

	adapter := viper.GetString("adapter")
	tr, err := bluez.New(adapter, log)
	if err != nil {
		return nil, nil, "", err
	}
	return tr, nil, fmt.Sprintf("BlueZ: %s", adapter), nil
}

// newDevice wires up a device from the global flags: resolves the PIN,
// opens the transport, and returns the device plus a cleanup function.
func newDevice(log *zap.SugaredLogger) (*cometblue.Device, func(), error) {
	address := viper.GetString("address")
	if address == "" {
		return nil, nil, fmt.Errorf("no device address: use --address or set it in the config file")
	}

	pin, err := resolvePIN()
	if err != nil {
		return nil, nil, err
	}

	tr, closer, desc, err := openTransport(log)
	if err != nil {
		return nil, nil, err
	}
	log.Debugw("transport ready", "via", desc)

	dev := cometblue.New(tr, address, pin, log)
	cleanup := func() {
		dev.Disconnect()
		if closer != nil {
			_ = closer()
		}
	}
	return dev, cleanup, nil
}
