// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Caloric Labs
//
// Cryostat - Comet Blue Thermostat Controller
//
// A CLI tool for reading and controlling Eurotronic Comet Blue Bluetooth
// radiator thermostats.

package main

import (
	"os"

	"github.com/caloric/cryostat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
