// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Caloric Labs

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caloric/cryostat/pkg/cometblue"
	"github.com/spf13/cobra"
)

var statusTimeout int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Read and display thermostat state",
	Long: `Connect to the thermostat, read its full state, and print it.

A single synchronization cycle is performed: authenticate with the PIN,
read device identity (first connection only), then read temperatures,
status flags, and battery level.

Examples:
  # Local adapter
  cryostat status --address AA:BB:CC:DD:EE:FF --pin 0000

  # Remote gateway
  cryostat status --address AA:BB:CC:DD:EE:FF --url ws://gateway.local/ble

Exit codes:
  0 - State read successfully
  1 - Synchronization failed
  2 - Connection or configuration error`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().IntVar(&statusTimeout, "timeout", 90, "Timeout in seconds for the whole cycle")
}

func runStatus(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()

	dev, cleanup, err := newDevice(log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Setup error: %v\n", err)
		os.Exit(2)
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(statusTimeout)*time.Second)
	defer cancel()

	if err := dev.Update(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Synchronization failed: %v\n", err)
		os.Exit(1)
	}

	printState(dev)
	return nil
}

func printState(dev *cometblue.Device) {
	info := dev.Info()
	fmt.Printf("Device:        %s\n", dev.Address())
	if info.Known() {
		fmt.Printf("Model:         %s (%s)\n", info.Model, info.Manufacturer)
		fmt.Printf("Firmware:      %s (software %s)\n", info.FirmwareRev, info.SoftwareRev)
	}
	fmt.Printf("Battery:       %s\n", fmtPercent(dev.BatteryLevel()))
	fmt.Println()
	fmt.Printf("Temperature:   %s\n", fmtTemp(dev.Temperature()))
	if dev.IsOff() {
		fmt.Printf("Target:        off\n")
	} else {
		fmt.Printf("Target:        %s\n", fmtTemp(dev.TargetTemperature()))
	}
	fmt.Printf("Schedule:      low %s / high %s\n",
		fmtTemp(dev.TargetTemperatureLow()), fmtTemp(dev.TargetTemperatureHigh()))
	fmt.Printf("Offset:        %s\n", fmtTemp(dev.OffsetTemperature()))
	if sens, minutes := dev.WindowOpenConfig(); sens != nil && minutes != nil {
		fmt.Printf("Window detect: sensitivity %d, %d min\n", *sens, *minutes)
	}
	fmt.Println()
	fmt.Printf("Activity:      %s\n", dev.Status())

	var notes []string
	if dev.ManualMode() {
		notes = append(notes, "manual mode")
	} else {
		notes = append(notes, "automatic mode")
	}
	if dev.Locked() {
		notes = append(notes, "child lock")
	}
	if dev.WindowOpen() {
		notes = append(notes, "window open")
	}
	if dev.LowBattery() {
		notes = append(notes, "LOW BATTERY")
	}
	fmt.Printf("Flags:         %s\n", strings.Join(notes, ", "))
}

func fmtTemp(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f°C", *v)
}

func fmtPercent(v *int) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%d%%", *v)
}
