// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Caloric Labs

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	setTemp     float64
	setLow      float64
	setHigh     float64
	setOffset   float64
	setManual   bool
	setAuto     bool
	setOff      bool
	setOn       bool
	setLock     bool
	setUnlock   bool
	setWindow   int
	setMinutes  int
	setTimeoutS int
)

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Change thermostat setpoints and modes",
	Long: `Queue one or more changes, write them to the thermostat, and read the
resulting state back.

All requested changes are sent in a single connection. Temperatures are
in degrees Celsius with 0.5 degree resolution; the device rounds values
between steps. Window detection sensitivity ranges from 0 (off) to 4
(most sensitive).

Examples:
  # Set the target temperature
  cryostat set --address AA:BB:CC:DD:EE:FF --temp 21.5

  # Configure the scheduled temperatures and switch to automatic mode
  cryostat set --address AA:BB:CC:DD:EE:FF --low 16 --high 22 --auto

  # Turn heating off (antifrost only)
  cryostat set --address AA:BB:CC:DD:EE:FF --off

Exit codes:
  0 - Changes written and confirmed
  1 - Synchronization failed
  2 - Connection or configuration error`,
	RunE: runSet,
}

func init() {
	rootCmd.AddCommand(setCmd)
	setCmd.Flags().Float64Var(&setTemp, "temp", 0, "Target temperature (°C)")
	setCmd.Flags().Float64Var(&setLow, "low", 0, "Scheduled low temperature (°C)")
	setCmd.Flags().Float64Var(&setHigh, "high", 0, "Scheduled high temperature (°C)")
	setCmd.Flags().Float64Var(&setOffset, "offset", 0, "Calibration offset (°C)")
	setCmd.Flags().BoolVar(&setManual, "manual", false, "Enable manual mode")
	setCmd.Flags().BoolVar(&setAuto, "auto", false, "Enable automatic (scheduled) mode")
	setCmd.Flags().BoolVar(&setOff, "off", false, "Turn heating off (antifrost only)")
	setCmd.Flags().BoolVar(&setOn, "on", false, "Turn heating back on")
	setCmd.Flags().BoolVar(&setLock, "lock", false, "Enable the child lock")
	setCmd.Flags().BoolVar(&setUnlock, "unlock", false, "Disable the child lock")
	setCmd.Flags().IntVar(&setWindow, "window-sensitivity", 0, "Open-window detection sensitivity (0-4)")
	setCmd.Flags().IntVar(&setMinutes, "window-minutes", 0, "Open-window lowering duration in minutes")
	setCmd.Flags().IntVar(&setTimeoutS, "timeout", 90, "Timeout in seconds for the whole cycle")
}

func runSet(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	if setManual && setAuto {
		return fmt.Errorf("--manual and --auto are mutually exclusive")
	}
	if setOff && setOn {
		return fmt.Errorf("--off and --on are mutually exclusive")
	}
	if setLock && setUnlock {
		return fmt.Errorf("--lock and --unlock are mutually exclusive")
	}
	if flags.Changed("window-sensitivity") != flags.Changed("window-minutes") {
		return fmt.Errorf("--window-sensitivity and --window-minutes must be given together")
	}
	if flags.Changed("window-sensitivity") && (setWindow < 0 || setWindow > 4) {
		return fmt.Errorf("window sensitivity must be between 0 and 4")
	}

	log := newLogger()
	defer log.Sync()

	dev, cleanup, err := newDevice(log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Setup error: %v\n", err)
		os.Exit(2)
	}
	defer cleanup()

	changed := false
	if flags.Changed("temp") {
		dev.SetTargetTemperature(setTemp)
		changed = true
	}
	if flags.Changed("low") {
		dev.SetTargetTemperatureLow(setLow)
		changed = true
	}
	if flags.Changed("high") {
		dev.SetTargetTemperatureHigh(setHigh)
		changed = true
	}
	if flags.Changed("offset") {
		dev.SetOffsetTemperature(setOffset)
		changed = true
	}
	if flags.Changed("window-sensitivity") {
		dev.SetWindowOpenConfig(setWindow, setMinutes)
		changed = true
	}
	if setManual || setAuto {
		dev.SetManualMode(setManual)
		changed = true
	}
	if setLock || setUnlock {
		dev.SetLocked(setLock)
		changed = true
	}
	if setOff || setOn {
		dev.SetOff(setOff)
		changed = true
	}

	if !changed {
		return fmt.Errorf("nothing to set: give at least one change flag")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(setTimeoutS)*time.Second)
	defer cancel()

	if err := dev.Update(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Synchronization failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Changes written.\n\n")
	printState(dev)
	return nil
}
