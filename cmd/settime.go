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

var settimeTimeout int

var settimeCmd = &cobra.Command{
	Use:   "settime",
	Short: "Synchronize the thermostat clock with this machine",
	Long: `Write the current local time to the thermostat.

The device keeps its own clock for the weekly heating schedule, and it
drifts. Run this periodically (the battery change is a good reminder) to
keep scheduled switching accurate. The device stores local time without a
timezone, so run this on a machine in the same timezone as the radiator.

Exit codes:
  0 - Clock written
  1 - Write failed
  2 - Connection or configuration error`,
	RunE: runSettime,
}

func init() {
	rootCmd.AddCommand(settimeCmd)
	settimeCmd.Flags().IntVar(&settimeTimeout, "timeout", 90, "Timeout in seconds")
}

func runSettime(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()

	dev, cleanup, err := newDevice(log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Setup error: %v\n", err)
		os.Exit(2)
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(settimeTimeout)*time.Second)
	defer cancel()

	now := time.Now()
	if err := dev.SyncTime(ctx, now); err != nil {
		fmt.Fprintf(os.Stderr, "Clock write failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Device clock set to %s\n", now.Format("2006-01-02 15:04"))
	return nil
}
