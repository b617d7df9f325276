// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Caloric Labs

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/caloric/cryostat/pkg/bluez"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	discoverTimeout int
	discoverAll     bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Scan for Comet Blue thermostats",
	Long: `Run an LE scan on the local Bluetooth adapter and list thermostats.

By default only devices advertising the name "Comet Blue" are shown;
rebranded units (Sygonix, Xavax) advertise the same name. Use --all to
list every LE device the adapter sees.

Discovery requires a local adapter and is not available in gateway mode.

Examples:
  cryostat discover
  cryostat discover --timeout 30 --all

Exit codes:
  0 - At least one device found
  1 - No devices found
  2 - Connection error`,
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().IntVar(&discoverTimeout, "timeout", 10, "Scan duration in seconds")
	discoverCmd.Flags().BoolVar(&discoverAll, "all", false, "List all LE devices, not just thermostats")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()

	if viper.GetString("url") != "" {
		fmt.Fprintf(os.Stderr, "discover requires a local adapter; --url is not supported\n")
		os.Exit(2)
	}

	tr, err := bluez.New(viper.GetString("adapter"), log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	name := "Comet Blue"
	if discoverAll {
		name = ""
	}

	fmt.Printf("Scanning for %ds...\n\n", discoverTimeout)

	ctx := context.Background()
	devices, err := tr.Scan(ctx, name, time.Duration(discoverTimeout)*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Scan failed: %v\n", err)
		os.Exit(2)
	}

	if len(devices) == 0 {
		fmt.Printf("No devices found. Thermostats advertise infrequently to save\n")
		fmt.Printf("battery; a longer --timeout often helps.\n")
		os.Exit(1)
	}

	fmt.Printf("%-20s %-6s %s\n", "ADDRESS", "RSSI", "NAME")
	for _, d := range devices {
		fmt.Printf("%-20s %-6d %s\n", d.Address, d.RSSI, d.Name)
	}
	fmt.Printf("\nDevices found: %d\n", len(devices))
	return nil
}
