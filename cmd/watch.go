// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Caloric Labs

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caloric/cryostat/pkg/cometblue"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	watchInterval int
	watchTimeout  int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Periodically poll the thermostat and print its state",
	Long: `Poll the thermostat on an interval and print one line per cycle.

The connection is kept open between cycles when the interval is shorter
than the idle disconnect delay; otherwise each cycle reconnects. A failed
cycle is logged and retried on the next tick rather than aborting the
watch. Press Ctrl-C to stop.

Examples:
  # Poll every 5 minutes
  cryostat watch --address AA:BB:CC:DD:EE:FF --interval 300

Exit codes:
  0 - Stopped by signal
  2 - Connection or configuration error`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().IntVar(&watchInterval, "interval", 300, "Seconds between cycles")
	watchCmd.Flags().IntVar(&watchTimeout, "timeout", 90, "Timeout in seconds per cycle")
}

func runWatch(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()

	dev, cleanup, err := newDevice(log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Setup error: %v\n", err)
		os.Exit(2)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Watching %s every %ds (Ctrl-C to stop)\n", dev.Address(), watchInterval)

	ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
	defer ticker.Stop()

	watchCycle(ctx, dev, log)
	for {
		select {
		case <-ctx.Done():
			fmt.Printf("\nStopped.\n")
			return nil
		case <-ticker.C:
			watchCycle(ctx, dev, log)
		}
	}
}

func watchCycle(ctx context.Context, dev *cometblue.Device, log *zap.SugaredLogger) {
	cycleCtx, cancel := context.WithTimeout(ctx, time.Duration(watchTimeout)*time.Second)
	defer cancel()

	if err := dev.Update(cycleCtx); err != nil {
		log.Warnw("cycle failed", "error", err)
		return
	}

	target := "off"
	if !dev.IsOff() {
		target = fmtTemp(dev.TargetTemperature())
	}
	fmt.Printf("%s  temp=%s target=%s battery=%s activity=%s\n",
		time.Now().Format(time.RFC3339),
		fmtTemp(dev.Temperature()), target,
		fmtPercent(dev.BatteryLevel()), dev.Status())
}
