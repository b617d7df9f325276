// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Caloric Labs

package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	cfgFile string

	// Device flags
	deviceAddress string
	devicePIN     string
	adapterName   string

	// Gateway connection flags
	gatewayURL      string
	gatewayUsername string
	gatewayNoVerify bool

	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "cryostat",
	Short: "Comet Blue Thermostat Controller",
	Long: `Cryostat - A CLI tool for Eurotronic Comet Blue Bluetooth radiator
thermostats (also sold as Sygonix and Xavax).

Provides commands for reading thermostat state, changing setpoints and
modes, synchronizing the device clock, and discovering thermostats in
radio range.

Connection modes:
  BlueZ (default): local Bluetooth adapter, --adapter hci0
  Gateway:         remote BLE gateway, --url ws://host/path [--username user]

For gateway authentication, the password is read from the
CRYOSTAT_GATEWAY_PASSWORD environment variable, or prompted interactively
if not set. The device PIN resolves from --pin, the config file, the
CRYOSTAT_PIN environment variable, or an interactive prompt, in that
order. A --password style flag is intentionally not provided to avoid
leaking credentials in shell history.

Configuration may also come from a YAML file (default ~/.cryostat.yaml):

  address: "AA:BB:CC:DD:EE:FF"
  pin: "0000"
  adapter: hci0`,
	Version: "1.0.0",
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ~/.cryostat.yaml)")
	rootCmd.PersistentFlags().StringVarP(&deviceAddress, "address", "a", "", "Thermostat MAC address")
	rootCmd.PersistentFlags().StringVar(&devicePIN, "pin", "", "Device PIN (factory default 0000)")
	rootCmd.PersistentFlags().StringVar(&adapterName, "adapter", "hci0", "Bluetooth adapter (BlueZ mode)")
	rootCmd.PersistentFlags().StringVarP(&gatewayURL, "url", "u", "", "Gateway URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&gatewayUsername, "username", "", "Username for gateway HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&gatewayNoVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	for _, name := range []string{"address", "pin", "adapter", "url", "username", "no-ssl-verify", "log-level"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
		viper.SetConfigName(".cryostat")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("cryostat")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// A missing config file is fine; flags and env cover everything.
	_ = viper.ReadInConfig()
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds a console logger at the configured level.
func newLogger() *zap.SugaredLogger {
	level := zapcore.WarnLevel
	switch viper.GetString("log-level") {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.RFC3339TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(cfg),
		zapcore.Lock(os.Stderr),
		zap.NewAtomicLevelAt(level),
	)
	return zap.New(core).Sugar()
}
