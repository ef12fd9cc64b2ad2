// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/linkage/pkg/config"
	"github.com/Thermoquad/linkage/pkg/logging"
)

var (
	// Configuration flags
	configPath string

	// Logging flags
	logLevel  string
	logFormat string
	logFile   string
)

var rootCmd = &cobra.Command{
	Use:   "linkage",
	Short: "Networked robot control",
	Long: `Linkage - Drive a robot from a gamepad over the network.

One binary carries every process role:

  runtime     starts and stops the robot program on request from the backend
  carburetor  turns motor instructions into PWM pulses
  backend     relays the cockpit frontend and streams gamepad input
  tankdrive   example robot program driving two motors from the sticks

Plus operator tools: monitor, request, decode, record and replay.

Configuration is read from --config, or from the default path when it
exists. LINKAGE_* environment variables override file values.`,
	Version:       "0.2.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (.toml, .yaml or .yml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write logs to this file, rotated")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the configuration and applies logging flags on top
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if logFile != "" {
		cfg.Logging.File = logFile
	}
	return cfg, nil
}

// setup loads the configuration and builds the logger for a daemon
// command. The returned closer flushes the log file.
func setup(role string) (*config.Config, *slog.Logger, io.Closer, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, closer, err := logging.New(logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	logger = logger.With("role", role)
	slog.SetDefault(logger)
	return cfg, logger, closer, nil
}
