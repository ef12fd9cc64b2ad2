// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/linkage/pkg/carburetor"
	"github.com/Thermoquad/linkage/pkg/messaging"
)

var carburetorDriver string

const statsInterval = 10 * time.Second

var carburetorCmd = &cobra.Command{
	Use:   "carburetor",
	Short: "Drive motor controllers from motor instructions",
	Long: `Accept motor instructions from the robot program and apply them as PWM pulses.

Drivers:
  sysfs    Linux PWM class devices (/sys/class/pwm)
  maestro  Pololu Maestro servo controller over a serial port
  dryrun   log pulse widths only

Every channel is set to neutral when the robot program disconnects, and on
SIGINT or SIGTERM before exiting.`,
	RunE: runCarburetor,
}

func init() {
	rootCmd.AddCommand(carburetorCmd)
	carburetorCmd.Flags().StringVar(&carburetorDriver, "driver", "", "Override the configured driver (sysfs, maestro, dryrun)")
}

func runCarburetor(cmd *cobra.Command, args []string) error {
	cfg, logger, closer, err := setup("carburetor")
	if err != nil {
		return err
	}
	defer closer.Close()

	if carburetorDriver != "" {
		cfg.Carburetor.Driver = carburetorDriver
	}

	driver, err := carburetor.OpenDriver(cfg.Carburetor, logger)
	if err != nil {
		return err
	}
	controller := carburetor.NewController(driver, cfg.Carburetor.Channels, logger)

	ln, err := net.Listen("tcp", cfg.Carburetor.Listen)
	if err != nil {
		_ = controller.Close()
		return fmt.Errorf("failed to listen on %s: %w", cfg.Carburetor.Listen, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats := messaging.NewStatistics()
	srv := &carburetor.Server{Controller: controller, Stats: stats, Logger: logger}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(ctx, ln)
	})
	g.Go(func() error {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				stats.CalculateRates()
				logger.Debug("frame statistics", "stats", stats.String())
			}
		}
	})
	err = g.Wait()

	logger.Info("shutting down", "stats", stats.String())
	if shutdownErr := controller.Shutdown(cfg.Carburetor.NeutralWait()); shutdownErr != nil {
		logger.Error("shutdown failed", "error", shutdownErr)
	}
	return err
}
