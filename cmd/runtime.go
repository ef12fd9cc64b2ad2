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

	"github.com/spf13/cobra"

	"github.com/Thermoquad/linkage/pkg/config"
	"github.com/Thermoquad/linkage/pkg/runtime"
)

var runtimeCmd = &cobra.Command{
	Use:   "runtime",
	Short: "Start and stop the robot program on request",
	Long: `Listen for the cockpit backend and supervise the robot processes.

An Enable request starts the carburetor and the robot program, waits for the
robot program to report that its sockets are open, and replies Enabled. A
Disable request sends SIGTERM to both, robot program first, kills whichever
has not exited within runtime.stop_timeout_ms, reaps them and replies
Disabled. Closing the backend connection disables.

Readiness is reported over an inherited pipe (fd 3, LINKAGE_READY_FD) by
default, or with SIGALRM when runtime.readiness is "signal".`,
	RunE: runRuntime,
}

func init() {
	rootCmd.AddCommand(runtimeCmd)
}

func runRuntime(cmd *cobra.Command, args []string) error {
	cfg, logger, closer, err := setup("runtime")
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var readiness runtime.Readiness
	switch cfg.Runtime.Readiness {
	case config.ReadinessSignal:
		sig := runtime.NewSignalReadiness(cfg.Runtime.ReadyTimeout())
		defer sig.Stop()
		readiness = sig
	default:
		readiness = &runtime.PipeReadiness{Timeout: cfg.Runtime.ReadyTimeout()}
	}

	ln, err := net.Listen("tcp", cfg.Runtime.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Runtime.Listen, err)
	}

	srv := &runtime.Server{
		Commands: runtime.Commands{
			Carburetor: cfg.Runtime.CarburetorCommand,
			Robot:      cfg.Runtime.RobotCommand,
			Dir:        cfg.Runtime.WorkDir,
		},
		Spawner: &runtime.ExecSpawner{
			Stdout:      os.Stdout,
			Stderr:      os.Stderr,
			StopTimeout: cfg.Runtime.StopTimeout(),
			Logger:      logger,
		},
		Readiness: readiness,
		Logger:    logger,
	}
	return srv.Serve(ctx, ln)
}
