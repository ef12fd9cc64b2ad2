// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Thermoquad/linkage/pkg/linkage"
	"github.com/Thermoquad/linkage/pkg/linkage/gamepad"
)

var (
	tankLeft  uint8
	tankRight uint8
)

var tankdriveCmd = &cobra.Command{
	Use:   "tankdrive",
	Short: "Example robot program: two motors driven by the sticks",
	Long: `Run a robot with one tank-drive subsystem.

The primary gamepad's left stick Y drives the left channel and its right
stick Y drives the right channel. Started by the runtime, the program
reports readiness once it is listening for the cockpit and connected to the
carburetor, and shuts down on SIGINT, SIGTERM or end of stdin.`,
	RunE: runTankdrive,
}

func init() {
	rootCmd.AddCommand(tankdriveCmd)
	tankdriveCmd.Flags().Uint8Var(&tankLeft, "left", 0, "Left motor channel")
	tankdriveCmd.Flags().Uint8Var(&tankRight, "right", 1, "Right motor channel")
}

func runTankdrive(cmd *cobra.Command, args []string) error {
	cfg, logger, closer, err := setup("tankdrive")
	if err != nil {
		return err
	}
	defer closer.Close()

	opts := linkage.Options{
		CockpitListen:  cfg.LinkageLib.Listen,
		CarburetorAddr: cfg.LinkageLib.CarburetorAddr,
		TickPeriod:     cfg.LinkageLib.TickPeriod(),
		NeutralWait:    cfg.LinkageLib.NeutralWait(),
		Logger:         logger,
	}
	// The runtime holds our stdin open and closes it to stop us
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		opts.Stdin = os.Stdin
	}

	robot := linkage.NewRobot(opts).AddSubsystem(&linkage.TankDrive{
		Gamepad: gamepad.Primary,
		Left:    tankLeft,
		Right:   tankRight,
	})
	return robot.Run(context.Background())
}
