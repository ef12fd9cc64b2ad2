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

	"github.com/Thermoquad/linkage/pkg/cockpit"
	"github.com/Thermoquad/linkage/pkg/messaging"
)

var (
	backendReplay      string
	backendReplaySpeed float64
	backendNoJoystick  bool
)

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Relay the cockpit frontend and stream gamepad input",
	Long: `Serve the cockpit frontend over WebSocket and capture local gamepads.

Endpoints:
  /control  binary 8-byte frames: Enable/Disable in, Enabled/Disabled out
  /gamepad  every captured gamepad frame, for viewers

Enable and Disable are relayed to the runtime. Once the runtime reports
Enabled, captured gamepad events are streamed to the robot program.

Gamepads are read from the Linux joystick devices in backend.joystick_devices.
--replay plays back a recording made with "linkage record" instead of, or in
addition to, live devices.`,
	RunE: runBackend,
}

func init() {
	rootCmd.AddCommand(backendCmd)
	backendCmd.Flags().StringVar(&backendReplay, "replay", "", "Play back a gamepad recording as an extra capture source")
	backendCmd.Flags().Float64Var(&backendReplaySpeed, "replay-speed", 1, "Playback speed multiplier for --replay")
	backendCmd.Flags().BoolVar(&backendNoJoystick, "no-joystick", false, "Do not open joystick devices")
}

func runBackend(cmd *cobra.Command, args []string) error {
	cfg, logger, closer, err := setup("backend")
	if err != nil {
		return err
	}
	defer closer.Close()

	ids := cockpit.NewIDMap()
	var sources []cockpit.Source
	if !backendNoJoystick {
		for _, path := range cfg.Backend.JoystickDevices {
			sources = append(sources, &cockpit.Joystick{Path: path, IDs: ids, Logger: logger})
		}
	}
	if backendReplay != "" {
		f, err := os.Open(backendReplay)
		if err != nil {
			return fmt.Errorf("failed to open recording: %w", err)
		}
		defer f.Close()
		sources = append(sources, &cockpit.Replay{
			Player: messaging.NewPlayer(f),
			Speed:  backendReplaySpeed,
			Logger: logger,
		})
	}
	if len(sources) == 0 {
		logger.Warn("no capture sources, gamepad input disabled")
	}

	ln, err := net.Listen("tcp", cfg.Backend.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Backend.Listen, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return cockpit.NewBackend(cfg.Backend, logger).Run(ctx, ln, sources...)
}
