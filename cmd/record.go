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
	recordOutput string
	recordPrint  bool

	replayTo    string
	replaySpeed float64
	replayDry   bool
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the backend's gamepad stream to a file",
	Long: `Subscribe to the backend /gamepad endpoint and append every frame, with its
time offset, to a CBOR recording. Stop with Ctrl+C.

Recordings can be played back with "linkage replay" or "linkage backend --replay".`,
	RunE: runRecord,
}

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Play a gamepad recording into a robot program",
	Long: `Connect to a robot program's cockpit port and send the recorded gamepad
events with their original spacing. Useful for driving a robot without a
cockpit or a gamepad.

With --dry-run the frames are only printed.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(recordCmd)
	addBackendFlags(recordCmd)
	recordCmd.Flags().StringVarP(&recordOutput, "output", "o", "gamepad.cbor", "Recording file")
	recordCmd.Flags().BoolVar(&recordPrint, "print", false, "Print every recorded frame")

	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&replayTo, "to", "", "Robot program address (default from linkage_lib.listen)")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1, "Playback speed multiplier")
	replayCmd.Flags().BoolVar(&replayDry, "dry-run", false, "Print frames instead of sending them")
}

func runRecord(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenBackendConnection(cfg, "/gamepad")
	if err != nil {
		return err
	}
	defer conn.Close()

	f, err := os.Create(recordOutput)
	if err != nil {
		return fmt.Errorf("failed to create recording: %w", err)
	}
	defer f.Close()

	fmt.Printf("Linkage - Gamepad Recorder\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Output: %s\n", recordOutput)
	fmt.Printf("Press Ctrl+C to stop\n\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	context.AfterFunc(ctx, func() { _ = conn.Close() })

	rec := messaging.NewRecorder(f)
	count := 0
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			if ctx.Err() == nil {
				fmt.Printf("Connection closed: %v\n", err)
			}
			break
		}
		if err := rec.Write(frame); err != nil {
			return err
		}
		count++
		if recordPrint {
			fmt.Println(messaging.FormatFrame(frame))
		}
	}

	fmt.Printf("\nRecorded %d frames to %s\n", count, recordOutput)
	return nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src := &cockpit.Replay{
		Player: messaging.NewPlayer(f),
		Speed:  replaySpeed,
	}

	if replayDry {
		return src.Run(ctx, func(ev messaging.GamepadInputEvent) {
			fmt.Println(messaging.FormatFrame(ev.Frame()))
		})
	}

	addr := replayTo
	if addr == "" {
		addr, err = loopbackAddr(cfg.LinkageLib.Listen)
		if err != nil {
			return err
		}
	}
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to robot program at %s: %w", addr, err)
	}
	defer conn.Close()
	fmt.Printf("Replaying %s to %s\n", args[0], addr)

	var writeErr error
	count := 0
	err = src.Run(ctx, func(ev messaging.GamepadInputEvent) {
		if writeErr != nil {
			return
		}
		writeErr = messaging.WriteFrame(conn, ev.Frame())
		count++
	})
	if writeErr != nil {
		return fmt.Errorf("send failed after %d frames: %w", count, writeErr)
	}
	fmt.Printf("Sent %d frames\n", count)
	return err
}

// loopbackAddr turns a wildcard listen address into one that can be dialed
func loopbackAddr(listen string) (string, error) {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", listen, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port), nil
}
