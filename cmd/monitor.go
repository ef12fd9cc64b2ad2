// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Thermoquad/linkage/pkg/messaging"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive operator console",
	Long: `Enable and disable the robot and watch gamepad input from a terminal UI.

The monitor connects to both backend endpoints: /control for Enable and
Disable requests, and /gamepad for the live capture stream, which it applies
to a local gamepad model to show every connected controller.

Keys:
  e        request Enable
  d, space request Disable
  ↑/↓      select a gamepad
  q        quit`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	addBackendFlags(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("monitor needs a terminal")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	control, connInfo, err := OpenBackendConnection(cfg, "/control")
	if err != nil {
		return err
	}
	defer control.Close()

	pads, _, err := OpenBackendConnection(cfg, "/gamepad")
	if err != nil {
		return err
	}
	defer pads.Close()

	m := initialMonitorModel(connInfo, control.WriteFrame)
	p := tea.NewProgram(m, tea.WithAltScreen())

	go readControl(p, control)
	go readGamepads(p, pads)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// readControl forwards acknowledgements to the TUI
func readControl(p *tea.Program, conn *FrameConn) {
	for {
		f, err := conn.ReadFrame()
		if err != nil {
			p.Send(linkLostMsg{endpoint: "/control", err: err})
			return
		}
		ack, err := messaging.DecodeBackendToFrontend(f)
		if err != nil {
			continue
		}
		p.Send(ackMsg{ack: ack})
	}
}

// readGamepads forwards the capture stream to the TUI
func readGamepads(p *tea.Program, conn *FrameConn) {
	for {
		f, err := conn.ReadFrame()
		if err != nil {
			p.Send(linkLostMsg{endpoint: "/gamepad", err: err})
			return
		}
		p.Send(gamepadFrameMsg{frame: f})
	}
}
