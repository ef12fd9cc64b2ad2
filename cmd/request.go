// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/linkage/pkg/messaging"
)

var requestTimeout int

var requestCmd = &cobra.Command{
	Use:   "request enable|disable",
	Short: "Send one Enable or Disable request to the backend",
	Long: `Send a single request over the backend /control endpoint and wait for the
acknowledgement, the same way the cockpit frontend does.

Exit codes:
  0 - Acknowledged with the requested state
  1 - Acknowledged with the other state, or timed out
  2 - Connection error`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"enable", "disable"},
	RunE:      runRequest,
}

func init() {
	rootCmd.AddCommand(requestCmd)
	addBackendFlags(requestCmd)
	requestCmd.Flags().IntVar(&requestTimeout, "timeout", 20, "Seconds to wait for the acknowledgement")
}

func parseRequest(arg string) (messaging.FrontendToBackend, error) {
	switch arg {
	case "enable":
		return messaging.FrontendEnable, nil
	case "disable":
		return messaging.FrontendDisable, nil
	}
	return 0, fmt.Errorf("unknown request %q (use enable or disable)", arg)
}

// expectedAck is the acknowledgement that means req succeeded
func expectedAck(req messaging.FrontendToBackend) messaging.BackendToFrontend {
	if req == messaging.FrontendEnable {
		return messaging.BackendEnabled
	}
	return messaging.BackendDisabled
}

func runRequest(cmd *cobra.Command, args []string) error {
	req, err := parseRequest(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenBackendConnection(cfg, "/control")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Request: %s\n", req)

	if err := conn.WriteFrame(req.Frame()); err != nil {
		fmt.Fprintf(os.Stderr, "Send error: %v\n", err)
		os.Exit(2)
	}

	start := time.Now()
	ackCh := make(chan messaging.BackendToFrontend, 1)
	errCh := make(chan error, 1)
	go func() {
		for {
			f, err := conn.ReadFrame()
			if err != nil {
				errCh <- err
				return
			}
			ack, err := messaging.DecodeBackendToFrontend(f)
			if err != nil {
				continue
			}
			ackCh <- ack
			return
		}
	}()

	select {
	case ack := <-ackCh:
		fmt.Printf("Reply: %s (%v)\n", ack, time.Since(start).Round(time.Millisecond))
		if ack != expectedAck(req) {
			fmt.Printf("Result: FAILED (backend reports %s)\n", ack)
			os.Exit(1)
		}
		fmt.Printf("Result: OK\n")
		return nil
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	case <-time.After(time.Duration(requestTimeout) * time.Second):
		fmt.Printf("Result: FAILED (no reply after %ds)\n", requestTimeout)
		os.Exit(1)
	}
	return nil
}
