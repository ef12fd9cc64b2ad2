// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/linkage/pkg/messaging"
)

var decodeStats bool

var decodeCmd = &cobra.Command{
	Use:   "decode [frame...]",
	Short: "Decode frames in human-readable format",
	Long: `Decode 8-byte Linkage frames given as hex and print them.

Frames are taken from the arguments, or one per line from stdin when no
arguments are given. Spaces, colons and a 0x prefix are ignored, so all of
these work:

  linkage decode 40020000 3f31b717
  linkage decode 0x40:02:00:00:3f:31:b7:17
  echo 2000000002010402 | linkage decode`,
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().BoolVar(&decodeStats, "stats", false, "Print frame statistics at the end")
}

// parseHexFrame parses one frame written as hex
func parseHexFrame(s string) (messaging.Frame, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	s = strings.NewReplacer(" ", "", ":", "", "0x", "").Replace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return messaging.Frame{}, fmt.Errorf("invalid hex: %w", err)
	}
	return messaging.FrameFromBytes(b)
}

func runDecode(cmd *cobra.Command, args []string) error {
	stats := messaging.NewStatistics()
	out := cmd.OutOrStdout()

	if len(args) > 0 {
		decodeLine(out, strings.Join(args, ""), stats)
	} else {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
				continue
			}
			decodeLine(out, line, stats)
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read error: %w", err)
		}
	}

	if decodeStats {
		fmt.Fprintf(out, "\n%s", stats)
	}
	return nil
}

func decodeLine(out io.Writer, line string, stats *messaging.Statistics) {
	f, err := parseHexFrame(line)
	if err != nil {
		stats.Update(err)
		fmt.Fprintf(out, "[ERROR] %v\n", err)
		return
	}
	_, err = messaging.Decode(f)
	stats.Update(err)
	fmt.Fprintln(out, messaging.FormatFrame(f))
}
