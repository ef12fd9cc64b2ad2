// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package linkage

import (
	"io"
	"log/slog"

	"github.com/Thermoquad/linkage/pkg/messaging"
)

// carburetorQueueSize bounds instructions waiting for the carburetor link
const carburetorQueueSize = 1024

// forwardToCarburetor writes every instruction received on instructions to
// w, in order, until instructions is closed.
func forwardToCarburetor(w io.Writer, instructions <-chan messaging.MotorInstruction, logger *slog.Logger) {
	for instr := range instructions {
		if err := messaging.WriteFrame(w, instr.Frame()); err != nil {
			logger.Error("failed to write message to carburetor stream", "channel", instr.Channel, "error", err)
		}
	}
}
