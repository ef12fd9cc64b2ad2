// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cockpit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Thermoquad/linkage/pkg/logging"
	"github.com/Thermoquad/linkage/pkg/messaging"
)

// Replay plays back a recorded gamepad stream, keeping the original spacing
// between events. Frames that are not gamepad events are skipped.
type Replay struct {
	Player *messaging.Player
	// Speed scales playback time. Zero means real time.
	Speed  float64
	Logger *slog.Logger
}

// Run implements Source. It returns nil once the recording is exhausted.
func (r *Replay) Run(ctx context.Context, emit func(messaging.GamepadInputEvent)) error {
	logger := logging.OrDefault(r.Logger)
	speed := r.Speed
	if speed <= 0 {
		speed = 1
	}

	start := time.Now()
	count := 0
	for {
		f, offset, err := r.Player.Next()
		if errors.Is(err, io.EOF) {
			logger.Info("replay finished", "events", count)
			return nil
		}
		if err != nil {
			return fmt.Errorf("replay: %w", err)
		}

		ev, err := messaging.DecodeCockpitToLinkage(f)
		if err != nil {
			logger.Debug("skipping recorded frame", "frame", messaging.FormatFrame(f))
			continue
		}

		due := start.Add(time.Duration(float64(offset) / speed))
		if wait := time.Until(due); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return nil
		}

		emit(ev)
		count++
	}
}
