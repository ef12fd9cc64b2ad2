// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package linkage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/Thermoquad/linkage/pkg/messaging"
)

// serveCockpit accepts cockpit connections and applies their gamepad events
// to state until ctx is done.
func serveCockpit(ctx context.Context, ln net.Listener, state *State, logger *slog.Logger) {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("cockpit listener failed", "error", err)
			}
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			handleCockpit(ctx, conn, state, logger.With("peer", conn.RemoteAddr().String()))
		}()
	}
}

func handleCockpit(ctx context.Context, conn net.Conn, state *State, logger *slog.Logger) {
	logger.Info("cockpit connected")
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	for {
		f, err := messaging.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				logger.Warn("cockpit read failed", "error", err)
			}
			logger.Info("cockpit disconnected")
			return
		}
		ev, err := messaging.DecodeCockpitToLinkage(f)
		if err != nil {
			logger.Error("failed to parse bytes into message", "error", err)
			continue
		}
		state.HandleGamepadEvent(ev)
	}
}
