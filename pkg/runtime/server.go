// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package runtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"

	"github.com/google/uuid"

	"github.com/Thermoquad/linkage/pkg/logging"
	"github.com/Thermoquad/linkage/pkg/messaging"
)

// Server accepts backend connections and runs one Supervisor per
// connection. Connections are served one at a time, so at most one set of
// children exists.
type Server struct {
	Commands  Commands
	Spawner   Spawner
	Readiness Readiness
	Logger    *slog.Logger
}

// Serve accepts connections on ln until ctx is done or ln fails
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	logger := s.logger()
	logger.Info("started listening", "addr", ln.Addr().String())

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.handleConn(ctx, conn)
	}
}

func (s *Server) logger() *slog.Logger {
	return logging.OrDefault(s.Logger)
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	logger := s.logger().With("session", uuid.NewString(), "peer", conn.RemoteAddr().String())
	logger.Info("connection established")

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	sup := NewSupervisor(s.Commands, s.Spawner, s.Readiness, logger)
	defer func() {
		if err := sup.Close(); err != nil {
			logger.Error("failed to stop children", "error", err)
		}
		logger.Info("connection closed")
	}()

	for {
		f, err := messaging.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				logger.Warn("read failed", "error", err)
			}
			return
		}

		msg, err := messaging.DecodeBackendToRuntime(f)
		if err != nil {
			logger.Warn("unknown message", "error", err)
			continue
		}
		logger.Info("received message", "message", msg.String(), "frame", f.String())

		if err := s.apply(ctx, sup, msg); err != nil {
			logger.Error("request failed", "message", msg.String(), "error", err)
		}

		reply := messaging.RuntimeDisabled
		if sup.State() == Enabled {
			reply = messaging.RuntimeEnabled
		}
		if err := messaging.WriteFrame(conn, reply.Frame()); err != nil {
			logger.Warn("failed to send reply", "reply", reply.String(), "error", err)
			return
		}
	}
}

func (s *Server) apply(ctx context.Context, sup *Supervisor, msg messaging.BackendToRuntime) error {
	switch msg {
	case messaging.RuntimeEnable:
		return sup.Enable(ctx)
	case messaging.RuntimeDisable:
		return sup.Disable()
	}
	return nil
}
