// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package carburetor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"

	"github.com/Thermoquad/linkage/pkg/logging"
	"github.com/Thermoquad/linkage/pkg/messaging"
)

// Server accepts robot program connections one at a time and feeds their
// motor instructions to a Controller. Every channel returns to neutral when
// a connection ends.
type Server struct {
	Controller *Controller
	Stats      *messaging.Statistics
	Logger     *slog.Logger
}

// Serve accepts connections on ln until ctx is done or ln fails
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	logger := s.logger()
	logger.Info("listening", "addr", ln.Addr().String())

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	for n := 0; ; n++ {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.handleConn(ctx, conn, logger.With("conn", n, "peer", conn.RemoteAddr().String()))
	}
}

func (s *Server) logger() *slog.Logger {
	return logging.OrDefault(s.Logger)
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn, logger *slog.Logger) {
	logger.Info("received stream")
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	for {
		f, err := messaging.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && ctx.Err() == nil {
				logger.Warn("read failed", "error", err)
			}
			break
		}
		err = s.handle(f)
		if s.Stats != nil {
			s.Stats.Update(err)
		}
		if err != nil {
			logger.Warn("dropping instruction", "frame", messaging.FormatFrame(f), "error", err)
		}
	}

	logger.Info("connection closed, resetting motors to neutral")
	s.Controller.Neutral()
}

func (s *Server) handle(f messaging.Frame) error {
	instr, err := messaging.DecodeLinkageToCarburetor(f)
	if err != nil {
		return err
	}
	speed, ok := messaging.NewSpeed(instr.Speed)
	if !ok {
		return messaging.ErrSpeedOutOfRange
	}
	return s.Controller.Apply(instr.Channel, speed)
}
