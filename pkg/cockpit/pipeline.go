// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cockpit

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/Thermoquad/linkage/pkg/logging"
	"github.com/Thermoquad/linkage/pkg/messaging"
)

const defaultCaptureQueueSize = 256

// Capture runs the capture sources and queues every event they produce,
// in order, for the linkage link. Each event is also published to the hub
// when one is set.
type Capture struct {
	frames chan messaging.Frame
	hub    *Hub
}

// NewCapture creates a capture queue of the given size
func NewCapture(size int, hub *Hub) *Capture {
	if size <= 0 {
		size = defaultCaptureQueueSize
	}
	return &Capture{
		frames: make(chan messaging.Frame, size),
		hub:    hub,
	}
}

// Frames is the queue drained by the linkage link
func (c *Capture) Frames() <-chan messaging.Frame {
	return c.frames
}

// Run runs src until it returns or ctx is done. Events are queued in the
// order src produces them; a full queue blocks src rather than losing one.
func (c *Capture) Run(ctx context.Context, src Source) error {
	return src.Run(ctx, func(ev messaging.GamepadInputEvent) {
		f := ev.Frame()
		if c.hub != nil {
			c.hub.Publish(f)
		}
		select {
		case c.frames <- f:
		case <-ctx.Done():
		}
	})
}

// Link is the connection from the backend to the robot program. Frames
// drained while no connection is open are discarded.
type Link struct {
	mu          sync.Mutex
	conn        net.Conn
	dialTimeout time.Duration
	logger      *slog.Logger
}

// NewLink creates a disconnected link
func NewLink(dialTimeout time.Duration, logger *slog.Logger) *Link {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	logger = logging.OrDefault(logger)
	return &Link{dialTimeout: dialTimeout, logger: logger}
}

// Connect opens the connection to addr, replacing any previous one
func (l *Link) Connect(addr string) error {
	conn, err := net.DialTimeout("tcp", addr, l.dialTimeout)
	if err != nil {
		return fmt.Errorf("connect to linkage at %s: %w", addr, err)
	}

	l.mu.Lock()
	old := l.conn
	l.conn = conn
	l.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	l.logger.Info("connected to linkage", "addr", addr)
	return nil
}

// Disconnect closes the connection if one is open
func (l *Link) Disconnect() {
	l.mu.Lock()
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
		l.logger.Info("disconnected from linkage")
	}
}

// Connected reports whether a connection is open
func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

// Run writes frames to the open connection in receipt order until frames
// is closed or ctx is done. A failed write drops the connection.
func (l *Link) Run(ctx context.Context, frames <-chan messaging.Frame) {
	defer l.Disconnect()
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			l.write(f)
		}
	}
}

func (l *Link) write(f messaging.Frame) {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return
	}

	if err := messaging.WriteFrame(conn, f); err != nil {
		l.logger.Error("linkage write failed", "error", err)
		l.mu.Lock()
		if l.conn == conn {
			l.conn = nil
		}
		l.mu.Unlock()
		_ = conn.Close()
		return
	}
	l.logger.Debug("sent frame", "frame", messaging.FormatFrame(f))
}
