// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sys/unix"
)

// Environment variables read by the robot program to find its readiness
// channel.
const (
	ReadyFDEnv     = "LINKAGE_READY_FD"
	ReadySignalEnv = "LINKAGE_READY_SIGNAL"
)

// readyFD is the descriptor number of the first ExtraFiles entry.
const readyFD = 3

var (
	// ErrReadinessTimeout is returned when the robot program does not report
	// ready within the configured bound.
	ErrReadinessTimeout = errors.New("timed out waiting for readiness")
	// ErrReadinessLost is returned when the robot program exits or closes its
	// readiness pipe without reporting ready.
	ErrReadinessLost = errors.New("readiness channel closed before ready")
)

// Readiness produces one Handshake per enable attempt
type Readiness interface {
	Arm() (*Handshake, error)
}

// Handshake is a single armed readiness notification. ExtraFiles and Env are
// handed to the robot process.
type Handshake struct {
	ExtraFiles []*os.File
	Env        []string

	started func()
	wait    func(ctx context.Context) error
	close   func()
}

// Started releases the parent's copies of the child's files. Call it once
// the robot process has been spawned.
func (h *Handshake) Started() {
	if h.started != nil {
		h.started()
	}
}

// Wait blocks until the notification arrives
func (h *Handshake) Wait(ctx context.Context) error {
	return h.wait(ctx)
}

// Close releases the handshake's resources
func (h *Handshake) Close() {
	if h.close != nil {
		h.close()
	}
}

// withTimeout bounds ctx by timeout; zero means no bound.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeoutCause(ctx, timeout, ErrReadinessTimeout)
}

// ============================================================
// Pipe readiness
// ============================================================

// PipeReadiness passes the write end of a pipe to the robot program as fd 3.
// The program writes one byte once its sockets are open.
type PipeReadiness struct {
	Timeout time.Duration
}

// Arm implements Readiness
func (p *PipeReadiness) Arm() (*Handshake, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create readiness pipe: %w", err)
	}

	h := &Handshake{
		ExtraFiles: []*os.File{w},
		Env:        []string{fmt.Sprintf("%s=%d", ReadyFDEnv, readyFD)},
		started:    func() { w.Close() },
		close: func() {
			w.Close()
			r.Close()
		},
	}
	h.wait = func(ctx context.Context) error {
		ctx, cancel := withTimeout(ctx, p.Timeout)
		defer cancel()

		result := make(chan error, 1)
		go func() {
			var b [1]byte
			_, err := io.ReadFull(r, b[:])
			result <- err
		}()

		select {
		case err := <-result:
			if err != nil {
				return fmt.Errorf("%w: %v", ErrReadinessLost, err)
			}
			return nil
		case <-ctx.Done():
			// Unblocks the reader
			r.Close()
			return context.Cause(ctx)
		}
	}
	return h, nil
}

// ============================================================
// Signal readiness
// ============================================================

// SignalReadiness waits for SIGALRM, raised by the robot program at its
// parent once its sockets are open.
//
// Signals are process wide, so only one enable attempt may wait at a time.
type SignalReadiness struct {
	Timeout time.Duration
	signals chan os.Signal
}

// NewSignalReadiness starts listening for SIGALRM
func NewSignalReadiness(timeout time.Duration) *SignalReadiness {
	s := &SignalReadiness{
		Timeout: timeout,
		signals: make(chan os.Signal, 1),
	}
	signal.Notify(s.signals, unix.SIGALRM)
	return s
}

// Stop stops listening for SIGALRM
func (s *SignalReadiness) Stop() {
	signal.Stop(s.signals)
}

// Arm implements Readiness
func (s *SignalReadiness) Arm() (*Handshake, error) {
	// Discard a signal left over from an earlier attempt
	select {
	case <-s.signals:
	default:
	}

	return &Handshake{
		Env: []string{ReadySignalEnv + "=1"},
		wait: func(ctx context.Context) error {
			ctx, cancel := withTimeout(ctx, s.Timeout)
			defer cancel()
			select {
			case <-s.signals:
				return nil
			case <-ctx.Done():
				return context.Cause(ctx)
			}
		},
	}, nil
}

// ============================================================
// Robot side
// ============================================================

// NotifyReady tells the supervising runtime that this process is ready.
// Without a supervisor it does nothing.
func NotifyReady() error {
	if v := os.Getenv(ReadyFDEnv); v != "" {
		var fd int
		if _, err := fmt.Sscanf(v, "%d", &fd); err != nil {
			return fmt.Errorf("invalid %s %q: %w", ReadyFDEnv, v, err)
		}
		f := os.NewFile(uintptr(fd), "ready")
		if f == nil {
			return fmt.Errorf("invalid readiness fd %d", fd)
		}
		defer f.Close()
		if _, err := f.Write([]byte{1}); err != nil {
			return fmt.Errorf("failed to write readiness: %w", err)
		}
		return nil
	}

	if os.Getenv(ReadySignalEnv) != "" {
		if err := unix.Kill(unix.Getppid(), unix.SIGALRM); err != nil {
			return fmt.Errorf("failed to signal parent: %w", err)
		}
	}
	return nil
}
