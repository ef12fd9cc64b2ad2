// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cockpit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/linkage/pkg/config"
	"github.com/Thermoquad/linkage/pkg/logging"
	"github.com/Thermoquad/linkage/pkg/messaging"
)

// ErrUnexpectedReply is returned when the runtime answers a request with
// the opposite state. The runtime link is closed when this happens.
var ErrUnexpectedReply = errors.New("unexpected reply from runtime")

const (
	runtimeDialAttempts = 3
	runtimeDialBackoff  = 200 * time.Millisecond
	dialTimeout         = 5 * time.Second
)

// Backend links the cockpit frontend to the runtime and the robot program.
// Enable and disable requests arrive over the /control websocket and are
// relayed to the runtime; once the runtime reports Enabled, captured
// gamepad events are streamed to the robot. Every captured event is also
// broadcast to /gamepad viewers.
type Backend struct {
	cfg     config.BackendConfig
	hub     *Hub
	capture *Capture
	link    *Link
	logger  *slog.Logger

	// mu serializes requests to the runtime
	mu      sync.Mutex
	runtime net.Conn

	upgrader websocket.Upgrader
}

// NewBackend creates a backend from its configuration section
func NewBackend(cfg config.BackendConfig, logger *slog.Logger) *Backend {
	logger = logging.OrDefault(logger)
	hub := NewHub()
	return &Backend{
		cfg:     cfg,
		hub:     hub,
		capture: NewCapture(cfg.CaptureQueueSize, hub),
		link:    NewLink(dialTimeout, logger),
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
	}
}

// Hub returns the viewer broadcast hub
func (b *Backend) Hub() *Hub {
	return b.hub
}

// Link returns the connection to the robot program
func (b *Backend) Link() *Link {
	return b.link
}

// Run serves websocket clients on ln and captures from every source until
// ctx is done.
func (b *Backend) Run(ctx context.Context, ln net.Listener, sources ...Source) error {
	defer b.closeRuntime()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b.hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		b.link.Run(ctx, b.capture.Frames())
		return nil
	})
	for _, src := range sources {
		src := src
		g.Go(func() error {
			return b.capture.Run(ctx, src)
		})
	}
	g.Go(func() error {
		return b.Serve(ctx, ln)
	})
	return g.Wait()
}

// Handler returns the websocket endpoints
func (b *Backend) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/control", b.handleControl)
	mux.HandleFunc("/gamepad", b.handleGamepad)
	return mux
}

// Serve runs the HTTP server on ln until ctx is done
func (b *Backend) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           b.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	b.logger.Info("backend listening", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (b *Backend) handleControl(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("control upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	stop := context.AfterFunc(r.Context(), func() { _ = conn.Close() })
	defer stop()

	logger := b.logger.With("session", uuid.NewString(), "remote", r.RemoteAddr)
	logger.Info("frontend connected")
	defer logger.Info("frontend disconnected")

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}

		f, err := messaging.FrameFromBytes(data)
		if err != nil {
			logger.Warn("dropping frontend message", "error", err)
			continue
		}
		req, err := messaging.DecodeFrontendToBackend(f)
		if err != nil {
			logger.Warn("dropping frontend message", "error", err)
			continue
		}
		logger.Info("frontend request", "request", req.String())

		reply, err := b.Request(r.Context(), req)
		if err != nil {
			logger.Error("request failed", "request", req.String(), "error", err)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, reply.Frame().Bytes()); err != nil {
			logger.Warn("reply to frontend failed", "error", err)
			return
		}
	}
}

func (b *Backend) handleGamepad(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("viewer upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	frames, ok := b.hub.Subscribe(ctx)
	if !ok {
		return
	}
	defer b.hub.Unsubscribe(context.WithoutCancel(ctx), frames)

	// Viewers never send anything meaningful; reading only detects close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, f.Bytes()); err != nil {
				return
			}
		}
	}
}

// Request relays req to the runtime and acts on its reply. The returned
// acknowledgement is always valid, even when err is not nil, and reflects
// the best known state of the runtime. Dropping the runtime link disables
// the runtime, so every path that drops it acknowledges Disabled.
func (b *Backend) Request(ctx context.Context, req messaging.FrontendToBackend) (messaging.BackendToFrontend, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	want := messaging.RuntimeDisabled
	out := messaging.RuntimeDisable
	if req == messaging.FrontendEnable {
		want = messaging.RuntimeEnabled
		out = messaging.RuntimeEnable
	}

	reply, err := b.roundTrip(ctx, out)
	if err != nil {
		b.closeRuntimeLocked()
		b.link.Disconnect()
		return messaging.BackendDisabled, err
	}

	if reply != want {
		b.logger.Error("unexpected runtime reply, closing runtime link",
			"request", out.String(), "reply", reply.String())
		b.closeRuntimeLocked()
		b.link.Disconnect()
		return messaging.BackendDisabled, ErrUnexpectedReply
	}

	if reply == messaging.RuntimeDisabled {
		b.link.Disconnect()
		return messaging.BackendDisabled, nil
	}
	if err := b.link.Connect(b.cfg.LinkageAddr); err != nil {
		return messaging.BackendEnabled, err
	}
	return messaging.BackendEnabled, nil
}

func (b *Backend) roundTrip(ctx context.Context, req messaging.BackendToRuntime) (messaging.RuntimeToBackend, error) {
	conn, err := b.runtimeConn(ctx)
	if err != nil {
		return 0, err
	}

	if err := messaging.WriteFrame(conn, req.Frame()); err != nil {
		return 0, fmt.Errorf("send to runtime: %w", err)
	}
	if timeout := b.cfg.ReplyTimeout(); timeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
		defer func() { _ = conn.SetReadDeadline(time.Time{}) }()
	}
	f, err := messaging.ReadFrame(conn)
	if err != nil {
		return 0, fmt.Errorf("read runtime reply: %w", err)
	}
	return messaging.DecodeRuntimeToBackend(f)
}

// runtimeConn returns the open runtime connection, dialing with backoff if
// there is none.
func (b *Backend) runtimeConn(ctx context.Context) (net.Conn, error) {
	if b.runtime != nil {
		return b.runtime, nil
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	var err error
	for attempt := 1; attempt <= runtimeDialAttempts; attempt++ {
		var conn net.Conn
		conn, err = dialer.DialContext(ctx, "tcp", b.cfg.RuntimeAddr)
		if err == nil {
			b.logger.Info("connected to runtime", "addr", b.cfg.RuntimeAddr)
			b.runtime = conn
			return conn, nil
		}
		if attempt == runtimeDialAttempts {
			break
		}
		timer := time.NewTimer(runtimeDialBackoff * time.Duration(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("connect to runtime at %s: %w", b.cfg.RuntimeAddr, err)
}

func (b *Backend) closeRuntime() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeRuntimeLocked()
}

func (b *Backend) closeRuntimeLocked() {
	if b.runtime != nil {
		_ = b.runtime.Close()
		b.runtime = nil
	}
}
