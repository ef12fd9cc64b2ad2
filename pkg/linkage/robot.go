// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package linkage is the framework robot programs are built on. A Robot
// listens for gamepad input from the cockpit, ticks its subsystems at a fixed
// rate and forwards their motor instructions to the carburetor.
//
//	robot := linkage.NewRobot(linkage.Options{...}).
//		AddSubsystem(&linkage.TankDrive{Left: 0, Right: 1})
//	err := robot.Run(ctx)
package linkage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Thermoquad/linkage/pkg/logging"
	"github.com/Thermoquad/linkage/pkg/messaging"
	"github.com/Thermoquad/linkage/pkg/runtime"
)

// Options configure a Robot
type Options struct {
	// CockpitListen is the address gamepad events arrive on
	CockpitListen string
	// CarburetorAddr is the carburetor's TCP address
	CarburetorAddr string
	// CarburetorDialTimeout bounds the retries while the carburetor starts
	// listening. Defaults to 5 s.
	CarburetorDialTimeout time.Duration
	// TickPeriod defaults to 20 ms
	TickPeriod time.Duration
	// NeutralWait is how long to hold neutral before Run returns. At least
	// 10 ms.
	NeutralWait time.Duration
	// Stdin, when set, is watched for EOF as a shutdown request
	Stdin io.Reader
	// NotifyReady is called once both sockets are open. Defaults to
	// runtime.NotifyReady.
	NotifyReady func() error
	Logger      *slog.Logger
}

const (
	minNeutralWait = 10 * time.Millisecond

	defaultCarburetorDialTimeout = 5 * time.Second
	carburetorDialBackoff        = 50 * time.Millisecond
	carburetorDialBackoffMax     = 500 * time.Millisecond

	// neutralSendTimeout bounds the wait for room in the carburetor queue
	// on shutdown
	neutralSendTimeout = time.Second
)

// Robot runs subsystems against shared State
type Robot struct {
	opts       Options
	logger     *slog.Logger
	subsystems []Subsystem
	onSetup    func()
	onTick     func()
	onShutdown func()
}

// NewRobot creates a robot with no subsystems
func NewRobot(opts Options) *Robot {
	if opts.TickPeriod <= 0 {
		opts.TickPeriod = messaging.PWMPeriod
	}
	if opts.CarburetorDialTimeout <= 0 {
		opts.CarburetorDialTimeout = defaultCarburetorDialTimeout
	}
	if opts.NeutralWait < minNeutralWait {
		opts.NeutralWait = minNeutralWait
	}
	if opts.NotifyReady == nil {
		opts.NotifyReady = runtime.NotifyReady
	}
	logger := logging.OrDefault(opts.Logger)
	return &Robot{opts: opts, logger: logger}
}

// AddSubsystem appends s to the subsystems run every tick
func (r *Robot) AddSubsystem(s Subsystem) *Robot {
	r.subsystems = append(r.subsystems, s)
	return r
}

// OnSetup sets a hook run once before subsystem setup
func (r *Robot) OnSetup(fn func()) *Robot {
	r.onSetup = fn
	return r
}

// OnTick sets a hook run every tick before the subsystems
func (r *Robot) OnTick(fn func()) *Robot {
	r.onTick = fn
	return r
}

// OnShutdown sets a hook run once after subsystem shutdown
func (r *Robot) OnShutdown(fn func()) *Robot {
	r.onShutdown = fn
	return r
}

// Run opens the cockpit listener and the carburetor connection, retrying the
// latter for up to CarburetorDialTimeout, then runs
// the tick loop until ctx is done, SIGINT or SIGTERM arrives, or Stdin hits
// EOF. Before returning, every motor channel used is set to neutral.
func (r *Robot) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", r.opts.CockpitListen)
	if err != nil {
		return fmt.Errorf("failed to listen for cockpit connections: %w", err)
	}

	carburetor, err := r.dialCarburetor(ctx)
	if err != nil {
		ln.Close()
		return err
	}
	defer carburetor.Close()
	r.logger.Info("opened connection with carburetor", "addr", r.opts.CarburetorAddr)

	return r.run(ctx, ln, carburetor)
}

// dialCarburetor connects to the carburetor, retrying with backoff while it
// is still starting up.
func (r *Robot) dialCarburetor(ctx context.Context) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.CarburetorDialTimeout)
	defer cancel()

	var d net.Dialer
	for attempt := 1; ; attempt++ {
		conn, err := d.DialContext(ctx, "tcp", r.opts.CarburetorAddr)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("failed to open connection with carburetor after %d attempts: %w", attempt, err)
		}
		r.logger.Debug("carburetor not reachable yet", "addr", r.opts.CarburetorAddr, "attempt", attempt, "error", err)
		sleepBackoff(ctx, attempt)
	}
}

func sleepBackoff(ctx context.Context, attempt int) {
	wait := min(carburetorDialBackoff*time.Duration(attempt), carburetorDialBackoffMax)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// run drives the robot over already open sockets
func (r *Robot) run(ctx context.Context, ln net.Listener, carburetor io.Writer) error {
	instructions := make(chan messaging.MotorInstruction, carburetorQueueSize)
	state := NewState(instructions, r.logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		forwardToCarburetor(carburetor, instructions, r.logger)
	}()

	listenCtx, stopListening := context.WithCancel(context.Background())
	wg.Add(1)
	go func() {
		defer wg.Done()
		serveCockpit(listenCtx, ln, state, r.logger)
	}()
	r.logger.Info("listening for cockpit", "addr", ln.Addr().String())

	if err := r.opts.NotifyReady(); err != nil {
		r.logger.Error("failed to notify runtime", "error", err)
	}

	term, stop := r.termination(ctx)
	defer stop()

	r.loop(state, term)
	r.neutral(state)

	stopListening()
	close(instructions)
	wg.Wait()
	return nil
}

// termination returns a channel closed when the robot should stop
func (r *Robot) termination(ctx context.Context) (<-chan struct{}, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	if r.opts.Stdin == nil {
		return ctx.Done(), stop
	}

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		// The supervisor keeps our stdin open; EOF means it is gone
		_, err := io.Copy(io.Discard, r.opts.Stdin)
		if err != nil {
			r.logger.Debug("error reading from stdin", "error", err)
			return
		}
		r.logger.Info("stdin closed, shutting down")
		cancel()
	}()
	return ctx.Done(), func() {
		cancel()
		stop()
	}
}

// loop runs setup, ticks until term is closed, then runs shutdown. term is
// checked once per tick and never interrupts one.
func (r *Robot) loop(state *State, term <-chan struct{}) {
	if r.onSetup != nil {
		r.onSetup()
	}
	for _, s := range r.subsystems {
		s.Setup(state)
	}

	ticker := time.NewTicker(r.opts.TickPeriod)
	defer ticker.Stop()

	for running := true; running; {
		if r.onTick != nil {
			r.onTick()
		}
		for _, s := range r.subsystems {
			s.Tick(state)
		}

		<-ticker.C

		select {
		case <-term:
			running = false
		default:
		}
	}

	for _, s := range r.subsystems {
		s.Shutdown(state)
	}
	if r.onShutdown != nil {
		r.onShutdown()
	}
}

// neutral commands every used channel to neutral and waits for the
// instruction to be applied. Unlike a tick, it waits for room in the
// carburetor queue.
func (r *Robot) neutral(state *State) {
	channels := state.usedChannels()
	r.logger.Info("setting motors to neutral", "channels", channels)

	ctx, cancel := context.WithTimeout(context.Background(), neutralSendTimeout)
	defer cancel()
	for _, ch := range channels {
		state.sendMotorInstructionWait(ctx, messaging.MotorInstruction{Channel: ch, Speed: 0})
	}
	time.Sleep(r.opts.NeutralWait)
}
