// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package runtime

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/linkage/pkg/logging"
	"github.com/Thermoquad/linkage/pkg/messaging"
)

// ============================================================
// Test Doubles
// ============================================================

type fakeProcess struct {
	pid     int
	mu      sync.Mutex
	killed  bool
	reaped  bool
	killErr error
}

func (p *fakeProcess) Pid() int { return p.pid }

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killed = true
	return p.killErr
}

func (p *fakeProcess) Wait() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reaped = true
	return nil
}

func (p *fakeProcess) done() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed && p.reaped
}

type fakeSpawner struct {
	mu       sync.Mutex
	spawned  []*fakeProcess
	commands []Command
	// failOn names a command whose spawn fails
	failOn string
}

func (s *fakeSpawner) Spawn(c Command) (Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, c)
	if c.Name == s.failOn {
		return nil, errors.New("spawn failed")
	}
	p := &fakeProcess{pid: 100 + len(s.spawned)}
	s.spawned = append(s.spawned, p)
	return p, nil
}

func (s *fakeSpawner) processes() []*fakeProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeProcess(nil), s.spawned...)
}

// instantReadiness reports ready immediately, or fails with err
type instantReadiness struct {
	err error
}

func (r *instantReadiness) Arm() (*Handshake, error) {
	return &Handshake{wait: func(context.Context) error { return r.err }}, nil
}

func newTestSupervisor(sp *fakeSpawner, rd Readiness) *Supervisor {
	return NewSupervisor(Commands{
		Carburetor: []string{"carburetor"},
		Robot:      []string{"robot"},
	}, sp, rd, logging.Discard())
}

// ============================================================
// Supervisor Tests
// ============================================================

func TestSupervisor_EnableTwiceSpawnsOnce(t *testing.T) {
	sp := &fakeSpawner{}
	sup := newTestSupervisor(sp, &instantReadiness{})

	require.NoError(t, sup.Enable(context.Background()))
	require.NoError(t, sup.Enable(context.Background()))

	require.Equal(t, Enabled, sup.State())
	require.Len(t, sp.processes(), 2)
	require.Equal(t, "carburetor", sp.commands[0].Name)
	require.Equal(t, "robot", sp.commands[1].Name)
}

func TestSupervisor_DisableReapsChildren(t *testing.T) {
	sp := &fakeSpawner{}
	sup := newTestSupervisor(sp, &instantReadiness{})

	require.NoError(t, sup.Enable(context.Background()))
	require.NoError(t, sup.Disable())
	require.Equal(t, Disabled, sup.State())

	for _, p := range sp.processes() {
		require.True(t, p.done(), "process %d not killed and reaped", p.pid)
	}

	// Disabling again is a no-op
	require.NoError(t, sup.Disable())
}

func TestSupervisor_DisableErrorStillDisables(t *testing.T) {
	sp := &fakeSpawner{}
	sup := newTestSupervisor(sp, &instantReadiness{})
	require.NoError(t, sup.Enable(context.Background()))

	procs := sp.processes()
	procs[0].killErr = errors.New("kill failed")

	err := sup.Disable()
	require.EqualError(t, err, "kill failed")
	require.Equal(t, Disabled, sup.State())
	// Later children are still stopped
	require.True(t, procs[1].done())
}

func TestSupervisor_SecondSpawnFailureKillsFirst(t *testing.T) {
	sp := &fakeSpawner{failOn: "robot"}
	sup := newTestSupervisor(sp, &instantReadiness{})

	require.Error(t, sup.Enable(context.Background()))
	require.Equal(t, Disabled, sup.State())

	procs := sp.processes()
	require.Len(t, procs, 1)
	require.True(t, procs[0].done(), "carburetor left running")
}

func TestSupervisor_ReadinessFailureKillsBoth(t *testing.T) {
	sp := &fakeSpawner{}
	sup := newTestSupervisor(sp, &instantReadiness{err: ErrReadinessTimeout})

	err := sup.Enable(context.Background())
	require.ErrorIs(t, err, ErrReadinessTimeout)
	require.Equal(t, Disabled, sup.State())
	for _, p := range sp.processes() {
		require.True(t, p.done())
	}
}

func TestSupervisor_CloseDisables(t *testing.T) {
	sp := &fakeSpawner{}
	sup := newTestSupervisor(sp, &instantReadiness{})
	require.NoError(t, sup.Enable(context.Background()))
	require.NoError(t, sup.Close())
	for _, p := range sp.processes() {
		require.True(t, p.done())
	}
}

func TestSupervisor_PassesHandshakeToRobot(t *testing.T) {
	sp := &fakeSpawner{}
	rd := &PipeReadiness{Timeout: time.Second}

	// The fake robot reports ready as soon as it is "spawned"
	spawner := spawnFunc(func(c Command) (Process, error) {
		if c.Name == "robot" {
			require.Len(t, c.ExtraFiles, 1)
			require.Contains(t, c.Env, "LINKAGE_READY_FD=3")
			if _, err := c.ExtraFiles[0].Write([]byte{1}); err != nil {
				return nil, err
			}
		}
		return sp.Spawn(c)
	})

	sup := NewSupervisor(Commands{Carburetor: []string{"c"}, Robot: []string{"r"}}, spawner, rd, logging.Discard())
	require.NoError(t, sup.Enable(context.Background()))
	require.Equal(t, Enabled, sup.State())
	require.NoError(t, sup.Disable())
}

type spawnFunc func(Command) (Process, error)

func (f spawnFunc) Spawn(c Command) (Process, error) { return f(c) }

// ============================================================
// Server Tests
// ============================================================

func startServer(t *testing.T, sp Spawner) (net.Conn, context.CancelFunc) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	srv := &Server{
		Commands:  Commands{Carburetor: []string{"c"}, Robot: []string{"r"}},
		Spawner:   sp,
		Readiness: &instantReadiness{},
		Logger:    logging.Discard(),
	}
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	return conn, cancel
}

func exchange(t *testing.T, conn net.Conn, req messaging.BackendToRuntime) messaging.RuntimeToBackend {
	t.Helper()
	require.NoError(t, messaging.WriteFrame(conn, req.Frame()))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	f, err := messaging.ReadFrame(conn)
	require.NoError(t, err)
	reply, err := messaging.DecodeRuntimeToBackend(f)
	require.NoError(t, err)
	return reply
}

func TestServer_AcksEveryRequest(t *testing.T) {
	sp := &fakeSpawner{}
	conn, _ := startServer(t, sp)
	defer conn.Close()

	require.Equal(t, messaging.RuntimeDisabled, exchange(t, conn, messaging.RuntimeDisable))
	require.Equal(t, messaging.RuntimeEnabled, exchange(t, conn, messaging.RuntimeEnable))
	require.Equal(t, messaging.RuntimeEnabled, exchange(t, conn, messaging.RuntimeEnable))
	require.Len(t, sp.processes(), 2)
	require.Equal(t, messaging.RuntimeDisabled, exchange(t, conn, messaging.RuntimeDisable))

	for _, p := range sp.processes() {
		require.True(t, p.done())
	}
}

func TestServer_SkipsUnknownFrames(t *testing.T) {
	sp := &fakeSpawner{}
	conn, _ := startServer(t, sp)
	defer conn.Close()

	require.NoError(t, messaging.WriteFrame(conn, messaging.Frame{0x7F}))
	require.Equal(t, messaging.RuntimeEnabled, exchange(t, conn, messaging.RuntimeEnable))
}

func TestServer_DisconnectStopsChildren(t *testing.T) {
	sp := &fakeSpawner{}
	conn, _ := startServer(t, sp)

	require.Equal(t, messaging.RuntimeEnabled, exchange(t, conn, messaging.RuntimeEnable))
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		procs := sp.processes()
		return len(procs) == 2 && procs[0].done() && procs[1].done()
	}, 5*time.Second, 10*time.Millisecond)
}

func TestServer_FailedEnableRepliesDisabled(t *testing.T) {
	sp := &fakeSpawner{failOn: "carburetor"}
	conn, _ := startServer(t, sp)
	defer conn.Close()

	require.Equal(t, messaging.RuntimeDisabled, exchange(t, conn, messaging.RuntimeEnable))
}
