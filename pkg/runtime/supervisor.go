// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package runtime supervises the robot program and its carburetor. A backend
// connects over TCP and sends Enable/Disable frames; the supervisor starts or
// stops both children and acknowledges every request with the resulting
// state.
package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Thermoquad/linkage/pkg/logging"
)

// State is the supervisor state
type State int

// Supervisor states
const (
	Disabled State = iota
	Enabled
)

func (s State) String() string {
	if s == Enabled {
		return "Enabled"
	}
	return "Disabled"
}

// Commands are the two children started on enable
type Commands struct {
	Carburetor []string
	Robot      []string
	Dir        string
}

// Supervisor owns the children of one backend connection. It is not safe for
// concurrent use.
type Supervisor struct {
	commands  Commands
	spawner   Spawner
	readiness Readiness
	logger    *slog.Logger

	// nil while Disabled
	children []Process
}

// NewSupervisor creates a disabled supervisor
func NewSupervisor(commands Commands, spawner Spawner, readiness Readiness, logger *slog.Logger) *Supervisor {
	logger = logging.OrDefault(logger)
	return &Supervisor{
		commands:  commands,
		spawner:   spawner,
		readiness: readiness,
		logger:    logger,
	}
}

// State returns the current state
func (s *Supervisor) State() State {
	if s.children != nil {
		return Enabled
	}
	return Disabled
}

// Enable starts the carburetor and the robot program and blocks until the
// robot program reports ready. Enabling while enabled does nothing.
//
// On failure every child started by this call is killed and the supervisor
// stays disabled.
func (s *Supervisor) Enable(ctx context.Context) error {
	if s.children != nil {
		s.logger.Info("already enabled, doing nothing")
		return nil
	}
	s.logger.Info("enabling linkage")

	var started []Process
	fail := func(err error) error {
		if stopErr := s.stop(started); stopErr != nil {
			s.logger.Error("failed to clean up after enable failure", "error", stopErr)
		}
		return err
	}

	carburetor, err := s.spawner.Spawn(Command{
		Name: "carburetor",
		Argv: s.commands.Carburetor,
		Dir:  s.commands.Dir,
	})
	if err != nil {
		return fail(err)
	}
	started = append(started, carburetor)

	handshake, err := s.readiness.Arm()
	if err != nil {
		return fail(err)
	}
	defer handshake.Close()

	robot, err := s.spawner.Spawn(Command{
		Name:       "robot",
		Argv:       s.commands.Robot,
		Dir:        s.commands.Dir,
		Env:        handshake.Env,
		ExtraFiles: handshake.ExtraFiles,
	})
	handshake.Started()
	if err != nil {
		return fail(err)
	}
	started = append(started, robot)

	if err := handshake.Wait(ctx); err != nil {
		return fail(fmt.Errorf("robot program did not become ready: %w", err))
	}

	s.children = started
	s.logger.Info("linkage enabled", "carburetor_pid", carburetor.Pid(), "robot_pid", robot.Pid())
	return nil
}

// Disable stops and reaps every child, the robot program before the
// carburetor so its shutdown neutral still reaches the motors. The supervisor
// is disabled afterwards even when an error is returned; the error is the
// first failure encountered.
func (s *Supervisor) Disable() error {
	if s.children == nil {
		s.logger.Info("already disabled, doing nothing")
		return nil
	}
	s.logger.Info("disabling linkage")

	children := s.children
	s.children = nil
	if err := s.stop(children); err != nil {
		return err
	}
	s.logger.Info("linkage disabled")
	return nil
}

// Close disables the supervisor. Children never outlive it.
func (s *Supervisor) Close() error {
	return s.Disable()
}

func (s *Supervisor) stop(children []Process) error {
	var first error
	for i := len(children) - 1; i >= 0; i-- {
		child := children[i]
		if err := child.Kill(); err != nil && first == nil {
			first = err
		}
		if err := child.Wait(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
