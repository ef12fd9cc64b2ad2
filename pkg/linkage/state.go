// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package linkage

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Thermoquad/linkage/pkg/linkage/gamepad"
	"github.com/Thermoquad/linkage/pkg/logging"
	"github.com/Thermoquad/linkage/pkg/messaging"
)

// State is shared by the tick loop, every subsystem and the cockpit
// listener. Every method is one short critical section.
type State struct {
	mu         sync.Mutex
	gamepads   *gamepad.Manager
	carburetor chan<- messaging.MotorInstruction
	// channels that have been sent an instruction, for the shutdown neutral
	channels map[uint8]struct{}
	logger   *slog.Logger
}

// NewState creates state that sends motor instructions on carburetor
func NewState(carburetor chan<- messaging.MotorInstruction, logger *slog.Logger) *State {
	logger = logging.OrDefault(logger)
	return &State{
		gamepads:   gamepad.NewManager(logger),
		carburetor: carburetor,
		channels:   make(map[uint8]struct{}),
		logger:     logger,
	}
}

// HandleGamepadEvent applies an event received from the cockpit
func (s *State) HandleGamepadEvent(ev messaging.GamepadInputEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gamepads.HandleEvent(ev)
}

// WithGamepads calls fn with the gamepad manager locked. fn must not block.
func (s *State) WithGamepads(fn func(m *gamepad.Manager)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.gamepads)
}

// Gamepad returns a copy of the controller state in slot index
func (s *State) Gamepad(index gamepad.Index) (*gamepad.Data, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gamepads.Data(index)
}

// PsController returns the controller in slot index as a PsController
func (s *State) PsController(index gamepad.Index) (gamepad.PsController, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gamepad.PsControllerAt(s.gamepads, index)
}

// SendMotorInstruction queues an instruction for the carburetor. It never
// blocks: when the link is backed up the instruction is dropped.
func (s *State) SendMotorInstruction(m messaging.MotorInstruction) bool {
	s.mu.Lock()
	s.channels[m.Channel] = struct{}{}
	sender := s.carburetor
	s.mu.Unlock()

	select {
	case sender <- m:
		return true
	default:
		s.logger.Error("carburetor link backed up, dropping instruction", "channel", m.Channel, "speed", m.Speed)
		return false
	}
}

// sendMotorInstructionWait queues m, waiting for room until ctx is done
func (s *State) sendMotorInstructionWait(ctx context.Context, m messaging.MotorInstruction) bool {
	s.mu.Lock()
	s.channels[m.Channel] = struct{}{}
	sender := s.carburetor
	s.mu.Unlock()

	select {
	case sender <- m:
		return true
	case <-ctx.Done():
		s.logger.Error("carburetor link backed up, giving up on instruction", "channel", m.Channel, "speed", m.Speed, "error", ctx.Err())
		return false
	}
}

// usedChannels returns every channel that has been sent an instruction
func (s *State) usedChannels() []uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint8, 0, len(s.channels))
	for ch := range s.channels {
		out = append(out, ch)
	}
	return out
}
