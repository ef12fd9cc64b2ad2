// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package linkage

import "github.com/Thermoquad/linkage/pkg/linkage/gamepad"

// TankDrive drives a left and a right motor from the two stick Y axes of a
// PlayStation controller.
type TankDrive struct {
	BaseSubsystem

	Gamepad gamepad.Index
	Left    uint8
	Right   uint8
}

// Tick implements Subsystem
func (t *TankDrive) Tick(state *State) {
	left := NewMotorController(state, t.Left)
	right := NewMotorController(state, t.Right)

	pad, ok := state.PsController(t.Gamepad)
	if !ok {
		return
	}
	left.SetSpeed(pad.LeftJoystickY())
	right.SetSpeed(pad.RightJoystickY())
}

// Shutdown implements Subsystem
func (t *TankDrive) Shutdown(state *State) {
	NewMotorController(state, t.Left).Stop()
	NewMotorController(state, t.Right).Stop()
}
