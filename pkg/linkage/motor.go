// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package linkage

import (
	"math"

	"github.com/Thermoquad/linkage/pkg/messaging"
)

// MotorController drives one carburetor channel, typically a Spark motor
// controller.
type MotorController struct {
	state   *State
	channel uint8
}

// NewMotorController creates a controller for channel
func NewMotorController(state *State, channel uint8) *MotorController {
	return &MotorController{state: state, channel: channel}
}

// Channel returns the carburetor channel
func (m *MotorController) Channel() uint8 {
	return m.channel
}

// SetSpeed sends speed, clamped to [-1, 1]. NaN is sent as neutral.
func (m *MotorController) SetSpeed(speed float32) {
	m.state.SendMotorInstruction(messaging.MotorInstruction{
		Channel: m.channel,
		Speed:   clampSpeed(speed),
	})
}

// Stop sends neutral
func (m *MotorController) Stop() {
	m.SetSpeed(0)
}

func clampSpeed(v float32) float32 {
	if math.IsNaN(float64(v)) {
		return 0
	}
	return min(max(v, -1), 1)
}
