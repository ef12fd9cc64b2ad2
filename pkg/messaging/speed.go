// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package messaging

import (
	"fmt"
	"math"
	"time"
)

// Direction is the sign of a Speed.
type Direction int

// Direction values
const (
	Neutral Direction = iota
	Forward
	Backward
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return "neutral"
	}
}

// Speed is a motor speed in [-1.0, 1.0].
//
//   - -1.0 is full speed reverse
//   - 0.0 is neutral
//   - 1.0 is full speed forward
//
// The zero value is neutral.
type Speed struct {
	value float32
}

// NewSpeed returns a Speed for value, or false when value is outside
// [-1.0, 1.0] (NaN included).
func NewSpeed(value float32) (Speed, bool) {
	if value >= -1.0 && value <= 1.0 {
		return Speed{value: value}, true
	}
	return Speed{}, false
}

// NeutralSpeed returns a stand-still speed.
func NeutralSpeed() Speed {
	return Speed{}
}

// FullForward returns full forward force.
func FullForward() Speed {
	return Speed{value: 1.0}
}

// FullBackward returns full reverse force.
func FullBackward() Speed {
	return Speed{value: -1.0}
}

// Value returns the raw speed.
func (s Speed) Value() float32 {
	return s.value
}

// Direction returns the sign of the speed. A Speed can only be built through
// NewSpeed, so an unordered value here is a programming error.
func (s Speed) Direction() Direction {
	switch {
	case s.value < 0:
		return Backward
	case s.value > 0:
		return Forward
	case s.value == 0:
		return Neutral
	}
	panic(fmt.Sprintf("invalid speed '%v': not in range -1.0..=1.0", s.value))
}

// PulseWidth returns the PWM pulse width for this speed.
func (s Speed) PulseWidth() time.Duration {
	return time.Duration(PulseMicros(s)) * time.Microsecond
}

func (s Speed) String() string {
	return fmt.Sprintf("%g", s.value)
}

// PulseMicros maps a speed to a pulse width in microseconds:
// 1500 + round(500 * speed). Full reverse is 1000, full forward 2000.
func PulseMicros(s Speed) int64 {
	return PulseNeutralMicro + int64(math.Round(PulseDeltaMicro*float64(s.value)))
}
