// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package messaging

import (
	"errors"
	"fmt"
)

// ErrUnknownMessage matches every UnknownMessageError via errors.Is.
var ErrUnknownMessage = errors.New("unknown message")

// UnknownMessageError is returned when a frame does not match any variant of
// the family being decoded. It carries the offending bytes.
type UnknownMessageError struct {
	Family string
	Frame  Frame
}

// Error implements the error interface
func (e *UnknownMessageError) Error() string {
	return fmt.Sprintf("unknown %s message: %v", e.Family, e.Frame)
}

// Is lets errors.Is(err, ErrUnknownMessage) succeed.
func (e *UnknownMessageError) Is(target error) bool {
	return target == ErrUnknownMessage
}

func unknown(family string, f Frame) error {
	return &UnknownMessageError{Family: family, Frame: f}
}

// ErrSpeedOutOfRange reports a motor speed outside [-1.0, 1.0].
var ErrSpeedOutOfRange = errors.New("speed not in range -1.0..=1.0")
