// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package gamepad aggregates gamepad input events received from the cockpit
// into per-controller button and axis state.
package gamepad

import "fmt"

// EventType is the kind of a gamepad input event
type EventType uint8

// Event types as carried in byte 5 of a GamepadInputEvent frame
const (
	ButtonChanged EventType = 0
	AxisChanged   EventType = 1
	Connected     EventType = 2
	Disconnected  EventType = 3
)

// ParseEventType validates a raw event type byte
func ParseEventType(b uint8) (EventType, error) {
	switch t := EventType(b); t {
	case ButtonChanged, AxisChanged, Connected, Disconnected:
		return t, nil
	default:
		return 0, fmt.Errorf("invalid event type %d", b)
	}
}

func (t EventType) String() string {
	switch t {
	case ButtonChanged:
		return "ButtonChanged"
	case AxisChanged:
		return "AxisChanged"
	case Connected:
		return "Connected"
	case Disconnected:
		return "Disconnected"
	default:
		return fmt.Sprintf("EventType(%d)", uint8(t))
	}
}

// Button control codes
const (
	ButtonUnknown uint8 = 0
	// Action pad
	ButtonSouth uint8 = 1
	ButtonEast  uint8 = 2
	ButtonC     uint8 = 3
	ButtonNorth uint8 = 4
	ButtonWest  uint8 = 5
	ButtonZ     uint8 = 6
	// Triggers
	ButtonLeftTrigger   uint8 = 7
	ButtonRightTrigger  uint8 = 8
	ButtonLeftTrigger2  uint8 = 9
	ButtonRightTrigger2 uint8 = 10
	// Menu pad
	ButtonSelect uint8 = 11
	ButtonStart  uint8 = 12
	ButtonMode   uint8 = 13
	// Sticks
	ButtonLeftThumb  uint8 = 14
	ButtonRightThumb uint8 = 15
	// D-pad
	ButtonDpadUp    uint8 = 16
	ButtonDpadDown  uint8 = 17
	ButtonDpadLeft  uint8 = 18
	ButtonDpadRight uint8 = 19
)

// Axis control codes
const (
	AxisUnknown     uint8 = 0
	AxisLeftStickX  uint8 = 1
	AxisLeftStickY  uint8 = 2
	AxisLeftZ       uint8 = 3
	AxisRightStickX uint8 = 4
	AxisRightStickY uint8 = 5
	AxisRightZ      uint8 = 6
	AxisDpadX       uint8 = 7
	AxisDpadY       uint8 = 8
)

const (
	buttonDefault uint8 = 0
	axisDefault   uint8 = 127
	lastButton          = ButtonDpadRight
	lastAxis            = AxisDpadY
)

// Data is the aggregated state of one controller
type Data struct {
	ID      uint8
	Buttons map[uint8]uint8
	Axes    map[uint8]uint8
}

// NewData returns state for a controller with every known button released
// and every known axis centered.
func NewData(id uint8) *Data {
	d := &Data{
		ID:      id,
		Buttons: make(map[uint8]uint8, int(lastButton)+1),
		Axes:    make(map[uint8]uint8, int(lastAxis)+1),
	}
	for c := ButtonUnknown; c <= lastButton; c++ {
		d.Buttons[c] = buttonDefault
	}
	for c := AxisUnknown; c <= lastAxis; c++ {
		d.Axes[c] = axisDefault
	}
	return d
}

// apply stores a button or axis value. Other event types leave d unchanged.
func (d *Data) apply(t EventType, control, value uint8) {
	switch t {
	case ButtonChanged:
		d.Buttons[control] = value
	case AxisChanged:
		d.Axes[control] = value
	}
}

// Clone returns a deep copy
func (d *Data) Clone() *Data {
	c := &Data{
		ID:      d.ID,
		Buttons: make(map[uint8]uint8, len(d.Buttons)),
		Axes:    make(map[uint8]uint8, len(d.Axes)),
	}
	for k, v := range d.Buttons {
		c.Buttons[k] = v
	}
	for k, v := range d.Axes {
		c.Axes[k] = v
	}
	return c
}

// ButtonValue reports whether control is pressed in m. Missing controls are
// released.
func ButtonValue(m map[uint8]uint8, control uint8) bool {
	v, ok := m[control]
	return ok && v > 127
}

// AxisValue maps the stored 0..255 value of control linearly onto [lo, hi].
// Missing controls read as 0.
func AxisValue(m map[uint8]uint8, control uint8, lo, hi float32) float32 {
	v, ok := m[control]
	if !ok {
		return 0
	}
	return mapRange(float32(v), lo, hi)
}

func mapRange(v, lo, hi float32) float32 {
	v = min(max(v, 0), 255)
	return lo + v*(hi-lo)/255
}
