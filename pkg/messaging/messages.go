// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package messaging

import (
	"encoding/binary"
	"math"
)

// Message is implemented by every variant of every family.
type Message interface {
	Frame() Frame
}

// controlFrame builds a payload-less frame.
func controlFrame(tag uint8) Frame {
	return Frame{tag}
}

// decodeControl maps a payload-less frame back to its tag. Bytes 1..7 must
// be zero.
func decodeControl(family string, f Frame, tags ...uint8) (uint8, error) {
	if !f.reservedZero(1, FrameSize) {
		return 0, unknown(family, f)
	}
	for _, tag := range tags {
		if f[0] == tag {
			return tag, nil
		}
	}
	return 0, unknown(family, f)
}

// ============================================================
// Frontend -> Backend
// ============================================================

// FrontendToBackend requests a state change from the cockpit backend.
type FrontendToBackend uint8

// FrontendToBackend variants
const (
	FrontendEnable FrontendToBackend = iota
	FrontendDisable
)

// Frame encodes the message.
func (m FrontendToBackend) Frame() Frame {
	if m == FrontendDisable {
		return controlFrame(TagFrontendDisable)
	}
	return controlFrame(TagFrontendEnable)
}

func (m FrontendToBackend) String() string {
	if m == FrontendDisable {
		return "Disable"
	}
	return "Enable"
}

// DecodeFrontendToBackend decodes a frame sent by the cockpit frontend.
func DecodeFrontendToBackend(f Frame) (FrontendToBackend, error) {
	tag, err := decodeControl("FrontendToBackend", f, TagFrontendEnable, TagFrontendDisable)
	if err != nil {
		return 0, err
	}
	if tag == TagFrontendDisable {
		return FrontendDisable, nil
	}
	return FrontendEnable, nil
}

// ============================================================
// Backend -> Frontend
// ============================================================

// BackendToFrontend acknowledges a FrontendToBackend request.
type BackendToFrontend uint8

// BackendToFrontend variants
const (
	BackendEnabled BackendToFrontend = iota
	BackendDisabled
)

// Frame encodes the message.
func (m BackendToFrontend) Frame() Frame {
	if m == BackendDisabled {
		return controlFrame(TagBackendDisabled)
	}
	return controlFrame(TagBackendEnabled)
}

func (m BackendToFrontend) String() string {
	if m == BackendDisabled {
		return "Disabled"
	}
	return "Enabled"
}

// DecodeBackendToFrontend decodes a frame sent by the cockpit backend.
func DecodeBackendToFrontend(f Frame) (BackendToFrontend, error) {
	tag, err := decodeControl("BackendToFrontend", f, TagBackendEnabled, TagBackendDisabled)
	if err != nil {
		return 0, err
	}
	if tag == TagBackendDisabled {
		return BackendDisabled, nil
	}
	return BackendEnabled, nil
}

// ============================================================
// Backend -> Runtime
// ============================================================

// BackendToRuntime asks the runtime supervisor to start or stop the robot.
type BackendToRuntime uint8

// BackendToRuntime variants
const (
	RuntimeEnable BackendToRuntime = iota
	RuntimeDisable
)

// Frame encodes the message.
func (m BackendToRuntime) Frame() Frame {
	if m == RuntimeDisable {
		return controlFrame(TagRuntimeDisable)
	}
	return controlFrame(TagRuntimeEnable)
}

func (m BackendToRuntime) String() string {
	if m == RuntimeDisable {
		return "Disable"
	}
	return "Enable"
}

// DecodeBackendToRuntime decodes a frame received by the runtime.
func DecodeBackendToRuntime(f Frame) (BackendToRuntime, error) {
	tag, err := decodeControl("BackendToRuntime", f, TagRuntimeEnable, TagRuntimeDisable)
	if err != nil {
		return 0, err
	}
	if tag == TagRuntimeDisable {
		return RuntimeDisable, nil
	}
	return RuntimeEnable, nil
}

// ============================================================
// Runtime -> Backend
// ============================================================

// RuntimeToBackend acknowledges a BackendToRuntime request.
type RuntimeToBackend uint8

// RuntimeToBackend variants
const (
	RuntimeEnabled RuntimeToBackend = iota
	RuntimeDisabled
)

// Frame encodes the message.
func (m RuntimeToBackend) Frame() Frame {
	if m == RuntimeDisabled {
		return controlFrame(TagRuntimeDisabled)
	}
	return controlFrame(TagRuntimeEnabled)
}

func (m RuntimeToBackend) String() string {
	if m == RuntimeDisabled {
		return "Disabled"
	}
	return "Enabled"
}

// DecodeRuntimeToBackend decodes a frame sent by the runtime.
func DecodeRuntimeToBackend(f Frame) (RuntimeToBackend, error) {
	tag, err := decodeControl("RuntimeToBackend", f, TagRuntimeEnabled, TagRuntimeDisabled)
	if err != nil {
		return 0, err
	}
	if tag == TagRuntimeDisabled {
		return RuntimeDisabled, nil
	}
	return RuntimeEnabled, nil
}

// ============================================================
// Cockpit -> Linkage
// ============================================================

// GamepadInputEvent is the only CockpitToLinkage variant. Bytes 1..3 are
// reserved and must be zero.
type GamepadInputEvent struct {
	GamepadID uint8
	EventType uint8
	Control   uint8
	Value     uint8
}

// Frame encodes the event.
func (e GamepadInputEvent) Frame() Frame {
	return Frame{TagGamepadInputEvent, 0, 0, 0, e.GamepadID, e.EventType, e.Control, e.Value}
}

// DecodeCockpitToLinkage decodes a frame received by the robot program.
func DecodeCockpitToLinkage(f Frame) (GamepadInputEvent, error) {
	if f[0] != TagGamepadInputEvent || !f.reservedZero(1, 4) {
		return GamepadInputEvent{}, unknown("CockpitToLinkage", f)
	}
	return GamepadInputEvent{
		GamepadID: f[4],
		EventType: f[5],
		Control:   f[6],
		Value:     f[7],
	}, nil
}

// ============================================================
// Linkage -> Carburetor
// ============================================================

// MotorInstruction is the only LinkageToCarburetor variant. Bytes 2..3 are
// reserved and must be zero.
type MotorInstruction struct {
	Channel uint8
	Speed   float32
}

// Frame encodes the instruction with the speed as a big-endian float32.
func (m MotorInstruction) Frame() Frame {
	f := Frame{TagMotorInstruction, m.Channel}
	binary.BigEndian.PutUint32(f[4:], math.Float32bits(m.Speed))
	return f
}

// DecodeLinkageToCarburetor decodes a frame received by the carburetor.
//
// The speed is rounded to four decimal places so that float noise such as
// -1.2e-10 registers as neutral. The range is not checked here; use
// NewSpeed on the result.
func DecodeLinkageToCarburetor(f Frame) (MotorInstruction, error) {
	if f[0] != TagMotorInstruction || !f.reservedZero(2, 4) {
		return MotorInstruction{}, unknown("LinkageToCarburetor", f)
	}
	raw := math.Float32frombits(binary.BigEndian.Uint32(f[4:]))
	return MotorInstruction{
		Channel: f[1],
		Speed:   roundSpeed(raw),
	}, nil
}

func roundSpeed(v float32) float32 {
	return float32(math.Round(float64(v)*speedPrecision) / speedPrecision)
}
