// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package messaging

import (
	"fmt"
	"strings"
)

// FormatTag returns the human-readable name for a tag
func FormatTag(tag uint8) string {
	switch tag {
	case TagFrontendEnable:
		return "FRONTEND_ENABLE"
	case TagFrontendDisable:
		return "FRONTEND_DISABLE"
	case TagBackendEnabled:
		return "BACKEND_ENABLED"
	case TagBackendDisabled:
		return "BACKEND_DISABLED"
	case TagRuntimeEnable:
		return "RUNTIME_ENABLE"
	case TagRuntimeDisable:
		return "RUNTIME_DISABLE"
	case TagRuntimeEnabled:
		return "RUNTIME_ENABLED"
	case TagRuntimeDisabled:
		return "RUNTIME_DISABLED"
	case TagGamepadInputEvent:
		return "GAMEPAD_INPUT_EVENT"
	case TagMotorInstruction:
		return "MOTOR_INSTRUCTION"
	default:
		return "UNKNOWN"
	}
}

// Decode tries every family and returns the first message the frame decodes
// to. Tags do not collide across families, so at most one family accepts a
// given frame.
func Decode(f Frame) (Message, error) {
	switch f.Tag() {
	case TagFrontendEnable, TagFrontendDisable:
		return DecodeFrontendToBackend(f)
	case TagBackendEnabled, TagBackendDisabled:
		return DecodeBackendToFrontend(f)
	case TagRuntimeEnable, TagRuntimeDisable:
		return DecodeBackendToRuntime(f)
	case TagRuntimeEnabled, TagRuntimeDisabled:
		return DecodeRuntimeToBackend(f)
	case TagGamepadInputEvent:
		return DecodeCockpitToLinkage(f)
	case TagMotorInstruction:
		return DecodeLinkageToCarburetor(f)
	}
	return nil, unknown("any", f)
}

// FormatFrame formats a frame into a human-readable line
func FormatFrame(f Frame) string {
	name := FormatTag(f.Tag())
	msg, err := Decode(f)
	if err != nil {
		return fmt.Sprintf("%s (0x%02X) INVALID %s", name, f.Tag(), hexDump(f))
	}

	switch m := msg.(type) {
	case GamepadInputEvent:
		return fmt.Sprintf("%s (0x%02X) gamepad=%d event=%s control=%d value=%d",
			name, f.Tag(), m.GamepadID, formatEventType(m.EventType), m.Control, m.Value)
	case MotorInstruction:
		speed := "out of range"
		if s, ok := NewSpeed(m.Speed); ok {
			speed = fmt.Sprintf("%s, %dus", s.Direction(), PulseMicros(s))
		}
		return fmt.Sprintf("%s (0x%02X) channel=%d speed=%.4f (%s)",
			name, f.Tag(), m.Channel, m.Speed, speed)
	default:
		return fmt.Sprintf("%s (0x%02X)", name, f.Tag())
	}
}

// formatEventType names the gamepad event codes used on the wire.
func formatEventType(t uint8) string {
	switch t {
	case 0:
		return "BUTTON"
	case 1:
		return "AXIS"
	case 2:
		return "CONNECTED"
	case 3:
		return "DISCONNECTED"
	default:
		return fmt.Sprintf("0x%02X", t)
	}
}

func hexDump(f Frame) string {
	var sb strings.Builder
	for i, b := range f {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}
