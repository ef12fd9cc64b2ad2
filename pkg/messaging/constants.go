// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package messaging implements the fixed-size binary frame protocol shared by
// every Linkage process.
//
// Every message on every socket is exactly one 8-byte Frame. Byte 0 is the
// tag identifying the message variant; the remaining bytes carry a
// tag-specific payload. Unused bytes are always zero and are checked on
// decode, so a decoder never accepts a frame meant for another family.
//
// Families and their tags:
//
//	Frontend -> Backend      0x00 Enable, 0x01 Disable
//	Backend  -> Frontend     0x08 Enabled, 0x09 Disabled
//	Backend  -> Runtime      0x10 Enable, 0x11 Disable
//	Runtime  -> Backend      0x18 Enabled, 0x19 Disabled
//	Cockpit  -> Linkage      0x20 GamepadInputEvent (bytes 4..7)
//	Linkage  -> Carburetor   0x40 MotorInstruction (byte 1 channel, bytes 4..7 BE f32)
package messaging

import "time"

// FrameSize is the length of every frame on the wire.
const FrameSize = 8

// Frontend -> Backend
const (
	TagFrontendEnable  = 0x00
	TagFrontendDisable = 0x01
)

// Backend -> Frontend
const (
	TagBackendEnabled  = 0x08
	TagBackendDisabled = 0x09
)

// Backend -> Runtime
const (
	TagRuntimeEnable  = 0x10
	TagRuntimeDisable = 0x11
)

// Runtime -> Backend
const (
	TagRuntimeEnabled  = 0x18
	TagRuntimeDisabled = 0x19
)

// Cockpit -> Linkage
const TagGamepadInputEvent = 0x20

// Linkage -> Carburetor
const TagMotorInstruction = 0x40

// Pulse timing for the PWM channels driven by the carburetor.
const (
	PWMPeriod         = 20 * time.Millisecond // 50 Hz
	PulseNeutralMicro = 1500
	PulseDeltaMicro   = 500
)

// speedPrecision is the number of decimal places kept when decoding a
// motor speed.
const speedPrecision = 10_000
