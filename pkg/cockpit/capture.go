// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package cockpit is the operator side of Linkage: it captures gamepad
// input, relays enable and disable requests from the frontend to the
// runtime, and streams gamepad frames to the robot program.
package cockpit

import (
	"fmt"
	"sync"

	"github.com/Thermoquad/linkage/pkg/linkage/gamepad"
	"github.com/Thermoquad/linkage/pkg/messaging"
)

// RawEvent is an input event as reported by a capture device, before
// encoding for the wire.
type RawEvent struct {
	// Device identifies the physical controller, for example its device path
	Device  string
	Type    gamepad.EventType
	Control uint8
	// Value is in [0, 1] for buttons and [-1, 1] for axes
	Value float32
}

// ScaleButton maps a button value in [0, 1] onto 0..255
func ScaleButton(v float32) uint8 {
	return uint8(min(max(v, 0), 1) * 255)
}

// ScaleAxis maps an axis value in [-1, 1] onto 0..255
func ScaleAxis(v float32) uint8 {
	return uint8(((min(max(v, -1), 1) + 1) / 2) * 255)
}

// IDMap assigns a small gamepad id to each device on first sight. Ids are
// never reused, so two devices never share one.
type IDMap struct {
	mu  sync.Mutex
	ids map[string]uint8
}

// NewIDMap creates an empty map
func NewIDMap() *IDMap {
	return &IDMap{ids: make(map[string]uint8)}
}

// ID returns the id for device, assigning the next free one if needed
func (m *IDMap) ID(device string) (uint8, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.ids[device]; ok {
		return id, nil
	}
	if len(m.ids) > 0xFF {
		return 0, fmt.Errorf("no gamepad id left for %s", device)
	}
	id := uint8(len(m.ids))
	m.ids[device] = id
	return id, nil
}

// Encode converts a raw event into its wire form
func (m *IDMap) Encode(ev RawEvent) (messaging.GamepadInputEvent, error) {
	id, err := m.ID(ev.Device)
	if err != nil {
		return messaging.GamepadInputEvent{}, err
	}
	out := messaging.GamepadInputEvent{GamepadID: id, EventType: uint8(ev.Type)}
	switch ev.Type {
	case gamepad.ButtonChanged:
		out.Control = ev.Control
		out.Value = ScaleButton(ev.Value)
	case gamepad.AxisChanged:
		out.Control = ev.Control
		out.Value = ScaleAxis(ev.Value)
	case gamepad.Connected, gamepad.Disconnected:
	default:
		return messaging.GamepadInputEvent{}, fmt.Errorf("invalid event type %d", ev.Type)
	}
	return out, nil
}
