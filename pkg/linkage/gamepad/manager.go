// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gamepad

import (
	"log/slog"

	"github.com/Thermoquad/linkage/pkg/logging"
	"github.com/Thermoquad/linkage/pkg/messaging"
)

// Index selects a controller slot in connection order
type Index int

// Well-known slots
const (
	Primary   Index = 0
	Secondary Index = 1
)

// Gamepad is a named-control view over a controller's Data. Views hold no
// state of their own.
type Gamepad interface {
	Data() *Data
}

// Manager keeps one slot per connected controller. Slots are addressed by
// position; a slot freed by a disconnect is reused by the next new
// controller before the arena grows.
//
// Manager is not safe for concurrent use; callers guard it with the robot
// state lock.
type Manager struct {
	slots  []*Data
	logger *slog.Logger
}

// NewManager creates an empty manager
func NewManager(logger *slog.Logger) *Manager {
	logger = logging.OrDefault(logger)
	return &Manager{logger: logger}
}

// HandleEvent applies one input event received from the cockpit
func (m *Manager) HandleEvent(ev messaging.GamepadInputEvent) {
	t, err := ParseEventType(ev.EventType)
	if err != nil {
		m.logger.Error("dropping gamepad event", "gamepad_id", ev.GamepadID, "error", err)
		return
	}

	switch t {
	case ButtonChanged, AxisChanged:
		if m.insertIfMissing(ev.GamepadID, t, ev.Control, ev.Value) {
			return
		}
		m.slots[m.indexOf(ev.GamepadID)].apply(t, ev.Control, ev.Value)
	case Connected:
		m.insertIfMissing(ev.GamepadID, t, ev.Control, ev.Value)
	case Disconnected:
		if i := m.indexOf(ev.GamepadID); i >= 0 {
			m.slots[i] = nil
		}
	}
}

// insertIfMissing creates a slot for id with the event applied, and reports
// whether it did so.
func (m *Manager) insertIfMissing(id uint8, t EventType, control, value uint8) bool {
	if m.indexOf(id) >= 0 {
		return false
	}
	d := NewData(id)
	d.apply(t, control, value)
	for i, slot := range m.slots {
		if slot == nil {
			m.slots[i] = d
			return true
		}
	}
	m.slots = append(m.slots, d)
	return true
}

func (m *Manager) indexOf(id uint8) int {
	for i, slot := range m.slots {
		if slot != nil && slot.ID == id {
			return i
		}
	}
	return -1
}

// Data returns a copy of the controller state in slot index
func (m *Manager) Data(index Index) (*Data, bool) {
	if index < 0 || int(index) >= len(m.slots) || m.slots[index] == nil {
		return nil, false
	}
	return m.slots[index].Clone(), true
}

// Slot returns the slot position holding id, or -1
func (m *Manager) Slot(id uint8) int {
	return m.indexOf(id)
}

// Len returns the arena size, free slots included
func (m *Manager) Len() int {
	return len(m.slots)
}

// Get returns the controller in slot index wrapped in a view built by newView.
func Get[G Gamepad](m *Manager, index Index, newView func(*Data) G) (G, bool) {
	d, ok := m.Data(index)
	if !ok {
		var zero G
		return zero, false
	}
	return newView(d), true
}
