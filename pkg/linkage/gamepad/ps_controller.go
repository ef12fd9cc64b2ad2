// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gamepad

// PsController maps PlayStation names onto the generic control codes.
type PsController struct {
	data *Data
}

// NewPsController wraps d
func NewPsController(d *Data) PsController {
	return PsController{data: d}
}

// PsControllerAt returns the controller in slot index as a PsController
func PsControllerAt(m *Manager, index Index) (PsController, bool) {
	return Get(m, index, NewPsController)
}

// Data returns the underlying state
func (p PsController) Data() *Data { return p.data }

func (p PsController) button(control uint8) bool {
	return ButtonValue(p.data.Buttons, control)
}

func (p PsController) Triangle() bool { return p.button(ButtonNorth) }
func (p PsController) Square() bool   { return p.button(ButtonWest) }
func (p PsController) Cross() bool    { return p.button(ButtonSouth) }
func (p PsController) Circle() bool   { return p.button(ButtonEast) }

func (p PsController) DpadUp() bool    { return p.button(ButtonDpadUp) }
func (p PsController) DpadDown() bool  { return p.button(ButtonDpadDown) }
func (p PsController) DpadLeft() bool  { return p.button(ButtonDpadLeft) }
func (p PsController) DpadRight() bool { return p.button(ButtonDpadRight) }

func (p PsController) LeftBumper() bool  { return p.button(ButtonLeftTrigger) }
func (p PsController) RightBumper() bool { return p.button(ButtonRightTrigger) }

// LeftTrigger returns the analog trigger in [0, 1]. Triggers are reported as
// buttons with an analog value.
func (p PsController) LeftTrigger() float32 {
	return AxisValue(p.data.Buttons, ButtonLeftTrigger2, 0, 1)
}

// RightTrigger returns the analog trigger in [0, 1].
func (p PsController) RightTrigger() float32 {
	return AxisValue(p.data.Buttons, ButtonRightTrigger2, 0, 1)
}

// LeftJoystickX returns the stick position in [-1, 1].
func (p PsController) LeftJoystickX() float32 {
	return AxisValue(p.data.Axes, AxisLeftStickX, -1, 1)
}

// LeftJoystickY returns the stick position in [-1, 1].
func (p PsController) LeftJoystickY() float32 {
	return AxisValue(p.data.Axes, AxisLeftStickY, -1, 1)
}

func (p PsController) LeftJoystickButton() bool { return p.button(ButtonLeftThumb) }

// RightJoystickX returns the stick position in [-1, 1].
func (p PsController) RightJoystickX() float32 {
	return AxisValue(p.data.Axes, AxisRightStickX, -1, 1)
}

// RightJoystickY returns the stick position in [-1, 1].
func (p PsController) RightJoystickY() float32 {
	return AxisValue(p.data.Axes, AxisRightStickY, -1, 1)
}

func (p PsController) RightJoystickButton() bool { return p.button(ButtonRightThumb) }

func (p PsController) Share() bool   { return p.button(ButtonSelect) }
func (p PsController) Options() bool { return p.button(ButtonStart) }
func (p PsController) Home() bool    { return p.button(ButtonMode) }
