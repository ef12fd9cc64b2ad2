// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cockpit

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/Thermoquad/linkage/pkg/linkage/gamepad"
	"github.com/Thermoquad/linkage/pkg/logging"
	"github.com/Thermoquad/linkage/pkg/messaging"
)

// Linux joystick API event layout (struct js_event)
const (
	jsEventSize = 8

	jsEventButton = 0x01
	jsEventAxis   = 0x02
	jsEventInit   = 0x80

	jsAxisMax = 32767
)

// Source produces gamepad events until ctx is done or the source runs dry
type Source interface {
	Run(ctx context.Context, emit func(messaging.GamepadInputEvent)) error
}

// jsEvent is one record read from /dev/input/jsN
type jsEvent struct {
	Time   uint32
	Value  int16
	Type   uint8
	Number uint8
}

func decodeJsEvent(b []byte) jsEvent {
	return jsEvent{
		Time:   binary.LittleEndian.Uint32(b[0:4]),
		Value:  int16(binary.LittleEndian.Uint16(b[4:6])),
		Type:   b[6],
		Number: b[7],
	}
}

// jsButtons maps joystick button numbers to control codes, in the order
// the Linux PlayStation drivers report them.
var jsButtons = map[uint8]uint8{
	0:  gamepad.ButtonSouth,
	1:  gamepad.ButtonEast,
	2:  gamepad.ButtonNorth,
	3:  gamepad.ButtonWest,
	4:  gamepad.ButtonLeftTrigger,
	5:  gamepad.ButtonRightTrigger,
	6:  gamepad.ButtonLeftTrigger2,
	7:  gamepad.ButtonRightTrigger2,
	8:  gamepad.ButtonSelect,
	9:  gamepad.ButtonStart,
	10: gamepad.ButtonMode,
	11: gamepad.ButtonLeftThumb,
	12: gamepad.ButtonRightThumb,
}

type jsAxis struct {
	control uint8
	// analog triggers are reported as button values in [0, 1]
	trigger bool
	invert  bool
}

var jsAxes = map[uint8]jsAxis{
	0: {control: gamepad.AxisLeftStickX},
	1: {control: gamepad.AxisLeftStickY, invert: true},
	2: {control: gamepad.ButtonLeftTrigger2, trigger: true},
	3: {control: gamepad.AxisRightStickX},
	4: {control: gamepad.AxisRightStickY, invert: true},
	5: {control: gamepad.ButtonRightTrigger2, trigger: true},
	6: {control: gamepad.AxisDpadX},
	7: {control: gamepad.AxisDpadY, invert: true},
}

// translate maps a joystick record onto a raw event. ok is false for
// records with no mapping.
func translate(device string, ev jsEvent) (RawEvent, bool) {
	switch ev.Type &^ jsEventInit {
	case jsEventButton:
		control, ok := jsButtons[ev.Number]
		if !ok {
			return RawEvent{}, false
		}
		var v float32
		if ev.Value != 0 {
			v = 1
		}
		return RawEvent{Device: device, Type: gamepad.ButtonChanged, Control: control, Value: v}, true
	case jsEventAxis:
		axis, ok := jsAxes[ev.Number]
		if !ok {
			return RawEvent{}, false
		}
		v := float32(ev.Value) / jsAxisMax
		if axis.invert {
			v = -v
		}
		if axis.trigger {
			return RawEvent{Device: device, Type: gamepad.ButtonChanged, Control: axis.control, Value: (v + 1) / 2}, true
		}
		return RawEvent{Device: device, Type: gamepad.AxisChanged, Control: axis.control, Value: v}, true
	}
	return RawEvent{}, false
}

// Joystick captures a Linux joystick device. It reopens the device after a
// disconnect, backing off between attempts.
type Joystick struct {
	Path         string
	IDs          *IDMap
	Reconnect    time.Duration
	ReconnectMax time.Duration
	Logger       *slog.Logger
}

// Run implements Source
func (j *Joystick) Run(ctx context.Context, emit func(messaging.GamepadInputEvent)) error {
	logger := logging.OrDefault(j.Logger)
	logger = logger.With("device", j.Path)

	attempt := 0
	for ctx.Err() == nil {
		f, err := os.Open(j.Path)
		if err != nil {
			if attempt == 0 {
				logger.Warn("joystick unavailable", "error", err)
			}
			attempt++
			j.sleepBackoff(ctx, attempt)
			continue
		}
		attempt = 0

		logger.Info("joystick connected")
		err = j.capture(ctx, f, emit)
		_ = f.Close()
		if ctx.Err() != nil {
			return nil
		}
		logger.Warn("joystick disconnected", "error", err)
		j.sleepBackoff(ctx, 1)
	}
	return nil
}

// capture emits Connected, then every mapped event, then Disconnected when
// reading fails.
func (j *Joystick) capture(ctx context.Context, r io.ReadCloser, emit func(messaging.GamepadInputEvent)) error {
	stop := context.AfterFunc(ctx, func() { _ = r.Close() })
	defer stop()

	send := func(raw RawEvent) error {
		ev, err := j.IDs.Encode(raw)
		if err != nil {
			return err
		}
		emit(ev)
		return nil
	}

	if err := send(RawEvent{Device: j.Path, Type: gamepad.Connected}); err != nil {
		return err
	}
	defer func() {
		_ = send(RawEvent{Device: j.Path, Type: gamepad.Disconnected})
	}()

	var buf [jsEventSize]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			if errors.Is(err, os.ErrClosed) {
				return ctx.Err()
			}
			return fmt.Errorf("read %s: %w", j.Path, err)
		}
		raw, ok := translate(j.Path, decodeJsEvent(buf[:]))
		if !ok {
			continue
		}
		if err := send(raw); err != nil {
			return err
		}
	}
}

func (j *Joystick) sleepBackoff(ctx context.Context, attempt int) {
	base, limit := j.Reconnect, j.ReconnectMax
	if base <= 0 {
		base = time.Second
	}
	if limit <= 0 {
		limit = 30 * time.Second
	}
	wait := min(base*time.Duration(attempt), limit)
	timer := time.NewTimer(wait)
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	timer.Stop()
}
