// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package messaging

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
)

func TestRecorderPlayer(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(&buf)

	base := rec.start
	offsets := []time.Duration{0, 20 * time.Millisecond, 45 * time.Millisecond}
	frames := []Frame{
		GamepadInputEvent{GamepadID: 0, EventType: 2}.Frame(),
		GamepadInputEvent{GamepadID: 0, EventType: 1, Control: 2, Value: 0}.Frame(),
		GamepadInputEvent{GamepadID: 0, EventType: 3}.Frame(),
	}
	for i, f := range frames {
		at := base.Add(offsets[i])
		rec.now = func() time.Time { return at }
		if err := rec.Write(f); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	player := NewPlayer(&buf)
	for i := range frames {
		f, offset, err := player.Next()
		if err != nil {
			t.Fatalf("Next %d failed: %v", i, err)
		}
		if f != frames[i] {
			t.Errorf("frame %d = %v, want %v", i, f, frames[i])
		}
		if offset != offsets[i] {
			t.Errorf("offset %d = %v, want %v", i, offset, offsets[i])
		}
	}
	if _, _, err := player.Next(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestPlayer_BadFrameLength(t *testing.T) {
	data, err := cbor.Marshal(Record{Offset: 0, Frame: []byte{1, 2, 3}})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	_, _, err = NewPlayer(bytes.NewReader(data)).Next()
	if !errors.Is(err, ErrFrameLength) {
		t.Errorf("expected ErrFrameLength, got %v", err)
	}
}
