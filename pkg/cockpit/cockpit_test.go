// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cockpit

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/linkage/pkg/config"
	"github.com/Thermoquad/linkage/pkg/linkage/gamepad"
	"github.com/Thermoquad/linkage/pkg/logging"
	"github.com/Thermoquad/linkage/pkg/messaging"
)

// ============================================================
// Scaling and Id Mapping
// ============================================================

func TestScaleButton(t *testing.T) {
	tests := []struct {
		in   float32
		want uint8
	}{
		{0, 0},
		{1, 255},
		{0.5, 127},
		{-3, 0},
		{7, 255},
	}
	for _, tt := range tests {
		if got := ScaleButton(tt.in); got != tt.want {
			t.Errorf("ScaleButton(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestScaleAxis(t *testing.T) {
	tests := []struct {
		in   float32
		want uint8
	}{
		{-1, 0},
		{0, 127},
		{1, 255},
		{-2, 0},
		{2, 255},
		{0.5, 191},
	}
	for _, tt := range tests {
		if got := ScaleAxis(tt.in); got != tt.want {
			t.Errorf("ScaleAxis(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestIDMapAssignsOnFirstSight(t *testing.T) {
	m := NewIDMap()

	a, err := m.ID("/dev/input/js0")
	require.NoError(t, err)
	b, err := m.ID("/dev/input/js1")
	require.NoError(t, err)
	again, err := m.ID("/dev/input/js0")
	require.NoError(t, err)

	require.Equal(t, uint8(0), a)
	require.Equal(t, uint8(1), b)
	require.Equal(t, a, again)
}

func TestIDMapExhausted(t *testing.T) {
	m := NewIDMap()
	for i := 0; i < 256; i++ {
		_, err := m.ID(strings.Repeat("x", i+1))
		require.NoError(t, err)
	}
	_, err := m.ID("one too many")
	require.Error(t, err)
}

func TestEncode(t *testing.T) {
	m := NewIDMap()
	tests := []struct {
		name string
		raw  RawEvent
		want messaging.GamepadInputEvent
	}{
		{
			name: "button",
			raw:  RawEvent{Device: "a", Type: gamepad.ButtonChanged, Control: gamepad.ButtonSouth, Value: 1},
			want: messaging.GamepadInputEvent{GamepadID: 0, EventType: 0, Control: gamepad.ButtonSouth, Value: 255},
		},
		{
			name: "axis",
			raw:  RawEvent{Device: "a", Type: gamepad.AxisChanged, Control: gamepad.AxisLeftStickY, Value: -1},
			want: messaging.GamepadInputEvent{GamepadID: 0, EventType: 1, Control: gamepad.AxisLeftStickY, Value: 0},
		},
		{
			name: "connected drops payload",
			raw:  RawEvent{Device: "b", Type: gamepad.Connected, Control: 9, Value: 1},
			want: messaging.GamepadInputEvent{GamepadID: 1, EventType: 2},
		},
		{
			name: "disconnected",
			raw:  RawEvent{Device: "b", Type: gamepad.Disconnected},
			want: messaging.GamepadInputEvent{GamepadID: 1, EventType: 3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Encode(tt.raw)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Encode mismatch (-want +got):\n%s", diff)
			}
		})
	}

	_, err := m.Encode(RawEvent{Device: "a", Type: gamepad.EventType(9)})
	require.Error(t, err)
}

// ============================================================
// Joystick
// ============================================================

func jsRecord(value int16, typ, number uint8) []byte {
	b := make([]byte, jsEventSize)
	binary.LittleEndian.PutUint32(b[0:4], 1234)
	binary.LittleEndian.PutUint16(b[4:6], uint16(value))
	b[6] = typ
	b[7] = number
	return b
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		ev   jsEvent
		want RawEvent
		ok   bool
	}{
		{
			name: "cross pressed",
			ev:   jsEvent{Value: 1, Type: jsEventButton, Number: 0},
			want: RawEvent{Device: "js", Type: gamepad.ButtonChanged, Control: gamepad.ButtonSouth, Value: 1},
			ok:   true,
		},
		{
			name: "initial state counts",
			ev:   jsEvent{Value: 0, Type: jsEventButton | jsEventInit, Number: 2},
			want: RawEvent{Device: "js", Type: gamepad.ButtonChanged, Control: gamepad.ButtonNorth, Value: 0},
			ok:   true,
		},
		{
			name: "left stick up is positive",
			ev:   jsEvent{Value: -jsAxisMax, Type: jsEventAxis, Number: 1},
			want: RawEvent{Device: "js", Type: gamepad.AxisChanged, Control: gamepad.AxisLeftStickY, Value: 1},
			ok:   true,
		},
		{
			name: "right stick x",
			ev:   jsEvent{Value: jsAxisMax, Type: jsEventAxis, Number: 3},
			want: RawEvent{Device: "js", Type: gamepad.AxisChanged, Control: gamepad.AxisRightStickX, Value: 1},
			ok:   true,
		},
		{
			name: "analog trigger becomes button",
			ev:   jsEvent{Value: jsAxisMax, Type: jsEventAxis, Number: 2},
			want: RawEvent{Device: "js", Type: gamepad.ButtonChanged, Control: gamepad.ButtonLeftTrigger2, Value: 1},
			ok:   true,
		},
		{
			name: "unmapped button",
			ev:   jsEvent{Value: 1, Type: jsEventButton, Number: 40},
		},
		{
			name: "unknown type",
			ev:   jsEvent{Value: 1, Type: 0x04, Number: 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := translate("js", tt.ev)
			require.Equal(t, tt.ok, ok)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("translate mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeJsEvent(t *testing.T) {
	got := decodeJsEvent(jsRecord(-200, jsEventAxis, 4))
	want := jsEvent{Time: 1234, Value: -200, Type: jsEventAxis, Number: 4}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decodeJsEvent mismatch (-want +got):\n%s", diff)
	}
}

func TestJoystickCapture(t *testing.T) {
	r, w := io.Pipe()
	j := &Joystick{Path: "/dev/input/js7", IDs: NewIDMap(), Logger: logging.Discard()}

	var (
		mu     sync.Mutex
		events []messaging.GamepadInputEvent
	)
	emit := func(ev messaging.GamepadInputEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}

	done := make(chan error, 1)
	go func() {
		done <- j.capture(context.Background(), r, emit)
	}()

	_, err := w.Write(jsRecord(1, jsEventButton, 0))
	require.NoError(t, err)
	_, err = w.Write(jsRecord(0, 0x04, 0))
	require.NoError(t, err)
	_, err = w.Write(jsRecord(jsAxisMax, jsEventAxis, 0))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("capture did not stop after the device went away")
	}

	want := []messaging.GamepadInputEvent{
		{GamepadID: 0, EventType: uint8(gamepad.Connected)},
		{GamepadID: 0, EventType: uint8(gamepad.ButtonChanged), Control: gamepad.ButtonSouth, Value: 255},
		{GamepadID: 0, EventType: uint8(gamepad.AxisChanged), Control: gamepad.AxisLeftStickX, Value: 255},
		{GamepadID: 0, EventType: uint8(gamepad.Disconnected)},
	}
	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("captured events mismatch (-want +got):\n%s", diff)
	}
}

func TestJoystickRunStopsOnCancel(t *testing.T) {
	j := &Joystick{
		Path:      t.TempDir() + "/missing",
		IDs:       NewIDMap(),
		Reconnect: 5 * time.Millisecond,
		Logger:    logging.Discard(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := j.Run(ctx, func(messaging.GamepadInputEvent) {
		t.Error("no events expected from a missing device")
	})
	require.NoError(t, err)
}

// ============================================================
// Replay
// ============================================================

func TestReplay(t *testing.T) {
	var buf bytes.Buffer
	rec := messaging.NewRecorder(&buf)
	first := messaging.GamepadInputEvent{GamepadID: 1, EventType: 0, Control: 4, Value: 255}
	second := messaging.GamepadInputEvent{GamepadID: 1, EventType: 1, Control: 2, Value: 10}
	require.NoError(t, rec.Write(first.Frame()))
	require.NoError(t, rec.Write(messaging.RuntimeEnabled.Frame()))
	require.NoError(t, rec.Write(second.Frame()))

	src := &Replay{Player: messaging.NewPlayer(&buf), Speed: 1000, Logger: logging.Discard()}
	var got []messaging.GamepadInputEvent
	err := src.Run(context.Background(), func(ev messaging.GamepadInputEvent) {
		got = append(got, ev)
	})
	require.NoError(t, err)
	if diff := cmp.Diff([]messaging.GamepadInputEvent{first, second}, got); diff != "" {
		t.Errorf("replayed events mismatch (-want +got):\n%s", diff)
	}
}

// ============================================================
// Hub
// ============================================================

func TestHubBroadcast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	a, ok := hub.Subscribe(ctx)
	require.True(t, ok)
	b, ok := hub.Subscribe(ctx)
	require.True(t, ok)

	f := messaging.GamepadInputEvent{GamepadID: 3, EventType: 2}.Frame()
	hub.Publish(f)

	for _, ch := range []chan messaging.Frame{a, b} {
		select {
		case got := <-ch:
			require.Equal(t, f, got)
		case <-time.After(time.Second):
			t.Fatal("viewer did not receive frame")
		}
	}

	hub.Unsubscribe(ctx, a)
	_, open := <-a
	require.False(t, open)
}

func TestHubSlowViewerLosesFrames(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(WithClientBuffer(1))
	go hub.Run(ctx)

	slow, ok := hub.Subscribe(ctx)
	require.True(t, ok)
	for i := 0; i < 10; i++ {
		hub.Publish(messaging.GamepadInputEvent{Value: uint8(i)}.Frame())
	}

	require.Eventually(t, func() bool { return len(slow) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.Len(t, slow, 1)
}

// ============================================================
// Capture and Link
// ============================================================

type scriptedSource []messaging.GamepadInputEvent

func (s scriptedSource) Run(ctx context.Context, emit func(messaging.GamepadInputEvent)) error {
	for _, ev := range s {
		emit(ev)
	}
	return nil
}

// acceptFrames accepts one connection on ln and forwards its frames
func acceptFrames(t *testing.T, ln net.Listener) <-chan messaging.Frame {
	t.Helper()
	out := make(chan messaging.Frame, 64)
	go func() {
		defer close(out)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			f, err := messaging.ReadFrame(conn)
			if err != nil {
				return
			}
			out <- f
		}
	}()
	return out
}

func TestLinkDeliversInOrder(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	received := acceptFrames(t, ln)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	capture := NewCapture(4, nil)
	link := NewLink(time.Second, logging.Discard())

	// Discarded while disconnected
	link.write(messaging.GamepadInputEvent{Value: 99}.Frame())

	go link.Run(ctx, capture.Frames())
	require.NoError(t, link.Connect(ln.Addr().String()))
	require.True(t, link.Connected())

	var script scriptedSource
	for i := 0; i < 20; i++ {
		script = append(script, messaging.GamepadInputEvent{GamepadID: 0, EventType: 1, Control: 1, Value: uint8(i)})
	}
	require.NoError(t, capture.Run(ctx, script))

	for i := 0; i < 20; i++ {
		select {
		case f := <-received:
			ev, err := messaging.DecodeCockpitToLinkage(f)
			require.NoError(t, err)
			require.Equal(t, uint8(i), ev.Value)
		case <-time.After(time.Second):
			t.Fatalf("frame %d not delivered", i)
		}
	}

	link.Disconnect()
	require.False(t, link.Connected())
}

// ============================================================
// Backend
// ============================================================

// fakeRuntime answers every request with reply(request)
func fakeRuntime(t *testing.T, reply func(messaging.BackendToRuntime) messaging.RuntimeToBackend) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				for {
					f, err := messaging.ReadFrame(conn)
					if err != nil {
						return
					}
					req, err := messaging.DecodeBackendToRuntime(f)
					if err != nil {
						return
					}
					if err := messaging.WriteFrame(conn, reply(req).Frame()); err != nil {
						return
					}
				}
			}()
		}
	}()
	return ln
}

func mirror(req messaging.BackendToRuntime) messaging.RuntimeToBackend {
	if req == messaging.RuntimeEnable {
		return messaging.RuntimeEnabled
	}
	return messaging.RuntimeDisabled
}

func testBackend(t *testing.T, runtimeAddr, linkageAddr string) *Backend {
	t.Helper()
	cfg := config.Default().Backend
	cfg.RuntimeAddr = runtimeAddr
	cfg.LinkageAddr = linkageAddr
	cfg.ReplyTimeoutMs = 1000
	return NewBackend(cfg, logging.Discard())
}

func TestBackendEnableConnectsLinkage(t *testing.T) {
	rt := fakeRuntime(t, mirror)
	defer rt.Close()
	robot, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer robot.Close()
	acceptFrames(t, robot)

	b := testBackend(t, rt.Addr().String(), robot.Addr().String())
	defer b.closeRuntime()

	reply, err := b.Request(context.Background(), messaging.FrontendEnable)
	require.NoError(t, err)
	require.Equal(t, messaging.BackendEnabled, reply)
	require.True(t, b.Link().Connected())

	reply, err = b.Request(context.Background(), messaging.FrontendDisable)
	require.NoError(t, err)
	require.Equal(t, messaging.BackendDisabled, reply)
	require.False(t, b.Link().Connected())
}

func TestBackendUnexpectedReplyClosesRuntimeLink(t *testing.T) {
	rt := fakeRuntime(t, func(messaging.BackendToRuntime) messaging.RuntimeToBackend {
		return messaging.RuntimeDisabled
	})
	defer rt.Close()

	b := testBackend(t, rt.Addr().String(), "127.0.0.1:1")

	reply, err := b.Request(context.Background(), messaging.FrontendEnable)
	require.ErrorIs(t, err, ErrUnexpectedReply)
	require.Equal(t, messaging.BackendDisabled, reply)
	require.Nil(t, b.runtime)
	require.False(t, b.Link().Connected())
}

func TestBackendUnexpectedEnabledOnDisableAcksDisabled(t *testing.T) {
	rt := fakeRuntime(t, func(messaging.BackendToRuntime) messaging.RuntimeToBackend {
		return messaging.RuntimeEnabled
	})
	defer rt.Close()
	robot, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer robot.Close()
	acceptFrames(t, robot)

	b := testBackend(t, rt.Addr().String(), robot.Addr().String())

	reply, err := b.Request(context.Background(), messaging.FrontendEnable)
	require.NoError(t, err)
	require.Equal(t, messaging.BackendEnabled, reply)
	require.True(t, b.Link().Connected())

	// Closing the runtime link disables the runtime, so the frontend must
	// not be told Enabled.
	reply, err = b.Request(context.Background(), messaging.FrontendDisable)
	require.ErrorIs(t, err, ErrUnexpectedReply)
	require.Equal(t, messaging.BackendDisabled, reply)
	require.Nil(t, b.runtime)
	require.False(t, b.Link().Connected())
}

func TestBackendRuntimeUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	b := testBackend(t, addr, "127.0.0.1:1")
	reply, err := b.Request(context.Background(), messaging.FrontendEnable)
	require.Error(t, err)
	require.Equal(t, messaging.BackendDisabled, reply)
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestBackendControlWebsocket(t *testing.T) {
	rt := fakeRuntime(t, mirror)
	defer rt.Close()
	robot, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer robot.Close()
	acceptFrames(t, robot)

	b := testBackend(t, rt.Addr().String(), robot.Addr().String())
	defer b.closeRuntime()
	srv := httptest.NewServer(b.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/control"), nil)
	require.NoError(t, err)
	defer conn.Close()

	// Garbage is skipped without a reply
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}))

	tests := []struct {
		req  messaging.FrontendToBackend
		want messaging.BackendToFrontend
	}{
		{messaging.FrontendEnable, messaging.BackendEnabled},
		{messaging.FrontendEnable, messaging.BackendEnabled},
		{messaging.FrontendDisable, messaging.BackendDisabled},
	}
	for _, tt := range tests {
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, tt.req.Frame().Bytes()))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		f, err := messaging.FrameFromBytes(data)
		require.NoError(t, err)
		got, err := messaging.DecodeBackendToFrontend(f)
		require.NoError(t, err)
		require.Equal(t, tt.want, got)
	}
}

func TestBackendGamepadViewer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := testBackend(t, "127.0.0.1:1", "127.0.0.1:1")
	go b.Hub().Run(ctx)
	srv := httptest.NewServer(b.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/gamepad"), nil)
	require.NoError(t, err)
	defer conn.Close()

	want := messaging.GamepadInputEvent{GamepadID: 2, EventType: 1, Control: 5, Value: 200}
	received := make(chan messaging.Frame, 1)
	go func() {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f, err := messaging.FrameFromBytes(data)
		if err == nil {
			received <- f
		}
	}()

	// Publish until the viewer has registered and picked one up
	require.Eventually(t, func() bool {
		b.Hub().Publish(want.Frame())
		select {
		case f := <-received:
			return f == want.Frame()
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
