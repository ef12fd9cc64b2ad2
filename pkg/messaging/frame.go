// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package messaging

import (
	"errors"
	"fmt"
	"io"
)

// Frame is the only unit ever placed on a Linkage socket.
type Frame [FrameSize]byte

// ErrFrameLength is returned when a payload is not exactly FrameSize bytes.
var ErrFrameLength = errors.New("frame must be exactly 8 bytes")

// Tag returns the frame's instruction tag.
func (f Frame) Tag() uint8 {
	return f[0]
}

// Bytes returns the frame as a slice, ready for a Write call.
func (f Frame) Bytes() []byte {
	return f[:]
}

// String returns the frame as a bracketed decimal byte list.
func (f Frame) String() string {
	return fmt.Sprintf("%v", [FrameSize]byte(f))
}

// FrameFromBytes converts a variable-length payload, such as a websocket
// message, into a Frame. Anything other than exactly 8 bytes is rejected.
func FrameFromBytes(b []byte) (Frame, error) {
	var f Frame
	if len(b) != FrameSize {
		return f, fmt.Errorf("%w: got %d", ErrFrameLength, len(b))
	}
	copy(f[:], b)
	return f, nil
}

// ReadFrame blocks until a full frame has been read from r.
//
// A connection closed between frames yields io.EOF; a connection closed in
// the middle of a frame yields io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader) (Frame, error) {
	var f Frame
	if _, err := io.ReadFull(r, f[:]); err != nil {
		return f, err
	}
	return f, nil
}

// WriteFrame writes the whole frame to w.
func WriteFrame(w io.Writer, f Frame) error {
	n, err := w.Write(f[:])
	if err != nil {
		return err
	}
	if n != FrameSize {
		return io.ErrShortWrite
	}
	return nil
}

// reservedZero reports whether every byte in f[from:to] is zero.
func (f Frame) reservedZero(from, to int) bool {
	for _, b := range f[from:to] {
		if b != 0 {
			return false
		}
	}
	return true
}
