// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package messaging

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Record is one captured frame in a recording. Recordings are a plain
// sequence of CBOR items: {1: offset_ns, 2: frame_bytes}.
type Record struct {
	Offset time.Duration `cbor:"1,keyasint"`
	Frame  []byte        `cbor:"2,keyasint"`
}

// Recorder appends timestamped frames to a CBOR stream.
type Recorder struct {
	enc   *cbor.Encoder
	start time.Time
	now   func() time.Time
}

// NewRecorder creates a recorder writing to w. Offsets are measured from the
// moment of creation.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{
		enc:   cbor.NewEncoder(w),
		start: time.Now(),
		now:   time.Now,
	}
}

// Write records f at the current offset.
func (r *Recorder) Write(f Frame) error {
	rec := Record{
		Offset: r.now().Sub(r.start),
		Frame:  append([]byte(nil), f[:]...),
	}
	if err := r.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	return nil
}

// Player reads back a recording.
type Player struct {
	dec *cbor.Decoder
}

// NewPlayer creates a player reading from r.
func NewPlayer(r io.Reader) *Player {
	return &Player{dec: cbor.NewDecoder(r)}
}

// Next returns the next frame and its offset from the start of the
// recording. io.EOF marks the end of the recording.
func (p *Player) Next() (Frame, time.Duration, error) {
	var rec Record
	if err := p.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, 0, io.EOF
		}
		return Frame{}, 0, fmt.Errorf("failed to decode record: %w", err)
	}
	f, err := FrameFromBytes(rec.Frame)
	if err != nil {
		return Frame{}, 0, err
	}
	return f, rec.Offset, nil
}
