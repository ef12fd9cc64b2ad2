// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package carburetor

import (
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

// maestroSetTarget is the Pololu compact protocol "set target" command
const maestroSetTarget = 0x84

// Maestro drives a Pololu Maestro servo controller over its USB serial
// command port. Targets are in quarter microseconds.
type Maestro struct {
	mu   sync.Mutex
	port io.ReadWriteCloser
}

// OpenMaestro opens the controller's command port
func OpenMaestro(portName string, baudRate int) (*Maestro, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	return &Maestro{port: port}, nil
}

// SetPulseWidth implements Driver
func (m *Maestro) SetPulseWidth(channel uint8, width time.Duration) error {
	if channel > 0x7F {
		return fmt.Errorf("%w: %d", ErrUnknownChannel, channel)
	}
	cmd := encodeSetTarget(channel, width)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.port.Write(cmd[:]); err != nil {
		return fmt.Errorf("failed to write set target: %w", err)
	}
	return nil
}

// Close closes the serial port
func (m *Maestro) Close() error {
	return m.port.Close()
}

// encodeSetTarget builds 0x84, channel, target low 7 bits, target high 7 bits
func encodeSetTarget(channel uint8, width time.Duration) [4]byte {
	target := uint16(width.Microseconds() * 4)
	return [4]byte{
		maestroSetTarget,
		channel,
		byte(target & 0x7F),
		byte((target >> 7) & 0x7F),
	}
}
