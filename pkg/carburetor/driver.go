// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package carburetor drives PWM motor controllers from motor instructions
// sent by the robot program.
package carburetor

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Thermoquad/linkage/pkg/config"
	"github.com/Thermoquad/linkage/pkg/logging"
)

// Driver applies pulse widths to PWM channels. SetPulseWidth is called from
// one goroutine per channel, so implementations must allow concurrent calls
// for distinct channels.
type Driver interface {
	SetPulseWidth(channel uint8, width time.Duration) error
	Close() error
}

// OpenDriver opens the driver selected by cfg
func OpenDriver(cfg config.CarburetorConfig, logger *slog.Logger) (Driver, error) {
	switch cfg.Driver {
	case config.DriverSysfs:
		return OpenSysfs(cfg.PWMChip, cfg.Channels)
	case config.DriverMaestro:
		return OpenMaestro(cfg.SerialPort, cfg.BaudRate)
	case config.DriverDryRun:
		return NewDryRun(logger), nil
	default:
		return nil, fmt.Errorf("unknown driver %q", cfg.Driver)
	}
}

// DryRun records pulse widths without touching hardware
type DryRun struct {
	mu     sync.Mutex
	last   map[uint8]time.Duration
	logger *slog.Logger
}

// NewDryRun creates a dry-run driver
func NewDryRun(logger *slog.Logger) *DryRun {
	logger = logging.OrDefault(logger)
	return &DryRun{last: make(map[uint8]time.Duration), logger: logger}
}

// SetPulseWidth implements Driver
func (d *DryRun) SetPulseWidth(channel uint8, width time.Duration) error {
	d.mu.Lock()
	d.last[channel] = width
	d.mu.Unlock()
	d.logger.Debug("dry run pulse", "channel", channel, "width", width)
	return nil
}

// PulseWidth returns the last width applied to channel
func (d *DryRun) PulseWidth(channel uint8) (time.Duration, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.last[channel]
	return w, ok
}

// Close implements Driver
func (d *DryRun) Close() error { return nil }
