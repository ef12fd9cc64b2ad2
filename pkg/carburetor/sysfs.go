// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package carburetor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Thermoquad/linkage/pkg/messaging"
)

// Sysfs drives the kernel PWM class interface, /sys/class/pwm/pwmchipN.
// Channel n is pwmN on the chip.
type Sysfs struct {
	chip     string
	channels int
}

// OpenSysfs exports and enables the first channels outputs of chip, each
// configured for a 20 ms period at neutral.
func OpenSysfs(chip string, channels int) (*Sysfs, error) {
	s := &Sysfs{chip: chip, channels: channels}
	for ch := 0; ch < channels; ch++ {
		if err := s.setup(ch); err != nil {
			return nil, fmt.Errorf("failed to set up pwm%d on %s: %w", ch, chip, err)
		}
	}
	return s, nil
}

func (s *Sysfs) channelDir(ch int) string {
	return filepath.Join(s.chip, "pwm"+strconv.Itoa(ch))
}

func (s *Sysfs) setup(ch int) error {
	dir := s.channelDir(ch)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		if err := writeAttr(filepath.Join(s.chip, "export"), strconv.Itoa(ch)); err != nil {
			return err
		}
	}
	neutral := time.Duration(messaging.PulseNeutralMicro) * time.Microsecond
	// duty_cycle must never exceed period, so set period first
	if err := writeAttr(filepath.Join(dir, "period"), nanos(messaging.PWMPeriod)); err != nil {
		return err
	}
	if err := writeAttr(filepath.Join(dir, "duty_cycle"), nanos(neutral)); err != nil {
		return err
	}
	// Not every chip supports changing polarity
	_ = writeAttr(filepath.Join(dir, "polarity"), "normal")
	return writeAttr(filepath.Join(dir, "enable"), "1")
}

// SetPulseWidth implements Driver
func (s *Sysfs) SetPulseWidth(channel uint8, width time.Duration) error {
	if int(channel) >= s.channels {
		return fmt.Errorf("%w: %d", ErrUnknownChannel, channel)
	}
	return writeAttr(filepath.Join(s.channelDir(int(channel)), "duty_cycle"), nanos(width))
}

// Close disables every channel
func (s *Sysfs) Close() error {
	var errs []error
	for ch := 0; ch < s.channels; ch++ {
		if err := writeAttr(filepath.Join(s.channelDir(ch), "enable"), "0"); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func nanos(d time.Duration) string {
	return strconv.FormatInt(d.Nanoseconds(), 10)
}

func writeAttr(path, value string) error {
	return os.WriteFile(path, []byte(value), 0o644)
}
