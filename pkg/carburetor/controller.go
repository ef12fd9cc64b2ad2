// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package carburetor

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Thermoquad/linkage/pkg/logging"
	"github.com/Thermoquad/linkage/pkg/messaging"
)

// ErrUnknownChannel is returned for a channel with no control loop
var ErrUnknownChannel = errors.New("channel does not exist")

// ErrClosed is returned by Apply after Close
var ErrClosed = errors.New("controller closed")

// channelQueueSize bounds pending speeds per channel
const channelQueueSize = 64

// Controller runs one control loop per PWM channel. Speeds sent to a channel
// are applied in order.
type Controller struct {
	driver Driver
	logger *slog.Logger

	mu     sync.RWMutex
	queues []chan messaging.Speed
	closed bool
	wg     sync.WaitGroup
}

// NewController starts a control loop for channels 0..channels-1
func NewController(driver Driver, channels int, logger *slog.Logger) *Controller {
	logger = logging.OrDefault(logger)
	c := &Controller{
		driver: driver,
		logger: logger,
		queues: make([]chan messaging.Speed, channels),
	}
	for ch := range c.queues {
		q := make(chan messaging.Speed, channelQueueSize)
		c.queues[ch] = q
		c.wg.Add(1)
		go c.controlChannel(uint8(ch), q)
	}
	return c
}

// Channels returns the number of channels
func (c *Controller) Channels() int {
	return len(c.queues)
}

// Apply queues speed for channel
func (c *Controller) Apply(channel uint8, speed messaging.Speed) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	if int(channel) >= len(c.queues) {
		return fmt.Errorf("%w: %d", ErrUnknownChannel, channel)
	}
	c.queues[channel] <- speed
	return nil
}

// Neutral queues a neutral speed on every channel
func (c *Controller) Neutral() {
	for ch := range c.queues {
		if err := c.Apply(uint8(ch), messaging.NeutralSpeed()); err != nil {
			c.logger.Warn("failed to queue neutral", "channel", ch, "error", err)
		}
	}
}

// Close stops accepting speeds, waits for queued speeds to be applied and
// closes the driver.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for _, q := range c.queues {
		close(q)
	}
	c.mu.Unlock()

	c.wg.Wait()
	return c.driver.Close()
}

func (c *Controller) controlChannel(channel uint8, speeds <-chan messaging.Speed) {
	defer c.wg.Done()
	for speed := range speeds {
		width := speed.PulseWidth()
		start := time.Now()
		err := c.driver.SetPulseWidth(channel, width)
		elapsed := time.Since(start)
		if err != nil {
			c.logger.Error("failed to apply speed",
				"channel", channel, "speed", speed.String(), "error", err)
			continue
		}
		c.logger.Info("applied speed",
			"channel", channel,
			"speed", speed.String(),
			"direction", speed.Direction().String(),
			"pulse_us", width.Microseconds(),
			"elapsed", elapsed)
	}
}

// Shutdown returns every channel to neutral, holds for at least wait and
// closes the controller.
func (c *Controller) Shutdown(wait time.Duration) error {
	c.logger.Info("cleaning up")
	c.Neutral()
	time.Sleep(wait)
	return c.Close()
}
