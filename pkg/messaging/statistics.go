// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package messaging

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Statistics tracks frame counts and error rates for one link.
// Safe for concurrent use.
type Statistics struct {
	mu sync.Mutex

	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames   uint64
	ValidFrames   uint64
	UnknownFrames uint64
	LengthErrors  uint64
	RangeErrors   uint64
	OtherErrors   uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update records one frame. A nil err counts the frame as valid.
func (s *Statistics) Update(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.TotalFrames++
	switch {
	case err == nil:
		s.ValidFrames++
	case errors.Is(err, ErrUnknownMessage):
		s.UnknownFrames++
	case errors.Is(err, ErrFrameLength):
		s.LengthErrors++
	case errors.Is(err, ErrSpeedOutOfRange):
		s.RangeErrors++
	default:
		s.OtherErrors++
	}
	s.LastUpdateTime = time.Now()
}

// Errors returns the total number of rejected frames.
func (s *Statistics) Errors() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errors()
}

func (s *Statistics) errors() uint64 {
	return s.UnknownFrames + s.LengthErrors + s.RangeErrors + s.OtherErrors
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()
}

func (s *Statistics) calculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()

	var validPercent float64
	if s.TotalFrames > 0 {
		validPercent = float64(s.ValidFrames) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, validPercent)
	if s.UnknownFrames > 0 {
		result += fmt.Sprintf("Unknown Frames:  %8d\n", s.UnknownFrames)
	}
	if s.LengthErrors > 0 {
		result += fmt.Sprintf("Length Errors:   %8d\n", s.LengthErrors)
	}
	if s.RangeErrors > 0 {
		result += fmt.Sprintf("Range Errors:    %8d\n", s.RangeErrors)
	}
	if s.OtherErrors > 0 {
		result += fmt.Sprintf("Other Errors:    %8d\n", s.OtherErrors)
	}
	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.StartTime = now
	s.LastUpdateTime = now
	s.TotalFrames = 0
	s.ValidFrames = 0
	s.UnknownFrames = 0
	s.LengthErrors = 0
	s.RangeErrors = 0
	s.OtherErrors = 0
	s.FrameRate = 0
	s.ErrorRate = 0
}
