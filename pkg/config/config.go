// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config holds the addresses, process commands and timings shared by
// every Linkage process. Values come from built-in defaults, an optional
// TOML or YAML file, and LINKAGE_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

// Readiness modes for the runtime supervisor
const (
	ReadinessPipe   = "pipe"
	ReadinessSignal = "signal"
)

// Carburetor driver names
const (
	DriverSysfs   = "sysfs"
	DriverMaestro = "maestro"
	DriverDryRun  = "dryrun"
)

// Config is the complete configuration for a Linkage deployment
type Config struct {
	Runtime    RuntimeConfig    `toml:"runtime" yaml:"runtime"`
	Carburetor CarburetorConfig `toml:"carburetor" yaml:"carburetor"`
	LinkageLib LinkageLibConfig `toml:"linkage_lib" yaml:"linkage_lib"`
	Backend    BackendConfig    `toml:"backend" yaml:"backend"`
	Logging    LoggingConfig    `toml:"logging" yaml:"logging"`
}

// RuntimeConfig configures the process supervisor
type RuntimeConfig struct {
	Listen string `toml:"listen" yaml:"listen"`
	// Command lines for the two supervised processes.
	CarburetorCommand []string `toml:"carburetor_command" yaml:"carburetor_command"`
	RobotCommand      []string `toml:"robot_command" yaml:"robot_command"`
	WorkDir           string   `toml:"work_dir" yaml:"work_dir"`
	Readiness         string   `toml:"readiness" yaml:"readiness"`
	ReadyTimeoutMs    int      `toml:"ready_timeout_ms" yaml:"ready_timeout_ms"`
	// How long a child gets to exit after SIGTERM before it is killed
	StopTimeoutMs int `toml:"stop_timeout_ms" yaml:"stop_timeout_ms"`
}

// CarburetorConfig configures the PWM actuation process
type CarburetorConfig struct {
	Listen   string `toml:"listen" yaml:"listen"`
	Driver   string `toml:"driver" yaml:"driver"`
	Channels int    `toml:"channels" yaml:"channels"`
	// sysfs driver
	PWMChip string `toml:"pwm_chip" yaml:"pwm_chip"`
	// maestro driver
	SerialPort string `toml:"serial_port" yaml:"serial_port"`
	BaudRate   int    `toml:"baud_rate" yaml:"baud_rate"`

	NeutralWaitMs int `toml:"neutral_wait_ms" yaml:"neutral_wait_ms"`
}

// LinkageLibConfig configures the robot program
type LinkageLibConfig struct {
	Listen         string `toml:"listen" yaml:"listen"`
	CarburetorAddr string `toml:"carburetor_addr" yaml:"carburetor_addr"`
	TickPeriodMs   int    `toml:"tick_period_ms" yaml:"tick_period_ms"`
	NeutralWaitMs  int    `toml:"neutral_wait_ms" yaml:"neutral_wait_ms"`
}

// BackendConfig configures the cockpit backend
type BackendConfig struct {
	Listen           string   `toml:"listen" yaml:"listen"`
	RuntimeAddr      string   `toml:"runtime_addr" yaml:"runtime_addr"`
	LinkageAddr      string   `toml:"linkage_addr" yaml:"linkage_addr"`
	JoystickDevices  []string `toml:"joystick_devices" yaml:"joystick_devices"`
	ReplyTimeoutMs   int      `toml:"reply_timeout_ms" yaml:"reply_timeout_ms"`
	CaptureQueueSize int      `toml:"capture_queue_size" yaml:"capture_queue_size"`
}

// LoggingConfig configures the process logger
type LoggingConfig struct {
	Level      string `toml:"level" yaml:"level"`
	Format     string `toml:"format" yaml:"format"`
	File       string `toml:"file" yaml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" yaml:"max_age_days"`
}

// ReadyTimeout returns the readiness wait bound
func (c RuntimeConfig) ReadyTimeout() time.Duration {
	return time.Duration(c.ReadyTimeoutMs) * time.Millisecond
}

// StopTimeout returns the SIGTERM grace period for children
func (c RuntimeConfig) StopTimeout() time.Duration {
	return time.Duration(c.StopTimeoutMs) * time.Millisecond
}

// NeutralWait returns how long to hold neutral before exiting
func (c CarburetorConfig) NeutralWait() time.Duration {
	return time.Duration(c.NeutralWaitMs) * time.Millisecond
}

// TickPeriod returns the robot loop period
func (c LinkageLibConfig) TickPeriod() time.Duration {
	return time.Duration(c.TickPeriodMs) * time.Millisecond
}

// NeutralWait returns how long to hold neutral before exiting
func (c LinkageLibConfig) NeutralWait() time.Duration {
	return time.Duration(c.NeutralWaitMs) * time.Millisecond
}

// ReplyTimeout returns how long the backend waits for a runtime reply
func (c BackendConfig) ReplyTimeout() time.Duration {
	return time.Duration(c.ReplyTimeoutMs) * time.Millisecond
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			Listen:            "0.0.0.0:7630",
			CarburetorCommand: []string{"linkage", "carburetor"},
			RobotCommand:      []string{"linkage", "tankdrive"},
			Readiness:         ReadinessPipe,
			ReadyTimeoutMs:    10000,
			StopTimeoutMs:     2000,
		},
		Carburetor: CarburetorConfig{
			Listen:        "127.0.0.1:48862",
			Driver:        DriverSysfs,
			Channels:      2,
			PWMChip:       "/sys/class/pwm/pwmchip0",
			SerialPort:    "/dev/ttyACM0",
			BaudRate:      9600,
			NeutralWaitMs: 10,
		},
		LinkageLib: LinkageLibConfig{
			Listen:         "0.0.0.0:9999",
			CarburetorAddr: "127.0.0.1:48862",
			TickPeriodMs:   20,
			NeutralWaitMs:  10,
		},
		Backend: BackendConfig{
			Listen:           "0.0.0.0:3012",
			RuntimeAddr:      "127.0.0.1:7630",
			LinkageAddr:      "127.0.0.1:9999",
			JoystickDevices:  []string{"/dev/input/js0"},
			ReplyTimeoutMs:   15000,
			CaptureQueueSize: 256,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/linkage/config.toml, falling back to
// ~/.config when XDG_CONFIG_HOME is unset.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "linkage", "config.toml")
}

// Load builds a configuration from defaults, the file at path (if path is
// not empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadDefault loads DefaultPath when the file exists, and defaults otherwise.
func LoadDefault() (*Config, error) {
	path := DefaultPath()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return Load("")
}

// loadFromFile decodes a TOML or YAML file over cfg, chosen by extension
func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".toml":
		return toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(filename))
	}
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(cfg *Config) {
	strs := []struct {
		env string
		dst *string
	}{
		{"LINKAGE_RUNTIME_LISTEN", &cfg.Runtime.Listen},
		{"LINKAGE_READINESS", &cfg.Runtime.Readiness},
		{"LINKAGE_CARBURETOR_LISTEN", &cfg.Carburetor.Listen},
		{"LINKAGE_CARBURETOR_DRIVER", &cfg.Carburetor.Driver},
		{"LINKAGE_SERIAL_PORT", &cfg.Carburetor.SerialPort},
		{"LINKAGE_LIB_LISTEN", &cfg.LinkageLib.Listen},
		{"LINKAGE_CARBURETOR_ADDR", &cfg.LinkageLib.CarburetorAddr},
		{"LINKAGE_BACKEND_LISTEN", &cfg.Backend.Listen},
		{"LINKAGE_RUNTIME_ADDR", &cfg.Backend.RuntimeAddr},
		{"LINKAGE_LIB_ADDR", &cfg.Backend.LinkageAddr},
		{"LINKAGE_LOG_LEVEL", &cfg.Logging.Level},
		{"LINKAGE_LOG_FORMAT", &cfg.Logging.Format},
		{"LINKAGE_LOG_FILE", &cfg.Logging.File},
	}
	for _, s := range strs {
		if v := os.Getenv(s.env); v != "" {
			*s.dst = v
		}
	}

	if v := os.Getenv("LINKAGE_READY_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Runtime.ReadyTimeoutMs = ms
		}
	}
	if v := os.Getenv("LINKAGE_STOP_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Runtime.StopTimeoutMs = ms
		}
	}
	if v := os.Getenv("LINKAGE_TICK_PERIOD_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.LinkageLib.TickPeriodMs = ms
		}
	}
}

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	var errs []error

	required := []struct {
		name  string
		value string
	}{
		{"runtime.listen", c.Runtime.Listen},
		{"carburetor.listen", c.Carburetor.Listen},
		{"linkage_lib.listen", c.LinkageLib.Listen},
		{"linkage_lib.carburetor_addr", c.LinkageLib.CarburetorAddr},
		{"backend.listen", c.Backend.Listen},
		{"backend.runtime_addr", c.Backend.RuntimeAddr},
		{"backend.linkage_addr", c.Backend.LinkageAddr},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, fmt.Errorf("%s must not be empty", r.name))
		}
	}

	if len(c.Runtime.CarburetorCommand) == 0 {
		errs = append(errs, errors.New("runtime.carburetor_command must not be empty"))
	}
	if len(c.Runtime.RobotCommand) == 0 {
		errs = append(errs, errors.New("runtime.robot_command must not be empty"))
	}
	switch c.Runtime.Readiness {
	case ReadinessPipe, ReadinessSignal:
	default:
		errs = append(errs, fmt.Errorf("runtime.readiness must be %q or %q, got %q", ReadinessPipe, ReadinessSignal, c.Runtime.Readiness))
	}
	if c.Runtime.ReadyTimeoutMs < 0 {
		errs = append(errs, errors.New("runtime.ready_timeout_ms must not be negative"))
	}
	if c.Runtime.StopTimeoutMs <= 0 {
		errs = append(errs, errors.New("runtime.stop_timeout_ms must be positive"))
	}

	switch c.Carburetor.Driver {
	case DriverSysfs, DriverMaestro, DriverDryRun:
	default:
		errs = append(errs, fmt.Errorf("unknown carburetor.driver %q", c.Carburetor.Driver))
	}
	if c.Carburetor.Channels <= 0 || c.Carburetor.Channels > 256 {
		errs = append(errs, fmt.Errorf("carburetor.channels must be in 1..256, got %d", c.Carburetor.Channels))
	}
	if c.Carburetor.NeutralWaitMs < 10 {
		errs = append(errs, errors.New("carburetor.neutral_wait_ms must be at least 10"))
	}

	if c.LinkageLib.TickPeriodMs <= 0 {
		errs = append(errs, errors.New("linkage_lib.tick_period_ms must be positive"))
	}
	if c.LinkageLib.NeutralWaitMs < 10 {
		errs = append(errs, errors.New("linkage_lib.neutral_wait_ms must be at least 10"))
	}

	if c.Backend.ReplyTimeoutMs < 0 {
		errs = append(errs, errors.New("backend.reply_timeout_ms must not be negative"))
	}
	// A reply is only sent once the runtime has finished starting or
	// stopping both children. Timing out earlier drops the runtime link,
	// which disables the children that were just started.
	if c.Backend.ReplyTimeoutMs > 0 {
		worst := c.Runtime.ReadyTimeoutMs + 2*c.Runtime.StopTimeoutMs
		if c.Runtime.ReadyTimeoutMs == 0 {
			errs = append(errs, errors.New("backend.reply_timeout_ms must be 0 when runtime.ready_timeout_ms is 0 (unbounded)"))
		} else if c.Backend.ReplyTimeoutMs <= worst {
			errs = append(errs, fmt.Errorf("backend.reply_timeout_ms must exceed runtime.ready_timeout_ms + 2*runtime.stop_timeout_ms (%d), got %d",
				worst, c.Backend.ReplyTimeoutMs))
		}
	}

	if c.Backend.CaptureQueueSize <= 0 {
		errs = append(errs, errors.New("backend.capture_queue_size must be positive"))
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}
