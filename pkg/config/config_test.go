// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Runtime.Listen != "0.0.0.0:7630" {
		t.Errorf("Expected runtime listen 0.0.0.0:7630, got %s", cfg.Runtime.Listen)
	}
	if cfg.Carburetor.Listen != "127.0.0.1:48862" {
		t.Errorf("Expected carburetor listen 127.0.0.1:48862, got %s", cfg.Carburetor.Listen)
	}
	if cfg.LinkageLib.Listen != "0.0.0.0:9999" {
		t.Errorf("Expected linkage-lib listen 0.0.0.0:9999, got %s", cfg.LinkageLib.Listen)
	}
	if cfg.Backend.Listen != "0.0.0.0:3012" {
		t.Errorf("Expected backend listen 0.0.0.0:3012, got %s", cfg.Backend.Listen)
	}
	if cfg.LinkageLib.TickPeriod() != 20*time.Millisecond {
		t.Errorf("Expected tick period 20ms, got %v", cfg.LinkageLib.TickPeriod())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("Load(\"\") differs from defaults (-want +got):\n%s", diff)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[runtime]
listen = "127.0.0.1:1000"
robot_command = ["python3", "robot.py"]
readiness = "signal"
ready_timeout_ms = 500

[carburetor]
driver = "maestro"
channels = 6
serial_port = "/dev/ttyUSB1"

[linkage_lib]
tick_period_ms = 10
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:1000", cfg.Runtime.Listen)
	require.Equal(t, []string{"python3", "robot.py"}, cfg.Runtime.RobotCommand)
	require.Equal(t, ReadinessSignal, cfg.Runtime.Readiness)
	require.Equal(t, 500*time.Millisecond, cfg.Runtime.ReadyTimeout())
	require.Equal(t, DriverMaestro, cfg.Carburetor.Driver)
	require.Equal(t, 6, cfg.Carburetor.Channels)
	require.Equal(t, "/dev/ttyUSB1", cfg.Carburetor.SerialPort)
	require.Equal(t, 10*time.Millisecond, cfg.LinkageLib.TickPeriod())

	// Untouched sections keep their defaults
	require.Equal(t, Default().Backend, cfg.Backend)
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
backend:
  listen: "127.0.0.1:4000"
  joystick_devices: ["/dev/input/js1", "/dev/input/js2"]
logging:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:4000", cfg.Backend.Listen)
	require.Equal(t, []string{"/dev/input/js1", "/dev/input/js2"}, cfg.Backend.JoystickDevices)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		file string
		data string
	}{
		{"unsupported extension", "config.ini", "listen=1"},
		{"invalid readiness", "bad.toml", "[runtime]\nreadiness = \"smoke\"\n"},
		{"zero tick", "tick.yaml", "linkage_lib:\n  tick_period_ms: 0\n"},
		{"unknown driver", "driver.toml", "[carburetor]\ndriver = \"gpio\"\n"},
		{"empty address", "addr.toml", "[backend]\nruntime_addr = \"\"\n"},
		{"zero stop timeout", "stop.toml", "[runtime]\nstop_timeout_ms = 0\n"},
		{"reply shorter than ready", "reply.toml", "[runtime]\nready_timeout_ms = 15000\n"},
		{"reply shorter than ready plus stop", "stop2.yaml", "runtime:\n  ready_timeout_ms: 10000\n  stop_timeout_ms: 3000\n"},
		{"unbounded ready with reply timeout", "unbounded.toml", "[runtime]\nready_timeout_ms = 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.data), 0o644))
			_, err := Load(path)
			require.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(dir, "missing.toml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate_ReplyTimeoutCoversSupervision(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Runtime.ReadyTimeoutMs = 12000
	require.ErrorContains(t, cfg.Validate(), "backend.reply_timeout_ms must exceed")

	cfg.Backend.ReplyTimeoutMs = 16001
	require.NoError(t, cfg.Validate())

	// Unbounded on both sides is consistent
	cfg.Runtime.ReadyTimeoutMs = 0
	require.Error(t, cfg.Validate())
	cfg.Backend.ReplyTimeoutMs = 0
	require.NoError(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LINKAGE_RUNTIME_ADDR", "10.0.0.2:7630")
	t.Setenv("LINKAGE_TICK_PERIOD_MS", "40")
	t.Setenv("LINKAGE_CARBURETOR_DRIVER", DriverDryRun)
	t.Setenv("LINKAGE_STOP_TIMEOUT_MS", "500")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "10.0.0.2:7630", cfg.Backend.RuntimeAddr)
	require.Equal(t, 40*time.Millisecond, cfg.LinkageLib.TickPeriod())
	require.Equal(t, DriverDryRun, cfg.Carburetor.Driver)
	require.Equal(t, 500*time.Millisecond, cfg.Runtime.StopTimeout())
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	if got := DefaultPath(); got != "/tmp/xdg/linkage/config.toml" {
		t.Errorf("DefaultPath() = %s", got)
	}
}
