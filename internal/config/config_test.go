package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "defaults with capture file",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing capture file",
			modify:  func(c *Config) { c.Capture.File = "" },
			wantErr: true,
			errMsg:  "capture config: capture file is required",
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: true,
			errMsg:  "logging config: invalid log level",
		},
		{
			name:    "invalid active ratio",
			modify:  func(c *Config) { c.Analysis.ActiveRatio = "2" },
			wantErr: true,
			errMsg:  "analysis config",
		},
		{
			name:    "store without address",
			modify:  func(c *Config) { c.Store.Enabled = true; c.Store.RedisAddr = "" },
			wantErr: true,
			errMsg:  "store config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Capture.File = "capture.pcap"
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				if err != nil {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "stderr", cfg.Logging.Output)
	assert.Equal(t, int64(37), cfg.Analysis.LeapSeconds)
	assert.Equal(t, "1080/1125", cfg.Analysis.ActiveRatio)
	assert.Equal(t, "43/1125", cfg.Analysis.ReadOffsetRatio)
	assert.Equal(t, "text", cfg.Output.Summary)
	assert.False(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Store.Enabled)
	assert.Equal(t, 168*time.Hour, cfg.Store.TTL)
	assert.Equal(t, "vrx:report:", cfg.Store.KeyPrefix)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vrx.yaml")

	configContent := `
logging:
  level: "debug"
  format: "json"

capture:
  file: "/captures/cam1.pcap"
  group: "239.10.10.1"
  port: 20000

analysis:
  leap_seconds: 36
  active_ratio: "720/750"

output:
  csv_path: "/tmp/cam1.csv"
  summary: "json"

store:
  enabled: true
  redis_addr: "redis:6379"
  ttl: "1h"
`
	require.NoError(t, os.WriteFile(path, []byte(configContent), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/captures/cam1.pcap", cfg.Capture.File)
	assert.Equal(t, "239.10.10.1", cfg.Capture.Group)
	assert.Equal(t, 20000, cfg.Capture.Port)
	assert.Equal(t, int64(36), cfg.Analysis.LeapSeconds)
	assert.Equal(t, "720/750", cfg.Analysis.ActiveRatio)
	// unset keys keep their defaults
	assert.Equal(t, "43/1125", cfg.Analysis.ReadOffsetRatio)
	assert.Equal(t, "/tmp/cam1.csv", cfg.Output.CSVPath)
	assert.Equal(t, "json", cfg.Output.Summary)
	assert.True(t, cfg.Store.Enabled)
	assert.Equal(t, "redis:6379", cfg.Store.RedisAddr)
	assert.Equal(t, time.Hour, cfg.Store.TTL)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("VRX_CAPTURE_PORT", "5004")
	t.Setenv("VRX_ANALYSIS_LEAP_SECONDS", "38")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5004, cfg.Capture.Port)
	assert.Equal(t, int64(38), cfg.Analysis.LeapSeconds)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestTracePath(t *testing.T) {
	cfg := Default()
	cfg.Capture.File = "/captures/cam1.pcap"
	assert.Equal(t, "/captures/cam1.pcap.txt", cfg.TracePath())

	cfg.Output.TracePath = "/out/trace.txt"
	assert.Equal(t, "/out/trace.txt", cfg.TracePath())
}

func TestShippedConfigMatchesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "default.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
