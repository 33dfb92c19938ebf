package config

import (
	"fmt"
	"net"

	"github.com/zsiec/vrx/internal/timing"
)

func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.Analysis.Validate(); err != nil {
		return fmt.Errorf("analysis config: %w", err)
	}

	if err := c.Output.Validate(); err != nil {
		return fmt.Errorf("output config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store config: %w", err)
	}

	return nil
}

func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"panic": true,
		"fatal": true,
		"error": true,
		"warn":  true,
		"info":  true,
		"debug": true,
		"trace": true,
	}

	if !validLevels[l.Level] {
		return fmt.Errorf("invalid log level: %s", l.Level)
	}

	if l.Format != "json" && l.Format != "text" {
		return fmt.Errorf("log format must be 'json' or 'text'")
	}

	if l.Output != "stdout" && l.Output != "stderr" {
		if l.MaxSize <= 0 {
			return fmt.Errorf("max_size must be positive for file output")
		}
		if l.MaxBackups < 0 {
			return fmt.Errorf("max_backups cannot be negative")
		}
		if l.MaxAge < 0 {
			return fmt.Errorf("max_age cannot be negative")
		}
	}

	return nil
}

func (c *CaptureConfig) Validate() error {
	if c.File == "" {
		return fmt.Errorf("capture file is required")
	}

	if c.Group != "" && net.ParseIP(c.Group) == nil {
		return fmt.Errorf("invalid group address: %s", c.Group)
	}

	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	return nil
}

// GroupIP returns the parsed group address, nil when unset.
func (c *CaptureConfig) GroupIP() net.IP {
	if c.Group == "" {
		return nil
	}
	return net.ParseIP(c.Group)
}

func (a *AnalysisConfig) Validate() error {
	if a.LeapSeconds < 0 {
		return fmt.Errorf("leap_seconds cannot be negative")
	}

	active, offset, err := a.Ratios()
	if err != nil {
		return err
	}

	if active.Sign() <= 0 || active.Cmp(timing.FromInt(1)) > 0 {
		return fmt.Errorf("active_ratio must be in (0, 1], got %s", a.ActiveRatio)
	}

	if offset.Sign() <= 0 || offset.Cmp(timing.FromInt(1)) >= 0 {
		return fmt.Errorf("read_offset_ratio must be in (0, 1), got %s", a.ReadOffsetRatio)
	}

	if a.UnderrunLogRate <= 0 {
		return fmt.Errorf("underrun_log_rate must be positive")
	}

	if a.UnderrunLogBurst <= 0 {
		return fmt.Errorf("underrun_log_burst must be positive")
	}

	return nil
}

// Ratios parses the active and read offset ratios.
func (a *AnalysisConfig) Ratios() (active, offset timing.Rational, err error) {
	active, err = timing.ParseRational(a.ActiveRatio)
	if err != nil {
		return timing.Rational{}, timing.Rational{}, fmt.Errorf("active_ratio: %w", err)
	}

	offset, err = timing.ParseRational(a.ReadOffsetRatio)
	if err != nil {
		return timing.Rational{}, timing.Rational{}, fmt.Errorf("read_offset_ratio: %w", err)
	}

	return active, offset, nil
}

func (o *OutputConfig) Validate() error {
	switch o.Summary {
	case "text", "json", "none":
	default:
		return fmt.Errorf("summary must be 'text', 'json' or 'none'")
	}

	return nil
}

func (m *MetricsConfig) Validate() error {
	if m.Enabled && m.TextfilePath == "" {
		return fmt.Errorf("textfile_path is required when metrics are enabled")
	}

	return nil
}

func (s *StoreConfig) Validate() error {
	if !s.Enabled {
		return nil
	}

	if s.RedisAddr == "" {
		return fmt.Errorf("redis_addr is required when the store is enabled")
	}

	if s.DB < 0 {
		return fmt.Errorf("invalid Redis database number: %d", s.DB)
	}

	if s.TTL < 0 {
		return fmt.Errorf("ttl cannot be negative")
	}

	if s.KeyPrefix == "" {
		return fmt.Errorf("key_prefix cannot be empty")
	}

	return nil
}
