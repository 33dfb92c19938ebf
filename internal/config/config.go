package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Capture  CaptureConfig  `mapstructure:"capture"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Output   OutputConfig   `mapstructure:"output"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Store    StoreConfig    `mapstructure:"store"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`   // json or text
	Output     string `mapstructure:"output"`   // stdout, stderr, or file path
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

// CaptureConfig selects the stream to analyze from a capture file.
type CaptureConfig struct {
	File  string `mapstructure:"file"`
	Group string `mapstructure:"group"` // destination address, empty matches any
	Port  int    `mapstructure:"port"`  // destination UDP port, 0 matches any
}

type AnalysisConfig struct {
	LeapSeconds     int64  `mapstructure:"leap_seconds"`
	ActiveRatio     string `mapstructure:"active_ratio"`      // RACTIVE, e.g. 1080/1125
	ReadOffsetRatio string `mapstructure:"read_offset_ratio"` // TRO as a fraction of the frame period

	// Underrun running log throttling
	UnderrunLogRate  float64 `mapstructure:"underrun_log_rate"` // messages per second
	UnderrunLogBurst int     `mapstructure:"underrun_log_burst"`
}

type OutputConfig struct {
	TracePath string `mapstructure:"trace_path"` // defaults to <capture file>.txt
	CSVPath   string `mapstructure:"csv_path"`
	Summary   string `mapstructure:"summary"` // text, json or none
	Color     bool   `mapstructure:"color"`
}

type MetricsConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	TextfilePath string `mapstructure:"textfile_path"`
	Namespace    string `mapstructure:"namespace"`
}

// StoreConfig configures optional archival of run reports in Redis.
type StoreConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	RedisAddr    string        `mapstructure:"redis_addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	TTL          time.Duration `mapstructure:"ttl"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Load reads configPath, if given, on top of the defaults and VRX_*
// environment variables. It does not validate; callers apply command line
// overrides first and then call Validate.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Environment variable override
	v.SetEnvPrefix("VRX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		// defaults always unmarshal
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 30)

	// Capture defaults
	v.SetDefault("capture.file", "")
	v.SetDefault("capture.group", "")
	v.SetDefault("capture.port", 0)

	// Analysis defaults
	v.SetDefault("analysis.leap_seconds", 37)
	v.SetDefault("analysis.active_ratio", "1080/1125")
	v.SetDefault("analysis.read_offset_ratio", "43/1125")
	v.SetDefault("analysis.underrun_log_rate", 10.0)
	v.SetDefault("analysis.underrun_log_burst", 20)

	// Output defaults
	v.SetDefault("output.trace_path", "")
	v.SetDefault("output.csv_path", "")
	v.SetDefault("output.summary", "text")
	v.SetDefault("output.color", true)

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.textfile_path", "")
	v.SetDefault("metrics.namespace", "vrx")

	// Store defaults
	v.SetDefault("store.enabled", false)
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.db", 0)
	v.SetDefault("store.key_prefix", "vrx:report:")
	v.SetDefault("store.ttl", "168h")
	v.SetDefault("store.dial_timeout", "5s")
	v.SetDefault("store.write_timeout", "3s")
}

// TracePath returns the newline trace destination, defaulting to the
// capture file name with ".txt" appended.
func (c *Config) TracePath() string {
	if c.Output.TracePath != "" {
		return c.Output.TracePath
	}
	return c.Capture.File + ".txt"
}
