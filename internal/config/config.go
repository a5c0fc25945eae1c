// Package config loads recast's service settings from built-in defaults, a
// YAML file, and RECAST_-prefixed environment variables, each source
// overriding the one before it.
//
// The receiver/channel lineup is deliberately not part of the service
// settings: it lives in its own YAML document (see lineup.go) so it can be
// replaced and hot-reloaded at runtime.
package config

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config holds all service settings.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Lineup     LineupConfig     `mapstructure:"lineup"`
	Streaming  StreamingConfig  `mapstructure:"streaming"`
	Tuning     TuningConfig     `mapstructure:"tuning"`
	Control    ControlConfig    `mapstructure:"control"`
	Recordings RecordingsConfig `mapstructure:"recordings"`
	FFmpeg     FFmpegConfig     `mapstructure:"ffmpeg"`
}

// ServerConfig holds the HTTP listener settings. There is no write timeout
// on purpose: streaming responses stay open for hours.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds the recordings-catalog connection settings. The
// driver is one of sqlite, postgres or mysql; sqlite is the default and
// needs nothing beyond a file path in the DSN.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"`
}

// LoggingConfig shapes the process-wide slog setup.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// LineupConfig locates the receiver/channel lineup document.
type LineupConfig struct {
	File string `mapstructure:"file"`
}

// StreamingConfig holds the default streaming pipeline configuration.
// Mode may be overridden per receiver in the lineup.
type StreamingConfig struct {
	Mode          string        `mapstructure:"mode"`
	AudioBitrate  string        `mapstructure:"audio_bitrate"`
	AudioChannels string        `mapstructure:"audio_channels"`
	ChunkSize     ByteSize      `mapstructure:"chunk_size"`
	Preroll       time.Duration `mapstructure:"preroll"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	RetryMaxDelay time.Duration `mapstructure:"retry_max_delay"`
}

// TuningConfig holds background tuning behaviour.
type TuningConfig struct {
	// SettleDelay is how long to wait after launching an app before
	// sending navigation input. Roku apps need several seconds to boot.
	SettleDelay  time.Duration `mapstructure:"settle_delay"`
	ConfirmKey   string        `mapstructure:"confirm_key"`
	ConfirmDelay time.Duration `mapstructure:"confirm_delay"`
}

// ControlConfig holds device-control (ECP) client configuration. The
// control port itself is not configurable here: it is fixed by the
// protocol, and a receiver on a non-standard port says so in its lineup
// control address.
type ControlConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	// KeepAliveJoinTimeout bounds how long release waits for a
	// keep-alive goroutine to acknowledge cancellation.
	KeepAliveJoinTimeout time.Duration `mapstructure:"keepalive_join_timeout"`
}

// RecordingsConfig holds recording capture and retention configuration.
type RecordingsConfig struct {
	Dir       string        `mapstructure:"dir"`
	Retention time.Duration `mapstructure:"retention"`
	// SweepSchedule is a six-field cron expression (with seconds).
	SweepSchedule string `mapstructure:"sweep_schedule"`
}

// FFmpegConfig locates the ffmpeg binary. An empty path means search PATH.
type FFmpegConfig struct {
	BinaryPath string `mapstructure:"binary_path"`
}

// defaults are installed before the file and environment sources are read.
// One flat map keeps every built-in value visible in one place.
var defaults = map[string]any{
	"server.host":             "0.0.0.0",
	"server.port":             7300,
	"server.read_timeout":     30 * time.Second,
	"server.shutdown_timeout": 10 * time.Second,
	"server.cors_origins":     []string{"*"},

	"database.driver":             "sqlite",
	"database.dsn":                "recast.db",
	"database.max_open_conns":     25,
	"database.max_idle_conns":     10,
	"database.conn_max_lifetime":  time.Hour,
	"database.conn_max_idle_time": 30 * time.Minute,
	"database.log_level":          "warn",

	"logging.level":       "info",
	"logging.format":      "json",
	"logging.add_source":  false,
	"logging.time_format": time.RFC3339,

	"lineup.file": "lineup.yaml",

	"streaming.mode":            "proxy",
	"streaming.audio_bitrate":   "128k",
	"streaming.audio_channels":  "2",
	"streaming.chunk_size":      64 * 1024,
	"streaming.preroll":         time.Duration(0),
	"streaming.retry_attempts":  3,
	"streaming.retry_delay":     500 * time.Millisecond,
	"streaming.retry_max_delay": 5 * time.Second,

	"tuning.settle_delay":  8 * time.Second,
	"tuning.confirm_key":   "Select",
	"tuning.confirm_delay": 3 * time.Second,

	"control.timeout":                3 * time.Second,
	"control.keepalive_join_timeout": 5 * time.Second,

	"recordings.dir":            "./recordings",
	"recordings.retention":      7 * 24 * time.Hour,
	"recordings.sweep_schedule": "0 0 4 * * *", // 04:00 every day

	"ffmpeg.binary_path": "",
}

// SetDefaults installs the built-in defaults on v. It must run before any
// other source is read so that unset keys still resolve.
func SetDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Load builds the service configuration. path names an explicit config
// file; when empty the usual locations are searched for recast.yaml. A
// missing file is fine, the defaults and RECAST_* environment variables
// are enough to run on.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("recast")
		v.SetConfigType("yaml")
		for _, dir := range []string{".", "./configs", "/etc/recast", "$HOME/.recast"} {
			v.AddConfigPath(dir)
		}
	}

	v.SetEnvPrefix("RECAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		// Lets ByteSize fields accept human-readable values like "64KB".
		mapstructure.TextUnmarshallerHookFunc(),
	))); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// Validate checks every section and reports the first problem found.
func (c *Config) Validate() error {
	for _, section := range []func() error{
		c.Server.validate,
		c.Database.validate,
		c.Logging.validate,
		c.Lineup.validate,
		c.Streaming.validate,
		c.Tuning.validate,
		c.Control.validate,
		c.Recordings.validate,
	} {
		if err := section(); err != nil {
			return err
		}
	}
	return nil
}

// oneOf returns an error naming the key when value is not in allowed.
func oneOf(key, value string, allowed ...string) error {
	if slices.Contains(allowed, value) {
		return nil
	}
	return fmt.Errorf("%s %q is not one of %s", key, value, strings.Join(allowed, ", "))
}

func (c ServerConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("server.port %d is outside 1-65535", c.Port)
	}
	return nil
}

func (c DatabaseConfig) validate() error {
	if err := oneOf("database.driver", c.Driver, "sqlite", "postgres", "mysql"); err != nil {
		return err
	}
	if c.DSN == "" {
		return errors.New("database.dsn is empty")
	}
	if err := oneOf("database.log_level", c.LogLevel, "silent", "error", "warn", "info"); err != nil {
		return err
	}
	if c.MaxOpenConns < 1 {
		return fmt.Errorf("database.max_open_conns %d must be at least 1", c.MaxOpenConns)
	}
	if c.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns %d is negative", c.MaxIdleConns)
	}
	return nil
}

func (c LoggingConfig) validate() error {
	if err := oneOf("logging.level", c.Level, "trace", "debug", "info", "warn", "error"); err != nil {
		return err
	}
	return oneOf("logging.format", c.Format, "json", "text")
}

func (c LineupConfig) validate() error {
	if c.File == "" {
		return errors.New("lineup.file is empty")
	}
	return nil
}

func (c StreamingConfig) validate() error {
	if !ValidMode(c.Mode) {
		return fmt.Errorf("streaming.mode %q is not one of proxy, remux, reencode", c.Mode)
	}
	if c.AudioBitrate == "" {
		return errors.New("streaming.audio_bitrate is empty")
	}
	if c.AudioChannels == "" {
		return errors.New("streaming.audio_channels is empty")
	}
	if c.ChunkSize < 188 {
		return fmt.Errorf("streaming.chunk_size %d is below one 188-byte TS packet", c.ChunkSize)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("streaming.retry_attempts %d must be at least 1", c.RetryAttempts)
	}
	if c.Preroll < 0 {
		return errors.New("streaming.preroll is negative")
	}
	return nil
}

func (c TuningConfig) validate() error {
	if c.SettleDelay < 0 {
		return errors.New("tuning.settle_delay is negative")
	}
	if c.ConfirmKey == "" {
		return errors.New("tuning.confirm_key is empty")
	}
	return nil
}

func (c ControlConfig) validate() error {
	if c.Timeout <= 0 {
		return errors.New("control.timeout must be positive")
	}
	if c.KeepAliveJoinTimeout <= 0 {
		return errors.New("control.keepalive_join_timeout must be positive")
	}
	return nil
}

func (c RecordingsConfig) validate() error {
	if c.Dir == "" {
		return errors.New("recordings.dir is empty")
	}
	if c.Retention <= 0 {
		return errors.New("recordings.retention must be positive")
	}
	return nil
}

// ValidMode reports whether mode names a supported streaming pipeline mode.
func ValidMode(mode string) bool {
	switch mode {
	case "proxy", "remux", "reencode":
		return true
	}
	return false
}

// Address returns the host:port the HTTP server should bind.
func (c *ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
