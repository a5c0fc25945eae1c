package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// okConfig returns settings that pass validation, for tests to break one
// field at a time. Boundary values are used where the checks have them.
func okConfig() Config {
	return Config{
		Server:   ServerConfig{Port: 7300},
		Database: DatabaseConfig{Driver: "sqlite", DSN: "catalog.db", MaxOpenConns: 4, MaxIdleConns: 2, LogLevel: "silent"},
		Logging:  LoggingConfig{Level: "debug", Format: "text"},
		Lineup:   LineupConfig{File: "lineup.yaml"},
		Streaming: StreamingConfig{
			Mode:          "remux",
			AudioBitrate:  "192k",
			AudioChannels: "5.1",
			ChunkSize:     188,
			RetryAttempts: 1,
		},
		Tuning:     TuningConfig{ConfirmKey: "Select"},
		Control:    ControlConfig{Timeout: time.Second, KeepAliveJoinTimeout: time.Second},
		Recordings: RecordingsConfig{Dir: "/tmp/recordings", Retention: time.Hour},
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string // substring of the error, empty when valid
	}{
		{"base is valid", func(*Config) {}, ""},
		{"postgres driver", func(c *Config) { c.Database.Driver = "postgres" }, ""},
		{"mysql driver", func(c *Config) { c.Database.Driver = "mysql" }, ""},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"port negative", func(c *Config) { c.Server.Port = -1 }, "server.port"},
		{"port above range", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }, "database.driver"},
		{"missing dsn", func(c *Config) { c.Database.DSN = "" }, "database.dsn"},
		{"bad catalog log level", func(c *Config) { c.Database.LogLevel = "debug" }, "database.log_level"},
		{"no open conns", func(c *Config) { c.Database.MaxOpenConns = 0 }, "database.max_open_conns"},
		{"negative idle conns", func(c *Config) { c.Database.MaxIdleConns = -1 }, "database.max_idle_conns"},
		{"trace log level", func(c *Config) { c.Logging.Level = "trace" }, ""},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"unknown log format", func(c *Config) { c.Logging.Format = "logfmt" }, "logging.format"},
		{"missing lineup file", func(c *Config) { c.Lineup.File = "" }, "lineup.file"},
		{"unknown mode", func(c *Config) { c.Streaming.Mode = "transcode" }, "streaming.mode"},
		{"missing bitrate", func(c *Config) { c.Streaming.AudioBitrate = "" }, "streaming.audio_bitrate"},
		{"missing channels", func(c *Config) { c.Streaming.AudioChannels = "" }, "streaming.audio_channels"},
		{"chunk below a TS packet", func(c *Config) { c.Streaming.ChunkSize = 187 }, "streaming.chunk_size"},
		{"no retries", func(c *Config) { c.Streaming.RetryAttempts = 0 }, "streaming.retry_attempts"},
		{"negative preroll", func(c *Config) { c.Streaming.Preroll = -time.Second }, "streaming.preroll"},
		{"negative settle delay", func(c *Config) { c.Tuning.SettleDelay = -time.Second }, "tuning.settle_delay"},
		{"missing confirm key", func(c *Config) { c.Tuning.ConfirmKey = "" }, "tuning.confirm_key"},
		{"zero control timeout", func(c *Config) { c.Control.Timeout = 0 }, "control.timeout"},
		{"zero join timeout", func(c *Config) { c.Control.KeepAliveJoinTimeout = 0 }, "keepalive_join_timeout"},
		{"missing recordings dir", func(c *Config) { c.Recordings.Dir = "" }, "recordings.dir"},
		{"zero retention", func(c *Config) { c.Recordings.Retention = 0 }, "recordings.retention"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := okConfig()
			tc.mutate(&cfg)

			err := cfg.Validate()
			if tc.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ServerConfig{
		Host:            "0.0.0.0",
		Port:            7300,
		ReadTimeout:     30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		CORSOrigins:     []string{"*"},
	}, cfg.Server)

	assert.Equal(t, DatabaseConfig{
		Driver:          "sqlite",
		DSN:             "recast.db",
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
		LogLevel:        "warn",
	}, cfg.Database)

	assert.Equal(t, LoggingConfig{Level: "info", Format: "json", TimeFormat: time.RFC3339}, cfg.Logging)
	assert.Equal(t, LineupConfig{File: "lineup.yaml"}, cfg.Lineup)

	assert.Equal(t, StreamingConfig{
		Mode:          "proxy",
		AudioBitrate:  "128k",
		AudioChannels: "2",
		ChunkSize:     64 * 1024,
		RetryAttempts: 3,
		RetryDelay:    500 * time.Millisecond,
		RetryMaxDelay: 5 * time.Second,
	}, cfg.Streaming)

	assert.Equal(t, TuningConfig{
		SettleDelay:  8 * time.Second,
		ConfirmKey:   "Select",
		ConfirmDelay: 3 * time.Second,
	}, cfg.Tuning)

	assert.Equal(t, ControlConfig{
		Timeout:              3 * time.Second,
		KeepAliveJoinTimeout: 5 * time.Second,
	}, cfg.Control)

	assert.Equal(t, RecordingsConfig{
		Dir:           "./recordings",
		Retention:     7 * 24 * time.Hour,
		SweepSchedule: "0 0 4 * * *",
	}, cfg.Recordings)

	assert.Equal(t, FFmpegConfig{}, cfg.FFmpeg)
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recast.yaml")
	body := `
server:
  host: 192.168.4.10
  port: 7310

database:
  log_level: silent

streaming:
  mode: reencode
  chunk_size: 32KB
  preroll: 4s

recordings:
  retention: 48h
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "192.168.4.10", cfg.Server.Host)
	assert.Equal(t, 7310, cfg.Server.Port)
	assert.Equal(t, "silent", cfg.Database.LogLevel)
	assert.Equal(t, "reencode", cfg.Streaming.Mode)
	assert.Equal(t, ByteSize(32*1024), cfg.Streaming.ChunkSize)
	assert.Equal(t, 4*time.Second, cfg.Streaming.Preroll)
	assert.Equal(t, 48*time.Hour, cfg.Recordings.Retention)

	// Sections the file does not mention keep their defaults.
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "Select", cfg.Tuning.ConfirmKey)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("RECAST_SERVER_PORT", "7301")
	t.Setenv("RECAST_LOGGING_LEVEL", "debug")
	t.Setenv("RECAST_STREAMING_CHUNK_SIZE", "128KB")
	t.Setenv("RECAST_RECORDINGS_RETENTION", "24h")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7301, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, ByteSize(128*1024), cfg.Streaming.ChunkSize)
	assert.Equal(t, 24*time.Hour, cfg.Recordings.Retention)
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recast.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 7310\n"), 0o600))
	t.Setenv("RECAST_SERVER_PORT", "7311")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7311, cfg.Server.Port)
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recast.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoad_InvalidRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recast.yaml")
	require.NoError(t, os.WriteFile(path, []byte("streaming:\n  mode: passthrough\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "streaming.mode")
}

func TestValidMode(t *testing.T) {
	assert.True(t, ValidMode("proxy"))
	assert.True(t, ValidMode("remux"))
	assert.True(t, ValidMode("reencode"))
	assert.False(t, ValidMode(""))
	assert.False(t, ValidMode("direct"))
}

func TestServerConfig_Address(t *testing.T) {
	cfg := &ServerConfig{Host: "127.0.0.1", Port: 7300}
	assert.Equal(t, "127.0.0.1:7300", cfg.Address())

	// IPv6 hosts come out bracketed, ready for net.Listen.
	cfg = &ServerConfig{Host: "::", Port: 7300}
	assert.Equal(t, "[::]:7300", cfg.Address())
}
