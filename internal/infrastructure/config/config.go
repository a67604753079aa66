package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the typed view of the settings HSM Core understands.
// It is decoded from a Registry and can be overridden by environment variables.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Journal  JournalConfig  `yaml:"journal"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the registry-wide level: debug, info, warn, error.
	Level string `yaml:"level"`

	// Format selects the formatter: "default", "blank" or "json".
	Format string `yaml:"format"`

	// Datefmt is a strftime-style timestamp layout for the default formatter.
	Datefmt string `yaml:"datefmt"`

	Handlers HandlersConfig `yaml:"handlers"`
}

// HandlersConfig lists the output handlers to build. A nil entry means the
// handler is not configured.
type HandlersConfig struct {
	Stdout            *StdoutHandlerConfig            `yaml:"stdout"`
	File              *FileHandlerConfig              `yaml:"file"`
	TimedRotatingFile *TimedRotatingFileHandlerConfig `yaml:"timed_rotating_file"`
}

// StdoutHandlerConfig configures the console handler.
type StdoutHandlerConfig struct {
	Level string `yaml:"level"`
}

// FileHandlerConfig configures a plain append-only log file.
type FileHandlerConfig struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// TimedRotatingFileHandlerConfig configures a time-rotated log file.
type TimedRotatingFileHandlerConfig struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`

	// When is the rotation unit: s, m, h or d (case-insensitive).
	When string `yaml:"when"`

	// Interval is the number of units between rotations.
	Interval int `yaml:"interval"`

	// BackupCount is how many rotated files to keep. 0 keeps all of them.
	BackupCount int `yaml:"backup_count"`
}

// ArchiveConfig contains settings for the HSM command-line tool.
type ArchiveConfig struct {
	// Binary is the HSM tool executable. Default: "lfs"
	Binary string `yaml:"binary"`

	// CommandTimeout bounds every tool invocation. 0 disables the bound.
	// Default: 5m
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// RetryDelay is the pause before the single registration retry.
	// Default: 1s
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// JournalConfig contains settings for the SQLite archive event journal.
type JournalConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`

	// Tags are added to every point, e.g. {filesystem: lustre01}.
	Tags map[string]string `yaml:"tags"`
}

// Config decodes the typed settings from the registry.
//
// The loading order is:
//  1. Default values (hardcoded)
//  2. Values from the merged tree (override defaults)
//  3. Environment variables (override tree values)
//
// Environment variables follow the pattern HSMCORE_SECTION_KEY,
// for example HSMCORE_ARCHIVE_BINARY or HSMCORE_JOURNAL_PATH.
func (r *Registry) Config() (*Config, error) {
	cfg := defaultConfig()

	if err := r.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decoding settings: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate the final configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating settings: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:   "info",
			Format:  "default",
			Datefmt: "%Y-%m-%d %H:%M:%S",
		},
		Archive: ArchiveConfig{
			Binary:         "lfs",
			CommandTimeout: 5 * time.Minute,
			RetryDelay:     time.Second,
		},
		Journal: JournalConfig{
			Path:        "./data/hsm-journal.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "hsm-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix: "hsm",
		},
		InfluxDB: InfluxDBConfig{
			Bucket: "hsm",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Logging overrides
	if v := os.Getenv("HSMCORE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Archive overrides; an unparseable duration keeps the file value
	if v := os.Getenv("HSMCORE_ARCHIVE_BINARY"); v != "" {
		cfg.Archive.Binary = v
	}
	if v := os.Getenv("HSMCORE_ARCHIVE_COMMAND_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Archive.CommandTimeout = d
		}
	}

	// Journal overrides
	if v := os.Getenv("HSMCORE_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}
	if v := os.Getenv("HSMCORE_JOURNAL_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Journal.Enabled = b
		}
	}

	// MQTT overrides
	if v := os.Getenv("HSMCORE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HSMCORE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HSMCORE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB overrides (keep the token out of config files)
	if v := os.Getenv("HSMCORE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: wraps ErrInvalid describing every failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Logging validation
	switch strings.ToLower(c.Logging.Format) {
	case "", "default", "blank", "json":
	default:
		errs = append(errs, "logging.format must be default, blank or json")
	}

	if h := c.Logging.Handlers.File; h != nil && h.Path == "" {
		errs = append(errs, "logging.handlers.file.path is required")
	}
	if h := c.Logging.Handlers.TimedRotatingFile; h != nil {
		if h.Path == "" {
			errs = append(errs, "logging.handlers.timed_rotating_file.path is required")
		}
		switch strings.ToLower(h.When) {
		case "s", "m", "h", "d":
		default:
			errs = append(errs, "logging.handlers.timed_rotating_file.when must be s, m, h or d")
		}
		if h.Interval < 1 {
			errs = append(errs, "logging.handlers.timed_rotating_file.interval must be at least 1")
		}
	}

	// Archive validation
	if c.Archive.Binary == "" {
		errs = append(errs, "archive.binary is required")
	}
	if c.Archive.CommandTimeout < 0 {
		errs = append(errs, "archive.command_timeout must not be negative")
	}
	if c.Archive.RetryDelay < 0 {
		errs = append(errs, "archive.retry_delay must not be negative")
	}

	// Journal validation
	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when the journal is enabled")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// Report every failure at once
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}

	return nil
}
