package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeConfig writes content to a config file in a fresh temp dir.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hsm.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
archive:
  binary: "/usr/bin/lfs"
logging:
  datefmt: "%H:%M"
  handlers:
    stdout:
      level: debug
`)

	reg, err := Load([]string{path}, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if reg.Path() != path {
		t.Errorf("Path() = %q, want %q", reg.Path(), path)
	}
	if got := reg.Query("archive", "binary"); got != "/usr/bin/lfs" {
		t.Errorf("Query(archive, binary) = %v, want /usr/bin/lfs", got)
	}
	if got := reg.Query("logging", "handlers", "stdout", "level"); got != "debug" {
		t.Errorf("Query(stdout level) = %v, want debug", got)
	}
}

func TestLoad_SearchPathOrder(t *testing.T) {
	first := writeConfig(t, "name: first\n")
	second := writeConfig(t, "name: second\n")
	missing := filepath.Join(t.TempDir(), "absent.yaml")

	reg, err := Load([]string{missing, first, second}, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if reg.Path() != first {
		t.Errorf("Path() = %q, want %q", reg.Path(), first)
	}
	if got := reg.Get("name", nil); got != "first" {
		t.Errorf("Get(name) = %v, want first", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load([]string{"/nonexistent/path/hsm.yaml", ""}, "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
	if !errors.Is(err, ErrConfig) {
		t.Errorf("Load() error = %v, want it to wrap ErrConfig", err)
	}
}

func TestLoad_DirectoryIsNotAFile(t *testing.T) {
	_, err := Load([]string{t.TempDir()}, "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")

	_, err := Load([]string{path}, "")
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("Load() error = %v, want ErrMalformed", err)
	}
}

func TestLoad_TopLevelNotMapping(t *testing.T) {
	path := writeConfig(t, "- a\n- b\n")

	_, err := Load([]string{path}, "")
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("Load() error = %v, want ErrMalformed", err)
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeConfig(t, "")

	reg, err := Load([]string{path}, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(reg.Content()) != 0 {
		t.Errorf("Content() = %v, want empty", reg.Content())
	}
}

func TestLoad_EnvironmentSection(t *testing.T) {
	path := writeConfig(t, `
archive:
  binary: lfs
  retry_delay: 1s
testing:
  archive:
    binary: ./fake-lfs
`)
	t.Setenv("HSMCORE_TEST_ENV", "testing")

	reg, err := Load([]string{path}, "HSMCORE_TEST_ENV")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := reg.Query("archive", "binary"); got != "./fake-lfs" {
		t.Errorf("archive.binary = %v, want ./fake-lfs", got)
	}
	if got := reg.Query("archive", "retry_delay"); got != "1s" {
		t.Errorf("archive.retry_delay = %v, want 1s (kept from defaults)", got)
	}
}

func TestLoad_EnvironmentUnset(t *testing.T) {
	path := writeConfig(t, "archive:\n  binary: lfs\n")

	reg, err := Load([]string{path}, "HSMCORE_TEST_ENV_UNSET")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := reg.Query("archive", "binary"); got != "lfs" {
		t.Errorf("archive.binary = %v, want lfs", got)
	}
}

func TestLoad_UnknownEnvironment(t *testing.T) {
	path := writeConfig(t, "archive:\n  binary: lfs\n")
	t.Setenv("HSMCORE_TEST_ENV", "staging")

	_, err := Load([]string{path}, "HSMCORE_TEST_ENV")
	if !errors.Is(err, ErrUnknownEnvironment) {
		t.Errorf("Load() error = %v, want ErrUnknownEnvironment", err)
	}
}

func TestRegistry_ReloadIsIdempotent(t *testing.T) {
	path := writeConfig(t, "a:\n  b: 1\n")

	reg, err := Load([]string{path}, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	reg.Merge(Mapping{"extra": Scalar{V: true}})
	if !reg.Has("extra") {
		t.Fatal("Has(extra) = false after Merge, want true")
	}

	for i := 0; i < 2; i++ {
		if err := reg.Reload(); err != nil {
			t.Fatalf("Reload() error = %v", err)
		}
	}
	if reg.Has("extra") {
		t.Error("Has(extra) = true after Reload, want merged values discarded")
	}
	if got := reg.Query("a", "b"); got != 1 {
		t.Errorf("Query(a, b) = %v, want 1", got)
	}
}

func TestRegistry_ReloadKeepsTreeOnError(t *testing.T) {
	path := writeConfig(t, "a: 1\n")

	reg, err := Load([]string{path}, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := os.WriteFile(path, []byte("a: [broken"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := reg.Reload(); err == nil {
		t.Fatal("Reload() expected error for broken file, got nil")
	}
	if got := reg.Get("a", nil); got != 1 {
		t.Errorf("Get(a) = %v, want previous value 1", got)
	}
}

func TestRegistry_Config_Defaults(t *testing.T) {
	reg := FromMapping(Mapping{})

	cfg, err := reg.Config()
	if err != nil {
		t.Fatalf("Config() error = %v", err)
	}

	if cfg.Archive.Binary != "lfs" {
		t.Errorf("Archive.Binary = %q, want %q", cfg.Archive.Binary, "lfs")
	}
	if cfg.Archive.RetryDelay != time.Second {
		t.Errorf("Archive.RetryDelay = %v, want %v", cfg.Archive.RetryDelay, time.Second)
	}
	if cfg.Logging.Format != "default" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "default")
	}
	if cfg.Logging.Handlers.Stdout != nil {
		t.Error("Logging.Handlers.Stdout != nil, want no handler configured by default")
	}
	if cfg.MQTT.TopicPrefix != "hsm" {
		t.Errorf("MQTT.TopicPrefix = %q, want %q", cfg.MQTT.TopicPrefix, "hsm")
	}
}

func TestRegistry_Config_FromFile(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
  format: blank
  handlers:
    timed_rotating_file:
      path: /var/log/hsm.log
      level: info
      when: h
      interval: 2
archive:
  command_timeout: 30s
  retry_delay: 250ms
journal:
  enabled: true
  path: /tmp/journal.db
`)
	reg, err := Load([]string{path}, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	cfg, err := reg.Config()
	if err != nil {
		t.Fatalf("Config() error = %v", err)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	h := cfg.Logging.Handlers.TimedRotatingFile
	if h == nil {
		t.Fatal("TimedRotatingFile = nil, want configured")
	}
	if h.When != "h" || h.Interval != 2 {
		t.Errorf("TimedRotatingFile = %+v, want when=h interval=2", *h)
	}
	if cfg.Archive.CommandTimeout != 30*time.Second {
		t.Errorf("Archive.CommandTimeout = %v, want 30s", cfg.Archive.CommandTimeout)
	}
	if cfg.Archive.RetryDelay != 250*time.Millisecond {
		t.Errorf("Archive.RetryDelay = %v, want 250ms", cfg.Archive.RetryDelay)
	}
	if cfg.Archive.Binary != "lfs" {
		t.Errorf("Archive.Binary = %q, want default lfs", cfg.Archive.Binary)
	}
	if !cfg.Journal.Enabled || cfg.Journal.Path != "/tmp/journal.db" {
		t.Errorf("Journal = %+v, want enabled at /tmp/journal.db", cfg.Journal)
	}
}

func TestRegistry_Config_EnvOverrides(t *testing.T) {
	t.Setenv("HSMCORE_ARCHIVE_BINARY", "/opt/lustre/bin/lfs")
	t.Setenv("HSMCORE_JOURNAL_ENABLED", "true")
	t.Setenv("HSMCORE_ARCHIVE_COMMAND_TIMEOUT", "10s")

	reg := FromMapping(Mapping{
		"archive": Mapping{"binary": Scalar{V: "lfs"}},
	})

	cfg, err := reg.Config()
	if err != nil {
		t.Fatalf("Config() error = %v", err)
	}
	if cfg.Archive.Binary != "/opt/lustre/bin/lfs" {
		t.Errorf("Archive.Binary = %q, want env override", cfg.Archive.Binary)
	}
	if !cfg.Journal.Enabled {
		t.Error("Journal.Enabled = false, want env override true")
	}
	if cfg.Archive.CommandTimeout != 10*time.Second {
		t.Errorf("Archive.CommandTimeout = %v, want 10s", cfg.Archive.CommandTimeout)
	}
}

func TestRegistry_Config_SectionNotMapping(t *testing.T) {
	reg := FromMapping(Mapping{"archive": Scalar{V: "lfs"}})

	if _, err := reg.Config(); err == nil {
		t.Error("Config() expected error when archive is a scalar, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "unknown format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: true,
		},
		{
			name: "file handler without path",
			mutate: func(c *Config) {
				c.Logging.Handlers.File = &FileHandlerConfig{Level: "info"}
			},
			wantErr: true,
		},
		{
			name: "rotating handler with bad unit",
			mutate: func(c *Config) {
				c.Logging.Handlers.TimedRotatingFile = &TimedRotatingFileHandlerConfig{
					Path: "/tmp/x.log", When: "w", Interval: 1,
				}
			},
			wantErr: true,
		},
		{
			name: "rotating handler with zero interval",
			mutate: func(c *Config) {
				c.Logging.Handlers.TimedRotatingFile = &TimedRotatingFileHandlerConfig{
					Path: "/tmp/x.log", When: "H",
				}
			},
			wantErr: true,
		},
		{
			name: "rotating handler valid",
			mutate: func(c *Config) {
				c.Logging.Handlers.TimedRotatingFile = &TimedRotatingFileHandlerConfig{
					Path: "/tmp/x.log", When: "H", Interval: 1,
				}
			},
			wantErr: false,
		},
		{
			name:    "empty binary",
			mutate:  func(c *Config) { c.Archive.Binary = "" },
			wantErr: true,
		},
		{
			name:    "negative retry delay",
			mutate:  func(c *Config) { c.Archive.RetryDelay = -time.Second },
			wantErr: true,
		},
		{
			name: "journal enabled without path",
			mutate: func(c *Config) {
				c.Journal.Enabled = true
				c.Journal.Path = ""
			},
			wantErr: true,
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "influxdb enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() error = %v, want it to wrap ErrInvalid", err)
			}
		})
	}
}
