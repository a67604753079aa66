package logging

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/nerrad567/hsm-core/internal/infrastructure/config"
)

// ConfigureFromConfig sets the registry's level and formatter from cfg and
// registers every handler configured under cfg.Handlers.
//
// Recognised handlers:
//
//	logging:
//	  handlers:
//	    stdout:              {level: info}
//	    file:                {path: /var/log/hsm.log, level: debug}
//	    timed_rotating_file: {path: /var/log/hsm-rot.log, level: info, when: h, interval: 1}
//
// The rotation unit is case-normalised ("h" becomes "H") and the interval is
// converted to seconds for that unit, so an hourly interval of 1 rotates
// every 3600 seconds.
//
// Existing handlers are kept; call Close or Reset first to replace them. Errors
// opening log files are returned unchanged and leave already-built handlers
// registered.
func (r *Registry) ConfigureFromConfig(cfg config.LoggingConfig) error {
	f, err := FormatterByName(cfg.Format, cfg.Datefmt)
	if err != nil {
		return err
	}
	r.SetFormatter(f)
	r.SetLevel(ParseLevel(cfg.Level))

	if h := cfg.Handlers.Stdout; h != nil {
		r.AddHandler(NewStreamHandler("stdout", r.stdout), ParseLevel(h.Level))
	}

	if h := cfg.Handlers.File; h != nil {
		fh, err := NewFileHandler(h.Path)
		if err != nil {
			return err
		}
		r.AddHandler(fh, ParseLevel(h.Level))
	}

	if h := cfg.Handlers.TimedRotatingFile; h != nil {
		when := strings.ToUpper(h.When)
		if when == "" {
			return fmt.Errorf("%w: empty rotation unit", ErrUnknownRotation)
		}
		rh, err := NewTimedRotatingFileHandler(h.Path, when, h.Interval, h.BackupCount)
		if err != nil {
			return err
		}
		r.AddHandler(rh, ParseLevel(h.Level))
	}

	return nil
}

// ParseLevel converts a string log level to slog.Level.
//
// Supported levels: debug, info, warn (warning), error (critical).
// Defaults to info if unrecognised.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "critical":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
