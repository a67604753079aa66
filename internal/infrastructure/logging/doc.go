// Package logging provides the log registry for HSM Core.
//
// This package builds on Go's standard log/slog package. A Registry owns
// the output handlers, the shared level and the active formatter; every
// named Logger issued by the registry is a live view over that state.
//
// # Features
//
//   - Named loggers that share one handler set and level
//   - Console, flat file and time-rotated file handlers
//   - Three formatters: default (timestamp, name, level, message), blank
//     (message only) and json
//   - Level and formatter changes propagate to every handler and logger
//   - Thread-safe for concurrent use
//
// # Configuration
//
// Handlers are built from the logging section of the configuration file:
//
//	logging:
//	  level: "info"
//	  format: "default"            # default, blank, json
//	  datefmt: "%Y-%m-%d %H:%M:%S"
//	  handlers:
//	    stdout:
//	      level: "info"
//	    timed_rotating_file:
//	      path: "/var/log/hsm-core/hsm.log"
//	      level: "debug"
//	      when: "h"
//	      interval: 24
//
// # Usage
//
//	reg := logging.NewRegistry()
//	if err := reg.ConfigureFromConfig(cfg.Logging); err != nil {
//	    return err
//	}
//	log := reg.Logger("archive")
//	log.Info("file released", "path", path)
//
// # Security
//
// Never log secrets, tokens or passwords.
package logging
