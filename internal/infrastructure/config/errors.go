package config

import (
	"errors"
	"fmt"
)

// ErrConfig is the root of every configuration error.
// Use errors.Is(err, ErrConfig) to catch any of them.
var ErrConfig = errors.New("config")

// Specific configuration errors. All wrap ErrConfig.
var (
	// ErrNotFound is returned when no search path names an existing file.
	ErrNotFound = fmt.Errorf("%w: no configuration file found", ErrConfig)

	// ErrMalformed is returned when the file is not valid YAML or its
	// top level is not a mapping.
	ErrMalformed = fmt.Errorf("%w: malformed configuration", ErrConfig)

	// ErrUnknownEnvironment is returned when the environment selector names
	// a section the file does not contain.
	ErrUnknownEnvironment = fmt.Errorf("%w: unknown environment section", ErrConfig)

	// ErrInvalid is returned when typed settings fail validation.
	ErrInvalid = fmt.Errorf("%w: invalid settings", ErrConfig)
)
