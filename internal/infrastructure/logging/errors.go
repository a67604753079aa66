package logging

import "errors"

// Errors returned by the logging package.
var (
	// ErrUnknownFormatter is returned when a formatter name is not recognised.
	ErrUnknownFormatter = errors.New("logging: unknown formatter")

	// ErrInvalidDatefmt is returned when a datefmt holds an unknown directive.
	ErrInvalidDatefmt = errors.New("logging: invalid datefmt")

	// ErrUnknownRotation is returned when a rotation unit is not one of S, M, H or D.
	ErrUnknownRotation = errors.New("logging: unknown rotation unit")

	// ErrHandlerClosed is returned when writing to a handler after Close.
	ErrHandlerClosed = errors.New("logging: handler closed")
)
