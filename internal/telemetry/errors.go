package telemetry

import "errors"

// ErrInvalidConfig rejects a configuration patch; nothing was applied.
var ErrInvalidConfig = errors.New("telemetry: invalid config")

// ErrClosed is returned by operations after Close.
var ErrClosed = errors.New("telemetry: service closed")
