package engine

import "errors"

// ErrClosed is returned for operations on a closed engine.
var ErrClosed = errors.New("engine closed")
