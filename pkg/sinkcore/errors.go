package sinkcore

import "errors"

// ErrFrontierRegression is the sentinel wrapped by the panic raised when a
// committed or emitted timestamp would move WriteFrontier backwards. This
// can only happen from a programming error upstream (closed timestamps
// delivered out of order); it is not a recoverable condition.
var ErrFrontierRegression = errors.New("sinkcore: write frontier regression")
