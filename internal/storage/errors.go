package storage

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is returned by every Store operation before a successful
// Initialize, and again after Reset or Close.
var ErrNotInitialized = errors.New("store not initialized")

// DecodeError reports a row whose shape does not match an expense.
type DecodeError struct {
	Column string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode expense column %q: %s", e.Column, e.Reason)
}
