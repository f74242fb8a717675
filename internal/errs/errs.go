// Package errs defines the error kinds shared by the local store, the remote
// store client and the ingestion surfaces.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection means a store could not be reached.
	ErrConnection = errors.New("connection error")
	// ErrWrite means a store was reachable but rejected the write.
	ErrWrite = errors.New("write error")
	// ErrMalformedInput means an ingestion payload was missing or invalid.
	ErrMalformedInput = errors.New("malformed input")
)

// Connection wraps err as a connection failure of op.
func Connection(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrConnection, err)
}

// Write wraps err as a rejected write of op.
func Write(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrWrite, err)
}

// Malformed reports an invalid ingestion payload.
func Malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedInput, fmt.Sprintf(format, args...))
}
