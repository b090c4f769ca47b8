package pool

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrPoolClosed is returned by Acquire once Close has been called.
	ErrPoolClosed = errors.New("connection pool is closed")
	// ErrCreate marks a factory failure surfaced from Acquire.
	ErrCreate = errors.New("failed to create connection")
	// ErrInvalidConfig marks a rejected pool configuration.
	ErrInvalidConfig = errors.New("invalid pool configuration")

	// errStale marks a health probe failure. It never leaves the package.
	errStale = errors.New("stale connection")
)

// PoolError represents errors specific to connection pool operations
type PoolError struct {
	Op     string
	ConnID uuid.UUID
	Err    error
}

func (e *PoolError) Error() string {
	if e.ConnID != uuid.Nil {
		return fmt.Sprintf("connection pool error during %s (conn %s): %v", e.Op, e.ConnID, e.Err)
	}
	return fmt.Sprintf("connection pool error during %s: %v", e.Op, e.Err)
}

func (e *PoolError) Unwrap() error {
	return e.Err
}

// IsPoolError checks if an error is a connection pool error
func IsPoolError(err error) bool {
	var target *PoolError
	return errors.As(err, &target)
}

func configError(format string, args ...any) error {
	return &PoolError{
		Op:  "config",
		Err: fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...)),
	}
}

func createError(err error) error {
	return &PoolError{
		Op:  "create",
		Err: fmt.Errorf("%w: %w", ErrCreate, err),
	}
}

func staleError(id uuid.UUID, err error) error {
	return &PoolError{
		Op:     "probe",
		ConnID: id,
		Err:    fmt.Errorf("%w: %w", errStale, err),
	}
}
