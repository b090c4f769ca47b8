package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

// NetworkError represents a structured network error
type NetworkError struct {
	Operation string
	Address   string
	Err       error
}

func (ne *NetworkError) Error() string {
	if ne.Address != "" {
		return fmt.Sprintf("network error during %s to %s: %v", ne.Operation, ne.Address, ne.Err)
	}
	return fmt.Sprintf("network error during %s: %v", ne.Operation, ne.Err)
}

func (ne *NetworkError) Unwrap() error {
	return ne.Err
}

// IsNetworkError checks if an error is a network error
func IsNetworkError(err error) bool {
	var target *NetworkError
	return errors.As(err, &target)
}

// NewNetworkError creates a new network error
func NewNetworkError(operation, address string, err error) *NetworkError {
	return &NetworkError{
		Operation: operation,
		Address:   address,
		Err:       err,
	}
}

// IsTimeoutError checks if an error is a timeout or cancellation
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsConnectionError reports whether err means the connection itself is
// unusable, as opposed to a failed statement on a healthy connection.
// Callers use it to decide between releasing and discarding.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	if IsNetworkError(err) {
		return true
	}

	if errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	// Check for standard connection errors
	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset by peer") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "server closed the connection")
}

// WrapError wraps an error with additional context
func WrapError(err error, msg string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(msg, args...), err)
}
