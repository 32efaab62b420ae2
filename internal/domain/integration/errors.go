package integration

import (
	"errors"
	"fmt"
)

var (
	ErrNotInstalled           = errors.New("integration: not installed")
	ErrUnsupportedOperation   = errors.New("integration: unsupported operation")
	ErrOperationNotConfigured = errors.New("integration: operation not configured")
	ErrInvalidPlatform        = errors.New("integration: invalid platform")
	ErrInvalidPayload         = errors.New("integration: invalid payload")
)

// NotInstalledError reports a dispatch to a platform missing from the detection map
type NotInstalledError struct {
	Platform PlatformID
}

func (e *NotInstalledError) Error() string {
	return fmt.Sprintf("integration for platform %s is not installed", e.Platform)
}

// Unwrap allows errors.Is(err, ErrNotInstalled)
func (e *NotInstalledError) Unwrap() error {
	return ErrNotInstalled
}

// UnsupportedOperationError reports a home dispatch with no local handler
type UnsupportedOperationError struct {
	Operation OperationKind
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("Unsupported operation: %s", e.Operation)
}

// Unwrap allows errors.Is(err, ErrUnsupportedOperation)
func (e *UnsupportedOperationError) Unwrap() error {
	return ErrUnsupportedOperation
}
