package dispatch

import (
	"errors"
	"fmt"

	"github.com/platformbridge/backend/internal/domain/integration"
)

// ErrRemoteRejected is matched by every RemoteRejectedError
var ErrRemoteRejected = errors.New("dispatch: remote rejected operation")

// RemoteRejectedError is returned when a sibling answers an operation with a
// 4xx status. It is never retried.
type RemoteRejectedError struct {
	Platform   integration.PlatformID
	Operation  integration.OperationKind
	StatusCode int
	Status     string
	Body       []byte
}

func (e *RemoteRejectedError) Error() string {
	return fmt.Sprintf("integration %s rejected %s: %s", e.Platform, e.Operation, e.Status)
}

func (e *RemoteRejectedError) Unwrap() error {
	return ErrRemoteRejected
}
