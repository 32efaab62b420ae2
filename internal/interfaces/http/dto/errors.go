package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	ErrCodeUnknown  = "ERR_UNKNOWN"
	ErrCodeInternal = "ERR_INTERNAL"
)

// Input error codes
const (
	ErrCodeBadRequest      = "ERR_BAD_REQUEST"
	ErrCodeInvalidJSON     = "ERR_INVALID_JSON"
	ErrCodeInvalidPlatform = "ERR_INVALID_PLATFORM"
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

// Routing error codes
const (
	// ErrCodeNotFound is used when a resource or routing id is unknown
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeNotInstalled is used when the target integration was not detected
	ErrCodeNotInstalled = "ERR_NOT_INSTALLED"
	// ErrCodeUnsupportedOperation is used when no handler serves the operation
	ErrCodeUnsupportedOperation = "ERR_UNSUPPORTED_OPERATION"
	// ErrCodeOperationNotConfigured is used when an operation has no call descriptor
	ErrCodeOperationNotConfigured = "ERR_OPERATION_NOT_CONFIGURED"
	// ErrCodeOperationInProgress is used when a retry arrives while its first attempt still runs
	ErrCodeOperationInProgress = "ERR_OPERATION_IN_PROGRESS"
)

// Upstream error codes
const (
	// ErrCodeUpstream is used when a sibling call fails at the transport level
	ErrCodeUpstream = "ERR_UPSTREAM"
	// ErrCodeUpstreamTimeout is used when every attempt of a sibling call timed out
	ErrCodeUpstreamTimeout = "ERR_UPSTREAM_TIMEOUT"
	// ErrCodeUpstreamRejected is used when a sibling answered with a 4xx status
	ErrCodeUpstreamRejected = "ERR_UPSTREAM_REJECTED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeInvalidPlatform: http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,

	ErrCodeNotFound:               http.StatusNotFound,
	ErrCodeNotInstalled:           http.StatusNotFound,
	ErrCodeUnsupportedOperation:   http.StatusBadRequest,
	ErrCodeOperationNotConfigured: http.StatusInternalServerError,
	ErrCodeOperationInProgress:    http.StatusConflict,

	ErrCodeUpstream:         http.StatusBadGateway,
	ErrCodeUpstreamTimeout:  http.StatusGatewayTimeout,
	ErrCodeUpstreamRejected: http.StatusBadGateway,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
