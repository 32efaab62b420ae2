package httpclient

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRequestAborted marks an attempt cut short by its own timeout
	ErrRequestAborted = errors.New("httpclient: request aborted")
	// ErrResponseTooLarge marks a response body over the client's size limit
	ErrResponseTooLarge = errors.New("httpclient: response body too large")
)

// StatusError is returned when the remote answered with a 5xx status
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: server responded %s", e.Method, e.URL, e.Status)
}

// AbortedError reports an attempt that exceeded its timeout
type AbortedError struct {
	Method  string
	URL     string
	Timeout time.Duration
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("%s %s: request aborted after %s", e.Method, e.URL, e.Timeout)
}

// Unwrap allows errors.Is(err, ErrRequestAborted)
func (e *AbortedError) Unwrap() error {
	return ErrRequestAborted
}

// ResponseTooLargeError reports a response body that exceeded the size limit.
// It classifies as unknown and is not retried.
type ResponseTooLargeError struct {
	Method string
	URL    string
	Limit  int64
}

func (e *ResponseTooLargeError) Error() string {
	return fmt.Sprintf("%s %s: response body exceeds %d bytes", e.Method, e.URL, e.Limit)
}

// Unwrap allows errors.Is(err, ErrResponseTooLarge)
func (e *ResponseTooLargeError) Unwrap() error {
	return ErrResponseTooLarge
}
