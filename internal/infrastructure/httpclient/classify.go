package httpclient

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"
)

// ErrorKind is the closed set of failure shapes the retry engine acts on
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindConnectionFailure
	KindRequestAborted
	KindServerError
)

// String returns the metric/log label for the kind
func (k ErrorKind) String() string {
	switch k {
	case KindConnectionFailure:
		return "connection_failure"
	case KindRequestAborted:
		return "request_aborted"
	case KindServerError:
		return "server_error"
	default:
		return "unknown"
	}
}

// Classification is the retry policy derived from one caught error
type Classification struct {
	Kind       ErrorKind
	MaxRetries int

	shouldRetry func(err error, attempt int) bool
	backoff     func(attempt int) time.Duration
}

// ShouldRetry reports whether the failed attempt may be retried
func (c Classification) ShouldRetry(err error, attempt int) bool {
	if c.shouldRetry == nil {
		return false
	}
	return c.shouldRetry(err, attempt)
}

// Backoff returns the delay before retrying after the given attempt
func (c Classification) Backoff(attempt int) time.Duration {
	if c.backoff == nil {
		return 0
	}
	return c.backoff(attempt)
}

type classificationRule struct {
	kind        ErrorKind
	matches     func(err error) bool
	maxRetries  int
	shouldRetry func(err error, attempt int) bool
	backoff     func(attempt int) time.Duration
}

func always(error, int) bool { return true }

func noBackoff(int) time.Duration { return 0 }

// classificationRules is evaluated in order; the first match wins
var classificationRules = []classificationRule{
	{
		kind:        KindConnectionFailure,
		matches:     isConnectionFailure,
		maxRetries:  2,
		shouldRetry: always,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt+1) * 100 * time.Millisecond
		},
	},
	{
		kind:        KindRequestAborted,
		matches:     isRequestAborted,
		maxRetries:  1,
		shouldRetry: always,
		backoff:     noBackoff,
	},
	{
		kind:        KindServerError,
		matches:     isServerError,
		maxRetries:  1,
		shouldRetry: always,
		backoff: func(int) time.Duration {
			return 100 * time.Millisecond
		},
	},
}

// Classify maps an error to its retry policy.
// The result depends only on the error, never on the operation being run.
func Classify(err error) Classification {
	for _, rule := range classificationRules {
		if rule.matches(err) {
			return Classification{
				Kind:        rule.kind,
				MaxRetries:  rule.maxRetries,
				shouldRetry: rule.shouldRetry,
				backoff:     rule.backoff,
			}
		}
	}
	return Classification{Kind: KindUnknown}
}

func isConnectionFailure(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	// connect timeouts raised by the dialer itself
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial" && opErr.Timeout()
}

func isRequestAborted(err error) bool {
	if errors.Is(err, ErrRequestAborted) || errors.Is(err, syscall.ECONNABORTED) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isServerError(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode >= 500
}
