// Package cache stores the responses of side-effecting operations so a
// retried loopback call is answered without running the operation twice.
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// ReplayStore keeps one entry per request key. An entry is pending from
// Claim until Complete stores the response, or Release drops it.
type ReplayStore interface {
	// Claim reserves key. It returns false when key is already pending or completed.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Load returns the stored response. done is false while the entry is pending or absent.
	Load(ctx context.Context, key string) (resp json.RawMessage, done bool, err error)
	Complete(ctx context.Context, key string, resp json.RawMessage, ttl time.Duration) error
	Release(ctx context.Context, key string) error
	Close() error
}
