package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/platformbridge/backend/internal/domain/integration"
	"github.com/platformbridge/backend/internal/infrastructure/logger"
	"github.com/platformbridge/backend/internal/infrastructure/telemetry"
)

// DefaultReplayTTL is how long a side-effecting response is remembered
const DefaultReplayTTL = 10 * time.Minute

// ErrOperationInFlight is returned when a call with the same request ID is
// still running
var ErrOperationInFlight = errors.New("dispatch: operation already in progress for this request id")

// ReplayStore remembers home responses by request key. See cache.ReplayStore.
type ReplayStore interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Load(ctx context.Context, key string) (json.RawMessage, bool, error)
	Complete(ctx context.Context, key string, resp json.RawMessage, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// WithReplayStore makes side-effecting home operations run at most once per
// request ID. A retried call gets the first response back.
func WithReplayStore(store ReplayStore, ttl time.Duration) Option {
	return func(d *Dispatcher) {
		d.replay = store
		d.replayTTL = ttl
		if d.replayTTL <= 0 {
			d.replayTTL = DefaultReplayTTL
		}
	}
}

func (d *Dispatcher) replayKey(ctx context.Context, kind integration.OperationKind) (string, bool) {
	if d.replay == nil {
		return "", false
	}
	if desc, ok := d.descriptors[kind]; !ok || !desc.SideEffects {
		return "", false
	}
	id := logger.GetRequestID(ctx)
	if id == "" {
		return "", false
	}
	return kind.String() + ":" + id, true
}

// runOnce runs fn unless key was already claimed. A store failure on claim
// falls back to running fn, so the store never blocks an operation.
func (d *Dispatcher) runOnce(ctx context.Context, key string, fn func() (json.RawMessage, error)) (json.RawMessage, error) {
	log := logger.ForContext(ctx, d.logger)

	claimed, err := d.replay.Claim(ctx, key, d.replayTTL)
	if err != nil {
		log.Warn("Replay store unavailable, running without replay", zap.String("key", key), zap.Error(err))
		return fn()
	}
	if !claimed {
		resp, done, err := d.replay.Load(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("load replayed response: %w", err)
		}
		if !done {
			return nil, ErrOperationInFlight
		}
		log.Info("Replaying stored response", zap.String("key", key))
		telemetry.AddEvent(trace.SpanFromContext(ctx), "replayed", "key", key)
		telemetry.SetAttribute(trace.SpanFromContext(ctx), telemetry.SpanAttrReplayed, true)
		return resp, nil
	}

	// the caller may give up while the operation completes; the entry must still settle
	settleCtx := context.WithoutCancel(ctx)
	out, err := fn()
	if err != nil {
		d.release(settleCtx, log, key)
		return nil, err
	}
	if reportsFailure(out) {
		d.release(settleCtx, log, key)
		return out, nil
	}
	if err := d.replay.Complete(settleCtx, key, out, d.replayTTL); err != nil {
		log.Warn("Failed to store replay response", zap.String("key", key), zap.Error(err))
	}
	return out, nil
}

func (d *Dispatcher) release(ctx context.Context, log *zap.Logger, key string) {
	if err := d.replay.Release(ctx, key); err != nil {
		log.Warn("Failed to release replay key", zap.String("key", key), zap.Error(err))
	}
}

// reportsFailure tells whether a handler response carries an unsuccessful
// integration.Result. Such responses are not stored so a retry runs again.
func reportsFailure(out json.RawMessage) bool {
	var envelope struct {
		Success *bool `json:"success"`
	}
	if err := json.Unmarshal(out, &envelope); err != nil {
		return false
	}
	return envelope.Success != nil && !*envelope.Success
}
