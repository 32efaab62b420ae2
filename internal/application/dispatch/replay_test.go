package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/platformbridge/backend/internal/domain/integration"
	"github.com/platformbridge/backend/internal/infrastructure/cache"
	"github.com/platformbridge/backend/internal/infrastructure/logger"
)

type brokenStore struct{}

func (brokenStore) Claim(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}

func (brokenStore) Load(context.Context, string) (json.RawMessage, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (brokenStore) Complete(context.Context, string, json.RawMessage, time.Duration) error {
	return errors.New("connection refused")
}

func (brokenStore) Release(context.Context, string) error { return errors.New("connection refused") }

func newReplayDispatcher(t *testing.T, handlers *LocalHandlers, store ReplayStore) (*Dispatcher, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	d := New(&stubDetector{}, nil, nil, handlers,
		WithLogger(zap.New(core)),
		WithReplayStore(store, time.Minute),
	)
	return d, logs
}

func newMemoryStore(t *testing.T) *cache.InMemoryReplayStore {
	t.Helper()
	store := cache.NewInMemoryReplayStore(time.Hour)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func withRequestID(id string) context.Context {
	return logger.WithRequestID(context.Background(), id)
}

func TestReplay_SideEffectRunsOncePerRequestID(t *testing.T) {
	viewers := newMemoryViewers()
	d, logs := newReplayDispatcher(t, NewHomeHandlers(viewers, &fakeChat{}, nil), newMemoryStore(t))
	payload := `{"username":"alice","currencyId":"points","amount":5}`

	first, err := d.DispatchLocal(withRequestID("req-1"), integration.OpAdjustUserCurrency, json.RawMessage(payload))
	require.NoError(t, err)
	second, err := d.DispatchLocal(withRequestID("req-1"), integration.OpAdjustUserCurrency, json.RawMessage(payload))
	require.NoError(t, err)

	assert.JSONEq(t, string(first), string(second))
	assert.JSONEq(t, `{"success":true,"amount":5}`, string(second))
	assert.Equal(t, 1, logs.FilterMessage("Replaying stored response").Len())

	third, err := d.DispatchLocal(withRequestID("req-2"), integration.OpAdjustUserCurrency, json.RawMessage(payload))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"amount":10}`, string(third))
}

func TestReplay_Bypassed(t *testing.T) {
	payload := json.RawMessage(`{"username":"bob","currencyId":"points","amount":1}`)

	t.Run("without request id", func(t *testing.T) {
		d, _ := newReplayDispatcher(t, NewHomeHandlers(newMemoryViewers(), &fakeChat{}, nil), newMemoryStore(t))

		_, err := d.DispatchLocal(context.Background(), integration.OpAdjustUserCurrency, payload)
		require.NoError(t, err)
		out, err := d.DispatchLocal(context.Background(), integration.OpAdjustUserCurrency, payload)
		require.NoError(t, err)
		assert.JSONEq(t, `{"success":true,"amount":2}`, string(out))
	})

	t.Run("for read operations", func(t *testing.T) {
		store := newMemoryStore(t)
		d, _ := newReplayDispatcher(t, NewHomeHandlers(newMemoryViewers(), &fakeChat{}, nil), store)

		_, err := d.DispatchLocal(withRequestID("req-r"), integration.OpGetUserCurrency, json.RawMessage(`{"username":"bob","currencyId":"points"}`))
		require.NoError(t, err)
		assert.Zero(t, store.Size())
	})
}

func TestReplay_InFlight(t *testing.T) {
	store := newMemoryStore(t)
	d, _ := newReplayDispatcher(t, NewHomeHandlers(newMemoryViewers(), &fakeChat{}, nil), store)

	claimed, err := store.Claim(context.Background(), "send-chat-message:req-9", time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)

	_, err = d.DispatchLocal(withRequestID("req-9"), integration.OpSendChatMessage, json.RawMessage(`{"message":"hi"}`))
	assert.ErrorIs(t, err, ErrOperationInFlight)
}

func TestReplay_FailureReleasesKey(t *testing.T) {
	calls := 0
	handlers := NewLocalHandlers().Register(integration.OpSendChatMessage, func(ctx context.Context, _ json.RawMessage) (any, error) {
		calls++
		if calls == 1 {
			return nil, context.DeadlineExceeded
		}
		return integration.SendChatMessageResponse{Result: integration.Result{Success: true}}, nil
	})
	d, _ := newReplayDispatcher(t, handlers, newMemoryStore(t))

	_, err := d.DispatchLocal(withRequestID("req-f"), integration.OpSendChatMessage, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	out, err := d.DispatchLocal(withRequestID("req-f"), integration.OpSendChatMessage, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true}`, string(out))
	assert.Equal(t, 2, calls)
}

func TestReplay_FailedResultIsNotStored(t *testing.T) {
	store := newMemoryStore(t)
	chat := &fakeChat{err: errors.New("webhook 502")}
	d, logs := newReplayDispatcher(t, NewHomeHandlers(newMemoryViewers(), chat, nil), store)
	payload := json.RawMessage(`{"message":"hi"}`)

	out, err := d.DispatchLocal(withRequestID("req-w"), integration.OpSendChatMessage, payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"error":"webhook 502"}`, string(out))
	assert.Zero(t, store.Size())

	chat.err = nil
	out, err = d.DispatchLocal(withRequestID("req-w"), integration.OpSendChatMessage, payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true}`, string(out))
	assert.Len(t, chat.sent, 1)
	assert.Zero(t, logs.FilterMessage("Replaying stored response").Len())

	out, err = d.DispatchLocal(withRequestID("req-w"), integration.OpSendChatMessage, payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true}`, string(out))
	assert.Len(t, chat.sent, 1)
}

func TestReportsFailure(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want bool
	}{
		{"failed result", `{"success":false,"error":"boom"}`, true},
		{"successful result", `{"success":true,"amount":3}`, false},
		{"no envelope", `{"amount":3}`, false},
		{"not an object", `[1,2]`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, reportsFailure(json.RawMessage(tt.out)))
		})
	}
}

func TestReplay_StoreFailureRunsOperation(t *testing.T) {
	chat := &fakeChat{}
	d, logs := newReplayDispatcher(t, NewHomeHandlers(newMemoryViewers(), chat, nil), brokenStore{})

	out, err := d.DispatchLocal(withRequestID("req-x"), integration.OpSendChatMessage, json.RawMessage(`{"message":"hi"}`))

	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true}`, string(out))
	assert.Len(t, chat.sent, 1)
	assert.Equal(t, 1, logs.FilterMessage("Replay store unavailable, running without replay").Len())
}
