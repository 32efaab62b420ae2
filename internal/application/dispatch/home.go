package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/platformbridge/backend/internal/domain/integration"
	"github.com/platformbridge/backend/internal/domain/viewer"
)

// ChatSender posts chat messages on the home platform
type ChatSender interface {
	SendChatMessage(ctx context.Context, req integration.SendChatMessageRequest) error
}

// homeHandlers serves every operation in-process for the home platform.
// Failures are reported as a structured result; only context errors escape.
type homeHandlers struct {
	viewers viewer.Repository
	chat    ChatSender
	logger  *zap.Logger
}

// NewHomeHandlers builds the home platform handler table
func NewHomeHandlers(viewers viewer.Repository, chat ChatSender, logger *zap.Logger) *LocalHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &homeHandlers{viewers: viewers, chat: chat, logger: logger}
	return NewLocalHandlers().
		Register(integration.OpSendChatMessage, h.sendChatMessage).
		Register(integration.OpGetUserCurrency, h.getUserCurrency).
		Register(integration.OpAdjustUserCurrency, h.adjustUserCurrency).
		Register(integration.OpGetUserMetadata, h.getUserMetadata).
		Register(integration.OpSetUserMetadata, h.setUserMetadata)
}

func (h *homeHandlers) sendChatMessage(ctx context.Context, payload json.RawMessage) (any, error) {
	var req integration.SendChatMessageRequest
	if err := decodeRequest(payload, &req); err != nil {
		return integration.SendChatMessageResponse{Result: integration.Failed(err)}, nil
	}
	if strings.TrimSpace(req.Message) == "" {
		err := fmt.Errorf("%w: message is required", integration.ErrInvalidPayload)
		return integration.SendChatMessageResponse{Result: integration.Failed(err)}, nil
	}
	if err := h.chat.SendChatMessage(ctx, req); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		h.logger.Warn("Failed to send home chat message", zap.Error(err))
		return integration.SendChatMessageResponse{Result: integration.Failed(err)}, nil
	}
	return integration.SendChatMessageResponse{Result: integration.Result{Success: true}}, nil
}

func (h *homeHandlers) getUserCurrency(ctx context.Context, payload json.RawMessage) (any, error) {
	var req integration.GetUserCurrencyRequest
	if err := decodeRequest(payload, &req); err != nil {
		return integration.UserCurrencyResponse{Result: integration.Failed(err)}, nil
	}
	if strings.TrimSpace(req.CurrencyID) == "" {
		return integration.UserCurrencyResponse{Result: integration.Failed(viewer.ErrInvalidCurrencyID)}, nil
	}

	v, err := h.viewers.FindByUsername(ctx, integration.HomePlatform, req.Username)
	switch {
	case errors.Is(err, viewer.ErrViewerNotFound):
		return integration.UserCurrencyResponse{Result: integration.Result{Success: true}}, nil
	case err != nil:
		return h.currencyFailure(ctx, "get", err)
	}
	return integration.UserCurrencyResponse{
		Result: integration.Result{Success: true},
		Amount: v.Currency(req.CurrencyID),
	}, nil
}

func (h *homeHandlers) adjustUserCurrency(ctx context.Context, payload json.RawMessage) (any, error) {
	var req integration.AdjustUserCurrencyRequest
	if err := decodeRequest(payload, &req); err != nil {
		return integration.UserCurrencyResponse{Result: integration.Failed(err)}, nil
	}

	v, err := h.loadOrCreate(ctx, req.Username)
	if err != nil {
		return h.currencyFailure(ctx, "adjust", err)
	}
	amount, err := v.ApplyCurrency(req.CurrencyID, req.Amount, req.Mode)
	if err != nil {
		return integration.UserCurrencyResponse{Result: integration.Failed(err)}, nil
	}
	if err := h.viewers.Save(ctx, v); err != nil {
		return h.currencyFailure(ctx, "adjust", err)
	}
	return integration.UserCurrencyResponse{
		Result: integration.Result{Success: true},
		Amount: amount,
	}, nil
}

func (h *homeHandlers) getUserMetadata(ctx context.Context, payload json.RawMessage) (any, error) {
	var req integration.GetUserMetadataRequest
	if err := decodeRequest(payload, &req); err != nil {
		return integration.UserMetadataResponse{Result: integration.Failed(err)}, nil
	}
	if strings.TrimSpace(req.Key) == "" {
		return integration.UserMetadataResponse{Result: integration.Failed(viewer.ErrInvalidMetadataKey)}, nil
	}

	v, err := h.viewers.FindByUsername(ctx, integration.HomePlatform, req.Username)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, viewer.ErrViewerNotFound) {
			h.logger.Warn("Failed to load viewer metadata", zap.String("key", req.Key), zap.Error(err))
		}
		return integration.UserMetadataResponse{Result: integration.Failed(err)}, nil
	}
	return integration.UserMetadataResponse{
		Result: integration.Result{Success: true},
		Value:  v.Metadata[req.Key],
	}, nil
}

func (h *homeHandlers) setUserMetadata(ctx context.Context, payload json.RawMessage) (any, error) {
	var req integration.SetUserMetadataRequest
	if err := decodeRequest(payload, &req); err != nil {
		return integration.SetUserMetadataResponse{Result: integration.Failed(err)}, nil
	}

	v, err := h.loadOrCreate(ctx, req.Username)
	if err == nil {
		value := req.Value
		if len(value) == 0 {
			value = json.RawMessage("null")
		}
		err = v.SetMetadata(req.Key, value)
	}
	if err == nil {
		err = h.viewers.Save(ctx, v)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return integration.SetUserMetadataResponse{Result: integration.Failed(err)}, nil
	}
	return integration.SetUserMetadataResponse{Result: integration.Result{Success: true}}, nil
}

func (h *homeHandlers) loadOrCreate(ctx context.Context, username string) (*viewer.Viewer, error) {
	v, err := h.viewers.FindByUsername(ctx, integration.HomePlatform, username)
	if errors.Is(err, viewer.ErrViewerNotFound) {
		return viewer.NewViewer(integration.HomePlatform, username)
	}
	return v, err
}

func (h *homeHandlers) currencyFailure(ctx context.Context, action string, err error) (any, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	h.logger.Warn("Viewer currency "+action+" failed", zap.Error(err))
	return integration.UserCurrencyResponse{Result: integration.Failed(err)}, nil
}

func decodeRequest(payload json.RawMessage, v any) error {
	if len(payload) == 0 || string(payload) == "null" {
		return fmt.Errorf("%w: empty payload", integration.ErrInvalidPayload)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", integration.ErrInvalidPayload, err)
	}
	return nil
}
