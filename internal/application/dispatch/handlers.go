package dispatch

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/platformbridge/backend/internal/domain/integration"
)

// LocalHandler runs one operation in-process for the home platform.
// The returned value is marshalled as the operation response.
type LocalHandler func(ctx context.Context, payload json.RawMessage) (any, error)

// LocalHandlers is the home platform handler table keyed by operation
type LocalHandlers struct {
	handlers map[integration.OperationKind]LocalHandler
}

// NewLocalHandlers creates an empty handler table
func NewLocalHandlers() *LocalHandlers {
	return &LocalHandlers{handlers: make(map[integration.OperationKind]LocalHandler)}
}

// Register binds handler to kind, replacing any previous binding
func (h *LocalHandlers) Register(kind integration.OperationKind, handler LocalHandler) *LocalHandlers {
	h.handlers[kind] = handler
	return h
}

// Lookup returns the handler bound to kind
func (h *LocalHandlers) Lookup(kind integration.OperationKind) (LocalHandler, bool) {
	if h == nil {
		return nil, false
	}
	handler, ok := h.handlers[kind]
	return handler, ok
}

// Kinds returns the registered operations in sorted order
func (h *LocalHandlers) Kinds() []integration.OperationKind {
	if h == nil {
		return nil
	}
	kinds := make([]integration.OperationKind, 0, len(h.handlers))
	for k := range h.handlers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
