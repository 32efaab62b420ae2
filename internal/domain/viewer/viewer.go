// Package viewer contains the Viewer bounded context: the per-user document
// store of the home platform that local operations read and mutate.
package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/platformbridge/backend/internal/domain/integration"
)

var (
	ErrViewerNotFound      = errors.New("viewer: not found")
	ErrInvalidUsername     = errors.New("viewer: invalid username")
	ErrInvalidCurrencyID   = errors.New("viewer: invalid currency id")
	ErrInvalidCurrencyMode = errors.New("viewer: invalid currency mode")
	ErrInvalidMetadataKey  = errors.New("viewer: invalid metadata key")
)

// Viewer is a chat participant on one platform
type Viewer struct {
	Platform    integration.PlatformID
	Username    string
	DisplayName string
	Currencies  map[string]int64
	Metadata    map[string]json.RawMessage
}

// NewViewer creates an empty viewer document
func NewViewer(platform integration.PlatformID, username string) (*Viewer, error) {
	key, err := NormalizeUsername(username)
	if err != nil {
		return nil, err
	}
	return &Viewer{
		Platform:    platform,
		Username:    key,
		DisplayName: strings.TrimSpace(username),
		Currencies:  make(map[string]int64),
		Metadata:    make(map[string]json.RawMessage),
	}, nil
}

// NormalizeUsername returns the lookup key for a username
func NormalizeUsername(username string) (string, error) {
	key := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(username), "@"))
	if key == "" {
		return "", ErrInvalidUsername
	}
	return key, nil
}

// Currency returns the balance of a currency, zero when never set
func (v *Viewer) Currency(currencyID string) int64 {
	return v.Currencies[currencyID]
}

// ApplyCurrency adjusts or replaces a balance and returns the new value
func (v *Viewer) ApplyCurrency(currencyID string, amount int64, mode integration.CurrencyMode) (int64, error) {
	if strings.TrimSpace(currencyID) == "" {
		return 0, ErrInvalidCurrencyID
	}
	if v.Currencies == nil {
		v.Currencies = make(map[string]int64)
	}
	switch mode {
	case integration.CurrencyModeAdjust, "":
		v.Currencies[currencyID] += amount
	case integration.CurrencyModeSet:
		v.Currencies[currencyID] = amount
	default:
		return 0, ErrInvalidCurrencyMode
	}
	return v.Currencies[currencyID], nil
}

// SetMetadata stores a raw JSON value under key
func (v *Viewer) SetMetadata(key string, value json.RawMessage) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidMetadataKey
	}
	if v.Metadata == nil {
		v.Metadata = make(map[string]json.RawMessage)
	}
	v.Metadata[key] = value
	return nil
}

// Repository persists viewer documents
type Repository interface {
	// FindByUsername returns ErrViewerNotFound when the viewer has no document
	FindByUsername(ctx context.Context, platform integration.PlatformID, username string) (*Viewer, error)
	Save(ctx context.Context, v *Viewer) error
}
