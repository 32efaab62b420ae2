package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/platformbridge/backend/internal/domain/integration"
	"github.com/platformbridge/backend/internal/domain/viewer"
)

// ViewerModel is the persistence model for a Viewer document.
// Currencies and metadata are stored as JSON text columns.
type ViewerModel struct {
	ID             uint      `gorm:"primaryKey"`
	Platform       string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_viewer_platform_username"`
	Username       string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_viewer_platform_username"`
	DisplayName    string    `gorm:"type:varchar(100)"`
	CurrenciesJSON string    `gorm:"column:currencies;type:text;not null"`
	MetadataJSON   string    `gorm:"column:metadata;type:text;not null"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ViewerModel) TableName() string {
	return "viewers"
}

// ToDomain converts the persistence model to a domain Viewer
func (m *ViewerModel) ToDomain() (*viewer.Viewer, error) {
	v := &viewer.Viewer{
		Platform:    integration.PlatformID(m.Platform),
		Username:    m.Username,
		DisplayName: m.DisplayName,
		Currencies:  make(map[string]int64),
		Metadata:    make(map[string]json.RawMessage),
	}
	if m.CurrenciesJSON != "" {
		if err := json.Unmarshal([]byte(m.CurrenciesJSON), &v.Currencies); err != nil {
			return nil, fmt.Errorf("decode currencies of %s: %w", m.Username, err)
		}
	}
	if m.MetadataJSON != "" {
		if err := json.Unmarshal([]byte(m.MetadataJSON), &v.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", m.Username, err)
		}
	}
	return v, nil
}

// ViewerModelFromDomain converts a domain Viewer to its persistence model
func ViewerModelFromDomain(v *viewer.Viewer) (*ViewerModel, error) {
	currencies := v.Currencies
	if currencies == nil {
		currencies = map[string]int64{}
	}
	metadata := v.Metadata
	if metadata == nil {
		metadata = map[string]json.RawMessage{}
	}
	currenciesJSON, err := json.Marshal(currencies)
	if err != nil {
		return nil, fmt.Errorf("encode currencies of %s: %w", v.Username, err)
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata of %s: %w", v.Username, err)
	}
	return &ViewerModel{
		Platform:       v.Platform.String(),
		Username:       v.Username,
		DisplayName:    v.DisplayName,
		CurrenciesJSON: string(currenciesJSON),
		MetadataJSON:   string(metadataJSON),
	}, nil
}
