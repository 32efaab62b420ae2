package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/platformbridge/backend/internal/domain/integration"
	"github.com/platformbridge/backend/internal/domain/viewer"
	"github.com/platformbridge/backend/internal/infrastructure/persistence/models"
)

// GormViewerRepository implements viewer.Repository using GORM
type GormViewerRepository struct {
	db *gorm.DB
}

// NewGormViewerRepository creates a new GormViewerRepository
func NewGormViewerRepository(db *gorm.DB) *GormViewerRepository {
	return &GormViewerRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormViewerRepository) WithTx(tx *gorm.DB) *GormViewerRepository {
	return &GormViewerRepository{db: tx}
}

// FindByUsername finds a viewer by platform and normalized username
func (r *GormViewerRepository) FindByUsername(ctx context.Context, platform integration.PlatformID, username string) (*viewer.Viewer, error) {
	key, err := viewer.NormalizeUsername(username)
	if err != nil {
		return nil, err
	}

	var model models.ViewerModel
	err = r.db.WithContext(ctx).
		Where("platform = ? AND username = ?", platform.String(), key).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, viewer.ErrViewerNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// Save inserts the viewer or replaces the stored document
func (r *GormViewerRepository) Save(ctx context.Context, v *viewer.Viewer) error {
	model, err := models.ViewerModelFromDomain(v)
	if err != nil {
		return err
	}
	now := time.Now()
	model.CreatedAt = now
	model.UpdatedAt = now

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "platform"}, {Name: "username"}},
			DoUpdates: clause.AssignmentColumns([]string{"display_name", "currencies", "metadata", "updated_at"}),
		}).
		Create(model).Error
}

// Count returns the number of stored viewers on platform
func (r *GormViewerRepository) Count(ctx context.Context, platform integration.PlatformID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ViewerModel{}).
		Where("platform = ?", platform.String()).
		Count(&count).Error
	return count, err
}

var _ viewer.Repository = (*GormViewerRepository)(nil)
