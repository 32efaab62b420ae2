package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/platformbridge/backend/internal/domain/integration"
	"github.com/platformbridge/backend/internal/domain/viewer"
	"github.com/platformbridge/backend/internal/infrastructure/config"
)

func newSQLiteDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"}, nil, gormlogger.Silent)
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// newMockViewerRepository creates a GormViewerRepository with a mocked postgres connection
func newMockViewerRepository(t *testing.T) (*GormViewerRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})
	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormViewerRepository(gormDB), mock, mockDB
}

func TestGormViewerRepository_SaveAndFind(t *testing.T) {
	repo := NewGormViewerRepository(newSQLiteDatabase(t).DB)
	ctx := context.Background()

	v, err := viewer.NewViewer(integration.HomePlatform, "@Alice")
	require.NoError(t, err)
	_, err = v.ApplyCurrency("points", 25, integration.CurrencyModeAdjust)
	require.NoError(t, err)
	require.NoError(t, v.SetMetadata("team", json.RawMessage(`{"name":"red"}`)))

	require.NoError(t, repo.Save(ctx, v))

	found, err := repo.FindByUsername(ctx, integration.HomePlatform, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, "alice", found.Username)
	assert.Equal(t, "@Alice", found.DisplayName)
	assert.Equal(t, int64(25), found.Currency("points"))
	assert.JSONEq(t, `{"name":"red"}`, string(found.Metadata["team"]))
}

func TestGormViewerRepository_SaveReplacesDocument(t *testing.T) {
	repo := NewGormViewerRepository(newSQLiteDatabase(t).DB)
	ctx := context.Background()

	v, err := viewer.NewViewer(integration.HomePlatform, "bob")
	require.NoError(t, err)
	_, _ = v.ApplyCurrency("points", 10, integration.CurrencyModeSet)
	require.NoError(t, repo.Save(ctx, v))

	_, _ = v.ApplyCurrency("points", 5, integration.CurrencyModeAdjust)
	require.NoError(t, repo.Save(ctx, v))

	found, err := repo.FindByUsername(ctx, integration.HomePlatform, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(15), found.Currency("points"))

	count, err := repo.Count(ctx, integration.HomePlatform)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestGormViewerRepository_PlatformsAreSeparate(t *testing.T) {
	repo := NewGormViewerRepository(newSQLiteDatabase(t).DB)
	ctx := context.Background()

	v, err := viewer.NewViewer(integration.PlatformKick, "carol")
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, v))

	_, err = repo.FindByUsername(ctx, integration.HomePlatform, "carol")
	assert.ErrorIs(t, err, viewer.ErrViewerNotFound)
}

func TestGormViewerRepository_InvalidUsername(t *testing.T) {
	repo := NewGormViewerRepository(newSQLiteDatabase(t).DB)

	_, err := repo.FindByUsername(context.Background(), integration.HomePlatform, "  @ ")

	assert.ErrorIs(t, err, viewer.ErrInvalidUsername)
}

func TestGormViewerRepository_Postgres(t *testing.T) {
	t.Run("maps missing rows to not found", func(t *testing.T) {
		repo, mock, mockDB := newMockViewerRepository(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "viewers"`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "platform", "username"}))

		_, err := repo.FindByUsername(context.Background(), integration.HomePlatform, "dave")

		assert.ErrorIs(t, err, viewer.ErrViewerNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("surfaces query errors", func(t *testing.T) {
		repo, mock, mockDB := newMockViewerRepository(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "viewers"`).WillReturnError(errors.New("connection reset"))

		_, err := repo.FindByUsername(context.Background(), integration.HomePlatform, "dave")

		require.Error(t, err)
		assert.NotErrorIs(t, err, viewer.ErrViewerNotFound)
	})

	t.Run("saves with an upsert", func(t *testing.T) {
		repo, mock, mockDB := newMockViewerRepository(t)
		defer mockDB.Close()

		mock.ExpectQuery(`INSERT INTO "viewers" .* ON CONFLICT \("platform","username"\) DO UPDATE SET`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

		v, err := viewer.NewViewer(integration.HomePlatform, "erin")
		require.NoError(t, err)
		require.NoError(t, repo.Save(context.Background(), v))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
