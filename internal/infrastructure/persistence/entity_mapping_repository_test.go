package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/syncbridge/backend/internal/domain/mapping"
	"github.com/syncbridge/backend/internal/domain/platform"
)

// setupSyncTestDB creates an in-memory SQLite database with the full schema
func setupSyncTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	return db
}

func TestGormEntityMappingRepository_FindOrCreate(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewGormEntityMappingRepository(db)
	ctx := context.Background()
	userID := uuid.New()

	t.Run("creates pending mapping on first call", func(t *testing.T) {
		m, err := repo.FindOrCreate(ctx, userID, mapping.KindItem, platform.CodeNetSuite, "item-1")
		require.NoError(t, err)
		assert.Equal(t, mapping.StatusPending, m.Status)
		assert.Equal(t, "item-1", m.SourceID)
		assert.False(t, m.HasTarget())
	})

	t.Run("returns the same row on repeat calls", func(t *testing.T) {
		first, err := repo.FindOrCreate(ctx, userID, mapping.KindItem, platform.CodeNetSuite, "item-2")
		require.NoError(t, err)
		second, err := repo.FindOrCreate(ctx, userID, mapping.KindItem, platform.CodeNetSuite, "item-2")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		var count int64
		require.NoError(t, db.Table("entity_mappings").
			Where("user_id = ? AND source_id = ?", userID, "item-2").
			Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})

	t.Run("distinct kinds get distinct rows for one source ID", func(t *testing.T) {
		item, err := repo.FindOrCreate(ctx, userID, mapping.KindItem, platform.CodeNetSuite, "shared-id")
		require.NoError(t, err)
		order, err := repo.FindOrCreate(ctx, userID, mapping.KindOrder, platform.CodeNetSuite, "shared-id")
		require.NoError(t, err)
		assert.NotEqual(t, item.ID, order.ID)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		_, err := repo.FindOrCreate(ctx, userID, mapping.Kind("BOGUS"), platform.CodeNetSuite, "item-3")
		assert.ErrorIs(t, err, mapping.ErrInvalidKind)
	})
}

func TestGormEntityMappingRepository_BindTarget(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewGormEntityMappingRepository(db)
	ctx := context.Background()
	userID := uuid.New()

	t.Run("binds an unbound mapping", func(t *testing.T) {
		m, err := repo.FindOrCreate(ctx, userID, mapping.KindItem, platform.CodeNetSuite, "bind-1")
		require.NoError(t, err)

		require.NoError(t, repo.BindTarget(ctx, m.ID, "shopify-01"))

		bound, err := repo.FindByID(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, "shopify-01", bound.TargetID)
	})

	t.Run("rebinding the same target is a no-op", func(t *testing.T) {
		m, err := repo.FindOrCreate(ctx, userID, mapping.KindItem, platform.CodeNetSuite, "bind-2")
		require.NoError(t, err)

		require.NoError(t, repo.BindTarget(ctx, m.ID, "shopify-02"))
		require.NoError(t, repo.BindTarget(ctx, m.ID, "shopify-02"))
	})

	t.Run("binding a different target is a conflict", func(t *testing.T) {
		m, err := repo.FindOrCreate(ctx, userID, mapping.KindItem, platform.CodeNetSuite, "bind-3")
		require.NoError(t, err)

		require.NoError(t, repo.BindTarget(ctx, m.ID, "shopify-03"))
		err = repo.BindTarget(ctx, m.ID, "shopify-99")
		assert.ErrorIs(t, err, mapping.ErrTargetAlreadyBound)

		unchanged, err := repo.FindByID(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, "shopify-03", unchanged.TargetID)
	})

	t.Run("binding a missing mapping reports not found", func(t *testing.T) {
		err := repo.BindTarget(ctx, uuid.New(), "shopify-04")
		assert.ErrorIs(t, err, mapping.ErrMappingNotFound)
	})
}

func TestGormEntityMappingRepository_FindByTarget(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewGormEntityMappingRepository(db)
	ctx := context.Background()
	userID := uuid.New()

	m, err := repo.FindOrCreate(ctx, userID, mapping.KindCustomer, platform.CodeShopify, "cust-1")
	require.NoError(t, err)
	require.NoError(t, repo.BindTarget(ctx, m.ID, "ns-cust-1"))

	found, err := repo.FindByTarget(ctx, userID, mapping.KindCustomer, "ns-cust-1")
	require.NoError(t, err)
	assert.Equal(t, m.ID, found.ID)

	_, err = repo.FindByTarget(ctx, userID, mapping.KindCustomer, "ns-cust-2")
	assert.ErrorIs(t, err, mapping.ErrMappingNotFound)
}

func TestGormEntityMappingRepository_FindAll(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewGormEntityMappingRepository(db)
	ctx := context.Background()
	userID := uuid.New()

	for _, sourceID := range []string{"a", "b", "c"} {
		_, err := repo.FindOrCreate(ctx, userID, mapping.KindItem, platform.CodeNetSuite, sourceID)
		require.NoError(t, err)
	}
	order, err := repo.FindOrCreate(ctx, userID, mapping.KindOrder, platform.CodeShopify, "o-1")
	require.NoError(t, err)
	order.MarkCompleted()
	require.NoError(t, repo.Save(ctx, order))

	t.Run("filters by kind", func(t *testing.T) {
		kind := mapping.KindItem
		items, total, err := repo.FindAll(ctx, userID, mapping.Filter{Kind: &kind})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		assert.Len(t, items, 3)
	})

	t.Run("filters by status", func(t *testing.T) {
		status := mapping.StatusCompleted
		completed, total, err := repo.FindAll(ctx, userID, mapping.Filter{Status: &status})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, completed, 1)
		assert.Equal(t, order.ID, completed[0].ID)
	})

	t.Run("scopes to the user", func(t *testing.T) {
		_, total, err := repo.FindAll(ctx, uuid.New(), mapping.Filter{})
		require.NoError(t, err)
		assert.Zero(t, total)
	})
}
