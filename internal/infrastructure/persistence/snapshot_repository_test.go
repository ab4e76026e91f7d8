package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncbridge/backend/internal/domain/mapping"
	"github.com/syncbridge/backend/internal/domain/platform"
	"github.com/syncbridge/backend/internal/domain/snapshot"
)

func newTestSnapshot(t *testing.T, userID uuid.UUID, entityID string, version int, previous *uuid.UUID) *snapshot.Snapshot {
	t.Helper()
	ref := snapshot.EntityRef{EntityID: entityID, Platform: platform.CodeShopify, Kind: mapping.KindItem}
	s, err := snapshot.New(userID, ref, snapshot.TypePreSync, []byte(`{"title":"widget"}`), version, previous)
	require.NoError(t, err)
	return s
}

func TestGormSnapshotRepository_FindLatest(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewGormSnapshotRepository(db)
	ctx := context.Background()
	userID := uuid.New()

	t.Run("no snapshots reports not found", func(t *testing.T) {
		_, err := repo.FindLatest(ctx, userID, "prod-1", platform.CodeShopify)
		assert.ErrorIs(t, err, snapshot.ErrSnapshotNotFound)
	})

	t.Run("highest version wins", func(t *testing.T) {
		v1 := newTestSnapshot(t, userID, "prod-1", 1, nil)
		require.NoError(t, repo.Save(ctx, v1))
		v2 := newTestSnapshot(t, userID, "prod-1", 2, &v1.ID)
		require.NoError(t, repo.Save(ctx, v2))

		latest, err := repo.FindLatest(ctx, userID, "prod-1", platform.CodeShopify)
		require.NoError(t, err)
		assert.Equal(t, v2.ID, latest.ID)
		assert.Equal(t, 2, latest.Version)
		require.NotNil(t, latest.PreviousSnapshotID)
		assert.Equal(t, v1.ID, *latest.PreviousSnapshotID)
	})

	t.Run("platform scoping", func(t *testing.T) {
		_, err := repo.FindLatest(ctx, userID, "prod-1", platform.CodeNetSuite)
		assert.ErrorIs(t, err, snapshot.ErrSnapshotNotFound)
	})
}

func TestGormSnapshotRepository_FindLatestBefore(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewGormSnapshotRepository(db)
	ctx := context.Background()
	userID := uuid.New()

	s := newTestSnapshot(t, userID, "prod-2", 1, nil)
	require.NoError(t, repo.Save(ctx, s))

	found, err := repo.FindLatestBefore(ctx, userID, "prod-2", platform.CodeShopify, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, s.ID, found.ID)
	assert.Equal(t, s.Checksum, found.Checksum)

	_, err = repo.FindLatestBefore(ctx, userID, "prod-2", platform.CodeShopify, s.CreatedAt.Add(-time.Minute))
	assert.ErrorIs(t, err, snapshot.ErrSnapshotNotFound)
}

func TestGormSnapshotRepository_TrackedEntities(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewGormSnapshotRepository(db)
	ctx := context.Background()
	userID := uuid.New()

	for _, entityID := range []string{"prod-a", "prod-a", "prod-b"} {
		require.NoError(t, repo.Save(ctx, newTestSnapshot(t, userID, entityID, 1, nil)))
	}

	refs, err := repo.ListTrackedEntities(ctx, userID)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "prod-a", refs[0].EntityID)
	assert.Equal(t, "prod-b", refs[1].EntityID)

	count, err := repo.CountByEntity(ctx, userID, "prod-a", platform.CodeShopify)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestGormRestorePointRepository_FindByName(t *testing.T) {
	db := setupSyncTestDB(t)
	snapshots := NewGormSnapshotRepository(db)
	repo := NewGormRestorePointRepository(db)
	ctx := context.Background()
	userID := uuid.New()

	s := newTestSnapshot(t, userID, "prod-3", 1, nil)
	require.NoError(t, snapshots.Save(ctx, s))

	first, err := snapshot.NewRestorePoint(userID, "before-migration", []uuid.UUID{s.ID})
	require.NoError(t, err)
	first.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, repo.Save(ctx, first))

	second, err := snapshot.NewRestorePoint(userID, "before-migration", []uuid.UUID{s.ID})
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, second))

	found, err := repo.FindByName(ctx, userID, "before-migration")
	require.NoError(t, err)
	assert.Equal(t, second.ID, found.ID, "newest restore point wins on name collision")
	assert.Equal(t, []uuid.UUID{s.ID}, found.SnapshotIDs)

	_, err = repo.FindByName(ctx, uuid.New(), "before-migration")
	assert.ErrorIs(t, err, snapshot.ErrRestorePointNotFound)
}

func TestGormRollbackRepository_Lifecycle(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewGormRollbackRepository(db)
	ctx := context.Background()
	userID := uuid.New()

	target := time.Now().Add(-time.Hour)
	op := snapshot.NewRollbackOperation(userID, nil, &target, false)
	require.NoError(t, repo.Save(ctx, op))

	require.NoError(t, op.Finish(3, 1))
	require.NoError(t, repo.Update(ctx, op))

	found, err := repo.FindByID(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, snapshot.RollbackStatusFailed, found.Status)
	assert.Equal(t, 3, found.ItemsRestored)
	assert.Equal(t, 1, found.ItemsFailed)
	require.NotNil(t, found.TargetTimestamp)

	ops, total, err := repo.List(ctx, userID, 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, ops, 1)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, snapshot.ErrRollbackNotFound)
}
