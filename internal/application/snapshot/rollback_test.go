package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	appaudit "github.com/syncbridge/backend/internal/application/audit"
	"github.com/syncbridge/backend/internal/domain/alert"
	"github.com/syncbridge/backend/internal/domain/audit"
	"github.com/syncbridge/backend/internal/domain/mapping"
	"github.com/syncbridge/backend/internal/domain/platform"
	"github.com/syncbridge/backend/internal/domain/snapshot"
	"go.uber.org/zap"
)

// MockSnapshotRepository is a mock implementation of snapshot.Repository
type MockSnapshotRepository struct {
	mock.Mock
}

func (m *MockSnapshotRepository) Save(ctx context.Context, s *snapshot.Snapshot) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockSnapshotRepository) FindByID(ctx context.Context, id uuid.UUID) (*snapshot.Snapshot, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*snapshot.Snapshot), args.Error(1)
}

func (m *MockSnapshotRepository) FindLatest(ctx context.Context, userID uuid.UUID, entityID string, code platform.Code) (*snapshot.Snapshot, error) {
	args := m.Called(ctx, userID, entityID, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*snapshot.Snapshot), args.Error(1)
}

func (m *MockSnapshotRepository) FindLatestBefore(ctx context.Context, userID uuid.UUID, entityID string, code platform.Code, at time.Time) (*snapshot.Snapshot, error) {
	args := m.Called(ctx, userID, entityID, code, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*snapshot.Snapshot), args.Error(1)
}

func (m *MockSnapshotRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]snapshot.Snapshot, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]snapshot.Snapshot), args.Error(1)
}

func (m *MockSnapshotRepository) ListTrackedEntities(ctx context.Context, userID uuid.UUID) ([]snapshot.EntityRef, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]snapshot.EntityRef), args.Error(1)
}

func (m *MockSnapshotRepository) CountByEntity(ctx context.Context, userID uuid.UUID, entityID string, code platform.Code) (int64, error) {
	args := m.Called(ctx, userID, entityID, code)
	return args.Get(0).(int64), args.Error(1)
}

// MockRestorePointRepository is a mock implementation of snapshot.RestorePointRepository
type MockRestorePointRepository struct {
	mock.Mock
}

func (m *MockRestorePointRepository) Save(ctx context.Context, rp *snapshot.RestorePoint) error {
	args := m.Called(ctx, rp)
	return args.Error(0)
}

func (m *MockRestorePointRepository) FindByID(ctx context.Context, id uuid.UUID) (*snapshot.RestorePoint, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*snapshot.RestorePoint), args.Error(1)
}

func (m *MockRestorePointRepository) FindByName(ctx context.Context, userID uuid.UUID, name string) (*snapshot.RestorePoint, error) {
	args := m.Called(ctx, userID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*snapshot.RestorePoint), args.Error(1)
}

func (m *MockRestorePointRepository) List(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]snapshot.RestorePoint, int64, error) {
	args := m.Called(ctx, userID, page, pageSize)
	return args.Get(0).([]snapshot.RestorePoint), args.Get(1).(int64), args.Error(2)
}

// MockRollbackRepository is a mock implementation of snapshot.RollbackRepository
type MockRollbackRepository struct {
	mock.Mock
}

func (m *MockRollbackRepository) Save(ctx context.Context, op *snapshot.RollbackOperation) error {
	args := m.Called(ctx, op)
	return args.Error(0)
}

func (m *MockRollbackRepository) Update(ctx context.Context, op *snapshot.RollbackOperation) error {
	args := m.Called(ctx, op)
	return args.Error(0)
}

func (m *MockRollbackRepository) FindByID(ctx context.Context, id uuid.UUID) (*snapshot.RollbackOperation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*snapshot.RollbackOperation), args.Error(1)
}

func (m *MockRollbackRepository) List(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]snapshot.RollbackOperation, int64, error) {
	args := m.Called(ctx, userID, page, pageSize)
	return args.Get(0).([]snapshot.RollbackOperation), args.Get(1).(int64), args.Error(2)
}

// MockAuditRepository is a mock implementation of audit.Repository
type MockAuditRepository struct {
	mock.Mock
}

func (m *MockAuditRepository) Save(ctx context.Context, e *audit.Entry) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockAuditRepository) SaveBatch(ctx context.Context, entries []*audit.Entry) error {
	args := m.Called(ctx, entries)
	return args.Error(0)
}

func (m *MockAuditRepository) FindByEntity(ctx context.Context, userID uuid.UUID, q audit.Query) ([]audit.Entry, int64, error) {
	args := m.Called(ctx, userID, q)
	return args.Get(0).([]audit.Entry), args.Get(1).(int64), args.Error(2)
}

// MockAlertRepository is a mock implementation of alert.Repository
type MockAlertRepository struct {
	mock.Mock
}

func (m *MockAlertRepository) Save(ctx context.Context, a *alert.Alert) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockAlertRepository) FindByID(ctx context.Context, id uuid.UUID) (*alert.Alert, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*alert.Alert), args.Error(1)
}

func (m *MockAlertRepository) List(ctx context.Context, userID uuid.UUID, unacknowledgedOnly bool, page, pageSize int) ([]alert.Alert, int64, error) {
	args := m.Called(ctx, userID, unacknowledgedOnly, page, pageSize)
	return args.Get(0).([]alert.Alert), args.Get(1).(int64), args.Error(2)
}

func (m *MockAlertRepository) Acknowledge(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// stubRestorer records restores and fails for listed entities.
type stubRestorer struct {
	restored []string
	failFor  map[string]error
}

func (r *stubRestorer) Restore(_ context.Context, _ uuid.UUID, snap *snapshot.Snapshot) error {
	if err, ok := r.failFor[snap.EntityID]; ok {
		return err
	}
	r.restored = append(r.restored, snap.EntityID)
	return nil
}

type rollerFixture struct {
	roller        *Roller
	snapshots     *MockSnapshotRepository
	restorePoints *MockRestorePointRepository
	rollbacks     *MockRollbackRepository
	restorer      *stubRestorer
	auditRepo     *MockAuditRepository
	alerts        *MockAlertRepository
}

func newRollerFixture() *rollerFixture {
	f := &rollerFixture{
		snapshots:     new(MockSnapshotRepository),
		restorePoints: new(MockRestorePointRepository),
		rollbacks:     new(MockRollbackRepository),
		restorer:      &stubRestorer{failFor: map[string]error{}},
		auditRepo:     new(MockAuditRepository),
		alerts:        new(MockAlertRepository),
	}
	tracker := appaudit.NewTracker(f.auditRepo, zap.NewNop())
	f.roller = NewRoller(f.snapshots, f.restorePoints, f.rollbacks, f.restorer, tracker, f.alerts, zap.NewNop())
	return f
}

func makeSnapshot(t *testing.T, userID uuid.UUID, entityID string, code platform.Code) snapshot.Snapshot {
	t.Helper()
	data, err := json.Marshal(map[string]any{"id": entityID, "title": "Widget"})
	require.NoError(t, err)
	snap, err := snapshot.New(userID, snapshot.EntityRef{EntityID: entityID, Platform: code, Kind: mapping.KindItem}, snapshot.TypePreSync, data, 1, nil)
	require.NoError(t, err)
	return *snap
}

func TestRollback_RequiresExactlyOneTarget(t *testing.T) {
	f := newRollerFixture()
	userID := uuid.New()

	_, err := f.roller.Rollback(context.Background(), userID, RollbackRequest{})
	assert.Error(t, err)

	rpID := uuid.New()
	now := time.Now()
	_, err = f.roller.Rollback(context.Background(), userID, RollbackRequest{RestorePointID: &rpID, TargetTime: &now})
	assert.Error(t, err)
}

func TestRollback_DryRunCountsWithoutWriting(t *testing.T) {
	f := newRollerFixture()
	userID := uuid.New()
	snaps := []snapshot.Snapshot{
		makeSnapshot(t, userID, "prod-1", platform.CodeShopify),
		makeSnapshot(t, userID, "prod-2", platform.CodeNetSuite),
	}
	rp := &snapshot.RestorePoint{ID: uuid.New(), UserID: userID, Name: "before-migration", SnapshotIDs: []uuid.UUID{snaps[0].ID, snaps[1].ID}}

	f.restorePoints.On("FindByID", mock.Anything, rp.ID).Return(rp, nil)
	f.snapshots.On("FindByIDs", mock.Anything, rp.SnapshotIDs).Return(snaps, nil)
	f.rollbacks.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.rollbacks.On("Update", mock.Anything, mock.Anything).Return(nil)

	result, err := f.roller.Rollback(context.Background(), userID, RollbackRequest{RestorePointID: &rp.ID, DryRun: true})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.DryRun)
	assert.Equal(t, 2, result.ItemsRestored)
	// Nothing was written anywhere.
	assert.Empty(t, f.restorer.restored)
	f.auditRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestRollback_RestoresAndLogsChanges(t *testing.T) {
	f := newRollerFixture()
	userID := uuid.New()
	snaps := []snapshot.Snapshot{makeSnapshot(t, userID, "prod-1", platform.CodeShopify)}
	rp := &snapshot.RestorePoint{ID: uuid.New(), UserID: userID, Name: "stable", SnapshotIDs: []uuid.UUID{snaps[0].ID}}

	f.restorePoints.On("FindByID", mock.Anything, rp.ID).Return(rp, nil)
	f.snapshots.On("FindByIDs", mock.Anything, rp.SnapshotIDs).Return(snaps, nil)
	f.rollbacks.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.rollbacks.On("Update", mock.Anything, mock.MatchedBy(func(op *snapshot.RollbackOperation) bool {
		return op.Status == snapshot.RollbackStatusCompleted && op.ItemsRestored == 1
	})).Return(nil)
	f.auditRepo.On("Save", mock.Anything, mock.MatchedBy(func(e *audit.Entry) bool {
		return e.FieldName == audit.RestoredField && e.ChangeSource == audit.SourceRollback && e.AfterSnapshotID != nil
	})).Return(nil)

	result, err := f.roller.Rollback(context.Background(), userID, RollbackRequest{RestorePointID: &rp.ID})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.ItemsRestored)
	assert.Equal(t, []string{"prod-1"}, f.restorer.restored)
	f.auditRepo.AssertExpectations(t)
}

func TestRollback_BestEffortPerEntity(t *testing.T) {
	f := newRollerFixture()
	userID := uuid.New()
	snaps := []snapshot.Snapshot{
		makeSnapshot(t, userID, "prod-1", platform.CodeShopify),
		makeSnapshot(t, userID, "prod-2", platform.CodeShopify),
		makeSnapshot(t, userID, "prod-3", platform.CodeShopify),
	}
	rp := &snapshot.RestorePoint{ID: uuid.New(), UserID: userID, Name: "stable", SnapshotIDs: []uuid.UUID{snaps[0].ID, snaps[1].ID, snaps[2].ID}}
	f.restorer.failFor["prod-2"] = errors.New("write rejected")

	f.restorePoints.On("FindByID", mock.Anything, rp.ID).Return(rp, nil)
	f.snapshots.On("FindByIDs", mock.Anything, rp.SnapshotIDs).Return(snaps, nil)
	f.rollbacks.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.rollbacks.On("Update", mock.Anything, mock.MatchedBy(func(op *snapshot.RollbackOperation) bool {
		return op.Status == snapshot.RollbackStatusFailed && op.ItemsRestored == 2 && op.ItemsFailed == 1
	})).Return(nil)
	f.auditRepo.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.alerts.On("Save", mock.Anything, mock.MatchedBy(func(a *alert.Alert) bool {
		return a.Kind == alert.KindRollback
	})).Return(nil)

	result, err := f.roller.Rollback(context.Background(), userID, RollbackRequest{RestorePointID: &rp.ID})

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 2, result.ItemsRestored)
	assert.Equal(t, 1, result.ItemsFailed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "prod-2")
	f.alerts.AssertExpectations(t)
}

func TestRollback_CorruptSnapshotFailsThatEntityOnly(t *testing.T) {
	f := newRollerFixture()
	userID := uuid.New()
	good := makeSnapshot(t, userID, "prod-1", platform.CodeShopify)
	corrupt := makeSnapshot(t, userID, "prod-2", platform.CodeShopify)
	corrupt.Data[2] ^= 0xFF
	snaps := []snapshot.Snapshot{good, corrupt}
	rp := &snapshot.RestorePoint{ID: uuid.New(), UserID: userID, Name: "stable", SnapshotIDs: []uuid.UUID{good.ID, corrupt.ID}}

	f.restorePoints.On("FindByID", mock.Anything, rp.ID).Return(rp, nil)
	f.snapshots.On("FindByIDs", mock.Anything, rp.SnapshotIDs).Return(snaps, nil)
	f.rollbacks.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.rollbacks.On("Update", mock.Anything, mock.Anything).Return(nil)
	f.auditRepo.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.alerts.On("Save", mock.Anything, mock.MatchedBy(func(a *alert.Alert) bool {
		return a.Kind == alert.KindIntegrity
	})).Return(nil)
	f.alerts.On("Save", mock.Anything, mock.MatchedBy(func(a *alert.Alert) bool {
		return a.Kind == alert.KindRollback
	})).Return(nil)

	result, err := f.roller.Rollback(context.Background(), userID, RollbackRequest{RestorePointID: &rp.ID})

	require.NoError(t, err)
	assert.Equal(t, 1, result.ItemsRestored)
	assert.Equal(t, 1, result.ItemsFailed)
	assert.Equal(t, []string{"prod-1"}, f.restorer.restored)
}

func TestRollback_TimestampSelectionWarnsOnMissingSnapshots(t *testing.T) {
	f := newRollerFixture()
	userID := uuid.New()
	at := time.Now().Add(-time.Hour)
	snap := makeSnapshot(t, userID, "prod-1", platform.CodeShopify)

	f.snapshots.On("ListTrackedEntities", mock.Anything, userID).Return([]snapshot.EntityRef{
		{EntityID: "prod-1", Platform: platform.CodeShopify, Kind: mapping.KindItem},
		{EntityID: "prod-2", Platform: platform.CodeShopify, Kind: mapping.KindItem},
	}, nil)
	f.snapshots.On("FindLatestBefore", mock.Anything, userID, "prod-1", platform.CodeShopify, at).Return(&snap, nil)
	f.snapshots.On("FindLatestBefore", mock.Anything, userID, "prod-2", platform.CodeShopify, at).Return(nil, snapshot.ErrSnapshotNotFound)
	f.rollbacks.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.rollbacks.On("Update", mock.Anything, mock.Anything).Return(nil)

	result, err := f.roller.Rollback(context.Background(), userID, RollbackRequest{TargetTime: &at, DryRun: true})

	require.NoError(t, err)
	assert.Equal(t, 1, result.ItemsRestored)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "prod-2")
}

func TestRollback_FilterByPlatformAndEntity(t *testing.T) {
	f := newRollerFixture()
	userID := uuid.New()
	snaps := []snapshot.Snapshot{
		makeSnapshot(t, userID, "prod-1", platform.CodeShopify),
		makeSnapshot(t, userID, "prod-2", platform.CodeNetSuite),
	}
	rp := &snapshot.RestorePoint{ID: uuid.New(), UserID: userID, Name: "stable", SnapshotIDs: []uuid.UUID{snaps[0].ID, snaps[1].ID}}

	f.restorePoints.On("FindByID", mock.Anything, rp.ID).Return(rp, nil)
	f.snapshots.On("FindByIDs", mock.Anything, rp.SnapshotIDs).Return(snaps, nil)
	f.rollbacks.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.rollbacks.On("Update", mock.Anything, mock.Anything).Return(nil)

	result, err := f.roller.Rollback(context.Background(), userID, RollbackRequest{
		RestorePointID: &rp.ID,
		DryRun:         true,
		Platforms:      []platform.Code{platform.CodeShopify},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, result.ItemsRestored)
}
