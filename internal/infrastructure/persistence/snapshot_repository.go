package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/syncbridge/backend/internal/domain/platform"
	"github.com/syncbridge/backend/internal/domain/snapshot"
	"github.com/syncbridge/backend/internal/infrastructure/persistence/models"
)

// GormSnapshotRepository implements snapshot.Repository using GORM
type GormSnapshotRepository struct {
	db *gorm.DB
}

// NewGormSnapshotRepository creates a new GormSnapshotRepository
func NewGormSnapshotRepository(db *gorm.DB) *GormSnapshotRepository {
	return &GormSnapshotRepository{db: db}
}

// Save appends a snapshot. Rows are never updated.
func (r *GormSnapshotRepository) Save(ctx context.Context, s *snapshot.Snapshot) error {
	model := models.SnapshotModelFromDomain(s)
	return r.db.WithContext(ctx).Create(model).Error
}

// FindByID finds a snapshot by its ID
func (r *GormSnapshotRepository) FindByID(ctx context.Context, id uuid.UUID) (*snapshot.Snapshot, error) {
	var model models.SnapshotModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, snapshot.ErrSnapshotNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindLatest returns the newest snapshot of an entity on a platform
func (r *GormSnapshotRepository) FindLatest(ctx context.Context, userID uuid.UUID, entityID string, code platform.Code) (*snapshot.Snapshot, error) {
	var model models.SnapshotModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND entity_id = ? AND platform = ?", userID, entityID, code).
		Order("version DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, snapshot.ErrSnapshotNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindLatestBefore returns the newest snapshot at or before the given time
func (r *GormSnapshotRepository) FindLatestBefore(ctx context.Context, userID uuid.UUID, entityID string, code platform.Code, at time.Time) (*snapshot.Snapshot, error) {
	var model models.SnapshotModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND entity_id = ? AND platform = ? AND created_at <= ?", userID, entityID, code, at).
		Order("version DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, snapshot.ErrSnapshotNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDs loads a set of snapshots by ID
func (r *GormSnapshotRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]snapshot.Snapshot, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var snapshotModels []models.SnapshotModel
	if err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&snapshotModels).Error; err != nil {
		return nil, err
	}

	snapshots := make([]snapshot.Snapshot, len(snapshotModels))
	for i, model := range snapshotModels {
		snapshots[i] = *model.ToDomain()
	}
	return snapshots, nil
}

// ListTrackedEntities lists every (entity, platform) pair that has at
// least one snapshot for the user
func (r *GormSnapshotRepository) ListTrackedEntities(ctx context.Context, userID uuid.UUID) ([]snapshot.EntityRef, error) {
	var refs []snapshot.EntityRef
	if err := r.db.WithContext(ctx).
		Model(&models.SnapshotModel{}).
		Select("DISTINCT entity_id, platform, kind").
		Where("user_id = ?", userID).
		Order("entity_id ASC").
		Scan(&refs).Error; err != nil {
		return nil, err
	}
	return refs, nil
}

// CountByEntity returns the number of snapshots of one entity
func (r *GormSnapshotRepository) CountByEntity(ctx context.Context, userID uuid.UUID, entityID string, code platform.Code) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.SnapshotModel{}).
		Where("user_id = ? AND entity_id = ? AND platform = ?", userID, entityID, code).
		Count(&count).Error
	return count, err
}

// GormRestorePointRepository implements snapshot.RestorePointRepository
// using GORM
type GormRestorePointRepository struct {
	db *gorm.DB
}

// NewGormRestorePointRepository creates a new GormRestorePointRepository
func NewGormRestorePointRepository(db *gorm.DB) *GormRestorePointRepository {
	return &GormRestorePointRepository{db: db}
}

// Save stores a restore point
func (r *GormRestorePointRepository) Save(ctx context.Context, rp *snapshot.RestorePoint) error {
	model := models.RestorePointModelFromDomain(rp)
	return r.db.WithContext(ctx).Create(model).Error
}

// FindByID finds a restore point by its ID
func (r *GormRestorePointRepository) FindByID(ctx context.Context, id uuid.UUID) (*snapshot.RestorePoint, error) {
	var model models.RestorePointModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, snapshot.ErrRestorePointNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByName finds a restore point by name. Names repeat over time, so the
// newest wins.
func (r *GormRestorePointRepository) FindByName(ctx context.Context, userID uuid.UUID, name string) (*snapshot.RestorePoint, error) {
	var model models.RestorePointModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND name = ?", userID, name).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, snapshot.ErrRestorePointNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// List returns the user's restore points, newest first
func (r *GormRestorePointRepository) List(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]snapshot.RestorePoint, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	query := r.db.WithContext(ctx).
		Model(&models.RestorePointModel{}).
		Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var pointModels []models.RestorePointModel
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&pointModels).Error; err != nil {
		return nil, 0, err
	}

	points := make([]snapshot.RestorePoint, len(pointModels))
	for i, model := range pointModels {
		points[i] = *model.ToDomain()
	}
	return points, total, nil
}

// GormRollbackRepository implements snapshot.RollbackRepository using GORM
type GormRollbackRepository struct {
	db *gorm.DB
}

// NewGormRollbackRepository creates a new GormRollbackRepository
func NewGormRollbackRepository(db *gorm.DB) *GormRollbackRepository {
	return &GormRollbackRepository{db: db}
}

// Save stores a new rollback operation
func (r *GormRollbackRepository) Save(ctx context.Context, op *snapshot.RollbackOperation) error {
	model := models.RollbackOperationModelFromDomain(op)
	return r.db.WithContext(ctx).Create(model).Error
}

// Update persists progress of a rollback operation
func (r *GormRollbackRepository) Update(ctx context.Context, op *snapshot.RollbackOperation) error {
	model := models.RollbackOperationModelFromDomain(op)
	result := r.db.WithContext(ctx).Save(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return snapshot.ErrRollbackNotFound
	}
	return nil
}

// FindByID finds a rollback operation by its ID
func (r *GormRollbackRepository) FindByID(ctx context.Context, id uuid.UUID) (*snapshot.RollbackOperation, error) {
	var model models.RollbackOperationModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, snapshot.ErrRollbackNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// List returns the user's rollback operations, newest first
func (r *GormRollbackRepository) List(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]snapshot.RollbackOperation, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	query := r.db.WithContext(ctx).
		Model(&models.RollbackOperationModel{}).
		Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var opModels []models.RollbackOperationModel
	if err := query.
		Order("started_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&opModels).Error; err != nil {
		return nil, 0, err
	}

	ops := make([]snapshot.RollbackOperation, len(opModels))
	for i, model := range opModels {
		ops[i] = *model.ToDomain()
	}
	return ops, total, nil
}
