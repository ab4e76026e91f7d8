package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/syncbridge/backend/internal/domain/reconcile"
	"github.com/syncbridge/backend/internal/infrastructure/persistence/models"
)

// GormSyncLogRepository implements reconcile.Repository using GORM
type GormSyncLogRepository struct {
	db *gorm.DB
}

// NewGormSyncLogRepository creates a new GormSyncLogRepository
func NewGormSyncLogRepository(db *gorm.DB) *GormSyncLogRepository {
	return &GormSyncLogRepository{db: db}
}

// Create persists a new run row
func (r *GormSyncLogRepository) Create(ctx context.Context, l *reconcile.SyncLog) error {
	model := models.SyncLogModelFromDomain(l)
	return r.db.WithContext(ctx).Create(model).Error
}

// Update persists run progress and terminal state
func (r *GormSyncLogRepository) Update(ctx context.Context, l *reconcile.SyncLog) error {
	model := models.SyncLogModelFromDomain(l)
	result := r.db.WithContext(ctx).Save(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return reconcile.ErrSyncLogNotFound
	}
	return nil
}

// FindByID finds a run by ID
func (r *GormSyncLogRepository) FindByID(ctx context.Context, id uuid.UUID) (*reconcile.SyncLog, error) {
	var model models.SyncLogModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, reconcile.ErrSyncLogNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindRunning returns the in-flight run for a user, or ErrSyncLogNotFound
func (r *GormSyncLogRepository) FindRunning(ctx context.Context, userID uuid.UUID) (*reconcile.SyncLog, error) {
	var model models.SyncLogModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, reconcile.RunStatusRunning).
		Order("started_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, reconcile.ErrSyncLogNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// List returns run history for a user, newest first
func (r *GormSyncLogRepository) List(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]reconcile.SyncLog, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	query := r.db.WithContext(ctx).
		Model(&models.SyncLogModel{}).
		Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logModels []models.SyncLogModel
	if err := query.
		Order("started_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&logModels).Error; err != nil {
		return nil, 0, err
	}

	logs := make([]reconcile.SyncLog, len(logModels))
	for i, model := range logModels {
		logs[i] = *model.ToDomain()
	}
	return logs, total, nil
}
