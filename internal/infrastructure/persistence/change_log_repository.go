package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/syncbridge/backend/internal/domain/audit"
	"github.com/syncbridge/backend/internal/infrastructure/persistence/models"
)

// GormChangeLogRepository implements audit.Repository using GORM
type GormChangeLogRepository struct {
	db *gorm.DB
}

// NewGormChangeLogRepository creates a new GormChangeLogRepository
func NewGormChangeLogRepository(db *gorm.DB) *GormChangeLogRepository {
	return &GormChangeLogRepository{db: db}
}

// Save appends one entry
func (r *GormChangeLogRepository) Save(ctx context.Context, e *audit.Entry) error {
	model := models.ChangeLogModelFromDomain(e)
	return r.db.WithContext(ctx).Create(model).Error
}

// SaveBatch appends multiple entries in one insert
func (r *GormChangeLogRepository) SaveBatch(ctx context.Context, entries []*audit.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	entryModels := make([]models.ChangeLogModel, len(entries))
	for i, e := range entries {
		entryModels[i].FromDomain(e)
	}
	return r.db.WithContext(ctx).Create(&entryModels).Error
}

// FindByEntity returns changes for one entity within a time range, newest
// first
func (r *GormChangeLogRepository) FindByEntity(ctx context.Context, userID uuid.UUID, q audit.Query) ([]audit.Entry, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.ChangeLogModel{}).
		Where("user_id = ?", userID)
	if q.EntityID != "" {
		query = query.Where("entity_id = ?", q.EntityID)
	}
	if q.From != nil {
		query = query.Where("created_at >= ?", *q.From)
	}
	if q.To != nil {
		query = query.Where("created_at <= ?", *q.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	pageSize := q.PageSize
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var entryModels []models.ChangeLogModel
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entryModels).Error; err != nil {
		return nil, 0, err
	}

	entries := make([]audit.Entry, len(entryModels))
	for i, model := range entryModels {
		entries[i] = *model.ToDomain()
	}
	return entries, total, nil
}
