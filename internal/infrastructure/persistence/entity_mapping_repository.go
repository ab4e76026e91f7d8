package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/syncbridge/backend/internal/domain/mapping"
	"github.com/syncbridge/backend/internal/domain/platform"
	"github.com/syncbridge/backend/internal/infrastructure/persistence/models"
)

// GormEntityMappingRepository implements mapping.Repository using GORM
type GormEntityMappingRepository struct {
	db *gorm.DB
}

// NewGormEntityMappingRepository creates a new GormEntityMappingRepository
func NewGormEntityMappingRepository(db *gorm.DB) *GormEntityMappingRepository {
	return &GormEntityMappingRepository{db: db}
}

// FindOrCreate returns the mapping for the source key, inserting a pending
// one if none exists. The insert rides on the unique source-key index with
// DO NOTHING, so two concurrent callers converge on the same row.
func (r *GormEntityMappingRepository) FindOrCreate(ctx context.Context, userID uuid.UUID, kind mapping.Kind, sourcePlatform platform.Code, sourceID string) (*mapping.EntityMapping, error) {
	existing, err := r.FindBySource(ctx, userID, kind, sourcePlatform, sourceID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, mapping.ErrMappingNotFound) {
		return nil, err
	}

	fresh, err := mapping.NewEntityMapping(userID, kind, sourcePlatform, sourceID)
	if err != nil {
		return nil, err
	}
	model := models.EntityMappingModelFromDomain(fresh)
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model).Error; err != nil {
		return nil, err
	}

	// Re-read either way: on conflict the insert was a no-op and the row
	// belongs to whoever won the race.
	return r.FindBySource(ctx, userID, kind, sourcePlatform, sourceID)
}

// FindByID finds a mapping by its ID
func (r *GormEntityMappingRepository) FindByID(ctx context.Context, id uuid.UUID) (*mapping.EntityMapping, error) {
	var model models.EntityMappingModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, mapping.ErrMappingNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindBySource finds a mapping by its source key
func (r *GormEntityMappingRepository) FindBySource(ctx context.Context, userID uuid.UUID, kind mapping.Kind, sourcePlatform platform.Code, sourceID string) (*mapping.EntityMapping, error) {
	var model models.EntityMappingModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND kind = ? AND source_platform = ? AND source_id = ?", userID, kind, sourcePlatform, sourceID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, mapping.ErrMappingNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByTarget finds the mapping that owns a target-system ID
func (r *GormEntityMappingRepository) FindByTarget(ctx context.Context, userID uuid.UUID, kind mapping.Kind, targetID string) (*mapping.EntityMapping, error) {
	var model models.EntityMappingModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND kind = ? AND target_id = ?", userID, kind, targetID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, mapping.ErrMappingNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// BindTarget binds a target ID to a mapping with a guarded UPDATE. The
// guard allows rebinding the same ID but never a different one.
func (r *GormEntityMappingRepository) BindTarget(ctx context.Context, id uuid.UUID, targetID string) error {
	if targetID == "" {
		return mapping.ErrInvalidTargetID
	}
	result := r.db.WithContext(ctx).
		Model(&models.EntityMappingModel{}).
		Where("id = ? AND (target_id = '' OR target_id = ?)", id, targetID).
		Updates(map[string]any{
			"target_id":  targetID,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Either the row is missing or another target is already bound.
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
		return mapping.ErrTargetAlreadyBound
	}
	return nil
}

// Save updates an existing mapping
func (r *GormEntityMappingRepository) Save(ctx context.Context, m *mapping.EntityMapping) error {
	model := models.EntityMappingModelFromDomain(m)
	return r.db.WithContext(ctx).Save(model).Error
}

// Delete removes a mapping
func (r *GormEntityMappingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.EntityMappingModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return mapping.ErrMappingNotFound
	}
	return nil
}

// FindAll lists mappings for a user with optional filters
func (r *GormEntityMappingRepository) FindAll(ctx context.Context, userID uuid.UUID, filter mapping.Filter) ([]mapping.EntityMapping, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.EntityMappingModel{}).
		Where("user_id = ?", userID)
	if filter.Kind != nil {
		query = query.Where("kind = ?", *filter.Kind)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var mappingModels []models.EntityMappingModel
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&mappingModels).Error; err != nil {
		return nil, 0, err
	}

	mappings := make([]mapping.EntityMapping, len(mappingModels))
	for i, model := range mappingModels {
		mappings[i] = *model.ToDomain()
	}
	return mappings, total, nil
}
