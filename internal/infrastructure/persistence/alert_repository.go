package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/syncbridge/backend/internal/domain/alert"
	"github.com/syncbridge/backend/internal/infrastructure/persistence/models"
)

// GormAlertRepository implements alert.Repository using GORM
type GormAlertRepository struct {
	db *gorm.DB
}

// NewGormAlertRepository creates a new GormAlertRepository
func NewGormAlertRepository(db *gorm.DB) *GormAlertRepository {
	return &GormAlertRepository{db: db}
}

// Save stores an alert
func (r *GormAlertRepository) Save(ctx context.Context, a *alert.Alert) error {
	model := models.AlertModelFromDomain(a)
	return r.db.WithContext(ctx).Create(model).Error
}

// FindByID finds an alert by its ID
func (r *GormAlertRepository) FindByID(ctx context.Context, id uuid.UUID) (*alert.Alert, error) {
	var model models.AlertModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, alert.ErrAlertNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// List returns the user's alerts, newest first
func (r *GormAlertRepository) List(ctx context.Context, userID uuid.UUID, unacknowledgedOnly bool, page, pageSize int) ([]alert.Alert, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	query := r.db.WithContext(ctx).
		Model(&models.AlertModel{}).
		Where("user_id = ?", userID)
	if unacknowledgedOnly {
		query = query.Where("acknowledged = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var alertModels []models.AlertModel
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&alertModels).Error; err != nil {
		return nil, 0, err
	}

	alerts := make([]alert.Alert, len(alertModels))
	for i, model := range alertModels {
		alerts[i] = *model.ToDomain()
	}
	return alerts, total, nil
}

// Acknowledge marks an alert as seen
func (r *GormAlertRepository) Acknowledge(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&models.AlertModel{}).
		Where("id = ?", id).
		Update("acknowledged", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return alert.ErrAlertNotFound
	}
	return nil
}
