package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/syncbridge/backend/internal/domain/platform"
	"github.com/syncbridge/backend/internal/domain/ratelimit"
	"github.com/syncbridge/backend/internal/infrastructure/persistence/models"
)

// GormRateLimitRepository implements ratelimit.Repository using GORM
type GormRateLimitRepository struct {
	db *gorm.DB
}

// NewGormRateLimitRepository creates a new GormRateLimitRepository
func NewGormRateLimitRepository(db *gorm.DB) *GormRateLimitRepository {
	return &GormRateLimitRepository{db: db}
}

// Find returns the state for a (user, platform) pair
func (r *GormRateLimitRepository) Find(ctx context.Context, userID uuid.UUID, code platform.Code) (*ratelimit.State, error) {
	var model models.RateLimitStateModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND platform = ?", userID, code).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ratelimit.ErrStateNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Upsert atomically creates or updates state keyed by (user, platform).
// The conflict target is the unique (user, platform) index, so concurrent
// gates never produce duplicate rows.
func (r *GormRateLimitRepository) Upsert(ctx context.Context, state *ratelimit.State) error {
	model := models.RateLimitStateModelFromDomain(state)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "platform"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"requests_this_minute",
				"requests_this_hour",
				"last_request_time",
				"throttled",
				"throttle_until",
				"consecutive_errors",
				"updated_at",
			}),
		}).
		Create(model).Error
}

// ListThrottled returns all currently throttled states
func (r *GormRateLimitRepository) ListThrottled(ctx context.Context, now time.Time) ([]ratelimit.State, error) {
	var stateModels []models.RateLimitStateModel
	if err := r.db.WithContext(ctx).
		Where("throttled = ? AND (throttle_until IS NULL OR throttle_until > ?)", true, now).
		Order("updated_at DESC").
		Find(&stateModels).Error; err != nil {
		return nil, err
	}

	states := make([]ratelimit.State, len(stateModels))
	for i, model := range stateModels {
		states[i] = *model.ToDomain()
	}
	return states, nil
}
