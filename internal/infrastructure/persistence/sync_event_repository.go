package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/syncbridge/backend/internal/domain/event"
	"github.com/syncbridge/backend/internal/infrastructure/persistence/models"
)

// GormSyncEventRepository implements event.Repository using GORM
type GormSyncEventRepository struct {
	db *gorm.DB
}

// NewGormSyncEventRepository creates a new GormSyncEventRepository
func NewGormSyncEventRepository(db *gorm.DB) *GormSyncEventRepository {
	return &GormSyncEventRepository{db: db}
}

// Append durably stores a newly published event
func (r *GormSyncEventRepository) Append(ctx context.Context, e *event.SyncEvent) error {
	model := models.SyncEventModelFromDomain(e)
	return r.db.WithContext(ctx).Create(model).Error
}

// Update persists dispatch bookkeeping changes
func (r *GormSyncEventRepository) Update(ctx context.Context, e *event.SyncEvent) error {
	model := models.SyncEventModelFromDomain(e)
	result := r.db.WithContext(ctx).Save(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return event.ErrEventNotFound
	}
	return nil
}

// FindByID finds an event by ID
func (r *GormSyncEventRepository) FindByID(ctx context.Context, id uuid.UUID) (*event.SyncEvent, error) {
	var model models.SyncEventModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, event.ErrEventNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// NextDue returns the highest-priority dispatchable event at the given
// instant. Deferred events become eligible once their backoff elapses.
// Ties break by insertion order through the created_at sort key.
func (r *GormSyncEventRepository) NextDue(ctx context.Context, now time.Time) (*event.SyncEvent, error) {
	var model models.SyncEventModel
	err := r.db.WithContext(ctx).
		Where("status = ? OR (status = ? AND next_attempt_at <= ?)",
			event.StatusPending, event.StatusDeferred, now).
		Order("priority_rank DESC").
		Order("created_at ASC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, event.ErrEventNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListEscalated returns dead-letter events with pagination
func (r *GormSyncEventRepository) ListEscalated(ctx context.Context, page, pageSize int) ([]event.SyncEvent, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	query := r.db.WithContext(ctx).
		Model(&models.SyncEventModel{}).
		Where("status = ?", event.StatusEscalated)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var eventModels []models.SyncEventModel
	if err := query.
		Order("updated_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&eventModels).Error; err != nil {
		return nil, 0, err
	}

	events := make([]event.SyncEvent, len(eventModels))
	for i, model := range eventModels {
		events[i] = *model.ToDomain()
	}
	return events, total, nil
}

// CountByStatus returns event counts per status
func (r *GormSyncEventRepository) CountByStatus(ctx context.Context) (map[event.Status]int64, error) {
	type statusCount struct {
		Status event.Status
		Count  int64
	}
	var rows []statusCount
	if err := r.db.WithContext(ctx).
		Model(&models.SyncEventModel{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[event.Status]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// DeleteProcessedBefore removes processed events older than the cutoff
func (r *GormSyncEventRepository) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status = ? AND processed_at < ?", event.StatusProcessed, cutoff).
		Delete(&models.SyncEventModel{})
	return result.RowsAffected, result.Error
}

// GormProcessingRecordRepository implements event.ProcessingRecordRepository
// using GORM
type GormProcessingRecordRepository struct {
	db *gorm.DB
}

// NewGormProcessingRecordRepository creates a new GormProcessingRecordRepository
func NewGormProcessingRecordRepository(db *gorm.DB) *GormProcessingRecordRepository {
	return &GormProcessingRecordRepository{db: db}
}

// Save appends one attempt record
func (r *GormProcessingRecordRepository) Save(ctx context.Context, rec *event.ProcessingRecord) error {
	model := &models.ProcessingRecordModel{}
	model.FromDomain(rec)
	return r.db.WithContext(ctx).Create(model).Error
}

// ListByEvent returns the attempt history of an event, oldest first
func (r *GormProcessingRecordRepository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]event.ProcessingRecord, error) {
	var recordModels []models.ProcessingRecordModel
	if err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("started_at ASC").
		Find(&recordModels).Error; err != nil {
		return nil, err
	}

	records := make([]event.ProcessingRecord, len(recordModels))
	for i, model := range recordModels {
		records[i] = *model.ToDomain()
	}
	return records, nil
}

// GormSubscriptionRepository implements event.SubscriptionRepository using
// GORM
type GormSubscriptionRepository struct {
	db *gorm.DB
}

// NewGormSubscriptionRepository creates a new GormSubscriptionRepository
func NewGormSubscriptionRepository(db *gorm.DB) *GormSubscriptionRepository {
	return &GormSubscriptionRepository{db: db}
}

// Save upserts a subscription. Only the handler's registered name is
// stored; the handler itself is re-attached at boot.
func (r *GormSubscriptionRepository) Save(ctx context.Context, s *event.Subscription) error {
	model := &models.SubscriptionModel{}
	model.FromDomain(s)
	now := time.Now()
	model.UpdatedAt = now

	var existing models.SubscriptionModel
	err := r.db.WithContext(ctx).First(&existing, "id = ?", s.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		model.CreatedAt = now
		return r.db.WithContext(ctx).Create(model).Error
	}
	if err != nil {
		return err
	}
	model.CreatedAt = existing.CreatedAt
	return r.db.WithContext(ctx).Save(model).Error
}

// Delete removes a subscription
func (r *GormSubscriptionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.SubscriptionModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return event.ErrSubscriptionNotFound
	}
	return nil
}

// ListEnabled returns all enabled subscriptions, highest priority first
func (r *GormSubscriptionRepository) ListEnabled(ctx context.Context) ([]event.StoredSubscription, error) {
	var subscriptionModels []models.SubscriptionModel
	if err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("priority DESC").
		Order("created_at ASC").
		Find(&subscriptionModels).Error; err != nil {
		return nil, err
	}

	subscriptions := make([]event.StoredSubscription, len(subscriptionModels))
	for i, model := range subscriptionModels {
		subscriptions[i] = *model.ToDomain()
	}
	return subscriptions, nil
}
