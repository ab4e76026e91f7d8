package reconcile

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/reconcile"
	"github.com/syncbridge/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// RunRequest describes one requested sync pass.
type RunRequest struct {
	Direction reconcile.Direction
	DataTypes reconcile.DataTypes
	Options   SyncOptions
}

// RunResult is the caller-facing outcome of a sync run.
type RunResult struct {
	SyncLogID      uuid.UUID             `json:"sync_log_id"`
	Status         reconcile.RunStatus   `json:"status"`
	ItemsProcessed int                   `json:"items_processed"`
	ItemsSucceeded int                   `json:"items_succeeded"`
	ItemsFailed    int                   `json:"items_failed"`
	Errors         []reconcile.ItemError `json:"errors,omitempty"`
}

// legSyncer is one entity kind's sync pipeline.
type legSyncer interface {
	SyncLeg(ctx context.Context, userID uuid.UUID, leg reconcile.Leg, opts SyncOptions) legReport
}

// SyncService orchestrates sync runs: single-flight per user, one sync
// log row per run, legs executed in direction order.
type SyncService struct {
	logs      reconcile.Repository
	products  legSyncer
	inventory legSyncer
	orders    legSyncer
	logger    *zap.Logger
}

// NewSyncService creates the sync orchestrator.
func NewSyncService(
	logs reconcile.Repository,
	products legSyncer,
	inventory legSyncer,
	orders legSyncer,
	logger *zap.Logger,
) *SyncService {
	return &SyncService{
		logs:      logs,
		products:  products,
		inventory: inventory,
		orders:    orders,
		logger:    logger,
	}
}

// Run executes one sync pass. A run already in flight for the same user
// rejects the new one; two passes never run concurrently per user.
func (s *SyncService) Run(ctx context.Context, userID uuid.UUID, req RunRequest) (*RunResult, error) {
	if _, err := s.logs.FindRunning(ctx, userID); err == nil {
		return nil, shared.ErrSyncAlreadyRunning
	} else if !errors.Is(err, reconcile.ErrSyncLogNotFound) {
		return nil, err
	}

	log, err := reconcile.NewSyncLog(userID, req.Direction, req.DataTypes)
	if err != nil {
		return nil, shared.NewDomainError("INVALID_INPUT", err.Error())
	}
	if err := s.logs.Create(ctx, log); err != nil {
		return nil, err
	}

	s.logger.Info("sync run started",
		zap.String("sync_log_id", log.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("direction", string(req.Direction)),
	)

	for _, leg := range req.Direction.Legs() {
		if req.DataTypes.Products {
			report := s.products.SyncLeg(ctx, userID, leg, req.Options)
			report.record(log)
		}
		if req.DataTypes.Inventory {
			report := s.inventory.SyncLeg(ctx, userID, leg, req.Options)
			report.record(log)
		}
		if req.DataTypes.Orders {
			report := s.orders.SyncLeg(ctx, userID, leg, req.Options)
			report.record(log)
		}

		// Persist progress between legs so a crash leaves honest counts.
		if err := s.logs.Update(ctx, log); err != nil {
			s.logger.Error("failed to persist sync progress", zap.Error(err))
		}

		if ctx.Err() != nil {
			log.Abort()
			if err := s.logs.Update(ctx, log); err != nil {
				s.logger.Error("failed to persist aborted sync log", zap.Error(err))
			}
			return nil, ctx.Err()
		}
	}

	log.Finalize()
	if err := s.logs.Update(ctx, log); err != nil {
		return nil, err
	}

	s.logger.Info("sync run finished",
		zap.String("sync_log_id", log.ID.String()),
		zap.String("status", string(log.Status)),
		zap.Int("items_processed", log.ItemsProcessed),
		zap.Int("items_failed", log.ItemsFailed),
	)
	return &RunResult{
		SyncLogID:      log.ID,
		Status:         log.Status,
		ItemsProcessed: log.ItemsProcessed,
		ItemsSucceeded: log.ItemsSucceeded,
		ItemsFailed:    log.ItemsFailed,
		Errors:         log.Errors,
	}, nil
}

// GetRun loads one sync run.
func (s *SyncService) GetRun(ctx context.Context, id uuid.UUID) (*reconcile.SyncLog, error) {
	return s.logs.FindByID(ctx, id)
}

// History lists a user's sync runs, newest first.
func (s *SyncService) History(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]reconcile.SyncLog, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.logs.List(ctx, userID, page, pageSize)
}
