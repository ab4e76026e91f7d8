package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appsnapshot "github.com/syncbridge/backend/internal/application/snapshot"
	"github.com/syncbridge/backend/internal/domain/platform"
	"github.com/syncbridge/backend/internal/domain/snapshot"
	"github.com/syncbridge/backend/internal/interfaces/http/dto"
)

// RollbackService is the application surface the rollback handler drives.
type RollbackService interface {
	Rollback(ctx context.Context, userID uuid.UUID, req appsnapshot.RollbackRequest) (*appsnapshot.RollbackResult, error)
	GetRollback(ctx context.Context, id uuid.UUID) (*snapshot.RollbackOperation, error)
	ListRollbacks(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]snapshot.RollbackOperation, int64, error)
}

// RestorePointService is the application surface for restore points.
type RestorePointService interface {
	CreateRestorePoint(ctx context.Context, userID uuid.UUID, name string) (*snapshot.RestorePoint, error)
	GetRestorePoint(ctx context.Context, id uuid.UUID) (*snapshot.RestorePoint, error)
	ListRestorePoints(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]snapshot.RestorePoint, int64, error)
}

// RollbackHandler handles rollback and restore point HTTP requests
type RollbackHandler struct {
	BaseHandler
	rollbacks     RollbackService
	restorePoints RestorePointService
}

// NewRollbackHandler creates a new rollback handler
func NewRollbackHandler(rollbacks RollbackService, restorePoints RestorePointService) *RollbackHandler {
	return &RollbackHandler{
		rollbacks:     rollbacks,
		restorePoints: restorePoints,
	}
}

// RollbackRequestBody is the rollback contract. Exactly one of
// restore_point_id and target_time selects the snapshot set.
type RollbackRequestBody struct {
	RestorePointID *uuid.UUID `json:"restore_point_id"`
	TargetTime     *time.Time `json:"target_time"`
	DryRun         bool       `json:"dry_run"`
	Platforms      []string   `json:"platforms" binding:"omitempty,dive,oneof=SHOPIFY NETSUITE"`
	EntityIDs      []string   `json:"entity_ids"`
}

// RollbackOperationResponse is the serialized view of one rollback run.
type RollbackOperationResponse struct {
	ID              uuid.UUID  `json:"id"`
	RestorePointID  *uuid.UUID `json:"restore_point_id,omitempty"`
	TargetTimestamp *time.Time `json:"target_timestamp,omitempty"`
	Status          string     `json:"status"`
	ItemsRestored   int        `json:"items_restored"`
	ItemsFailed     int        `json:"items_failed"`
	DryRun          bool       `json:"dry_run"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

func toRollbackOperationResponse(op *snapshot.RollbackOperation) RollbackOperationResponse {
	return RollbackOperationResponse{
		ID:              op.ID,
		RestorePointID:  op.RestorePointID,
		TargetTimestamp: op.TargetTimestamp,
		Status:          string(op.Status),
		ItemsRestored:   op.ItemsRestored,
		ItemsFailed:     op.ItemsFailed,
		DryRun:          op.DryRun,
		StartedAt:       op.StartedAt,
		CompletedAt:     op.CompletedAt,
	}
}

// RestorePointResponse is the serialized view of one restore point.
type RestorePointResponse struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	SnapshotCount int       `json:"snapshot_count"`
	CreatedAt     time.Time `json:"created_at"`
}

func toRestorePointResponse(rp *snapshot.RestorePoint) RestorePointResponse {
	return RestorePointResponse{
		ID:            rp.ID,
		Name:          rp.Name,
		SnapshotCount: len(rp.SnapshotIDs),
		CreatedAt:     rp.CreatedAt,
	}
}

// Rollback restores entities to a restore point or a point in time.
func (h *RollbackHandler) Rollback(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Invalid or missing user ID")
		return
	}

	var body RollbackRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.BadRequest(c, "Invalid request body")
		return
	}

	req := appsnapshot.RollbackRequest{
		RestorePointID: body.RestorePointID,
		TargetTime:     body.TargetTime,
		DryRun:         body.DryRun,
		EntityIDs:      body.EntityIDs,
	}
	for _, p := range body.Platforms {
		req.Platforms = append(req.Platforms, platform.Code(p))
	}

	result, err := h.rollbacks.Rollback(c.Request.Context(), userID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// GetRollback returns one rollback operation by ID.
func (h *RollbackHandler) GetRollback(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid rollback ID")
		return
	}

	op, err := h.rollbacks.GetRollback(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toRollbackOperationResponse(op))
}

// ListRollbacks lists the caller's rollback operations, newest first.
func (h *RollbackHandler) ListRollbacks(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Invalid or missing user ID")
		return
	}

	var list dto.ListRequest
	if err := c.ShouldBindQuery(&list); err != nil {
		h.BadRequest(c, "Invalid query parameters")
		return
	}
	list.Normalize()

	ops, total, err := h.rollbacks.ListRollbacks(c.Request.Context(), userID, list.Page, list.PageSize)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	items := make([]RollbackOperationResponse, 0, len(ops))
	for i := range ops {
		items = append(items, toRollbackOperationResponse(&ops[i]))
	}

	h.SuccessWithMeta(c, items, total, list.Page, list.PageSize)
}

// CreateRestorePointRequest names a new restore point.
type CreateRestorePointRequest struct {
	Name string `json:"name" binding:"required,min=1,max=255"`
}

// CreateRestorePoint captures the current tracked-entity state under a name.
func (h *RollbackHandler) CreateRestorePoint(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Invalid or missing user ID")
		return
	}

	var req CreateRestorePointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body")
		return
	}

	rp, err := h.restorePoints.CreateRestorePoint(c.Request.Context(), userID, req.Name)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toRestorePointResponse(rp))
}

// GetRestorePoint returns one restore point by ID.
func (h *RollbackHandler) GetRestorePoint(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid restore point ID")
		return
	}

	rp, err := h.restorePoints.GetRestorePoint(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toRestorePointResponse(rp))
}

// ListRestorePoints lists the caller's restore points, newest first.
func (h *RollbackHandler) ListRestorePoints(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Invalid or missing user ID")
		return
	}

	var list dto.ListRequest
	if err := c.ShouldBindQuery(&list); err != nil {
		h.BadRequest(c, "Invalid query parameters")
		return
	}
	list.Normalize()

	points, total, err := h.restorePoints.ListRestorePoints(c.Request.Context(), userID, list.Page, list.PageSize)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	items := make([]RestorePointResponse, 0, len(points))
	for i := range points {
		items = append(items, toRestorePointResponse(&points[i]))
	}

	h.SuccessWithMeta(c, items, total, list.Page, list.PageSize)
}

// RegisterRoutes mounts the rollback and restore point endpoints.
func (h *RollbackHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rollback := rg.Group("/rollback")
	{
		rollback.POST("", h.Rollback)
		rollback.GET("", h.ListRollbacks)
		rollback.GET("/:id", h.GetRollback)
	}

	restorePoints := rg.Group("/restore-points")
	{
		restorePoints.POST("", h.CreateRestorePoint)
		restorePoints.GET("", h.ListRestorePoints)
		restorePoints.GET("/:id", h.GetRestorePoint)
	}
}
