package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	appreconcile "github.com/syncbridge/backend/internal/application/reconcile"
	"github.com/syncbridge/backend/internal/domain/reconcile"
	"github.com/syncbridge/backend/internal/interfaces/http/dto"
)

// SyncService is the application surface the sync handler drives.
type SyncService interface {
	Run(ctx context.Context, userID uuid.UUID, req appreconcile.RunRequest) (*appreconcile.RunResult, error)
	GetRun(ctx context.Context, id uuid.UUID) (*reconcile.SyncLog, error)
	History(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]reconcile.SyncLog, int64, error)
}

// SyncHandler handles sync run HTTP requests
type SyncHandler struct {
	BaseHandler
	syncs SyncService
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(syncs SyncService) *SyncHandler {
	return &SyncHandler{syncs: syncs}
}

// TriggerSyncRequest is the sync trigger contract.
type TriggerSyncRequest struct {
	Direction string `json:"direction" binding:"required,oneof=netsuite_to_shopify shopify_to_netsuite bidirectional"`
	DataTypes struct {
		Products  bool `json:"products"`
		Inventory bool `json:"inventory"`
		Orders    bool `json:"orders"`
	} `json:"data_types"`
	Options struct {
		IDs          []string   `json:"ids"`
		UpdatedSince *time.Time `json:"updated_since"`
		FullSync     bool       `json:"full_sync"`
		Threshold    string     `json:"threshold"`
		Concurrency  int        `json:"concurrency" binding:"omitempty,min=1,max=32"`
	} `json:"options"`
}

// SyncLogResponse is the serialized view of one sync run.
type SyncLogResponse struct {
	ID             uuid.UUID             `json:"id"`
	Direction      string                `json:"direction"`
	Products       bool                  `json:"products"`
	Inventory      bool                  `json:"inventory"`
	Orders         bool                  `json:"orders"`
	Status         string                `json:"status"`
	ItemsProcessed int                   `json:"items_processed"`
	ItemsSucceeded int                   `json:"items_succeeded"`
	ItemsFailed    int                   `json:"items_failed"`
	Errors         []reconcile.ItemError `json:"errors,omitempty"`
	StartedAt      time.Time             `json:"started_at"`
	CompletedAt    *time.Time            `json:"completed_at,omitempty"`
}

func toSyncLogResponse(l *reconcile.SyncLog) SyncLogResponse {
	return SyncLogResponse{
		ID:             l.ID,
		Direction:      string(l.Direction),
		Products:       l.DataTypes.Products,
		Inventory:      l.DataTypes.Inventory,
		Orders:         l.DataTypes.Orders,
		Status:         string(l.Status),
		ItemsProcessed: l.ItemsProcessed,
		ItemsSucceeded: l.ItemsSucceeded,
		ItemsFailed:    l.ItemsFailed,
		Errors:         l.Errors,
		StartedAt:      l.StartedAt,
		CompletedAt:    l.CompletedAt,
	}
}

// Trigger starts a sync run. A run already in flight for the caller
// returns 409.
func (h *SyncHandler) Trigger(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Invalid or missing user ID")
		return
	}

	var req TriggerSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body")
		return
	}

	runReq := appreconcile.RunRequest{
		Direction: reconcile.Direction(req.Direction),
		DataTypes: reconcile.DataTypes{
			Products:  req.DataTypes.Products,
			Inventory: req.DataTypes.Inventory,
			Orders:    req.DataTypes.Orders,
		},
		Options: appreconcile.SyncOptions{
			IDs:          req.Options.IDs,
			UpdatedSince: req.Options.UpdatedSince,
			FullSync:     req.Options.FullSync,
			Concurrency:  req.Options.Concurrency,
		},
	}
	if req.Options.Threshold != "" {
		threshold, err := decimal.NewFromString(req.Options.Threshold)
		if err != nil {
			h.BadRequest(c, "Invalid threshold value")
			return
		}
		runReq.Options.Threshold = threshold
	}

	result, err := h.syncs.Run(c.Request.Context(), userID, runReq)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// GetRun returns one sync run by ID.
func (h *SyncHandler) GetRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid sync run ID")
		return
	}

	run, err := h.syncs.GetRun(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toSyncLogResponse(run))
}

// History lists the caller's past sync runs, newest first.
func (h *SyncHandler) History(c *gin.Context) {
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

	runs, total, err := h.syncs.History(c.Request.Context(), userID, list.Page, list.PageSize)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	items := make([]SyncLogResponse, 0, len(runs))
	for i := range runs {
		items = append(items, toSyncLogResponse(&runs[i]))
	}

	h.SuccessWithMeta(c, items, total, list.Page, list.PageSize)
}

// RegisterRoutes mounts the sync endpoints.
func (h *SyncHandler) RegisterRoutes(rg *gin.RouterGroup) {
	sync := rg.Group("/sync")
	{
		sync.POST("", h.Trigger)
		sync.GET("/history", h.History)
		sync.GET("/:id", h.GetRun)
	}
}
