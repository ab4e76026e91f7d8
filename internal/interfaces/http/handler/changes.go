package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/syncbridge/backend/internal/domain/audit"
)

// ChangeTracker is the application surface the change history handler drives.
type ChangeTracker interface {
	EntityChanges(ctx context.Context, userID uuid.UUID, q audit.Query) ([]audit.Entry, int64, error)
}

// ChangeHandler handles change history HTTP requests
type ChangeHandler struct {
	BaseHandler
	tracker ChangeTracker
}

// NewChangeHandler creates a new change history handler
func NewChangeHandler(tracker ChangeTracker) *ChangeHandler {
	return &ChangeHandler{tracker: tracker}
}

// ChangeQueryRequest narrows the change history listing.
type ChangeQueryRequest struct {
	From     *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To       *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Page     int        `form:"page,omitempty" binding:"omitempty,min=1"`
	PageSize int        `form:"page_size,omitempty" binding:"omitempty,min=1,max=100"`
}

// ChangeEntryResponse is the serialized view of one change log entry.
type ChangeEntryResponse struct {
	ID               uuid.UUID       `json:"id"`
	EntityType       string          `json:"entity_type"`
	EntityID         string          `json:"entity_id"`
	Platform         string          `json:"platform"`
	Operation        string          `json:"operation"`
	FieldName        string          `json:"field_name,omitempty"`
	OldValue         json.RawMessage `json:"old_value,omitempty"`
	NewValue         json.RawMessage `json:"new_value,omitempty"`
	ValueDiff        json.RawMessage `json:"value_diff,omitempty"`
	ChangeSource     string          `json:"change_source"`
	BeforeSnapshotID *uuid.UUID      `json:"before_snapshot_id,omitempty"`
	AfterSnapshotID  *uuid.UUID      `json:"after_snapshot_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

func toChangeEntryResponse(e *audit.Entry) ChangeEntryResponse {
	return ChangeEntryResponse{
		ID:               e.ID,
		EntityType:       e.EntityType,
		EntityID:         e.EntityID,
		Platform:         string(e.Platform),
		Operation:        string(e.Operation),
		FieldName:        e.FieldName,
		OldValue:         e.OldValue,
		NewValue:         e.NewValue,
		ValueDiff:        e.ValueDiff,
		ChangeSource:     string(e.ChangeSource),
		BeforeSnapshotID: e.BeforeSnapshotID,
		AfterSnapshotID:  e.AfterSnapshotID,
		CreatedAt:        e.CreatedAt,
	}
}

// List returns the change history for one entity, newest first.
func (h *ChangeHandler) List(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Invalid or missing user ID")
		return
	}

	entityID := c.Param("entityId")
	if entityID == "" {
		h.BadRequest(c, "Entity ID is required")
		return
	}

	var req ChangeQueryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, "Invalid query parameters")
		return
	}

	entries, total, err := h.tracker.EntityChanges(c.Request.Context(), userID, audit.Query{
		EntityID: entityID,
		From:     req.From,
		To:       req.To,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	items := make([]ChangeEntryResponse, 0, len(entries))
	for i := range entries {
		items = append(items, toChangeEntryResponse(&entries[i]))
	}

	page, pageSize := req.Page, req.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	h.SuccessWithMeta(c, items, total, page, pageSize)
}

// RegisterRoutes mounts the change history endpoints.
func (h *ChangeHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/changes/:entityId", h.List)
}
