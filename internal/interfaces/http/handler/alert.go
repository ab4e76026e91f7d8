package handler

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/syncbridge/backend/internal/domain/alert"
	"github.com/syncbridge/backend/internal/interfaces/http/dto"
)

// AlertHandler handles operator alert HTTP requests
type AlertHandler struct {
	BaseHandler
	alerts alert.Repository
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(alerts alert.Repository) *AlertHandler {
	return &AlertHandler{alerts: alerts}
}

// AlertResponse is the serialized view of one alert.
type AlertResponse struct {
	ID           uuid.UUID       `json:"id"`
	Kind         string          `json:"kind"`
	Severity     string          `json:"severity"`
	Message      string          `json:"message"`
	Details      json.RawMessage `json:"details,omitempty"`
	Acknowledged bool            `json:"acknowledged"`
	CreatedAt    time.Time       `json:"created_at"`
}

func toAlertResponse(a *alert.Alert) AlertResponse {
	return AlertResponse{
		ID:           a.ID,
		Kind:         string(a.Kind),
		Severity:     string(a.Severity),
		Message:      a.Message,
		Details:      a.Details,
		Acknowledged: a.Acknowledged,
		CreatedAt:    a.CreatedAt,
	}
}

// List returns the caller's alerts, newest first. unacknowledged=true
// narrows to open alerts.
func (h *AlertHandler) List(c *gin.Context) {
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

	unacknowledgedOnly, _ := strconv.ParseBool(c.Query("unacknowledged"))

	alerts, total, err := h.alerts.List(c.Request.Context(), userID, unacknowledgedOnly, list.Page, list.PageSize)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	items := make([]AlertResponse, 0, len(alerts))
	for i := range alerts {
		items = append(items, toAlertResponse(&alerts[i]))
	}

	h.SuccessWithMeta(c, items, total, list.Page, list.PageSize)
}

// Acknowledge marks one alert as seen.
func (h *AlertHandler) Acknowledge(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid alert ID")
		return
	}

	if err := h.alerts.Acknowledge(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}

// RegisterRoutes mounts the alert endpoints.
func (h *AlertHandler) RegisterRoutes(rg *gin.RouterGroup) {
	alerts := rg.Group("/alerts")
	{
		alerts.GET("", h.List)
		alerts.POST("/:id/acknowledge", h.Acknowledge)
	}
}
