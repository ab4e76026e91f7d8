package event

import (
	"context"

	"go.uber.org/zap"

	"github.com/syncbridge/backend/internal/domain/alert"
	"github.com/syncbridge/backend/internal/domain/event"
)

// LoggingHandler records every dispatched event in the application log.
// It never fails, so it is safe at any subscription priority.
type LoggingHandler struct {
	logger *zap.Logger
}

// NewLoggingHandler creates a logging handler.
func NewLoggingHandler(logger *zap.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger.Named("event-log")}
}

func (h *LoggingHandler) Name() string { return "event-logger" }

func (h *LoggingHandler) Handle(_ context.Context, e *event.SyncEvent) error {
	h.logger.Info("event dispatched",
		zap.String("event_id", e.ID.String()),
		zap.String("type", string(e.Type)),
		zap.String("source", string(e.Source)),
		zap.String("entity_type", e.EntityType),
		zap.String("entity_id", e.EntityID),
		zap.String("user_id", e.UserID.String()),
		zap.String("priority", string(e.Priority)),
	)
	return nil
}

// FailureAlertHandler turns failure events into alert rows so operators
// see sync failures and platform throttling without tailing logs.
type FailureAlertHandler struct {
	alerts alert.Repository
	logger *zap.Logger
}

// NewFailureAlertHandler creates a failure alert handler.
func NewFailureAlertHandler(alerts alert.Repository, logger *zap.Logger) *FailureAlertHandler {
	return &FailureAlertHandler{alerts: alerts, logger: logger}
}

func (h *FailureAlertHandler) Name() string { return "failure-alerter" }

func (h *FailureAlertHandler) Handle(ctx context.Context, e *event.SyncEvent) error {
	kind := alert.KindIntegrity
	severity := alert.SeverityWarning
	message := "sync failed"

	switch e.Type {
	case event.TypeSyncFailed:
		severity = alert.SeverityCritical
	case event.TypeAPIRateLimited:
		kind = alert.KindRateLimit
		message = "platform API rate limited"
	}

	a := alert.New(e.UserID, kind, severity, message, map[string]any{
		"event_id":    e.ID.String(),
		"event_type":  string(e.Type),
		"entity_type": e.EntityType,
		"entity_id":   e.EntityID,
		"payload":     e.Payload,
	})
	if err := h.alerts.Save(ctx, a); err != nil {
		h.logger.Error("failed to save failure alert",
			zap.String("event_id", e.ID.String()),
			zap.Error(err),
		)
		return err
	}
	return nil
}
