package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	appevent "github.com/syncbridge/backend/internal/application/event"
	"github.com/syncbridge/backend/internal/domain/event"
	"github.com/syncbridge/backend/internal/interfaces/http/dto"
	"github.com/syncbridge/backend/internal/interfaces/http/middleware"
)

// MockEventService is a mock implementation of EventService
type MockEventService struct {
	mock.Mock
}

func (m *MockEventService) Publish(ctx context.Context, userID uuid.UUID, cmd appevent.PublishCommand) (*appevent.EventDTO, error) {
	args := m.Called(ctx, userID, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appevent.EventDTO), args.Error(1)
}

func (m *MockEventService) GetEvent(ctx context.Context, id uuid.UUID) (*appevent.EventDTO, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appevent.EventDTO), args.Error(1)
}

func (m *MockEventService) GetEventHistory(ctx context.Context, id uuid.UUID) ([]appevent.ProcessingRecordDTO, error) {
	args := m.Called(ctx, id)
	return args.Get(0).([]appevent.ProcessingRecordDTO), args.Error(1)
}

func (m *MockEventService) GetDeadLetterEvents(ctx context.Context, filter appevent.EventFilter) (*appevent.EventListResult, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appevent.EventListResult), args.Error(1)
}

func (m *MockEventService) RequeueDead(ctx context.Context, id uuid.UUID) (*appevent.EventDTO, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appevent.EventDTO), args.Error(1)
}

func (m *MockEventService) GetStats(ctx context.Context) (*appevent.StatsDTO, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appevent.StatsDTO), args.Error(1)
}

// stubIdempotencyStore marks keys in a plain map, no TTL handling.
type stubIdempotencyStore struct {
	seen map[string]bool
}

func newStubIdempotencyStore() *stubIdempotencyStore {
	return &stubIdempotencyStore{seen: make(map[string]bool)}
}

func (s *stubIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	return true, nil
}

func (s *stubIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	return s.seen[key], nil
}

func (s *stubIdempotencyStore) Close() error { return nil }

func newEventRouter(svc EventService, store *stubIdempotencyStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	api := router.Group("/api/v1")
	api.Use(middleware.RequireUserID())
	NewEventHandler(svc, store).RegisterRoutes(api)
	return router
}

func publishRequest(userID uuid.UUID, idempotencyKey string) *http.Request {
	body := `{"type": "inventory.updated", "source": "shopify", "entity_type": "inventory", "entity_id": "sku-1", "payload": {"available": 5}}`
	req := httptest.NewRequest("POST", "/api/v1/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.UserIDHeader, userID.String())
	if idempotencyKey != "" {
		req.Header.Set(IdempotencyKeyHeader, idempotencyKey)
	}
	return req
}

func TestEventHandler_Publish(t *testing.T) {
	userID := uuid.New()

	t.Run("publishes and returns the event ID", func(t *testing.T) {
		svc := new(MockEventService)
		eventID := uuid.New()
		svc.On("Publish", mock.Anything, userID, mock.MatchedBy(func(cmd appevent.PublishCommand) bool {
			return cmd.Type == "inventory.updated" && cmd.Source == "shopify"
		})).Return(&appevent.EventDTO{ID: eventID}, nil)

		w := httptest.NewRecorder()
		newEventRouter(svc, newStubIdempotencyStore()).ServeHTTP(w, publishRequest(userID, ""))

		assert.Equal(t, http.StatusCreated, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, eventID.String(), data["event_id"])
		assert.Equal(t, false, data["duplicate"])
	})

	t.Run("repeated idempotency key publishes once", func(t *testing.T) {
		svc := new(MockEventService)
		svc.On("Publish", mock.Anything, userID, mock.Anything).Return(&appevent.EventDTO{ID: uuid.New()}, nil).Once()

		router := newEventRouter(svc, newStubIdempotencyStore())

		w := httptest.NewRecorder()
		router.ServeHTTP(w, publishRequest(userID, "order-42"))
		assert.Equal(t, http.StatusCreated, w.Code)

		w = httptest.NewRecorder()
		router.ServeHTTP(w, publishRequest(userID, "order-42"))
		assert.Equal(t, http.StatusOK, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, true, data["duplicate"])

		svc.AssertExpectations(t)
	})

	t.Run("same key for a different user publishes", func(t *testing.T) {
		svc := new(MockEventService)
		svc.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(&appevent.EventDTO{ID: uuid.New()}, nil).Twice()

		router := newEventRouter(svc, newStubIdempotencyStore())

		w := httptest.NewRecorder()
		router.ServeHTTP(w, publishRequest(userID, "order-42"))
		assert.Equal(t, http.StatusCreated, w.Code)

		w = httptest.NewRecorder()
		router.ServeHTTP(w, publishRequest(uuid.New(), "order-42"))
		assert.Equal(t, http.StatusCreated, w.Code)

		svc.AssertExpectations(t)
	})

	t.Run("rejects a body without type", func(t *testing.T) {
		svc := new(MockEventService)

		req := httptest.NewRequest("POST", "/api/v1/events", strings.NewReader(`{"source": "shopify"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.UserIDHeader, userID.String())
		w := httptest.NewRecorder()
		newEventRouter(svc, newStubIdempotencyStore()).ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "Publish")
	})
}

func TestEventHandler_RequeueDead(t *testing.T) {
	userID := uuid.New()

	t.Run("requeues an escalated event", func(t *testing.T) {
		svc := new(MockEventService)
		eventID := uuid.New()
		svc.On("RequeueDead", mock.Anything, eventID).Return(&appevent.EventDTO{ID: eventID, Status: "PENDING"}, nil)

		req := httptest.NewRequest("POST", "/api/v1/events/dead/"+eventID.String()+"/requeue", nil)
		req.Header.Set(middleware.UserIDHeader, userID.String())
		w := httptest.NewRecorder()
		newEventRouter(svc, newStubIdempotencyStore()).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("rejects requeue of a non-escalated event", func(t *testing.T) {
		svc := new(MockEventService)
		eventID := uuid.New()
		svc.On("RequeueDead", mock.Anything, eventID).Return(nil, event.ErrNotEscalated)

		req := httptest.NewRequest("POST", "/api/v1/events/dead/"+eventID.String()+"/requeue", nil)
		req.Header.Set(middleware.UserIDHeader, userID.String())
		w := httptest.NewRecorder()
		newEventRouter(svc, newStubIdempotencyStore()).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

func TestEventHandler_GetDeadLetterEvents(t *testing.T) {
	userID := uuid.New()
	svc := new(MockEventService)
	svc.On("GetDeadLetterEvents", mock.Anything, mock.Anything).Return(&appevent.EventListResult{
		Events:   []appevent.EventDTO{{ID: uuid.New(), Status: "ESCALATED"}},
		Total:    1,
		Page:     1,
		PageSize: 20,
	}, nil)

	req := httptest.NewRequest("GET", "/api/v1/events/dead", nil)
	req.Header.Set(middleware.UserIDHeader, userID.String())
	w := httptest.NewRecorder()
	newEventRouter(svc, newStubIdempotencyStore()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Meta.Total)
}

func TestEventHandler_GetEvent_NotFound(t *testing.T) {
	userID := uuid.New()
	svc := new(MockEventService)
	eventID := uuid.New()
	svc.On("GetEvent", mock.Anything, eventID).Return(nil, event.ErrEventNotFound)

	req := httptest.NewRequest("GET", "/api/v1/events/"+eventID.String(), nil)
	req.Header.Set(middleware.UserIDHeader, userID.String())
	w := httptest.NewRecorder()
	newEventRouter(svc, newStubIdempotencyStore()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
