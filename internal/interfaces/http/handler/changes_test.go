package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/syncbridge/backend/internal/domain/audit"
	"github.com/syncbridge/backend/internal/domain/platform"
	"github.com/syncbridge/backend/internal/interfaces/http/dto"
	"github.com/syncbridge/backend/internal/interfaces/http/middleware"
)

// MockChangeTracker is a mock implementation of ChangeTracker
type MockChangeTracker struct {
	mock.Mock
}

func (m *MockChangeTracker) EntityChanges(ctx context.Context, userID uuid.UUID, q audit.Query) ([]audit.Entry, int64, error) {
	args := m.Called(ctx, userID, q)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]audit.Entry), args.Get(1).(int64), args.Error(2)
}

func newChangesRouter(tracker ChangeTracker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	api := router.Group("/api/v1")
	api.Use(middleware.RequireUserID())
	NewChangeHandler(tracker).RegisterRoutes(api)
	return router
}

func TestChangeHandler_List(t *testing.T) {
	userID := uuid.New()

	t.Run("returns the entity's change history", func(t *testing.T) {
		entry, err := audit.NewEntry(userID, "product", "prod-1", platform.CodeShopify,
			audit.OperationUpdate, "price", "10.00", "12.50", audit.SourceSync)
		require.NoError(t, err)

		tracker := new(MockChangeTracker)
		tracker.On("EntityChanges", mock.Anything, userID, mock.MatchedBy(func(q audit.Query) bool {
			return q.EntityID == "prod-1" && q.From == nil && q.To == nil
		})).Return([]audit.Entry{*entry}, int64(1), nil)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/changes/prod-1", nil)
		req.Header.Set(middleware.UserIDHeader, userID.String())
		newChangesRouter(tracker).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		require.NotNil(t, resp.Meta)
		assert.EqualValues(t, 1, resp.Meta.Total)

		items, ok := resp.Data.([]any)
		require.True(t, ok)
		require.Len(t, items, 1)
		first := items[0].(map[string]any)
		assert.Equal(t, "prod-1", first["entity_id"])
		assert.Equal(t, "UPDATE", first["operation"])
		assert.Equal(t, "price", first["field_name"])
		tracker.AssertExpectations(t)
	})

	t.Run("passes the time window through", func(t *testing.T) {
		tracker := new(MockChangeTracker)
		tracker.On("EntityChanges", mock.Anything, userID, mock.MatchedBy(func(q audit.Query) bool {
			return q.From != nil && q.To != nil && q.From.Before(*q.To)
		})).Return([]audit.Entry{}, int64(0), nil)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet,
			"/api/v1/changes/prod-1?from=2026-01-01T00:00:00Z&to=2026-02-01T00:00:00Z", nil)
		req.Header.Set(middleware.UserIDHeader, userID.String())
		newChangesRouter(tracker).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		tracker.AssertExpectations(t)
	})

	t.Run("rejects malformed timestamps", func(t *testing.T) {
		tracker := new(MockChangeTracker)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/changes/prod-1?from=yesterday", nil)
		req.Header.Set(middleware.UserIDHeader, userID.String())
		newChangesRouter(tracker).ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		tracker.AssertNotCalled(t, "EntityChanges")
	})

	t.Run("requires identity", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/changes/prod-1", nil)
		newChangesRouter(new(MockChangeTracker)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
