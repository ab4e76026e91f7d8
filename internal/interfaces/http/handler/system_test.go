package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncbridge/backend/internal/interfaces/http/dto"
)

func TestNewSystemHandler(t *testing.T) {
	h := NewSystemHandler()
	assert.NotNil(t, h)
	assert.False(t, h.startTime.IsZero())
}

func TestSystemHandler_GetSystemInfo(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := NewSystemHandler()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/system/info", nil)

	h.GetSystemInfo(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)

	assert.True(t, resp.Success)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "SyncBridge Backend API", data["name"])
	assert.NotEmpty(t, data["go_version"])
	assert.NotEmpty(t, data["uptime"])
}

func TestSystemHandler_Ping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := NewSystemHandler()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/system/ping", nil)

	h.Ping(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "pong", data["message"])
}

func TestSystemHandler_Health(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("healthy with no checks", func(t *testing.T) {
		h := NewSystemHandler()

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request, _ = http.NewRequest(http.MethodGet, "/system/health", nil)

		h.Health(c)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("healthy when all checks pass", func(t *testing.T) {
		h := NewSystemHandler().
			WithCheck("database", func(ctx context.Context) error { return nil }).
			WithCheck("redis", func(ctx context.Context) error { return nil })

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request, _ = http.NewRequest(http.MethodGet, "/system/health", nil)

		h.Health(c)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		data := resp.Data.(map[string]interface{})
		checks := data["checks"].(map[string]interface{})
		assert.Equal(t, "ok", checks["database"])
		assert.Equal(t, "ok", checks["redis"])
	})

	t.Run("unhealthy when a check fails", func(t *testing.T) {
		h := NewSystemHandler().
			WithCheck("database", func(ctx context.Context) error { return errors.New("connection refused") })

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request, _ = http.NewRequest(http.MethodGet, "/system/health", nil)

		h.Health(c)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, "unhealthy", data["status"])
	})
}
