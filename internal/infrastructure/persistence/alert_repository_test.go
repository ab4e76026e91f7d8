package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncbridge/backend/internal/domain/alert"
)

func TestGormAlertRepository_Acknowledge(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewGormAlertRepository(db)
	ctx := context.Background()
	userID := uuid.New()

	a := alert.New(userID, alert.KindRateLimit, alert.SeverityWarning, "shopify throttled", map[string]any{"wait_ms": 1500})
	require.NoError(t, repo.Save(ctx, a))

	t.Run("unacknowledged filter", func(t *testing.T) {
		alerts, total, err := repo.List(ctx, userID, true, 1, 20)
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		require.Len(t, alerts, 1)
		assert.Equal(t, "shopify throttled", alerts[0].Message)
		assert.JSONEq(t, `{"wait_ms":1500}`, string(alerts[0].Details))
	})

	t.Run("acknowledge hides from filter", func(t *testing.T) {
		require.NoError(t, repo.Acknowledge(ctx, a.ID))

		_, total, err := repo.List(ctx, userID, true, 1, 20)
		require.NoError(t, err)
		assert.Zero(t, total)

		found, err := repo.FindByID(ctx, a.ID)
		require.NoError(t, err)
		assert.True(t, found.Acknowledged)
	})

	t.Run("unknown alert", func(t *testing.T) {
		assert.ErrorIs(t, repo.Acknowledge(ctx, uuid.New()), alert.ErrAlertNotFound)
		_, err := repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, alert.ErrAlertNotFound)
	})
}
