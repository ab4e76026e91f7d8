package ecommerce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncbridge/backend/internal/domain/platform"
)

// ---------------------------------------------------------------------------
// Config Tests
// ---------------------------------------------------------------------------

func TestShopifyConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *ShopifyConfig
		wantErr error
	}{
		{
			name:    "valid config",
			config:  &ShopifyConfig{ShopDomain: "demo-store", AccessToken: "shpat_test"},
			wantErr: nil,
		},
		{
			name:    "missing domain",
			config:  &ShopifyConfig{AccessToken: "shpat_test"},
			wantErr: ErrShopifyConfigMissingDomain,
		},
		{
			name:    "missing token",
			config:  &ShopifyConfig{ShopDomain: "demo-store"},
			wantErr: ErrShopifyConfigMissingToken,
		},
		{
			name:    "base URL override needs no domain",
			config:  &ShopifyConfig{APIBaseURL: "http://localhost:9999", AccessToken: "shpat_test"},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
				assert.NotEmpty(t, tt.config.APIVersion)
				assert.True(t, tt.config.TimeoutSeconds > 0)
			}
		})
	}
}

func TestShopifyConfig_BaseURL(t *testing.T) {
	config := NewShopifyConfig("demo-store", "shpat_test")
	require.NoError(t, config.Validate())
	assert.Equal(t, "https://demo-store.myshopify.com/admin/api/"+ShopifyDefaultAPIVersion, config.BaseURL())

	config.APIBaseURL = "http://127.0.0.1:8080"
	assert.Equal(t, "http://127.0.0.1:8080/admin/api/"+ShopifyDefaultAPIVersion, config.BaseURL())
}

// ---------------------------------------------------------------------------
// Adapter Tests
// ---------------------------------------------------------------------------

func createTestShopifyAdapter(t *testing.T, serverURL string, userID uuid.UUID) *ShopifyAdapter {
	t.Helper()
	config := &ShopifyConfig{
		AccessToken:    "shpat_test",
		APIBaseURL:     serverURL,
		TimeoutSeconds: 30,
	}
	adapter, err := NewShopifyAdapter(config)
	require.NoError(t, err)
	require.NoError(t, adapter.SetUserConfig(userID, config))
	return adapter
}

func TestNewShopifyAdapter(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		adapter, err := NewShopifyAdapter(NewShopifyConfig("demo-store", "shpat_test"))
		require.NoError(t, err)
		assert.Equal(t, platform.CodeShopify, adapter.Code())
	})

	t.Run("invalid config", func(t *testing.T) {
		adapter, err := NewShopifyAdapter(&ShopifyConfig{})
		assert.Error(t, err)
		assert.Nil(t, adapter)
	})
}

func TestShopifyAdapter_ListProducts(t *testing.T) {
	userID := uuid.New()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "shpat_test", r.Header.Get("X-Shopify-Access-Token"))
		assert.Contains(t, r.URL.Path, "/products.json")
		assert.Equal(t, "2024-01-15T00:00:00Z", r.URL.Query().Get("updated_at_min"))

		resp := shopifyProductListEnvelope{Products: []shopifyProduct{
			{
				ID:       632910392,
				Title:    "IPod Nano",
				BodyHTML: "Portable player",
				Status:   "active",
				Variants: []shopifyVariant{
					{ID: 808950810, SKU: "IPOD2008PINK", Price: "199.00", InventoryQuantity: 10},
				},
			},
		}}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	adapter := createTestShopifyAdapter(t, server.URL, userID)
	since := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	products, err := adapter.ListProducts(context.Background(), userID, platform.ListQuery{UpdatedSince: &since})
	require.NoError(t, err)
	require.Len(t, products, 1)

	assert.Equal(t, "632910392", products[0].ID)
	assert.Equal(t, "IPOD2008PINK", products[0].SKU)
	assert.Equal(t, "IPod Nano", products[0].Name)
	assert.True(t, products[0].Price.Equal(decimal.RequireFromString("199.00")))
	assert.True(t, products[0].Quantity.Equal(decimal.NewFromInt(10)))
	assert.True(t, products[0].Active)
}

func TestShopifyAdapter_CreateProduct(t *testing.T) {
	userID := uuid.New()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		var payload shopifyProductEnvelope
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "Widget", payload.Product.Title)
		require.Len(t, payload.Product.Variants, 1)
		assert.Equal(t, "WIDGET-1", payload.Product.Variants[0].SKU)

		payload.Product.ID = 1072481042
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer server.Close()

	adapter := createTestShopifyAdapter(t, server.URL, userID)
	id, err := adapter.CreateProduct(context.Background(), userID, platform.Product{
		SKU:      "WIDGET-1",
		Name:     "Widget",
		Price:    decimal.RequireFromString("19.99"),
		Quantity: decimal.NewFromInt(5),
		Active:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, "1072481042", id)
}

func TestShopifyAdapter_UpdateProduct_FieldTranslation(t *testing.T) {
	userID := uuid.New()

	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"product":{"id":1}}`))
	}))
	defer server.Close()

	adapter := createTestShopifyAdapter(t, server.URL, userID)
	err := adapter.UpdateProduct(context.Background(), userID, "1", map[string]any{
		"name":     "Widget Deluxe",
		"price":    "24.99",
		"quantity": "7",
	})
	require.NoError(t, err)

	product, ok := received["product"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Widget Deluxe", product["title"])
	variants, ok := product["variants"].([]any)
	require.True(t, ok)
	require.Len(t, variants, 1)
	variant := variants[0].(map[string]any)
	assert.Equal(t, "24.99", variant["price"])
	assert.Equal(t, float64(7), variant["inventory_quantity"])
}

func TestShopifyAdapter_RateLimitMapping(t *testing.T) {
	userID := uuid.New()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2.0")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"errors":"Exceeded 2 calls per second for api client"}`))
	}))
	defer server.Close()

	adapter := createTestShopifyAdapter(t, server.URL, userID)
	_, err := adapter.ListProducts(context.Background(), userID, platform.ListQuery{})
	require.Error(t, err)

	assert.True(t, platform.IsRateLimited(err))
	wait, ok := platform.RetryAfter(err)
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, wait)
}

func TestShopifyAdapter_NotFoundMapping(t *testing.T) {
	userID := uuid.New()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errors":"Not Found"}`))
	}))
	defer server.Close()

	adapter := createTestShopifyAdapter(t, server.URL, userID)
	_, err := adapter.GetProduct(context.Background(), userID, "999")
	assert.ErrorIs(t, err, platform.ErrRecordNotFound)
}

func TestShopifyAdapter_UnconfiguredUserFallsBackToDefault(t *testing.T) {
	adapter, err := NewShopifyAdapter(NewShopifyConfig("demo-store", "shpat_test"))
	require.NoError(t, err)

	// The default config serves unknown users; only a nil default rejects.
	config, err := adapter.getUserConfig(uuid.New())
	require.NoError(t, err)
	assert.Equal(t, "demo-store", config.ShopDomain)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon"))
	assert.Equal(t, 2*time.Second, parseRetryAfter("2"))
	assert.Equal(t, 1500*time.Millisecond, parseRetryAfter("1.5"))
}
