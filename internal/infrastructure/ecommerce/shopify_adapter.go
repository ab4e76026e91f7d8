package ecommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/syncbridge/backend/internal/domain/platform"
)

// maxShopifyResponseSize limits the response body size to prevent memory exhaustion
const maxShopifyResponseSize = 10 * 1024 * 1024 // 10MB max response

// ShopifyAdapter implements platform.Connector against the Shopify Admin
// REST API. Product records are modeled single-variant: the first variant
// carries SKU, price, and stock.
type ShopifyAdapter struct {
	config     *ShopifyConfig
	httpClient *http.Client

	// userConfigs stores per-user store credentials
	userConfigs map[uuid.UUID]*ShopifyConfig
	mu          sync.RWMutex
}

// NewShopifyAdapter creates a Shopify adapter with the given default
// configuration.
func NewShopifyAdapter(config *ShopifyConfig) (*ShopifyAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &ShopifyAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		userConfigs: make(map[uuid.UUID]*ShopifyConfig),
	}, nil
}

// SetUserConfig sets the store credentials for a specific user.
func (a *ShopifyAdapter) SetUserConfig(userID uuid.UUID, config *ShopifyConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.userConfigs[userID] = config
	return nil
}

func (a *ShopifyAdapter) getUserConfig(userID uuid.UUID) (*ShopifyConfig, error) {
	a.mu.RLock()
	config, ok := a.userConfigs[userID]
	a.mu.RUnlock()
	if ok {
		return config, nil
	}
	if a.config != nil {
		return a.config, nil
	}
	return nil, platform.ErrPlatformNotConfigured
}

// Code returns the platform code this adapter handles.
func (a *ShopifyAdapter) Code() platform.Code {
	return platform.CodeShopify
}

// ---------------------------------------------------------------------------
// Product Operations
// ---------------------------------------------------------------------------

// ListProducts lists products, optionally narrowed by IDs or a
// changed-since cursor.
func (a *ShopifyAdapter) ListProducts(ctx context.Context, userID uuid.UUID, q platform.ListQuery) ([]platform.Product, error) {
	config, err := a.getUserConfig(userID)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	if len(q.IDs) > 0 {
		params.Set("ids", strings.Join(q.IDs, ","))
	}
	if q.UpdatedSince != nil {
		params.Set("updated_at_min", q.UpdatedSince.Format(time.RFC3339))
	}
	if q.PageSize > 0 {
		params.Set("limit", strconv.Itoa(q.PageSize))
	}

	body, err := a.doRequest(ctx, config, http.MethodGet, "/products.json", params, nil)
	if err != nil {
		return nil, err
	}

	var resp shopifyProductListEnvelope
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", platform.ErrPlatformInvalidResponse, err)
	}

	out := make([]platform.Product, 0, len(resp.Products))
	for _, p := range resp.Products {
		out = append(out, p.toDomain())
	}
	return out, nil
}

// GetProduct retrieves one product by its Shopify ID.
func (a *ShopifyAdapter) GetProduct(ctx context.Context, userID uuid.UUID, productID string) (*platform.Product, error) {
	config, err := a.getUserConfig(userID)
	if err != nil {
		return nil, err
	}

	body, err := a.doRequest(ctx, config, http.MethodGet, "/products/"+productID+".json", nil, nil)
	if err != nil {
		return nil, err
	}

	var resp shopifyProductEnvelope
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", platform.ErrPlatformInvalidResponse, err)
	}
	p := resp.Product.toDomain()
	return &p, nil
}

// CreateProduct creates a product and returns its Shopify ID.
func (a *ShopifyAdapter) CreateProduct(ctx context.Context, userID uuid.UUID, p platform.Product) (string, error) {
	config, err := a.getUserConfig(userID)
	if err != nil {
		return "", err
	}

	payload := shopifyProductEnvelope{Product: shopifyProductFromDomain(p)}
	body, err := a.doRequest(ctx, config, http.MethodPost, "/products.json", nil, payload)
	if err != nil {
		return "", err
	}

	var resp shopifyProductEnvelope
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", platform.ErrPlatformInvalidResponse, err)
	}
	if resp.Product.ID == 0 {
		return "", platform.ErrPlatformInvalidResponse
	}
	return strconv.FormatInt(resp.Product.ID, 10), nil
}

// UpdateProduct applies a partial field update to a product.
func (a *ShopifyAdapter) UpdateProduct(ctx context.Context, userID uuid.UUID, productID string, fields map[string]any) error {
	config, err := a.getUserConfig(userID)
	if err != nil {
		return err
	}

	product, variant, err := shopifyUpdatePayload(fields)
	if err != nil {
		return err
	}
	if len(variant) > 0 {
		// Variant-level fields ride along on the product update.
		product["variants"] = []map[string]any{variant}
	}
	payload := map[string]any{"product": product}

	_, err = a.doRequest(ctx, config, http.MethodPut, "/products/"+productID+".json", nil, payload)
	return err
}

// shopifyUpdatePayload splits a neutral field map into product-level and
// variant-level Shopify fields.
func shopifyUpdatePayload(fields map[string]any) (map[string]any, map[string]any, error) {
	product := make(map[string]any)
	variant := make(map[string]any)
	for key, value := range fields {
		switch key {
		case "name":
			product["title"] = value
		case "description":
			product["body_html"] = value
		case "active":
			status := "draft"
			if b, ok := value.(bool); ok && b {
				status = "active"
			}
			product["status"] = status
		case "sku":
			variant["sku"] = value
		case "price":
			variant["price"] = fmt.Sprintf("%v", value)
		case "quantity":
			qty, err := decimal.NewFromString(fmt.Sprintf("%v", value))
			if err != nil {
				return nil, nil, fmt.Errorf("shopify: invalid quantity %q: %w", value, err)
			}
			variant["inventory_quantity"] = qty.IntPart()
		case "currency":
			// Shop currency is store-level configuration; nothing to send.
		default:
			return nil, nil, fmt.Errorf("shopify: unknown product field %q", key)
		}
	}
	return product, variant, nil
}

// ---------------------------------------------------------------------------
// Inventory Operations
// ---------------------------------------------------------------------------

// ListInventory lists stock levels through the product listing.
func (a *ShopifyAdapter) ListInventory(ctx context.Context, userID uuid.UUID, q platform.ListQuery) ([]platform.InventoryLevel, error) {
	products, err := a.ListProducts(ctx, userID, q)
	if err != nil {
		return nil, err
	}
	out := make([]platform.InventoryLevel, 0, len(products))
	for _, p := range products {
		out = append(out, platform.InventoryLevel{
			ProductID: p.ID,
			SKU:       p.SKU,
			Quantity:  p.Quantity,
			UpdatedAt: p.UpdatedAt,
		})
	}
	return out, nil
}

// SetInventoryLevel sets the available stock of a product's variant.
func (a *ShopifyAdapter) SetInventoryLevel(ctx context.Context, userID uuid.UUID, productID string, quantity decimal.Decimal) error {
	return a.UpdateProduct(ctx, userID, productID, map[string]any{
		"quantity": quantity.String(),
	})
}

// ---------------------------------------------------------------------------
// Order Operations
// ---------------------------------------------------------------------------

// ListOrders lists orders, optionally narrowed by IDs or a changed-since
// cursor.
func (a *ShopifyAdapter) ListOrders(ctx context.Context, userID uuid.UUID, q platform.ListQuery) ([]platform.Order, error) {
	config, err := a.getUserConfig(userID)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("status", "any")
	if len(q.IDs) > 0 {
		params.Set("ids", strings.Join(q.IDs, ","))
	}
	if q.UpdatedSince != nil {
		params.Set("updated_at_min", q.UpdatedSince.Format(time.RFC3339))
	}
	if q.PageSize > 0 {
		params.Set("limit", strconv.Itoa(q.PageSize))
	}

	body, err := a.doRequest(ctx, config, http.MethodGet, "/orders.json", params, nil)
	if err != nil {
		return nil, err
	}

	var resp shopifyOrderListEnvelope
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", platform.ErrPlatformInvalidResponse, err)
	}

	out := make([]platform.Order, 0, len(resp.Orders))
	for _, o := range resp.Orders {
		out = append(out, o.toDomain())
	}
	return out, nil
}

// CreateOrder creates an order and returns its Shopify ID.
func (a *ShopifyAdapter) CreateOrder(ctx context.Context, userID uuid.UUID, o platform.Order) (string, error) {
	config, err := a.getUserConfig(userID)
	if err != nil {
		return "", err
	}

	payload := shopifyOrderEnvelope{Order: shopifyOrderFromDomain(o)}
	body, err := a.doRequest(ctx, config, http.MethodPost, "/orders.json", nil, payload)
	if err != nil {
		return "", err
	}

	var resp shopifyOrderEnvelope
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", platform.ErrPlatformInvalidResponse, err)
	}
	if resp.Order.ID == 0 {
		return "", platform.ErrPlatformInvalidResponse
	}
	return strconv.FormatInt(resp.Order.ID, 10), nil
}

// ---------------------------------------------------------------------------
// Customer Operations
// ---------------------------------------------------------------------------

// GetCustomer retrieves one customer by its Shopify ID.
func (a *ShopifyAdapter) GetCustomer(ctx context.Context, userID uuid.UUID, customerID string) (*platform.Customer, error) {
	config, err := a.getUserConfig(userID)
	if err != nil {
		return nil, err
	}

	body, err := a.doRequest(ctx, config, http.MethodGet, "/customers/"+customerID+".json", nil, nil)
	if err != nil {
		return nil, err
	}

	var resp shopifyCustomerEnvelope
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", platform.ErrPlatformInvalidResponse, err)
	}
	c := resp.Customer.toDomain()
	return &c, nil
}

// CreateCustomer creates a customer and returns its Shopify ID.
func (a *ShopifyAdapter) CreateCustomer(ctx context.Context, userID uuid.UUID, c platform.Customer) (string, error) {
	config, err := a.getUserConfig(userID)
	if err != nil {
		return "", err
	}

	first, last := splitName(c.Name)
	payload := shopifyCustomerEnvelope{Customer: shopifyCustomer{
		Email:     c.Email,
		FirstName: first,
		LastName:  last,
	}}
	body, err := a.doRequest(ctx, config, http.MethodPost, "/customers.json", nil, payload)
	if err != nil {
		return "", err
	}

	var resp shopifyCustomerEnvelope
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", platform.ErrPlatformInvalidResponse, err)
	}
	if resp.Customer.ID == 0 {
		return "", platform.ErrPlatformInvalidResponse
	}
	return strconv.FormatInt(resp.Customer.ID, 10), nil
}

func splitName(name string) (string, string) {
	parts := strings.SplitN(name, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

// ---------------------------------------------------------------------------
// Internal Helpers
// ---------------------------------------------------------------------------

// doRequest performs an HTTP request against the Shopify Admin API and
// maps failures onto the platform error taxonomy.
func (a *ShopifyAdapter) doRequest(ctx context.Context, config *ShopifyConfig, method, path string, params url.Values, payload any) ([]byte, error) {
	reqURL := config.BaseURL() + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("shopify: failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("shopify: failed to create request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", config.AccessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", platform.ErrPlatformUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxShopifyResponseSize))
	if err != nil {
		return nil, fmt.Errorf("shopify: failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, platform.ErrRecordNotFound
	}
	if resp.StatusCode >= 400 {
		return nil, &platform.APIError{
			Platform:   platform.CodeShopify,
			StatusCode: resp.StatusCode,
			Message:    shopifyErrorMessage(body),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return body, nil
}

func shopifyErrorMessage(body []byte) string {
	var envelope shopifyErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Errors != nil {
		return fmt.Sprintf("%v", envelope.Errors)
	}
	return strings.TrimSpace(string(body))
}

// parseRetryAfter reads a Retry-After header value in seconds, allowing
// the fractional values Shopify sends.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}
