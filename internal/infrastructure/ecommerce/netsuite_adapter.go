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

// maxNetSuiteResponseSize limits the response body size to prevent memory exhaustion
const maxNetSuiteResponseSize = 10 * 1024 * 1024 // 10MB max response

// NetSuiteAdapter implements platform.Connector against the NetSuite REST
// record API. Catalog records map onto inventoryItem, orders onto
// salesOrder, customers onto customer.
type NetSuiteAdapter struct {
	config     *NetSuiteConfig
	httpClient *http.Client

	// userConfigs stores per-user account credentials
	userConfigs map[uuid.UUID]*NetSuiteConfig
	mu          sync.RWMutex
}

// NewNetSuiteAdapter creates a NetSuite adapter with the given default
// configuration.
func NewNetSuiteAdapter(config *NetSuiteConfig) (*NetSuiteAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &NetSuiteAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		userConfigs: make(map[uuid.UUID]*NetSuiteConfig),
	}, nil
}

// SetUserConfig sets the account credentials for a specific user.
func (a *NetSuiteAdapter) SetUserConfig(userID uuid.UUID, config *NetSuiteConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.userConfigs[userID] = config
	return nil
}

func (a *NetSuiteAdapter) getUserConfig(userID uuid.UUID) (*NetSuiteConfig, error) {
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
func (a *NetSuiteAdapter) Code() platform.Code {
	return platform.CodeNetSuite
}

// ---------------------------------------------------------------------------
// Product Operations
// ---------------------------------------------------------------------------

// ListProducts lists inventory items. Explicit IDs are fetched one by one;
// the record API has no bulk fetch for arbitrary ID sets.
func (a *NetSuiteAdapter) ListProducts(ctx context.Context, userID uuid.UUID, q platform.ListQuery) ([]platform.Product, error) {
	config, err := a.getUserConfig(userID)
	if err != nil {
		return nil, err
	}

	if len(q.IDs) > 0 {
		out := make([]platform.Product, 0, len(q.IDs))
		for _, id := range q.IDs {
			p, err := a.GetProduct(ctx, userID, id)
			if err != nil {
				return nil, err
			}
			out = append(out, *p)
		}
		return out, nil
	}

	params := url.Values{}
	params.Set("expandSubResources", "true")
	if q.UpdatedSince != nil {
		params.Set("q", fmt.Sprintf("lastModifiedDate AFTER %q", q.UpdatedSince.Format("01/02/2006")))
	}
	if q.PageSize > 0 {
		params.Set("limit", strconv.Itoa(q.PageSize))
	}

	body, err := a.doRequest(ctx, config, http.MethodGet, "/inventoryItem", params, nil)
	if err != nil {
		return nil, err
	}

	var resp netsuiteListResponse[netsuiteItem]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", platform.ErrPlatformInvalidResponse, err)
	}

	out := make([]platform.Product, 0, len(resp.Items))
	for _, item := range resp.Items {
		out = append(out, item.toDomain())
	}
	return out, nil
}

// GetProduct retrieves one inventory item by its internal ID.
func (a *NetSuiteAdapter) GetProduct(ctx context.Context, userID uuid.UUID, productID string) (*platform.Product, error) {
	config, err := a.getUserConfig(userID)
	if err != nil {
		return nil, err
	}

	body, err := a.doRequest(ctx, config, http.MethodGet, "/inventoryItem/"+productID, nil, nil)
	if err != nil {
		return nil, err
	}

	var item netsuiteItem
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("%w: %v", platform.ErrPlatformInvalidResponse, err)
	}
	if item.ID == "" {
		item.ID = productID
	}
	p := item.toDomain()
	return &p, nil
}

// CreateProduct creates an inventory item and returns its internal ID.
func (a *NetSuiteAdapter) CreateProduct(ctx context.Context, userID uuid.UUID, p platform.Product) (string, error) {
	config, err := a.getUserConfig(userID)
	if err != nil {
		return "", err
	}

	body, err := a.doRequest(ctx, config, http.MethodPost, "/inventoryItem", nil, netsuiteItemFromDomain(p))
	if err != nil {
		return "", err
	}

	var created netsuiteItem
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("%w: %v", platform.ErrPlatformInvalidResponse, err)
	}
	if created.ID == "" {
		return "", platform.ErrPlatformInvalidResponse
	}
	return created.ID, nil
}

// UpdateProduct applies a partial field update to an inventory item.
func (a *NetSuiteAdapter) UpdateProduct(ctx context.Context, userID uuid.UUID, productID string, fields map[string]any) error {
	config, err := a.getUserConfig(userID)
	if err != nil {
		return err
	}

	payload, err := netsuiteUpdatePayload(fields)
	if err != nil {
		return err
	}

	_, err = a.doRequest(ctx, config, http.MethodPatch, "/inventoryItem/"+productID, nil, payload)
	return err
}

// netsuiteUpdatePayload translates a neutral field map into inventoryItem
// record fields.
func netsuiteUpdatePayload(fields map[string]any) (map[string]any, error) {
	payload := make(map[string]any)
	for key, value := range fields {
		switch key {
		case "sku":
			payload["itemId"] = value
		case "name":
			payload["displayName"] = value
		case "description":
			payload["salesDescription"] = value
		case "currency":
			payload["currency"] = value
		case "price":
			d, err := decimal.NewFromString(fmt.Sprintf("%v", value))
			if err != nil {
				return nil, fmt.Errorf("netsuite: invalid price %q: %w", value, err)
			}
			price, _ := d.Float64()
			payload["basePrice"] = price
		case "quantity":
			d, err := decimal.NewFromString(fmt.Sprintf("%v", value))
			if err != nil {
				return nil, fmt.Errorf("netsuite: invalid quantity %q: %w", value, err)
			}
			qty, _ := d.Float64()
			payload["quantityAvailable"] = qty
		case "active":
			b, ok := value.(bool)
			if !ok {
				return nil, fmt.Errorf("netsuite: invalid active flag %v", value)
			}
			payload["isInactive"] = !b
		default:
			return nil, fmt.Errorf("netsuite: unknown product field %q", key)
		}
	}
	return payload, nil
}

// ---------------------------------------------------------------------------
// Inventory Operations
// ---------------------------------------------------------------------------

// ListInventory lists stock levels through the item listing.
func (a *NetSuiteAdapter) ListInventory(ctx context.Context, userID uuid.UUID, q platform.ListQuery) ([]platform.InventoryLevel, error) {
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

// SetInventoryLevel sets the available quantity of an inventory item.
func (a *NetSuiteAdapter) SetInventoryLevel(ctx context.Context, userID uuid.UUID, productID string, quantity decimal.Decimal) error {
	return a.UpdateProduct(ctx, userID, productID, map[string]any{
		"quantity": quantity.String(),
	})
}

// ---------------------------------------------------------------------------
// Order Operations
// ---------------------------------------------------------------------------

// ListOrders lists sales orders.
func (a *NetSuiteAdapter) ListOrders(ctx context.Context, userID uuid.UUID, q platform.ListQuery) ([]platform.Order, error) {
	config, err := a.getUserConfig(userID)
	if err != nil {
		return nil, err
	}

	if len(q.IDs) > 0 {
		out := make([]platform.Order, 0, len(q.IDs))
		for _, id := range q.IDs {
			body, err := a.doRequest(ctx, config, http.MethodGet, "/salesOrder/"+id, nil, nil)
			if err != nil {
				return nil, err
			}
			var order netsuiteSalesOrder
			if err := json.Unmarshal(body, &order); err != nil {
				return nil, fmt.Errorf("%w: %v", platform.ErrPlatformInvalidResponse, err)
			}
			if order.ID == "" {
				order.ID = id
			}
			out = append(out, order.toDomain())
		}
		return out, nil
	}

	params := url.Values{}
	params.Set("expandSubResources", "true")
	if q.UpdatedSince != nil {
		params.Set("q", fmt.Sprintf("lastModifiedDate AFTER %q", q.UpdatedSince.Format("01/02/2006")))
	}
	if q.PageSize > 0 {
		params.Set("limit", strconv.Itoa(q.PageSize))
	}

	body, err := a.doRequest(ctx, config, http.MethodGet, "/salesOrder", params, nil)
	if err != nil {
		return nil, err
	}

	var resp netsuiteListResponse[netsuiteSalesOrder]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", platform.ErrPlatformInvalidResponse, err)
	}

	out := make([]platform.Order, 0, len(resp.Items))
	for _, order := range resp.Items {
		out = append(out, order.toDomain())
	}
	return out, nil
}

// CreateOrder creates a sales order and returns its internal ID.
func (a *NetSuiteAdapter) CreateOrder(ctx context.Context, userID uuid.UUID, o platform.Order) (string, error) {
	config, err := a.getUserConfig(userID)
	if err != nil {
		return "", err
	}

	body, err := a.doRequest(ctx, config, http.MethodPost, "/salesOrder", nil, netsuiteOrderFromDomain(o))
	if err != nil {
		return "", err
	}

	var created netsuiteSalesOrder
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("%w: %v", platform.ErrPlatformInvalidResponse, err)
	}
	if created.ID == "" {
		return "", platform.ErrPlatformInvalidResponse
	}
	return created.ID, nil
}

// ---------------------------------------------------------------------------
// Customer Operations
// ---------------------------------------------------------------------------

// GetCustomer retrieves one customer by its internal ID.
func (a *NetSuiteAdapter) GetCustomer(ctx context.Context, userID uuid.UUID, customerID string) (*platform.Customer, error) {
	config, err := a.getUserConfig(userID)
	if err != nil {
		return nil, err
	}

	body, err := a.doRequest(ctx, config, http.MethodGet, "/customer/"+customerID, nil, nil)
	if err != nil {
		return nil, err
	}

	var cust netsuiteCustomer
	if err := json.Unmarshal(body, &cust); err != nil {
		return nil, fmt.Errorf("%w: %v", platform.ErrPlatformInvalidResponse, err)
	}
	if cust.ID == "" {
		cust.ID = customerID
	}
	c := cust.toDomain()
	return &c, nil
}

// CreateCustomer creates a customer and returns its internal ID.
func (a *NetSuiteAdapter) CreateCustomer(ctx context.Context, userID uuid.UUID, c platform.Customer) (string, error) {
	config, err := a.getUserConfig(userID)
	if err != nil {
		return "", err
	}

	payload := netsuiteCustomer{Email: c.Email, CompanyName: c.Name}
	body, err := a.doRequest(ctx, config, http.MethodPost, "/customer", nil, payload)
	if err != nil {
		return "", err
	}

	var created netsuiteCustomer
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("%w: %v", platform.ErrPlatformInvalidResponse, err)
	}
	if created.ID == "" {
		return "", platform.ErrPlatformInvalidResponse
	}
	return created.ID, nil
}

// ---------------------------------------------------------------------------
// Internal Helpers
// ---------------------------------------------------------------------------

// doRequest performs an HTTP request against the NetSuite record API and
// maps failures onto the platform error taxonomy.
func (a *NetSuiteAdapter) doRequest(ctx context.Context, config *NetSuiteConfig, method, path string, params url.Values, payload any) ([]byte, error) {
	reqURL := config.BaseURL() + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("netsuite: failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("netsuite: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+config.AccessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", platform.ErrPlatformUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxNetSuiteResponseSize))
	if err != nil {
		return nil, fmt.Errorf("netsuite: failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, platform.ErrRecordNotFound
	}
	if resp.StatusCode >= 400 {
		return nil, &platform.APIError{
			Platform:   platform.CodeNetSuite,
			StatusCode: resp.StatusCode,
			Message:    netsuiteErrorMessage(body),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return body, nil
}

func netsuiteErrorMessage(body []byte) string {
	var nsErr netsuiteError
	if err := json.Unmarshal(body, &nsErr); err == nil {
		if len(nsErr.Errors) > 0 && nsErr.Errors[0].Detail != "" {
			return nsErr.Errors[0].Detail
		}
		if nsErr.Detail != "" {
			return nsErr.Detail
		}
		if nsErr.Title != "" {
			return nsErr.Title
		}
	}
	return strings.TrimSpace(string(body))
}
