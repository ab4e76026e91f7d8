package ecommerce

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/syncbridge/backend/internal/domain/platform"
)

// MemoryConnector is an in-memory platform.Connector. It backs tests and
// the local development mode where no real storefront or ERP credentials
// are configured.
type MemoryConnector struct {
	code platform.Code

	mu        sync.RWMutex
	products  map[uuid.UUID]map[string]platform.Product
	orders    map[uuid.UUID]map[string]platform.Order
	customers map[uuid.UUID]map[string]platform.Customer
	nextID    int
	calls     map[string]int
	failures  map[string]error
}

// NewMemoryConnector creates an empty in-memory connector for one platform.
func NewMemoryConnector(code platform.Code) *MemoryConnector {
	return &MemoryConnector{
		code:      code,
		products:  make(map[uuid.UUID]map[string]platform.Product),
		orders:    make(map[uuid.UUID]map[string]platform.Order),
		customers: make(map[uuid.UUID]map[string]platform.Customer),
		calls:     make(map[string]int),
		failures:  make(map[string]error),
	}
}

// Code returns the platform this connector emulates.
func (c *MemoryConnector) Code() platform.Code {
	return c.code
}

// SeedProduct inserts a product record, assigning an ID when none is set.
func (c *MemoryConnector) SeedProduct(userID uuid.UUID, p platform.Product) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.ID == "" {
		p.ID = c.newID("prod")
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	c.userProducts(userID)[p.ID] = p
	return p.ID
}

// SeedOrder inserts an order record, assigning an ID when none is set.
func (c *MemoryConnector) SeedOrder(userID uuid.UUID, o platform.Order) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if o.ID == "" {
		o.ID = c.newID("ord")
	}
	c.userOrders(userID)[o.ID] = o
	return o.ID
}

// SeedCustomer inserts a customer record, assigning an ID when none is set.
func (c *MemoryConnector) SeedCustomer(userID uuid.UUID, cust platform.Customer) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cust.ID == "" {
		cust.ID = c.newID("cust")
	}
	c.userCustomers(userID)[cust.ID] = cust
	return cust.ID
}

// FailWith makes the named operation return err on every call until reset
// with a nil err.
func (c *MemoryConnector) FailWith(operation string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.failures, operation)
		return
	}
	c.failures[operation] = err
}

// CallCount reports how many times the named operation was invoked.
func (c *MemoryConnector) CallCount(operation string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.calls[operation]
}

// ProductByID returns a stored product copy for assertions.
func (c *MemoryConnector) ProductByID(userID uuid.UUID, productID string) (platform.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.userProducts(userID)[productID]
	return p, ok
}

// OrderByID returns a stored order copy for assertions.
func (c *MemoryConnector) OrderByID(userID uuid.UUID, orderID string) (platform.Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.userOrders(userID)[orderID]
	return o, ok
}

func (c *MemoryConnector) ListProducts(ctx context.Context, userID uuid.UUID, q platform.ListQuery) ([]platform.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("ListProducts"); err != nil {
		return nil, err
	}
	var out []platform.Product
	for _, p := range c.userProducts(userID) {
		if !matchesQuery(p.ID, p.UpdatedAt, q) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *MemoryConnector) GetProduct(ctx context.Context, userID uuid.UUID, productID string) (*platform.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("GetProduct"); err != nil {
		return nil, err
	}
	p, ok := c.userProducts(userID)[productID]
	if !ok {
		return nil, platform.ErrRecordNotFound
	}
	return &p, nil
}

func (c *MemoryConnector) CreateProduct(ctx context.Context, userID uuid.UUID, p platform.Product) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("CreateProduct"); err != nil {
		return "", err
	}
	p.ID = c.newID("prod")
	p.UpdatedAt = time.Now()
	c.userProducts(userID)[p.ID] = p
	return p.ID, nil
}

func (c *MemoryConnector) UpdateProduct(ctx context.Context, userID uuid.UUID, productID string, fields map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("UpdateProduct"); err != nil {
		return err
	}
	p, ok := c.userProducts(userID)[productID]
	if !ok {
		return platform.ErrRecordNotFound
	}
	if err := applyProductFields(&p, fields); err != nil {
		return err
	}
	p.UpdatedAt = time.Now()
	c.userProducts(userID)[productID] = p
	return nil
}

func (c *MemoryConnector) ListInventory(ctx context.Context, userID uuid.UUID, q platform.ListQuery) ([]platform.InventoryLevel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("ListInventory"); err != nil {
		return nil, err
	}
	var out []platform.InventoryLevel
	for _, p := range c.userProducts(userID) {
		if !matchesQuery(p.ID, p.UpdatedAt, q) {
			continue
		}
		out = append(out, platform.InventoryLevel{
			ProductID: p.ID,
			SKU:       p.SKU,
			Quantity:  p.Quantity,
			UpdatedAt: p.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (c *MemoryConnector) SetInventoryLevel(ctx context.Context, userID uuid.UUID, productID string, quantity decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("SetInventoryLevel"); err != nil {
		return err
	}
	p, ok := c.userProducts(userID)[productID]
	if !ok {
		return platform.ErrRecordNotFound
	}
	p.Quantity = quantity
	p.UpdatedAt = time.Now()
	c.userProducts(userID)[productID] = p
	return nil
}

func (c *MemoryConnector) ListOrders(ctx context.Context, userID uuid.UUID, q platform.ListQuery) ([]platform.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("ListOrders"); err != nil {
		return nil, err
	}
	var out []platform.Order
	for _, o := range c.userOrders(userID) {
		if !matchesQuery(o.ID, o.CreatedAt, q) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *MemoryConnector) CreateOrder(ctx context.Context, userID uuid.UUID, o platform.Order) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("CreateOrder"); err != nil {
		return "", err
	}
	o.ID = c.newID("ord")
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	c.userOrders(userID)[o.ID] = o
	return o.ID, nil
}

func (c *MemoryConnector) GetCustomer(ctx context.Context, userID uuid.UUID, customerID string) (*platform.Customer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("GetCustomer"); err != nil {
		return nil, err
	}
	cust, ok := c.userCustomers(userID)[customerID]
	if !ok {
		return nil, platform.ErrRecordNotFound
	}
	return &cust, nil
}

func (c *MemoryConnector) CreateCustomer(ctx context.Context, userID uuid.UUID, cust platform.Customer) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("CreateCustomer"); err != nil {
		return "", err
	}
	cust.ID = c.newID("cust")
	c.userCustomers(userID)[cust.ID] = cust
	return cust.ID, nil
}

// enter records a call and returns the injected failure, if any.
// Callers hold the write lock.
func (c *MemoryConnector) enter(operation string) error {
	c.calls[operation]++
	if err, ok := c.failures[operation]; ok {
		return err
	}
	return nil
}

func (c *MemoryConnector) newID(prefix string) string {
	c.nextID++
	return prefix + "-" + strconv.Itoa(c.nextID)
}

func (c *MemoryConnector) userProducts(userID uuid.UUID) map[string]platform.Product {
	if c.products[userID] == nil {
		c.products[userID] = make(map[string]platform.Product)
	}
	return c.products[userID]
}

func (c *MemoryConnector) userOrders(userID uuid.UUID) map[string]platform.Order {
	if c.orders[userID] == nil {
		c.orders[userID] = make(map[string]platform.Order)
	}
	return c.orders[userID]
}

func (c *MemoryConnector) userCustomers(userID uuid.UUID) map[string]platform.Customer {
	if c.customers[userID] == nil {
		c.customers[userID] = make(map[string]platform.Customer)
	}
	return c.customers[userID]
}

func matchesQuery(id string, updatedAt time.Time, q platform.ListQuery) bool {
	if len(q.IDs) > 0 {
		found := false
		for _, want := range q.IDs {
			if want == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.UpdatedSince != nil && !updatedAt.After(*q.UpdatedSince) {
		return false
	}
	return true
}

// applyProductFields patches a product from a partial field map. Values
// arrive as the JSON-decoded forms of platform.Product.Fields.
func applyProductFields(p *platform.Product, fields map[string]any) error {
	for key, value := range fields {
		switch key {
		case "sku":
			p.SKU = fmt.Sprintf("%v", value)
		case "name":
			p.Name = fmt.Sprintf("%v", value)
		case "description":
			p.Description = fmt.Sprintf("%v", value)
		case "currency":
			p.Currency = fmt.Sprintf("%v", value)
		case "price":
			d, err := decimal.NewFromString(fmt.Sprintf("%v", value))
			if err != nil {
				return fmt.Errorf("invalid price %q: %w", value, err)
			}
			p.Price = d
		case "quantity":
			d, err := decimal.NewFromString(fmt.Sprintf("%v", value))
			if err != nil {
				return fmt.Errorf("invalid quantity %q: %w", value, err)
			}
			p.Quantity = d
		case "active":
			b, ok := value.(bool)
			if !ok {
				return fmt.Errorf("invalid active flag %v", value)
			}
			p.Active = b
		default:
			return fmt.Errorf("unknown product field %q", key)
		}
	}
	return nil
}
