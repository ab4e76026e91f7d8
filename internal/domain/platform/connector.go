package platform

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Record value objects
// ---------------------------------------------------------------------------

// Product is the platform-neutral view of a catalog record.
type Product struct {
	// ID is the record ID on the owning platform
	ID string
	// SKU is the merchant SKU, shared vocabulary between both systems
	SKU         string
	Name        string
	Description string
	Price       decimal.Decimal
	Currency    string
	// Quantity is the available stock quantity carried with the product view
	Quantity decimal.Decimal
	Active   bool
	// UpdatedAt is the platform-side last modification time
	UpdatedAt time.Time
}

// Fields returns the product as a field map, used for diff-based updates
// and snapshot payloads.
func (p Product) Fields() map[string]any {
	return map[string]any{
		"sku":         p.SKU,
		"name":        p.Name,
		"description": p.Description,
		"price":       p.Price.String(),
		"currency":    p.Currency,
		"quantity":    p.Quantity.String(),
		"active":      p.Active,
	}
}

// InventoryLevel is a stock quantity for one product on one platform.
type InventoryLevel struct {
	ProductID string
	SKU       string
	Quantity  decimal.Decimal
	UpdatedAt time.Time
}

// Order is the platform-neutral view of a sales order.
type Order struct {
	ID         string
	CustomerID string
	Currency   string
	Total      decimal.Decimal
	Lines      []OrderLine
	CreatedAt  time.Time
}

// OrderLine is one line item of an order.
type OrderLine struct {
	ProductID string
	SKU       string
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// Customer is the platform-neutral view of a customer record.
type Customer struct {
	ID    string
	Email string
	Name  string
}

// ListQuery narrows a candidate listing to explicit IDs or a
// changed-since cursor. Zero value lists everything.
type ListQuery struct {
	IDs          []string
	UpdatedSince *time.Time
	Page         int
	PageSize     int
}

// ---------------------------------------------------------------------------
// Connector port
// ---------------------------------------------------------------------------

// Connector is the port interface to one platform's REST client. Concrete
// adapters (Shopify, NetSuite) live in the infrastructure layer; the engine
// only ever talks to them through the rate gate and batch runner.
type Connector interface {
	// Code returns the platform this connector talks to
	Code() Code

	// Product operations
	ListProducts(ctx context.Context, userID uuid.UUID, q ListQuery) ([]Product, error)
	GetProduct(ctx context.Context, userID uuid.UUID, productID string) (*Product, error)
	CreateProduct(ctx context.Context, userID uuid.UUID, p Product) (string, error)
	UpdateProduct(ctx context.Context, userID uuid.UUID, productID string, fields map[string]any) error

	// Inventory operations
	ListInventory(ctx context.Context, userID uuid.UUID, q ListQuery) ([]InventoryLevel, error)
	SetInventoryLevel(ctx context.Context, userID uuid.UUID, productID string, quantity decimal.Decimal) error

	// Order operations
	ListOrders(ctx context.Context, userID uuid.UUID, q ListQuery) ([]Order, error)
	CreateOrder(ctx context.Context, userID uuid.UUID, o Order) (string, error)

	// Customer operations
	GetCustomer(ctx context.Context, userID uuid.UUID, customerID string) (*Customer, error)
	CreateCustomer(ctx context.Context, userID uuid.UUID, c Customer) (string, error)
}

// Registry provides access to configured platform connectors.
type Registry interface {
	// Get returns the connector for the specified code
	Get(code Code) (Connector, error)
	// List returns all registered connectors
	List() []Connector
}

// CurrencyConverter converts monetary amounts between platform currencies.
// Conversion rules are an external collaborator; the engine consumes this
// as a pure function.
type CurrencyConverter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}
