package ecommerce

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/syncbridge/backend/internal/domain/platform"
)

// Shopify Admin REST API payloads. Monetary amounts arrive as decimal
// strings; record IDs are numeric.

type shopifyProduct struct {
	ID        int64            `json:"id,omitempty"`
	Title     string           `json:"title"`
	BodyHTML  string           `json:"body_html"`
	Status    string           `json:"status"`
	UpdatedAt time.Time        `json:"updated_at,omitempty"`
	Variants  []shopifyVariant `json:"variants"`
}

type shopifyVariant struct {
	ID                int64  `json:"id,omitempty"`
	SKU               string `json:"sku"`
	Price             string `json:"price"`
	InventoryQuantity int64  `json:"inventory_quantity"`
}

type shopifyProductEnvelope struct {
	Product shopifyProduct `json:"product"`
}

type shopifyProductListEnvelope struct {
	Products []shopifyProduct `json:"products"`
}

type shopifyOrder struct {
	ID         int64             `json:"id,omitempty"`
	Customer   *shopifyCustomer  `json:"customer,omitempty"`
	Currency   string            `json:"currency"`
	TotalPrice string            `json:"total_price"`
	LineItems  []shopifyLineItem `json:"line_items"`
	CreatedAt  time.Time         `json:"created_at,omitempty"`
}

type shopifyLineItem struct {
	ProductID int64  `json:"product_id,omitempty"`
	SKU       string `json:"sku"`
	Quantity  int64  `json:"quantity"`
	Price     string `json:"price"`
}

type shopifyOrderEnvelope struct {
	Order shopifyOrder `json:"order"`
}

type shopifyOrderListEnvelope struct {
	Orders []shopifyOrder `json:"orders"`
}

type shopifyCustomer struct {
	ID        int64  `json:"id,omitempty"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type shopifyCustomerEnvelope struct {
	Customer shopifyCustomer `json:"customer"`
}

type shopifyErrorEnvelope struct {
	Errors any `json:"errors"`
}

func (p shopifyProduct) toDomain() platform.Product {
	out := platform.Product{
		ID:          strconv.FormatInt(p.ID, 10),
		Name:        p.Title,
		Description: p.BodyHTML,
		Active:      p.Status == "active",
		UpdatedAt:   p.UpdatedAt,
	}
	if len(p.Variants) > 0 {
		v := p.Variants[0]
		out.SKU = v.SKU
		out.Quantity = decimal.NewFromInt(v.InventoryQuantity)
		if d, err := decimal.NewFromString(v.Price); err == nil {
			out.Price = d
		}
	}
	return out
}

func shopifyProductFromDomain(p platform.Product) shopifyProduct {
	status := "draft"
	if p.Active {
		status = "active"
	}
	return shopifyProduct{
		Title:    p.Name,
		BodyHTML: p.Description,
		Status:   status,
		Variants: []shopifyVariant{{
			SKU:               p.SKU,
			Price:             p.Price.String(),
			InventoryQuantity: p.Quantity.IntPart(),
		}},
	}
}

func (o shopifyOrder) toDomain() platform.Order {
	out := platform.Order{
		ID:        strconv.FormatInt(o.ID, 10),
		Currency:  o.Currency,
		CreatedAt: o.CreatedAt,
	}
	if o.Customer != nil {
		out.CustomerID = strconv.FormatInt(o.Customer.ID, 10)
	}
	if d, err := decimal.NewFromString(o.TotalPrice); err == nil {
		out.Total = d
	}
	for _, li := range o.LineItems {
		line := platform.OrderLine{
			ProductID: strconv.FormatInt(li.ProductID, 10),
			SKU:       li.SKU,
			Quantity:  decimal.NewFromInt(li.Quantity),
		}
		if d, err := decimal.NewFromString(li.Price); err == nil {
			line.UnitPrice = d
		}
		out.Lines = append(out.Lines, line)
	}
	return out
}

func shopifyOrderFromDomain(o platform.Order) shopifyOrder {
	out := shopifyOrder{
		Currency:   o.Currency,
		TotalPrice: o.Total.String(),
	}
	if id, err := strconv.ParseInt(o.CustomerID, 10, 64); err == nil {
		out.Customer = &shopifyCustomer{ID: id}
	}
	for _, line := range o.Lines {
		item := shopifyLineItem{
			SKU:      line.SKU,
			Quantity: line.Quantity.IntPart(),
			Price:    line.UnitPrice.String(),
		}
		if id, err := strconv.ParseInt(line.ProductID, 10, 64); err == nil {
			item.ProductID = id
		}
		out.LineItems = append(out.LineItems, item)
	}
	return out
}

func (c shopifyCustomer) toDomain() platform.Customer {
	name := c.FirstName
	if c.LastName != "" {
		if name != "" {
			name += " "
		}
		name += c.LastName
	}
	return platform.Customer{
		ID:    strconv.FormatInt(c.ID, 10),
		Email: c.Email,
		Name:  name,
	}
}
