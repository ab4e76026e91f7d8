package ecommerce

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/syncbridge/backend/internal/domain/platform"
)

// NetSuite REST record API payloads. Record IDs are strings; monetary
// amounts and quantities arrive as JSON numbers.

type netsuiteItem struct {
	ID                string  `json:"id,omitempty"`
	ItemID            string  `json:"itemId"`
	DisplayName       string  `json:"displayName"`
	SalesDescription  string  `json:"salesDescription,omitempty"`
	BasePrice         float64 `json:"basePrice"`
	Currency          string  `json:"currency,omitempty"`
	QuantityAvailable float64 `json:"quantityAvailable"`
	IsInactive        bool    `json:"isInactive"`
	LastModifiedDate  string  `json:"lastModifiedDate,omitempty"`
}

type netsuiteListResponse[T any] struct {
	Count   int  `json:"count"`
	HasMore bool `json:"hasMore"`
	Items   []T  `json:"items"`
}

type netsuiteRef struct {
	ID      string `json:"id"`
	RefName string `json:"refName,omitempty"`
}

type netsuiteOrderLine struct {
	Item     netsuiteRef `json:"item"`
	Quantity float64     `json:"quantity"`
	Rate     float64     `json:"rate"`
}

type netsuiteOrderLines struct {
	Items []netsuiteOrderLine `json:"items"`
}

type netsuiteSalesOrder struct {
	ID       string             `json:"id,omitempty"`
	Entity   netsuiteRef        `json:"entity"`
	Currency netsuiteRef        `json:"currency,omitempty"`
	Total    float64            `json:"total"`
	Item     netsuiteOrderLines `json:"item"`
	TranDate string             `json:"tranDate,omitempty"`
}

type netsuiteCustomer struct {
	ID          string `json:"id,omitempty"`
	Email       string `json:"email"`
	CompanyName string `json:"companyName"`
}

type netsuiteErrorDetail struct {
	Detail string `json:"detail"`
}

type netsuiteError struct {
	Title  string                `json:"title"`
	Detail string                `json:"detail"`
	Errors []netsuiteErrorDetail `json:"o:errorDetails"`
}

func (i netsuiteItem) toDomain() platform.Product {
	out := platform.Product{
		ID:          i.ID,
		SKU:         i.ItemID,
		Name:        i.DisplayName,
		Description: i.SalesDescription,
		Price:       decimal.NewFromFloat(i.BasePrice),
		Currency:    i.Currency,
		Quantity:    decimal.NewFromFloat(i.QuantityAvailable),
		Active:      !i.IsInactive,
	}
	if t, err := time.Parse(time.RFC3339, i.LastModifiedDate); err == nil {
		out.UpdatedAt = t
	}
	return out
}

func netsuiteItemFromDomain(p platform.Product) netsuiteItem {
	price, _ := p.Price.Float64()
	qty, _ := p.Quantity.Float64()
	return netsuiteItem{
		ItemID:            p.SKU,
		DisplayName:       p.Name,
		SalesDescription:  p.Description,
		BasePrice:         price,
		Currency:          p.Currency,
		QuantityAvailable: qty,
		IsInactive:        !p.Active,
	}
}

func (o netsuiteSalesOrder) toDomain() platform.Order {
	out := platform.Order{
		ID:         o.ID,
		CustomerID: o.Entity.ID,
		Currency:   o.Currency.RefName,
		Total:      decimal.NewFromFloat(o.Total),
	}
	if t, err := time.Parse("2006-01-02", o.TranDate); err == nil {
		out.CreatedAt = t
	}
	for _, line := range o.Item.Items {
		out.Lines = append(out.Lines, platform.OrderLine{
			ProductID: line.Item.ID,
			Quantity:  decimal.NewFromFloat(line.Quantity),
			UnitPrice: decimal.NewFromFloat(line.Rate),
		})
	}
	return out
}

func netsuiteOrderFromDomain(o platform.Order) netsuiteSalesOrder {
	total, _ := o.Total.Float64()
	out := netsuiteSalesOrder{
		Entity:   netsuiteRef{ID: o.CustomerID},
		Currency: netsuiteRef{RefName: o.Currency},
		Total:    total,
	}
	if !o.CreatedAt.IsZero() {
		out.TranDate = o.CreatedAt.Format("2006-01-02")
	}
	for _, line := range o.Lines {
		qty, _ := line.Quantity.Float64()
		rate, _ := line.UnitPrice.Float64()
		out.Item.Items = append(out.Item.Items, netsuiteOrderLine{
			Item:     netsuiteRef{ID: line.ProductID},
			Quantity: qty,
			Rate:     rate,
		})
	}
	return out
}

func (c netsuiteCustomer) toDomain() platform.Customer {
	return platform.Customer{
		ID:    c.ID,
		Email: c.Email,
		Name:  c.CompanyName,
	}
}
