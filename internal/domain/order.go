package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Address carries the shipping/billing fields synced to the tracking service.
type Address struct {
	Line1       string `json:"addressLine1,omitempty"`
	Line2       string `json:"addressLine2,omitempty"`
	City        string `json:"city,omitempty"`
	Company     string `json:"company,omitempty"`
	CountryCode string `json:"countryIso2,omitempty"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	Postcode    string `json:"postcode,omitempty"`
	State       string `json:"state,omitempty"`
}

// Order is the local view of a host order. The remote id and content hash are
// not part of the row itself; they live in per-order metadata.
type Order struct {
	ID              string    `json:"id"`
	Number          string    `json:"orderNumber"`
	Status          string    `json:"status"`
	ShippingAddress Address   `json:"shippingAddress"`
	BillingAddress  Address   `json:"billingAddress"`
	CreatedAt       time.Time `json:"createdAt"`
}

// OrderItem is a line item scoped to an order.
type OrderItem struct {
	ID       string            `json:"id"`
	OrderID  string            `json:"orderId"`
	Name     string            `json:"name"`
	SKU      string            `json:"sku,omitempty"`
	Options  map[string]string `json:"options,omitempty"`
	ImageURL string            `json:"imageUrl,omitempty"`
	Quantity int               `json:"quantity"`
	Price    decimal.Decimal   `json:"price"`
	Total    decimal.Decimal   `json:"rowTotal"`
}
