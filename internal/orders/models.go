package orders

import (
	"time"

	"github.com/ariefcatur/order-inventory/internal/apperr"
	"github.com/ariefcatur/order-inventory/internal/catalog"
	"github.com/shopspring/decimal"
)

// Order owns its line items by value. TotalAmount is not self-maintaining:
// every mutation of Items or the adjustments goes through AddLineItem,
// SetAdjustments or RecomputeTotal.
type Order struct {
	ID              string          `json:"id"`
	OrderNumber     string          `json:"order_number"`
	CustomerID      string          `json:"customer_id"`
	Status          Status          `json:"status"` // lihat status.go
	Items           []LineItem      `json:"items"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	ShippingCost    decimal.Decimal `json:"shipping_cost"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	ShippingAddress string          `json:"shipping_address,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	ShippedAt       *time.Time      `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time      `json:"delivered_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Version         int64           `json:"version"`
}

// LineItem holds the product key only; UnitPrice is a snapshot taken at
// order time.
type LineItem struct {
	ID             string          `json:"id"`
	OrderID        string          `json:"order_id"`
	ProductID      string          `json:"product_id"`
	ProductName    string          `json:"product_name"`
	SKU            string          `json:"sku"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Subtotal       decimal.Decimal `json:"subtotal"`
}

// SetUnitPrice is the only way to reprice a line; it recomputes Subtotal.
// The owning order still needs RecomputeTotal.
func (li *LineItem) SetUnitPrice(price decimal.Decimal) error {
	if price.LessThan(catalog.MinPrice) {
		return apperr.Invalid("unit price must be at least %s, got %s", catalog.MinPrice, price)
	}
	if li.DiscountAmount.GreaterThan(price.Mul(decimal.NewFromInt(int64(li.Quantity)))) {
		return apperr.Invalid("line discount %s exceeds line amount", li.DiscountAmount)
	}
	li.UnitPrice = price
	li.recomputeSubtotal()
	return nil
}

func (li *LineItem) recomputeSubtotal() {
	li.Subtotal = li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity))).Sub(li.DiscountAmount)
}
