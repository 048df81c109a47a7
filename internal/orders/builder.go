package orders

import (
	"github.com/ariefcatur/order-inventory/internal/apperr"
	"github.com/ariefcatur/order-inventory/internal/catalog"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BuildLineItem prices a line at the product's current price. The stock
// check here is advisory; the ledger's conditional decrement is what actually
// enforces availability.
func BuildLineItem(p catalog.Product, qty int, discount decimal.Decimal) (LineItem, error) {
	if p.ID == "" {
		return LineItem{}, apperr.ErrProductNotFound
	}
	if !p.Active() {
		return LineItem{}, apperr.ProductDiscontinued(p.ID)
	}
	if qty < 1 {
		return LineItem{}, apperr.Invalid("quantity for product %s must be at least 1, got %d", p.ID, qty)
	}
	if discount.IsNegative() {
		return LineItem{}, apperr.Invalid("discount for product %s cannot be negative", p.ID)
	}
	if qty > p.Stock {
		return LineItem{}, apperr.InsufficientStock(p.ID, qty, p.Stock)
	}

	li := LineItem{
		ID:             uuid.NewString(),
		ProductID:      p.ID,
		ProductName:    p.Name,
		SKU:            p.SKU,
		Quantity:       qty,
		DiscountAmount: discount,
	}
	if err := li.SetUnitPrice(p.Price); err != nil {
		return LineItem{}, err
	}
	return li, nil
}

// RecomputeTotal sets TotalAmount = Σ subtotal + shipping + tax − discount.
func RecomputeTotal(o *Order) *Order {
	total := decimal.Zero
	for _, li := range o.Items {
		total = total.Add(li.Subtotal)
	}
	o.TotalAmount = total.Add(o.ShippingCost).Add(o.TaxAmount).Sub(o.DiscountAmount)
	return o
}

func (o *Order) AddLineItem(li LineItem) {
	li.OrderID = o.ID
	o.Items = append(o.Items, li)
	RecomputeTotal(o)
}

func (o *Order) SetAdjustments(shipping, tax, discount decimal.Decimal) error {
	if shipping.IsNegative() || tax.IsNegative() || discount.IsNegative() {
		return apperr.Invalid("shipping, tax and discount cannot be negative")
	}
	o.ShippingCost = shipping
	o.TaxAmount = tax
	o.DiscountAmount = discount
	RecomputeTotal(o)
	return nil
}
