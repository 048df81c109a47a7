package catalog

import (
	"strings"
	"time"

	"github.com/ariefcatur/order-inventory/internal/apperr"
	"github.com/shopspring/decimal"
)

type ProductStatus string

const (
	ProductActive       ProductStatus = "ACTIVE"
	ProductDiscontinued ProductStatus = "DISCONTINUED"
)

func ParseProductStatus(s string) (ProductStatus, error) {
	switch ps := ProductStatus(strings.ToUpper(strings.TrimSpace(s))); ps {
	case ProductActive, ProductDiscontinued:
		return ps, nil
	}
	return "", apperr.InvalidStatus(s)
}

// MinPrice is the smallest price a sellable product may carry.
var MinPrice = decimal.RequireFromString("0.01")

type Product struct {
	ID        string          `json:"id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	Status    ProductStatus   `json:"status"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (p Product) Active() bool { return p.Status == ProductActive }

type Customer struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}
