package memstore

import (
	"time"

	"github.com/ariefcatur/order-inventory/internal/catalog"
	"github.com/shopspring/decimal"
)

// Seed loads a small demo catalog.
func Seed(products *Products, customers *Customers) {
	now := time.Now().UTC()
	for _, p := range []catalog.Product{
		{ID: "11111111-1111-1111-1111-111111111111", SKU: "SKU-MUG", Name: "Coffee Mug", Price: decimal.RequireFromString("9.99"), Stock: 50},
		{ID: "22222222-2222-2222-2222-222222222222", SKU: "SKU-TEE", Name: "T-Shirt", Price: decimal.RequireFromString("19.50"), Stock: 12},
		{ID: "33333333-3333-3333-3333-333333333333", SKU: "SKU-CAP", Name: "Baseball Cap", Price: decimal.RequireFromString("14.00"), Stock: 4},
		{ID: "44444444-4444-4444-4444-444444444444", SKU: "SKU-OLD", Name: "Legacy Poster", Price: decimal.RequireFromString("5.00"), Stock: 3, Status: catalog.ProductDiscontinued},
	} {
		if p.Status == "" {
			p.Status = catalog.ProductActive
		}
		p.Version = 1
		p.CreatedAt, p.UpdatedAt = now, now
		products.Put(p)
	}
	customers.Put(catalog.Customer{ID: "c0ffee00-0000-0000-0000-000000000001", Email: "ada@example.com", FirstName: "Ada", LastName: "Lovelace"})
	customers.Put(catalog.Customer{ID: "c0ffee00-0000-0000-0000-000000000002", Email: "alan@example.com", FirstName: "Alan", LastName: "Turing"})
}
