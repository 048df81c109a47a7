package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/order-inventory/internal/apperr"
	"github.com/ariefcatur/order-inventory/internal/catalog"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ProductRepo is both the product catalog and the stock ledger. Every stock
// change is a single conditional statement; no read-modify-write in Go.
type ProductRepo struct{ DB DB }

const productCols = `id, sku, name, price::text, stock, status, version, created_at, updated_at`

func scanProduct(row pgx.Row) (catalog.Product, error) {
	var p catalog.Product
	var price, status string
	if err := row.Scan(&p.ID, &p.SKU, &p.Name, &price, &p.Stock, &status, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return catalog.Product{}, err
	}
	var err error
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return catalog.Product{}, fmt.Errorf("product %s price %q: %w", p.ID, price, err)
	}
	p.Status = catalog.ProductStatus(status)
	return p, nil
}

func (r *ProductRepo) Read(ctx context.Context, id string) (catalog.Product, error) {
	if !validID(id) {
		return catalog.Product{}, apperr.ProductNotFound(id)
	}
	p, err := scanProduct(r.DB.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Product{}, apperr.ProductNotFound(id)
	}
	if err != nil {
		return catalog.Product{}, fmt.Errorf("read product %s: %w", id, err)
	}
	return p, nil
}

func (r *ProductRepo) FindProduct(ctx context.Context, id string) (catalog.Product, error) {
	return r.Read(ctx, id)
}

// Decrement: stok hanya berkurang kalau masih cukup, dalam satu statement.
func (r *ProductRepo) Decrement(ctx context.Context, id string, amount int) (int, bool, error) {
	if !validID(id) {
		return 0, false, apperr.ProductNotFound(id)
	}
	var remaining int
	err := r.DB.QueryRow(ctx, `
		UPDATE products SET stock = stock - $2, version = version + 1, updated_at = now()
		WHERE id = $1 AND stock >= $2
		RETURNING stock`, id, amount).Scan(&remaining)
	if err == nil {
		return remaining, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("decrement %s: %w", id, err)
	}

	// tidak ada row ter-update: produk tidak ada atau stok kurang
	var current int
	err = r.DB.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, apperr.ProductNotFound(id)
	}
	if err != nil {
		return 0, false, fmt.Errorf("decrement %s: %w", id, err)
	}
	return current, false, nil
}

func (r *ProductRepo) Increment(ctx context.Context, id string, amount int) (int, error) {
	if !validID(id) {
		return 0, apperr.ProductNotFound(id)
	}
	var n int
	err := r.DB.QueryRow(ctx, `
		UPDATE products SET stock = stock + $2, version = version + 1, updated_at = now()
		WHERE id = $1
		RETURNING stock`, id, amount).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.ProductNotFound(id)
	}
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", id, err)
	}
	return n, nil
}

func (r *ProductRepo) Set(ctx context.Context, id string, qty int) (int, error) {
	if !validID(id) {
		return 0, apperr.ProductNotFound(id)
	}
	var old int
	err := r.DB.QueryRow(ctx, `
		WITH old AS (SELECT id, stock FROM products WHERE id = $1 FOR UPDATE)
		UPDATE products p SET stock = $2, version = p.version + 1, updated_at = now()
		FROM old WHERE p.id = old.id
		RETURNING old.stock`, id, qty).Scan(&old)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.ProductNotFound(id)
	}
	if err != nil {
		return 0, fmt.Errorf("set stock %s: %w", id, err)
	}
	return old, nil
}

func (r *ProductRepo) ListLowStock(ctx context.Context, threshold int) ([]catalog.Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productCols+` FROM products
		WHERE status = 'ACTIVE' AND stock <= $1 ORDER BY stock, sku`, threshold)
	if err != nil {
		return nil, fmt.Errorf("list low stock: %w", err)
	}
	defer rows.Close()

	out := []catalog.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
