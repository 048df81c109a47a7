package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/order-inventory/internal/apperr"
	"github.com/ariefcatur/order-inventory/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

type OrderRepo struct{ DB DB }

const pgUniqueViolation = "23505"

// Create inserts the order and its lines in one transaction.
func (r *OrderRepo) Create(ctx context.Context, o *orders.Order) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, order_number, customer_id, status, total_amount, shipping_cost, tax_amount,
		                   discount_amount, shipping_address, notes, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9, $10, $11, $12, 1)`,
		o.ID, o.OrderNumber, o.CustomerID, string(o.Status),
		o.TotalAmount.String(), o.ShippingCost.String(), o.TaxAmount.String(), o.DiscountAmount.String(),
		o.ShippingAddress, o.Notes, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return apperr.Conflict("order", o.OrderNumber)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	// insert items
	for i, li := range o.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items(id, order_id, product_id, product_name, sku, quantity, unit_price,
			                        discount_amount, subtotal, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9::numeric, $10)`,
			li.ID, o.ID, li.ProductID, li.ProductName, li.SKU, li.Quantity,
			li.UnitPrice.String(), li.DiscountAmount.String(), li.Subtotal.String(), i,
		)
		if err != nil {
			return fmt.Errorf("insert order item %s: %w", li.ProductID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit order: %w", err)
	}
	o.Version = 1
	return nil
}

func (r *OrderRepo) Get(ctx context.Context, id string) (*orders.Order, error) {
	if !validID(id) {
		return nil, apperr.OrderNotFound(id)
	}
	var (
		o                             orders.Order
		status                        string
		total, shipping, tax, discount string
	)
	err := r.DB.QueryRow(ctx, `
		SELECT id, order_number, customer_id, status, total_amount::text, shipping_cost::text, tax_amount::text,
		       discount_amount::text, shipping_address, notes, shipped_at, delivered_at, created_at, updated_at, version
		FROM orders WHERE id = $1`, id).Scan(
		&o.ID, &o.OrderNumber, &o.CustomerID, &status, &total, &shipping, &tax, &discount,
		&o.ShippingAddress, &o.Notes, &o.ShippedAt, &o.DeliveredAt, &o.CreatedAt, &o.UpdatedAt, &o.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.OrderNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	o.Status = orders.Status(status)
	if err := parseDecimals(
		[]string{total, shipping, tax, discount},
		&o.TotalAmount, &o.ShippingCost, &o.TaxAmount, &o.DiscountAmount,
	); err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}

	rows, err := r.DB.Query(ctx, `
		SELECT id, product_id, product_name, sku, quantity, unit_price::text, discount_amount::text, subtotal::text
		FROM order_items WHERE order_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("get order items %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		li := orders.LineItem{OrderID: o.ID}
		var unit, disc, sub string
		if err := rows.Scan(&li.ID, &li.ProductID, &li.ProductName, &li.SKU, &li.Quantity, &unit, &disc, &sub); err != nil {
			return nil, err
		}
		if err := parseDecimals([]string{unit, disc, sub}, &li.UnitPrice, &li.DiscountAmount, &li.Subtotal); err != nil {
			return nil, fmt.Errorf("get order items %s: %w", id, err)
		}
		o.Items = append(o.Items, li)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &o, nil
}

// Update writes status fields when the stored version still matches.
func (r *OrderRepo) Update(ctx context.Context, o *orders.Order) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status = $2, shipped_at = $3, delivered_at = $4, updated_at = $5, version = version + 1
		WHERE id = $1 AND version = $6`,
		o.ID, string(o.Status), o.ShippedAt, o.DeliveredAt, o.UpdatedAt, o.Version,
	)
	if err != nil {
		return fmt.Errorf("update order %s: %w", o.ID, err)
	}
	if ct.RowsAffected() == 1 {
		o.Version++
		return nil
	}

	var exists bool
	if err := r.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, o.ID).Scan(&exists); err != nil {
		return fmt.Errorf("update order %s: %w", o.ID, err)
	}
	if !exists {
		return apperr.OrderNotFound(o.ID)
	}
	return apperr.Conflict("order", o.ID)
}

// NUMERIC dibaca sebagai text supaya presisi tidak hilang.
func parseDecimals(src []string, dst ...*decimal.Decimal) error {
	for i, s := range src {
		v, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("numeric %q: %w", s, err)
		}
		*dst[i] = v
	}
	return nil
}
