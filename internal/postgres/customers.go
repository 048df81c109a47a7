package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/order-inventory/internal/apperr"
	"github.com/ariefcatur/order-inventory/internal/catalog"
	"github.com/jackc/pgx/v5"
)

type CustomerRepo struct{ DB DB }

func (r *CustomerRepo) FindCustomer(ctx context.Context, id string) (catalog.Customer, error) {
	if !validID(id) {
		return catalog.Customer{}, apperr.CustomerNotFound(id)
	}
	var c catalog.Customer
	err := r.DB.QueryRow(ctx, `SELECT id, email, first_name, last_name FROM customers WHERE id = $1`, id).
		Scan(&c.ID, &c.Email, &c.FirstName, &c.LastName)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Customer{}, apperr.CustomerNotFound(id)
	}
	if err != nil {
		return catalog.Customer{}, fmt.Errorf("find customer %s: %w", id, err)
	}
	return c, nil
}
