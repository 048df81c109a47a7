package memstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ariefcatur/order-inventory/internal/apperr"
	"github.com/ariefcatur/order-inventory/internal/catalog"
	"github.com/ariefcatur/order-inventory/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecrementNeverOversells(t *testing.T) {
	const stock, callers = 25, 200
	s := NewProducts()
	s.Put(catalog.Product{ID: "p-1", Stock: stock, Status: catalog.ProductActive})

	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.Decrement(context.Background(), "p-1", 1)
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	p, err := s.Read(context.Background(), "p-1")
	require.NoError(t, err)
	assert.EqualValues(t, stock, wins.Load())
	assert.Equal(t, 0, p.Stock)
}

func TestLedgerOperations(t *testing.T) {
	ctx := context.Background()
	s := NewProducts()
	s.Put(catalog.Product{ID: "p-1", Stock: 5, Status: catalog.ProductActive})

	remaining, ok, err := s.Decrement(ctx, "p-1", 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, remaining)

	remaining, ok, err = s.Decrement(ctx, "p-1", 3)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, remaining)

	n, err := s.Increment(ctx, "p-1", 4)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	old, err := s.Set(ctx, "p-1", 40)
	require.NoError(t, err)
	assert.Equal(t, 6, old)

	_, _, err = s.Decrement(ctx, "missing", 1)
	assert.ErrorIs(t, err, apperr.ErrProductNotFound)
	_, err = s.Increment(ctx, "missing", 1)
	assert.ErrorIs(t, err, apperr.ErrProductNotFound)
}

func TestListLowStockSkipsDiscontinued(t *testing.T) {
	s := NewProducts()
	Seed(s, NewCustomers())

	low, err := s.ListLowStock(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, "SKU-CAP", low[0].SKU)
}

func TestOrdersVersionCheck(t *testing.T) {
	ctx := context.Background()
	s := NewOrders()
	o := &orders.Order{ID: "o-1", Status: orders.StatusPending}
	require.NoError(t, s.Create(ctx, o))

	a, err := s.Get(ctx, "o-1")
	require.NoError(t, err)
	b, err := s.Get(ctx, "o-1")
	require.NoError(t, err)

	a.Status = orders.StatusCancelled
	require.NoError(t, s.Update(ctx, a))

	b.Status = orders.StatusCancelled
	assert.ErrorIs(t, s.Update(ctx, b), apperr.ErrConflict)

	_, err = s.Get(ctx, "nope")
	assert.ErrorIs(t, err, apperr.ErrOrderNotFound)
}
