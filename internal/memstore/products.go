// Package memstore keeps catalog, stock and orders in process memory. It
// backs STORE=memory for local runs and the concurrency tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ariefcatur/order-inventory/internal/apperr"
	"github.com/ariefcatur/order-inventory/internal/catalog"
)

type productRecord struct {
	product catalog.Product // Stock di sini diabaikan, pakai counter
	stock   atomic.Int64
	version atomic.Int64
}

func (r *productRecord) snapshot() catalog.Product {
	p := r.product
	p.Stock = int(r.stock.Load())
	p.Version = r.version.Load()
	return p
}

// Products is a product catalog plus a lock-free stock ledger. The map lock
// only guards membership; stock moves by compare-and-swap.
type Products struct {
	mu    sync.RWMutex
	items map[string]*productRecord
	now   func() time.Time
}

func NewProducts() *Products {
	return &Products{items: map[string]*productRecord{}, now: time.Now}
}

func (s *Products) Put(p catalog.Product) {
	r := &productRecord{product: p}
	r.stock.Store(int64(p.Stock))
	r.version.Store(p.Version)
	s.mu.Lock()
	s.items[p.ID] = r
	s.mu.Unlock()
}

func (s *Products) record(id string) (*productRecord, error) {
	s.mu.RLock()
	r, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, apperr.ProductNotFound(id)
	}
	return r, nil
}

func (s *Products) Decrement(_ context.Context, id string, amount int) (int, bool, error) {
	r, err := s.record(id)
	if err != nil {
		return 0, false, err
	}
	for {
		cur := r.stock.Load()
		if cur < int64(amount) {
			return int(cur), false, nil
		}
		if r.stock.CompareAndSwap(cur, cur-int64(amount)) {
			r.version.Add(1)
			return int(cur) - amount, true, nil
		}
	}
}

func (s *Products) Increment(_ context.Context, id string, amount int) (int, error) {
	r, err := s.record(id)
	if err != nil {
		return 0, err
	}
	n := r.stock.Add(int64(amount))
	r.version.Add(1)
	return int(n), nil
}

func (s *Products) Set(_ context.Context, id string, qty int) (int, error) {
	r, err := s.record(id)
	if err != nil {
		return 0, err
	}
	old := r.stock.Swap(int64(qty))
	r.version.Add(1)
	return int(old), nil
}

func (s *Products) Read(_ context.Context, id string) (catalog.Product, error) {
	r, err := s.record(id)
	if err != nil {
		return catalog.Product{}, err
	}
	return r.snapshot(), nil
}

func (s *Products) FindProduct(ctx context.Context, id string) (catalog.Product, error) {
	return s.Read(ctx, id)
}

// ListLowStock returns active products at or below threshold, lowest first.
func (s *Products) ListLowStock(_ context.Context, threshold int) ([]catalog.Product, error) {
	s.mu.RLock()
	out := make([]catalog.Product, 0)
	for _, r := range s.items {
		p := r.snapshot()
		if p.Active() && p.Stock <= threshold {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Stock != out[j].Stock {
			return out[i].Stock < out[j].Stock
		}
		return out[i].SKU < out[j].SKU
	})
	return out, nil
}
