package memstore

import (
	"context"
	"sync"

	"github.com/ariefcatur/order-inventory/internal/apperr"
	"github.com/ariefcatur/order-inventory/internal/catalog"
	"github.com/ariefcatur/order-inventory/internal/orders"
)

type Customers struct {
	mu    sync.RWMutex
	items map[string]catalog.Customer
}

func NewCustomers() *Customers {
	return &Customers{items: map[string]catalog.Customer{}}
}

func (s *Customers) Put(c catalog.Customer) {
	s.mu.Lock()
	s.items[c.ID] = c
	s.mu.Unlock()
}

func (s *Customers) FindCustomer(_ context.Context, id string) (catalog.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.items[id]
	if !ok {
		return catalog.Customer{}, apperr.CustomerNotFound(id)
	}
	return c, nil
}

// Orders stores deep copies so callers cannot mutate stored state.
type Orders struct {
	mu    sync.Mutex
	items map[string]orders.Order
}

func NewOrders() *Orders {
	return &Orders{items: map[string]orders.Order{}}
}

func clone(o orders.Order) orders.Order {
	o.Items = append([]orders.LineItem(nil), o.Items...)
	return o
}

func (s *Orders) Create(_ context.Context, o *orders.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[o.ID]; ok {
		return apperr.Conflict("order", o.ID)
	}
	o.Version = 1
	s.items[o.ID] = clone(*o)
	return nil
}

func (s *Orders) Get(_ context.Context, id string) (*orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.items[id]
	if !ok {
		return nil, apperr.OrderNotFound(id)
	}
	c := clone(o)
	return &c, nil
}

func (s *Orders) Update(_ context.Context, o *orders.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.items[o.ID]
	if !ok {
		return apperr.OrderNotFound(o.ID)
	}
	if cur.Version != o.Version {
		return apperr.Conflict("order", o.ID)
	}
	o.Version++
	s.items[o.ID] = clone(*o)
	return nil
}
