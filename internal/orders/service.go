package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/order-inventory/internal/apperr"
	"github.com/ariefcatur/order-inventory/internal/breaker"
	"github.com/ariefcatur/order-inventory/internal/catalog"
	"github.com/ariefcatur/order-inventory/internal/events"
	"github.com/ariefcatur/order-inventory/internal/retry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/ariefcatur/order-inventory/internal/orders")

// Repository persists orders. Update must fail with apperr Conflict when the
// stored version differs from o.Version, and bumps o.Version on success.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	Update(ctx context.Context, o *Order) error
}

type CustomerLookup interface {
	FindCustomer(ctx context.Context, id string) (catalog.Customer, error)
}

type ProductLookup interface {
	FindProduct(ctx context.Context, id string) (catalog.Product, error)
}

type Inventory interface {
	Reserve(ctx context.Context, productID string, qty int, reason string) (bool, error)
	Release(ctx context.Context, productID string, qty int, reason string)
	Available(ctx context.Context, productID string) (int, error)
}

type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload any)
}

type ItemRequest struct {
	ProductID      string          `json:"product_id"`
	Quantity       int             `json:"quantity"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
}

type CreateOrderRequest struct {
	CustomerID      string          `json:"customer_id"`
	Items           []ItemRequest   `json:"items"`
	ShippingCost    decimal.Decimal `json:"shipping_cost"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	ShippingAddress string          `json:"shipping_address"`
	Notes           string          `json:"notes"`
}

func (r CreateOrderRequest) validate() error {
	if r.CustomerID == "" {
		return apperr.Invalid("customer_id is required")
	}
	if len(r.Items) == 0 {
		return apperr.Invalid("order must contain at least one item")
	}
	for i, it := range r.Items {
		if it.ProductID == "" {
			return apperr.Invalid("items[%d].product_id is required", i)
		}
		if it.Quantity < 1 {
			return apperr.Invalid("items[%d].quantity must be at least 1", i)
		}
		if it.DiscountAmount.IsNegative() {
			return apperr.Invalid("items[%d].discount_amount cannot be negative", i)
		}
	}
	if r.ShippingCost.IsNegative() || r.TaxAmount.IsNegative() || r.DiscountAmount.IsNegative() {
		return apperr.Invalid("shipping_cost, tax_amount and discount_amount cannot be negative")
	}
	return nil
}

// settleTimeout bounds compensation and events after the caller gave up.
const settleTimeout = 10 * time.Second

type Options struct {
	Breaker       breaker.Settings
	RetryAttempts uint64
}

type Service struct {
	repo      Repository
	customers CustomerLookup
	products  ProductLookup
	inventory Inventory
	pub       Publisher
	cb        *breaker.Breaker[*Order]
	attempts  uint64
	log       *zap.Logger
	now       func() time.Time
}

func NewService(repo Repository, customers CustomerLookup, products ProductLookup, inv Inventory, pub Publisher, opts Options, log *zap.Logger) *Service {
	if opts.Breaker.Name == "" {
		opts.Breaker.Name = "orders"
	}
	return &Service{
		repo:      repo,
		customers: customers,
		products:  products,
		inventory: inv,
		pub:       pub,
		cb:        breaker.New[*Order](opts.Breaker, log),
		attempts:  opts.RetryAttempts,
		log:       log,
		now:       time.Now,
	}
}

func NewOrderNumber() string {
	return "ORDER-" + uuid.NewString()[:8]
}

// CreateOrder reserves stock for every item and persists a PENDING order.
// If any item cannot be reserved, the reservations already taken for this
// request are released before the error is returned.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "orders.CreateOrder",
		trace.WithAttributes(attribute.String("customer.id", req.CustomerID), attribute.Int("items", len(req.Items))))
	defer span.End()

	o, err := s.cb.Execute(func() (*Order, error) {
		return s.createOrder(ctx, req)
	}, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.KindOf(err).String())
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", o.ID), attribute.String("order.number", o.OrderNumber))
	return o, nil
}

func (s *Service) createOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	s.log.Info("creating order", zap.String("customer_id", req.CustomerID))

	cust, err := s.customers.FindCustomer(ctx, req.CustomerID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	o := &Order{
		ID:              uuid.NewString(),
		OrderNumber:     NewOrderNumber(),
		CustomerID:      cust.ID,
		Status:          StatusPending,
		ShippingAddress: req.ShippingAddress,
		Notes:           req.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := o.SetAdjustments(req.ShippingCost, req.TaxAmount, req.DiscountAmount); err != nil {
		return nil, err
	}

	reason := "Order: " + o.OrderNumber
	for _, it := range req.Items {
		li, err := s.reserveLine(ctx, it, reason)
		if err != nil {
			cctx, cancel := settle(ctx)
			s.compensate(cctx, o)
			cancel()
			return nil, err
		}
		o.AddLineItem(li)
	}

	if err := retry.Write(ctx, s.attempts, func() error { return s.repo.Create(ctx, o) }); err != nil {
		s.log.Error("order creation failed",
			zap.String("customer_id", req.CustomerID), zap.String("order_number", o.OrderNumber), zap.Error(err))
		if !s.persistedAnyway(ctx, o, err) {
			return nil, err
		}
	}
	s.log.Info("order created",
		zap.String("order_id", o.ID), zap.String("order_number", o.OrderNumber), zap.String("total", o.TotalAmount.String()))

	s.publish(ctx, events.TopicOrderCreated, o, cust.Email)
	return o, nil
}

// persistedAnyway settles a failed Create whose outcome may be unknown (a
// commit whose reply was lost, a deadline hit mid-write). It looks the order
// up on a detached context: found means the write landed; missing means the
// reservations are released. If the lookup fails too, the reservations are
// kept, since releasing stock of an order that exists would oversell.
func (s *Service) persistedAnyway(ctx context.Context, o *Order, createErr error) bool {
	ctx, cancel := settle(ctx)
	defer cancel()

	if apperr.IsClient(createErr) && !errors.Is(createErr, apperr.ErrConflict) {
		s.compensate(ctx, o)
		return false
	}
	stored, err := s.repo.Get(ctx, o.ID)
	switch {
	case err == nil:
		s.log.Warn("order persisted despite create error",
			zap.String("order_id", o.ID), zap.Error(createErr))
		o.Version = stored.Version
		return true
	case apperr.KindOf(err) == apperr.KindNotFound:
		s.compensate(ctx, o)
	default:
		s.log.Error("order outcome unknown, reservations kept",
			zap.String("order_id", o.ID), zap.String("order_number", o.OrderNumber), zap.Error(err))
	}
	return false
}

// settle detaches ctx from its deadline for work that follows a committed
// (or possibly committed) write.
func settle(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
}

func (s *Service) reserveLine(ctx context.Context, it ItemRequest, reason string) (LineItem, error) {
	p, err := s.products.FindProduct(ctx, it.ProductID)
	if err != nil {
		return LineItem{}, err
	}
	li, err := BuildLineItem(p, it.Quantity, it.DiscountAmount)
	if err != nil {
		return LineItem{}, err
	}
	ok, err := s.inventory.Reserve(ctx, p.ID, it.Quantity, reason)
	if err != nil {
		return LineItem{}, err
	}
	if !ok {
		available, aerr := s.inventory.Available(ctx, p.ID)
		if aerr != nil {
			return LineItem{}, apperr.Unavailable(fmt.Errorf("reservation of %s refused, stock unreadable: %w", p.ID, aerr))
		}
		if available >= it.Quantity {
			// fallback breaker inventory, bukan stok habis
			return LineItem{}, apperr.Unavailable(fmt.Errorf("reservation of %s refused with %d available", p.ID, available))
		}
		return LineItem{}, apperr.InsufficientStock(p.ID, it.Quantity, available)
	}
	return li, nil
}

// compensate releases every line already reserved for o.
func (s *Service) compensate(ctx context.Context, o *Order) {
	if len(o.Items) == 0 {
		return
	}
	s.log.Warn("releasing reservations of aborted order",
		zap.String("order_number", o.OrderNumber), zap.Int("lines", len(o.Items)))
	for _, li := range o.Items {
		s.inventory.Release(ctx, li.ProductID, li.Quantity, "Order aborted: "+o.OrderNumber)
	}
}

// UpdateStatus moves an order along the transition table. Cancelling
// releases the stock of every line once the new status is persisted.
func (s *Service) UpdateStatus(ctx context.Context, orderID, status string) (*Order, error) {
	to, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "orders.UpdateStatus",
		trace.WithAttributes(attribute.String("order.id", orderID), attribute.String("order.status", string(to))))
	defer span.End()

	s.log.Info("updating order status", zap.String("order_id", orderID), zap.String("status", string(to)))

	o, err := s.GetOrder(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	from := o.Status
	if !CanTransition(from, to) {
		return nil, apperr.InvalidTransition(string(from), string(to))
	}

	now := s.now().UTC()
	o.Status = to
	o.UpdatedAt = now
	switch to {
	case StatusShipped:
		o.ShippedAt = &now
	case StatusDelivered:
		o.DeliveredAt = &now
	}

	if err := s.repo.Update(ctx, o); err != nil {
		span.RecordError(err)
		return nil, storageErr(err)
	}

	// status sudah tersimpan; sisa langkah tidak boleh ikut timeout pemanggil
	ctx, cancel := settle(ctx)
	defer cancel()

	if to == StatusCancelled {
		for _, li := range o.Items {
			s.inventory.Release(ctx, li.ProductID, li.Quantity, "Order cancelled: "+o.OrderNumber)
		}
	}

	email := ""
	if cust, err := s.customers.FindCustomer(ctx, o.CustomerID); err == nil {
		email = cust.Email
	} else {
		s.log.Warn("customer lookup failed for status event", zap.String("customer_id", o.CustomerID), zap.Error(err))
	}
	s.publish(ctx, events.TopicOrderStatusChanged, o, email)

	s.log.Info("order status changed",
		zap.String("order_number", o.OrderNumber), zap.String("from", string(from)), zap.String("to", string(to)))
	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	o, err := retry.Value(ctx, s.attempts, func() (*Order, error) {
		return s.repo.Get(ctx, orderID)
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return o, nil
}

func (s *Service) publish(ctx context.Context, topic string, o *Order, email string) {
	s.pub.Publish(ctx, topic, o.ID, events.OrderEvent{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		CustomerID:    o.CustomerID,
		CustomerEmail: email,
		Status:        string(o.Status),
		TotalAmount:   o.TotalAmount,
		EventTime:     s.now().UTC(),
	})
}

func storageErr(err error) error {
	if apperr.IsClient(err) || errors.Is(err, context.Canceled) {
		return err
	}
	return apperr.Unavailable(err)
}
