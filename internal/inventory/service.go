package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/order-inventory/internal/apperr"
	"github.com/ariefcatur/order-inventory/internal/breaker"
	"github.com/ariefcatur/order-inventory/internal/catalog"
	"github.com/ariefcatur/order-inventory/internal/events"
	"github.com/ariefcatur/order-inventory/internal/retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	// Threshold: stok <= ini memicu LOW_STOCK_ALERT.
	Threshold = 10
	// CriticalThreshold menandai alert procurement sebagai CRITICAL.
	CriticalThreshold = 5
)

var tracer = otel.Tracer("github.com/ariefcatur/order-inventory/internal/inventory")

// StockLedger owns the per-product stock counter. Decrement must be a single
// conditional write: ok is false when stock < amount at the moment of the
// write, and remaining is the value that write produced.
type StockLedger interface {
	Decrement(ctx context.Context, productID string, amount int) (remaining int, ok bool, err error)
	Increment(ctx context.Context, productID string, amount int) (newQuantity int, err error)
	Set(ctx context.Context, productID string, quantity int) (oldQuantity int, err error)
	Read(ctx context.Context, productID string) (catalog.Product, error)
}

type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload any)
}

type CacheInvalidator interface {
	Invalidate(ctx context.Context, productID string)
}

type LowStockLister interface {
	ListLowStock(ctx context.Context, threshold int) ([]catalog.Product, error)
}

// settleTimeout bounds work that must finish after the caller gave up.
const settleTimeout = 10 * time.Second

type Options struct {
	Breaker       breaker.Settings
	RetryAttempts uint64
}

type Service struct {
	ledger   StockLedger
	pub      Publisher
	cache    CacheInvalidator
	lister   LowStockLister
	cb       *breaker.Breaker[bool]
	attempts uint64
	log      *zap.Logger
	now      func() time.Time
}

func NewService(ledger StockLedger, pub Publisher, cache CacheInvalidator, lister LowStockLister, opts Options, log *zap.Logger) *Service {
	if opts.Breaker.Name == "" {
		opts.Breaker.Name = "inventory"
	}
	return &Service{
		ledger:   ledger,
		pub:      pub,
		cache:    cache,
		lister:   lister,
		cb:       breaker.New[bool](opts.Breaker, log),
		attempts: opts.RetryAttempts,
		log:      log,
		now:      time.Now,
	}
}

// Reserve takes qty units of productID. false means not enough stock, or that
// storage is failing and the breaker fell back; neither is an error.
// Unknown products and bad quantities are returned as client errors.
func (s *Service) Reserve(ctx context.Context, productID string, qty int, reason string) (bool, error) {
	if qty < 1 {
		return false, apperr.Invalid("quantity must be at least 1, got %d", qty)
	}
	ctx, span := tracer.Start(ctx, "inventory.Reserve")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID), attribute.Int("quantity", qty))

	ok, err := s.cb.Execute(func() (bool, error) {
		return s.reserve(ctx, productID, qty, reason)
	}, func(cause error) (bool, error) {
		s.log.Warn("reservation degraded to insufficient",
			zap.String("product_id", productID),
			zap.Int("quantity", qty),
			zap.Error(cause),
		)
		span.SetStatus(codes.Error, "reservation fallback")
		return false, nil
	})
	span.SetAttributes(attribute.Bool("reserved", ok))
	return ok, err
}

func (s *Service) reserve(ctx context.Context, productID string, qty int, reason string) (bool, error) {
	p, err := s.read(ctx, productID)
	if err != nil {
		return false, err
	}
	if p.Stock < qty {
		s.log.Debug("insufficient stock, ledger untouched",
			zap.String("product_id", productID), zap.Int("requested", qty), zap.Int("available", p.Stock))
		return false, nil
	}

	remaining, ok, err := s.ledger.Decrement(ctx, productID, qty)
	if err != nil {
		return false, fmt.Errorf("decrement %s: %w", productID, err)
	}
	if !ok {
		// kalah race: baca ulang, coba sekali lagi kalau stok masih cukup
		if p, err = s.read(ctx, productID); err != nil {
			return false, err
		}
		if p.Stock < qty {
			return false, nil
		}
		remaining, ok, err = s.ledger.Decrement(ctx, productID, qty)
		if err != nil {
			return false, fmt.Errorf("decrement %s: %w", productID, err)
		}
		if !ok {
			s.log.Info("reservation lost race twice", zap.String("product_id", productID), zap.Int("requested", qty))
			return false, nil
		}
	}

	s.cache.Invalidate(ctx, productID)
	old := remaining + qty
	s.publishChange(ctx, p, &old, remaining, events.OpDecrease, reason)
	if remaining <= Threshold {
		s.publishLowStock(ctx, p, remaining)
	}
	return true, nil
}

// Release gives qty units back. It is an unconditional add: releasing twice
// adds twice, so an increment whose outcome is unknown is not repeated.
// It runs detached from ctx's deadline. Failures are logged, never returned.
func (s *Service) Release(ctx context.Context, productID string, qty int, reason string) {
	log := s.log.With(zap.String("product_id", productID), zap.Int("quantity", qty), zap.String("reason", reason))
	if qty < 1 {
		log.Warn("release skipped, non-positive quantity")
		return
	}
	// stok harus kembali walau request pemanggil sudah timeout
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "inventory.Release")
	defer span.End()

	newQty, err := retry.WriteValue(ctx, s.attempts, func() (int, error) {
		return s.ledger.Increment(ctx, productID, qty)
	})
	if err != nil {
		span.RecordError(err)
		if apperr.KindOf(err) == apperr.KindNotFound {
			log.Warn("release for unknown product", zap.Error(err))
			return
		}
		log.Error("release failed, stock not restored", zap.Error(err))
		return
	}

	s.cache.Invalidate(ctx, productID)
	p, err := s.read(ctx, productID)
	if err != nil {
		p = catalog.Product{ID: productID}
	}
	old := newQty - qty
	s.publishChange(ctx, p, &old, newQty, events.OpIncrease, reason)
	log.Info("stock released", zap.Int("new_quantity", newQty))
}

// UpdateStock sets an absolute quantity. A LOW_STOCK_ALERT follows only when
// the write crosses the threshold from above.
func (s *Service) UpdateStock(ctx context.Context, productID string, quantity int, reason string) error {
	if quantity < 0 {
		return apperr.Invalid("stock cannot be negative, got %d", quantity)
	}
	ctx, span := tracer.Start(ctx, "inventory.UpdateStock")
	defer span.End()

	old, err := retry.WriteValue(ctx, s.attempts, func() (int, error) {
		return s.ledger.Set(ctx, productID, quantity)
	})
	if err != nil {
		span.RecordError(err)
		if apperr.IsClient(err) {
			return err
		}
		return apperr.Unavailable(err)
	}

	s.cache.Invalidate(ctx, productID)
	p, err := s.read(ctx, productID)
	if err != nil {
		p = catalog.Product{ID: productID}
	}
	s.publishChange(ctx, p, &old, quantity, events.OpSet, reason)
	if quantity <= Threshold && old > Threshold {
		s.publishLowStock(ctx, p, quantity)
	}
	s.log.Info("stock updated",
		zap.String("product_id", productID), zap.Int("old_quantity", old), zap.Int("new_quantity", quantity))
	return nil
}

// Available is the authoritative quantity, read from the ledger.
func (s *Service) Available(ctx context.Context, productID string) (int, error) {
	p, err := s.read(ctx, productID)
	if err != nil {
		return 0, err
	}
	return p.Stock, nil
}

func (s *Service) LowStockProducts(ctx context.Context) ([]catalog.Product, error) {
	s.log.Debug("finding low stock products", zap.Int("threshold", Threshold))
	ps, err := s.lister.ListLowStock(ctx, Threshold)
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	return ps, nil
}

func (s *Service) read(ctx context.Context, productID string) (catalog.Product, error) {
	return retry.Value(ctx, s.attempts, func() (catalog.Product, error) {
		return s.ledger.Read(ctx, productID)
	})
}

func (s *Service) publishChange(ctx context.Context, p catalog.Product, old *int, newQty int, op events.Operation, reason string) {
	s.pub.Publish(ctx, events.TopicInventoryUpdate, p.ID, events.InventoryEvent{
		ProductID:   p.ID,
		ProductName: p.Name,
		SKU:         p.SKU,
		OldQuantity: old,
		NewQuantity: newQty,
		Operation:   op,
		Reason:      reason,
		EventTime:   s.now().UTC(),
	})
}

func (s *Service) publishLowStock(ctx context.Context, p catalog.Product, qty int) {
	s.pub.Publish(ctx, events.TopicLowStockAlert, p.ID, events.InventoryEvent{
		ProductID:   p.ID,
		ProductName: p.Name,
		SKU:         p.SKU,
		NewQuantity: qty,
		Operation:   events.OpLowStockAlert,
		Reason:      fmt.Sprintf("Stock quantity below threshold: %d", Threshold),
		EventTime:   s.now().UTC(),
	})
	s.log.Warn("low stock alert sent", zap.String("sku", p.SKU), zap.Int("units_remaining", qty))
}
