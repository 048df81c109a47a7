package catalog

import (
	"context"

	"go.uber.org/zap"
)

type ProductStore interface {
	FindProduct(ctx context.Context, id string) (Product, error)
}

// Cache is a best-effort product cache. Implementations report misses for
// any backend error so reads degrade to the store.
//
// InvalidateProduct advances the product's generation. SetProduct stores p
// only while the generation still equals gen, so a load that raced with an
// invalidation cannot put the old row back.
type Cache interface {
	GetProduct(ctx context.Context, id string) (Product, bool)
	Generation(ctx context.Context, id string) (int64, bool)
	SetProduct(ctx context.Context, p Product, gen int64)
	InvalidateProduct(ctx context.Context, id string)
}

// CachedProducts reads through Cache. Every stock or price write must call
// Invalidate; cached stock is advisory and never used for reservation.
type CachedProducts struct {
	store ProductStore
	cache Cache
	log   *zap.Logger
}

func NewCachedProducts(store ProductStore, cache Cache, log *zap.Logger) *CachedProducts {
	return &CachedProducts{store: store, cache: cache, log: log}
}

func (c *CachedProducts) FindProduct(ctx context.Context, id string) (Product, error) {
	if p, ok := c.cache.GetProduct(ctx, id); ok {
		return p, nil
	}
	// generasi dibaca sebelum load; kalau gagal, hasil load tidak di-cache
	gen, genOK := c.cache.Generation(ctx, id)
	p, err := c.store.FindProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if genOK {
		c.cache.SetProduct(ctx, p, gen)
	}
	return p, nil
}

func (c *CachedProducts) Invalidate(ctx context.Context, id string) {
	c.cache.InvalidateProduct(ctx, id)
	c.log.Debug("product cache invalidated", zap.String("product_id", id))
}
