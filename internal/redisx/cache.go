package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ariefcatur/order-inventory/internal/catalog"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// setIfGeneration writes KEYS[2] only while KEYS[1] still holds ARGV[1].
var setIfGeneration = redis.NewScript(`
if (redis.call('GET', KEYS[1]) or '0') ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[2], ARGV[2])
end
return 1
`)

// ProductCache implements catalog.Cache. Redis failures degrade to misses.
type ProductCache struct {
	rdb redis.Cmdable
	ttl time.Duration
	log *zap.Logger
}

func NewProductCache(rdb redis.Cmdable, ttl time.Duration, log *zap.Logger) *ProductCache {
	return &ProductCache{rdb: rdb, ttl: ttl, log: log}
}

func (c *ProductCache) GetProduct(ctx context.Context, id string) (catalog.Product, bool) {
	b, err := c.rdb.Get(ctx, fmt.Sprintf(KeyProduct, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return catalog.Product{}, false
	}
	if err != nil {
		c.log.Warn("product cache read failed", zap.String("product_id", id), zap.Error(err))
		return catalog.Product{}, false
	}
	var p catalog.Product
	if err := json.Unmarshal(b, &p); err != nil {
		c.log.Warn("product cache entry corrupt", zap.String("product_id", id), zap.Error(err))
		return catalog.Product{}, false
	}
	return p, true
}

// Generation reports false when Redis cannot be read; callers then skip the
// write back.
func (c *ProductCache) Generation(ctx context.Context, id string) (int64, bool) {
	gen, err := c.rdb.Get(ctx, fmt.Sprintf(KeyProductGen, id)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	if err != nil {
		c.log.Warn("product cache generation read failed", zap.String("product_id", id), zap.Error(err))
		return 0, false
	}
	return gen, true
}

func (c *ProductCache) SetProduct(ctx context.Context, p catalog.Product, gen int64) {
	b, err := json.Marshal(p)
	if err != nil {
		return
	}
	keys := []string{fmt.Sprintf(KeyProductGen, p.ID), fmt.Sprintf(KeyProduct, p.ID)}
	stored, err := setIfGeneration.Run(ctx, c.rdb, keys, strconv.FormatInt(gen, 10), b, c.ttl.Milliseconds()).Int()
	if err != nil {
		c.log.Warn("product cache write failed", zap.String("product_id", p.ID), zap.Error(err))
		return
	}
	if stored == 0 {
		c.log.Debug("stale product load not cached", zap.String("product_id", p.ID))
	}
}

func (c *ProductCache) InvalidateProduct(ctx context.Context, id string) {
	genKey := fmt.Sprintf(KeyProductGen, id)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, TTLProductGen)
		pipe.Del(ctx, fmt.Sprintf(KeyProduct, id))
		return nil
	})
	if err != nil {
		c.log.Warn("product cache invalidation failed", zap.String("product_id", id), zap.Error(err))
	}
}
