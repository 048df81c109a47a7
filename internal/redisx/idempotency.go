package redisx

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const idemPending = "pending"

// ErrInProgress: request lain dengan key yang sama sedang diproses.
var ErrInProgress = errors.New("request with this idempotency key is in progress")

type Idempotency struct{ rdb redis.Cmdable }

func NewIdempotency(rdb redis.Cmdable) *Idempotency { return &Idempotency{rdb: rdb} }

// Begin claims key. When the key already completed it returns the stored
// order id and claimed=false.
func (i *Idempotency) Begin(ctx context.Context, key string) (orderID string, claimed bool, err error) {
	k := fmt.Sprintf(KeyIdemOrderCreate, key)
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := i.rdb.SetNX(ctx, k, idemPending, TTLIdemPending).Result()
		if err != nil {
			return "", false, err
		}
		if ok {
			return "", true, nil
		}
		v, err := i.rdb.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			continue // expired antara SETNX dan GET
		}
		if err != nil {
			return "", false, err
		}
		if v == idemPending {
			return "", false, ErrInProgress
		}
		return v, false, nil
	}
	return "", false, ErrInProgress
}

func (i *Idempotency) Complete(ctx context.Context, key, orderID string) error {
	return i.rdb.Set(ctx, fmt.Sprintf(KeyIdemOrderCreate, key), orderID, TTLIdempotency).Err()
}

// Abort releases the claim so the client can retry with the same key.
func (i *Idempotency) Abort(ctx context.Context, key string) error {
	return i.rdb.Del(ctx, fmt.Sprintf(KeyIdemOrderCreate, key)).Err()
}

// Dedup remembers processed event ids per consuming service.
type Dedup struct {
	rdb     redis.Cmdable
	service string
}

func NewDedup(rdb redis.Cmdable, service string) *Dedup {
	return &Dedup{rdb: rdb, service: service}
}

// FirstSeen marks id as processed and reports whether this call did it.
func (d *Dedup) FirstSeen(ctx context.Context, id string) (bool, error) {
	return d.rdb.SetNX(ctx, fmt.Sprintf(KeyDedup, d.service, id), "1", TTLDedup).Result()
}

// Forget lets a failed event be processed again on redelivery.
func (d *Dedup) Forget(ctx context.Context, id string) error {
	return d.rdb.Del(ctx, fmt.Sprintf(KeyDedup, d.service, id)).Err()
}
