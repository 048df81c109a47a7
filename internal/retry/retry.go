// Package retry bounds retries of transient infrastructure failures.
package retry

import (
	"context"
	"time"

	"github.com/ariefcatur/order-inventory/internal/apperr"
	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
)

// InitialInterval is the first backoff delay; tests shrink it.
var InitialInterval = 50 * time.Millisecond

func newBackOff(ctx context.Context, attempts uint64) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = InitialInterval
	eb.MaxInterval = time.Second
	eb.MaxElapsedTime = 5 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(eb, attempts), ctx)
}

// Do runs op up to attempts+1 times with exponential backoff. Client errors
// stop the loop immediately.
func Do(ctx context.Context, attempts uint64, op func() error) error {
	return backoff.Retry(func() error {
		return permanentIfClient(op())
	}, newBackOff(ctx, attempts))
}

func Value[T any](ctx context.Context, attempts uint64, op func() (T, error)) (T, error) {
	return backoff.RetryWithData(func() (T, error) {
		v, err := op()
		return v, permanentIfClient(err)
	}, newBackOff(ctx, attempts))
}

// Write is Do for operations that are not idempotent. A failed attempt is
// repeated only when its error proves nothing reached the server
// (pgconn.SafeToRetry); an ambiguous failure may have been applied and is
// returned as is.
func Write(ctx context.Context, attempts uint64, op func() error) error {
	return backoff.Retry(func() error {
		return permanentUnlessUnsent(op())
	}, newBackOff(ctx, attempts))
}

func WriteValue[T any](ctx context.Context, attempts uint64, op func() (T, error)) (T, error) {
	return backoff.RetryWithData(func() (T, error) {
		v, err := op()
		return v, permanentUnlessUnsent(err)
	}, newBackOff(ctx, attempts))
}

func permanentUnlessUnsent(err error) error {
	if err != nil && !pgconn.SafeToRetry(err) {
		return backoff.Permanent(err)
	}
	return err
}

func permanentIfClient(err error) error {
	if err != nil && apperr.IsClient(err) {
		return backoff.Permanent(err)
	}
	return err
}
