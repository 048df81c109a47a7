package inventory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ariefcatur/order-inventory/internal/apperr"
	"github.com/ariefcatur/order-inventory/internal/breaker"
	"github.com/ariefcatur/order-inventory/internal/catalog"
	"github.com/ariefcatur/order-inventory/internal/events"
	"github.com/ariefcatur/order-inventory/internal/memstore"
	"github.com/ariefcatur/order-inventory/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func init() { retry.InitialInterval = time.Millisecond }

type published struct {
	topic string
	ev    events.InventoryEvent
}

type recorder struct {
	mu   sync.Mutex
	sent []published
}

func (r *recorder) Publish(_ context.Context, topic, _ string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, published{topic: topic, ev: payload.(events.InventoryEvent)})
}

func (r *recorder) ops() []events.Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Operation, 0, len(r.sent))
	for _, p := range r.sent {
		out = append(out, p.ev.Operation)
	}
	return out
}

type invalidations struct{ ids []string }

func (c *invalidations) Invalidate(_ context.Context, id string) { c.ids = append(c.ids, id) }

func newStore(stock int) *memstore.Products {
	s := memstore.NewProducts()
	s.Put(catalog.Product{ID: "p-1", SKU: "SKU-1", Name: "Widget", Stock: stock, Status: catalog.ProductActive})
	return s
}

func newService(ledger StockLedger, lister LowStockLister, log *zap.Logger) (*Service, *recorder, *invalidations) {
	pub := &recorder{}
	inv := &invalidations{}
	svc := NewService(ledger, pub, inv, lister, Options{
		Breaker:       breaker.Settings{MinRequests: 3, FailureRatio: 0.5, OpenTimeout: time.Minute},
		RetryAttempts: 1,
	}, log)
	return svc, pub, inv
}

func stockOf(t *testing.T, s StockLedger) int {
	t.Helper()
	p, err := s.Read(context.Background(), "p-1")
	require.NoError(t, err)
	return p.Stock
}

func TestReserveThenInsufficient(t *testing.T) {
	store := newStore(5)
	svc, pub, inv := newService(store, store, zap.NewNop())
	ctx := context.Background()

	ok, err := svc.Reserve(ctx, "p-1", 3, "Order: A")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, stockOf(t, store))

	ok, err = svc.Reserve(ctx, "p-1", 3, "Order: B")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, stockOf(t, store))

	require.Len(t, pub.sent, 2, "DECREASE plus LOW_STOCK_ALERT for the first call only")
	dec := pub.sent[0].ev
	assert.Equal(t, events.OpDecrease, dec.Operation)
	assert.Equal(t, 5, *dec.OldQuantity)
	assert.Equal(t, 2, dec.NewQuantity)
	assert.Equal(t, "Order: A", dec.Reason)
	assert.Equal(t, []string{"p-1"}, inv.ids)
}

func TestReserveLowStockAlertCrossing(t *testing.T) {
	store := newStore(11)
	svc, pub, _ := newService(store, store, zap.NewNop())

	ok, err := svc.Reserve(context.Background(), "p-1", 2, "Order: A")
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, []events.Operation{events.OpDecrease, events.OpLowStockAlert}, pub.ops())
	alert := pub.sent[1]
	assert.Equal(t, events.TopicLowStockAlert, alert.topic)
	assert.Nil(t, alert.ev.OldQuantity)
	assert.Equal(t, 9, alert.ev.NewQuantity)
}

func TestReserveAboveThresholdHasNoAlert(t *testing.T) {
	store := newStore(20)
	svc, pub, _ := newService(store, store, zap.NewNop())

	ok, err := svc.Reserve(context.Background(), "p-1", 5, "Order: A")
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, []events.Operation{events.OpDecrease}, pub.ops())
	assert.Equal(t, 15, stockOf(t, store))
}

type countingLedger struct {
	StockLedger
	decrements atomic.Int32
	lose       atomic.Int32 // number of Decrement calls to report as lost races
}

func (l *countingLedger) Decrement(ctx context.Context, id string, amount int) (int, bool, error) {
	l.decrements.Add(1)
	if l.lose.Load() > 0 {
		l.lose.Add(-1)
		return 0, false, nil
	}
	return l.StockLedger.Decrement(ctx, id, amount)
}

func TestReservePreCheckSkipsLedgerWrite(t *testing.T) {
	ledger := &countingLedger{StockLedger: newStore(2)}
	svc, pub, _ := newService(ledger, nil, zap.NewNop())

	ok, err := svc.Reserve(context.Background(), "p-1", 3, "Order: A")

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, ledger.decrements.Load())
	assert.Equal(t, 2, stockOf(t, ledger))
	assert.Empty(t, pub.sent)
}

func TestReserveRetriesLostRaceOnce(t *testing.T) {
	ledger := &countingLedger{StockLedger: newStore(30)}
	ledger.lose.Store(1)
	svc, _, _ := newService(ledger, nil, zap.NewNop())

	ok, err := svc.Reserve(context.Background(), "p-1", 1, "Order: A")

	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 2, ledger.decrements.Load())
	assert.Equal(t, 29, stockOf(t, ledger))
}

func TestReserveGivesUpAfterSecondLostRace(t *testing.T) {
	ledger := &countingLedger{StockLedger: newStore(30)}
	ledger.lose.Store(5)
	svc, pub, _ := newService(ledger, nil, zap.NewNop())

	ok, err := svc.Reserve(context.Background(), "p-1", 1, "Order: A")

	require.NoError(t, err)
	assert.False(t, ok)
	assert.EqualValues(t, 2, ledger.decrements.Load())
	assert.Empty(t, pub.sent)
}

func TestReserveConcurrentNeverOversells(t *testing.T) {
	store := newStore(10)
	svc, _, _ := newService(store, store, zap.NewNop())

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := svc.Reserve(context.Background(), "p-1", 1, "load"); err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, wins.Load(), int32(10))
	assert.GreaterOrEqual(t, stockOf(t, store), 0)
	assert.Equal(t, 10-int(wins.Load()), stockOf(t, store))
}

func TestReserveUnknownProductIsClientError(t *testing.T) {
	store := newStore(5)
	svc, _, _ := newService(store, store, zap.NewNop())

	_, err := svc.Reserve(context.Background(), "nope", 1, "x")
	assert.ErrorIs(t, err, apperr.ErrProductNotFound)

	_, err = svc.Reserve(context.Background(), "p-1", 0, "x")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

type brokenLedger struct{ StockLedger }

var errDB = errors.New("dial tcp: connection refused")

func (brokenLedger) Read(context.Context, string) (catalog.Product, error) {
	return catalog.Product{}, errDB
}

func TestReserveFallsBackToInsufficientWhenStorageFails(t *testing.T) {
	svc, pub, _ := newService(brokenLedger{}, nil, zap.NewNop())

	for i := 0; i < 5; i++ {
		ok, err := svc.Reserve(context.Background(), "p-1", 1, "x")
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, breaker.StateOpen, svc.cb.State())
	assert.Empty(t, pub.sent)
}

func TestReleaseIsCumulative(t *testing.T) {
	store := newStore(4)
	svc, pub, _ := newService(store, store, zap.NewNop())

	svc.Release(context.Background(), "p-1", 3, "Order cancelled: A")
	svc.Release(context.Background(), "p-1", 3, "Order cancelled: A")

	assert.Equal(t, 10, stockOf(t, store))
	require.Len(t, pub.sent, 2)
	assert.Equal(t, events.OpIncrease, pub.sent[1].ev.Operation)
	assert.Equal(t, 7, *pub.sent[1].ev.OldQuantity)
	assert.Equal(t, 10, pub.sent[1].ev.NewQuantity)
}

type failingIncrement struct{ StockLedger }

func (failingIncrement) Increment(context.Context, string, int) (int, error) { return 0, errDB }

func TestReleaseSwallowsAndLogsErrors(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	svc, pub, _ := newService(failingIncrement{StockLedger: newStore(4)}, nil, zap.New(core))

	assert.NotPanics(t, func() { svc.Release(context.Background(), "p-1", 1, "x") })
	svc.Release(context.Background(), "p-1", 0, "x")

	assert.Empty(t, pub.sent)
	assert.Equal(t, 1, logs.FilterMessage("release failed, stock not restored").Len())
	assert.Equal(t, 1, logs.FilterMessage("release skipped, non-positive quantity").Len())
}

// ctxLedger fails like pgx does once the context is done.
type ctxLedger struct{ StockLedger }

func (l ctxLedger) Increment(ctx context.Context, id string, amount int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return l.StockLedger.Increment(ctx, id, amount)
}

func TestReleaseOutlivesCallerDeadline(t *testing.T) {
	store := newStore(4)
	svc, pub, _ := newService(ctxLedger{store}, store, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	svc.Release(ctx, "p-1", 3, "Order aborted: X")

	assert.Equal(t, 7, stockOf(t, store))
	require.Len(t, pub.sent, 1)
}

// lostReply applies the increment, then loses the acknowledgement.
type lostReply struct {
	StockLedger
	calls int
}

func (l *lostReply) Increment(ctx context.Context, id string, amount int) (int, error) {
	l.calls++
	if _, err := l.StockLedger.Increment(ctx, id, amount); err != nil {
		return 0, err
	}
	return 0, errors.New("read tcp 10.0.0.5:5432: connection reset by peer")
}

func TestReleaseDoesNotRepeatAmbiguousIncrement(t *testing.T) {
	store := newStore(4)
	l := &lostReply{StockLedger: store}
	svc, _, _ := newService(l, store, zap.NewNop())

	svc.Release(context.Background(), "p-1", 3, "x")

	assert.Equal(t, 1, l.calls)
	assert.Equal(t, 7, stockOf(t, store))
}

func TestReleaseUnknownProductWarns(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	store := newStore(4)
	svc, _, _ := newService(store, store, zap.New(core))

	svc.Release(context.Background(), "nope", 1, "x")

	assert.Equal(t, 1, logs.FilterMessage("release for unknown product").Len())
}

func TestUpdateStockAlertsOnlyWhenCrossingFromAbove(t *testing.T) {
	store := newStore(15)
	svc, pub, inv := newService(store, store, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, svc.UpdateStock(ctx, "p-1", 8, "recount"))
	assert.Equal(t, []events.Operation{events.OpSet, events.OpLowStockAlert}, pub.ops())
	assert.Equal(t, 15, *pub.sent[0].ev.OldQuantity)

	require.NoError(t, svc.UpdateStock(ctx, "p-1", 6, "recount"))
	assert.Equal(t, []events.Operation{events.OpSet, events.OpLowStockAlert, events.OpSet}, pub.ops())
	assert.Equal(t, 6, stockOf(t, store))
	assert.Len(t, inv.ids, 2)
}

func TestUpdateStockValidation(t *testing.T) {
	store := newStore(15)
	svc, _, _ := newService(store, store, zap.NewNop())

	assert.ErrorIs(t, svc.UpdateStock(context.Background(), "p-1", -1, "x"), apperr.ErrInvalidArgument)
	assert.ErrorIs(t, svc.UpdateStock(context.Background(), "nope", 1, "x"), apperr.ErrProductNotFound)
}

func TestAvailableAndLowStockProducts(t *testing.T) {
	store := newStore(7)
	store.Put(catalog.Product{ID: "p-2", SKU: "SKU-2", Stock: 100, Status: catalog.ProductActive})
	svc, _, _ := newService(store, store, zap.NewNop())

	n, err := svc.Available(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	low, err := svc.LowStockProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, "p-1", low[0].ID)
}
