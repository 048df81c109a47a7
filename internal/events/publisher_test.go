package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	kafkax "github.com/ariefcatur/order-inventory/internal/kafka"
	"github.com/ariefcatur/order-inventory/internal/retry"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func init() { retry.InitialInterval = time.Millisecond }

type fakeWriter struct {
	mu    sync.Mutex
	msgs  []kafkago.Message
	fails int
	calls int
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.fails > 0 {
		w.fails--
		return errors.New("kafka: leader not available")
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestPublishWrapsPayloadInEnvelope(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisher(w, "order-api", 2, zap.NewNop())

	p.Publish(context.Background(), TopicOrderCreated, "o-1", OrderEvent{
		OrderID:     "o-1",
		OrderNumber: "ORDER-1a2b3c4d",
		Status:      "PENDING",
		TotalAmount: decimal.RequireFromString("42.50"),
	})

	require.Len(t, w.msgs, 1)
	m := w.msgs[0]
	assert.Equal(t, TopicOrderCreated, m.Topic)
	assert.Equal(t, []byte("o-1"), m.Key)
	assert.Equal(t, EventOrderCreated, kafkax.Header(m, kafkax.HeaderEventType))
	assert.Equal(t, "1", kafkax.Header(m, kafkax.HeaderEventVersion))

	env, err := DecodeEnvelope(m.Value)
	require.NoError(t, err)
	assert.Equal(t, EventOrderCreated, env.EventType)
	assert.Equal(t, "order-api", env.Producer)
	assert.Equal(t, "o-1", env.CorrelationID)
	assert.NotEmpty(t, env.EventID)

	ev, err := Unwrap[OrderEvent](env)
	require.NoError(t, err)
	assert.Equal(t, "ORDER-1a2b3c4d", ev.OrderNumber)
	assert.True(t, decimal.RequireFromString("42.5").Equal(ev.TotalAmount))
}

func TestPublishRetriesTransientWriteFailure(t *testing.T) {
	w := &fakeWriter{fails: 1}
	p := NewPublisher(w, "order-api", 2, zap.NewNop())

	p.Publish(context.Background(), TopicInventoryUpdate, "p-1", InventoryEvent{ProductID: "p-1", Operation: OpDecrease})

	assert.Equal(t, 2, w.calls)
	assert.Len(t, w.msgs, 1)
}

func TestPublishSwallowsAndLogsExhaustedFailure(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	w := &fakeWriter{fails: 10}
	p := NewPublisher(w, "order-api", 1, zap.New(core))

	assert.NotPanics(t, func() {
		p.Publish(context.Background(), TopicLowStockAlert, "p-1", InventoryEvent{ProductID: "p-1", Operation: OpLowStockAlert})
	})

	assert.Equal(t, 2, w.calls)
	assert.Empty(t, w.msgs)
	require.Equal(t, 1, logs.FilterMessage("failed to publish event").Len())
}

func TestPublishOutlivesCallerDeadline(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisher(w, "order-api", 1, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Publish(ctx, TopicOrderStatusChanged, "o-1", OrderEvent{OrderID: "o-1", Status: "CANCELLED"})

	require.Len(t, w.msgs, 1)
	assert.Equal(t, TopicOrderStatusChanged, w.msgs[0].Topic)
}

func TestEventTypeFor(t *testing.T) {
	assert.Equal(t, EventInventoryUpdated, EventTypeFor(TopicInventoryUpdate))
	assert.Equal(t, EventLowStockAlert, EventTypeFor(TopicLowStockAlert))
	assert.Equal(t, "custom.topic", EventTypeFor("custom.topic"))
}
