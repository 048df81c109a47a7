package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	kafkax "github.com/ariefcatur/order-inventory/internal/kafka"
	"github.com/ariefcatur/order-inventory/internal/retry"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	envelopeVersion = 1
	publishTimeout  = 10 * time.Second
)

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
}

// Publisher deposits domain events on Kafka. Publish blocks until the write
// is acknowledged or retries are exhausted, and never reports failure to the
// caller: a lost notification must not undo a committed business operation.
type Publisher struct {
	w        MessageWriter
	producer string
	attempts uint64
	log      *zap.Logger
	now      func() time.Time
}

func NewPublisher(w MessageWriter, producer string, attempts uint64, log *zap.Logger) *Publisher {
	return &Publisher{w: w, producer: producer, attempts: attempts, log: log, now: time.Now}
}

// Publish runs on a copy of ctx without its deadline, bounded by
// publishTimeout: the event describes something already committed.
func (p *Publisher) Publish(ctx context.Context, topic, key string, payload any) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	eventType := EventTypeFor(topic)
	log := p.log.With(zap.String("topic", topic), zap.String("event_type", eventType), zap.String("key", key))

	body, err := json.Marshal(payload)
	if err != nil {
		log.Error("failed to encode event payload", zap.Error(err))
		return
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  envelopeVersion,
		OccurredAt:    p.now().UTC(),
		Producer:      p.producer,
		CorrelationID: key,
		Payload:       body,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	value, err := json.Marshal(env)
	if err != nil {
		log.Error("failed to encode envelope", zap.Error(err))
		return
	}

	headers := append([]kafkago.Header{
		{Key: kafkax.HeaderEventType, Value: []byte(eventType)},
		{Key: kafkax.HeaderEventVersion, Value: []byte(strconv.Itoa(envelopeVersion))},
	}, kafkax.TraceHeaders(ctx)...)

	msg := kafkago.Message{
		Topic:   topic,
		Key:     PartitionKey(key),
		Value:   value,
		Headers: headers,
		Time:    env.OccurredAt,
	}
	err = retry.Do(ctx, p.attempts, func() error {
		return p.w.WriteMessages(ctx, msg)
	})
	if err != nil {
		log.Error("failed to publish event", zap.String("event_id", env.EventID), zap.Error(err))
		return
	}
	log.Debug("event published", zap.String("event_id", env.EventID))
}
