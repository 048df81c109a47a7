// Package notify turns domain events into customer emails and procurement
// alerts. It runs behind the Kafka consumer in cmd/notifier.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/order-inventory/internal/events"
	"github.com/ariefcatur/order-inventory/internal/inventory"
	kafkax "github.com/ariefcatur/order-inventory/internal/kafka"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/ariefcatur/order-inventory/internal/notify")

const (
	EmailOrderCreated       = "ORDER_CREATED"
	EmailOrderStatusChanged = "ORDER_STATUS_CHANGED"
	AlertLowStock           = "LOW_STOCK_ALERT"
)

// errBadPayload marks a message that no retry can fix.
var errBadPayload = errors.New("bad payload")

type Deduper interface {
	FirstSeen(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload any)
}

type Sender interface {
	Send(ctx context.Context, n events.EmailNotification) error
}

type Handler struct {
	dedup  Deduper
	pub    Publisher
	sender Sender
	log    *zap.Logger
}

func NewHandler(dedup Deduper, pub Publisher, sender Sender, log *zap.Logger) *Handler {
	return &Handler{dedup: dedup, pub: pub, sender: sender, log: log}
}

// Handle is a kafka.Handler. Undecodable messages and payloads are logged and
// committed, since retrying them would stall the partition; any other failed
// dispatch un-marks the event and is returned so the consumer retries it.
func (h *Handler) Handle(ctx context.Context, m kafkago.Message) error {
	ctx = kafkax.ContextFromHeaders(ctx, m.Headers)
	ctx, span := tracer.Start(ctx, "notify "+m.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("messaging.destination.name", m.Topic)))
	defer span.End()

	env, err := events.DecodeEnvelope(m.Value)
	if err != nil {
		h.log.Error("dropping undecodable message", zap.String("topic", m.Topic), zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	log := h.log.With(zap.String("event_id", env.EventID), zap.String("event_type", env.EventType))

	first, err := h.dedup.FirstSeen(ctx, env.EventID)
	if err != nil {
		// tanpa dedup tetap proses; at-least-once
		log.Warn("dedup unavailable", zap.Error(err))
	} else if !first {
		log.Debug("duplicate event skipped")
		return nil
	}

	if err := h.dispatch(ctx, m.Topic, env, log); err != nil {
		span.RecordError(err)
		if errors.Is(err, errBadPayload) {
			log.Error("dropping bad payload", zap.String("topic", m.Topic), zap.Int64("offset", m.Offset), zap.Error(err))
			return nil
		}
		if ferr := h.dedup.Forget(ctx, env.EventID); ferr != nil {
			log.Warn("dedup forget failed", zap.Error(ferr))
		}
		return err
	}
	return nil
}

func (h *Handler) dispatch(ctx context.Context, topic string, env events.Envelope, log *zap.Logger) error {
	switch topic {
	case events.TopicOrderCreated:
		ev, err := events.Unwrap[events.OrderEvent](env)
		if err != nil {
			return err
		}
		h.orderCreated(ctx, ev, log)
	case events.TopicOrderStatusChanged:
		ev, err := events.Unwrap[events.OrderEvent](env)
		if err != nil {
			return err
		}
		h.orderStatusChanged(ctx, ev, log)
	case events.TopicInventoryUpdate:
		ev, err := events.Unwrap[events.InventoryEvent](env)
		if err != nil {
			return err
		}
		log.Info("inventory change",
			zap.String("product", ev.ProductName),
			zap.String("sku", ev.SKU),
			zap.String("operation", string(ev.Operation)),
			zap.Intp("old", ev.OldQuantity),
			zap.Int("new", ev.NewQuantity),
			zap.String("reason", ev.Reason),
		)
	case events.TopicLowStockAlert:
		ev, err := events.Unwrap[events.InventoryEvent](env)
		if err != nil {
			return err
		}
		h.lowStock(ev, log)
	case events.TopicEmailNotification:
		n, err := events.Unwrap[events.EmailNotification](env)
		if err != nil {
			return err
		}
		if err := h.sender.Send(ctx, n); err != nil {
			return fmt.Errorf("send email to %s: %w", n.RecipientEmail, err)
		}
	default:
		log.Debug("ignoring topic", zap.String("topic", topic))
	}
	return nil
}

func (h *Handler) orderCreated(ctx context.Context, ev events.OrderEvent, log *zap.Logger) {
	log.Info("processing order created event", zap.String("order_number", ev.OrderNumber), zap.String("customer_email", ev.CustomerEmail))
	h.email(ctx, ev, events.EmailNotification{
		RecipientEmail: ev.CustomerEmail,
		Subject:        "Order Confirmation - " + ev.OrderNumber,
		Message: fmt.Sprintf("Your order %s has been created successfully. Total amount: $%s",
			ev.OrderNumber, ev.TotalAmount.StringFixed(2)),
		EventType: EmailOrderCreated,
	}, log)
}

func (h *Handler) orderStatusChanged(ctx context.Context, ev events.OrderEvent, log *zap.Logger) {
	log.Info("processing order status change event", zap.String("order_number", ev.OrderNumber), zap.String("status", ev.Status))
	h.email(ctx, ev, events.EmailNotification{
		RecipientEmail: ev.CustomerEmail,
		Subject:        "Order Update - " + ev.OrderNumber,
		Message:        StatusMessage(ev.OrderNumber, ev.Status),
		EventType:      EmailOrderStatusChanged,
	}, log)
}

func (h *Handler) email(ctx context.Context, ev events.OrderEvent, n events.EmailNotification, log *zap.Logger) {
	if n.RecipientEmail == "" {
		log.Warn("no recipient for order notification", zap.String("order_number", ev.OrderNumber))
		return
	}
	h.pub.Publish(ctx, events.TopicEmailNotification, ev.OrderID, n)
}

// StatusMessage is the customer facing text for a status change.
func StatusMessage(orderNumber, status string) string {
	msg := fmt.Sprintf("Your order %s status has been updated to: %s", orderNumber, status)
	switch status {
	case "SHIPPED":
		msg += ". Your order is on its way!"
	case "DELIVERED":
		msg += ". Thank you for your business!"
	case "CANCELLED":
		msg += ". If you have any questions, please contact support."
	}
	return msg
}

// ProcurementAlertFor builds the alert handed to purchasing.
func ProcurementAlertFor(ev events.InventoryEvent) events.ProcurementAlert {
	return events.ProcurementAlert{
		ProductID:    ev.ProductID,
		ProductName:  ev.ProductName,
		SKU:          ev.SKU,
		CurrentStock: ev.NewQuantity,
		AlertType:    AlertLowStock,
		Message: fmt.Sprintf("Urgent: Product %s (%s) is running low. Only %d units remaining.",
			ev.ProductName, ev.SKU, ev.NewQuantity),
		Critical: ev.NewQuantity <= inventory.CriticalThreshold,
	}
}

func (h *Handler) lowStock(ev events.InventoryEvent, log *zap.Logger) {
	alert := ProcurementAlertFor(ev)
	log.Warn("low stock alert",
		zap.String("sku", alert.SKU),
		zap.Int("current_stock", alert.CurrentStock),
		zap.String("message", alert.Message),
	)
	if alert.Critical {
		log.Warn("CRITICAL: product has reached critical stock level", zap.String("sku", alert.SKU))
	}
}
