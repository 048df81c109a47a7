package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventInventoryUpdated   = "InventoryUpdated"
	EventLowStockAlert      = "LowStockAlert"
	EventEmailNotification  = "EmailNotification"
)

// EventTypeFor maps a topic to the event type stamped on its envelopes.
func EventTypeFor(topic string) string {
	switch topic {
	case TopicOrderCreated:
		return EventOrderCreated
	case TopicOrderStatusChanged:
		return EventOrderStatusChanged
	case TopicInventoryUpdate:
		return EventInventoryUpdated
	case TopicLowStockAlert:
		return EventLowStockAlert
	case TopicEmailNotification:
		return EventEmailNotification
	}
	return topic
}

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "order-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id atau product_id
	Payload       json.RawMessage `json:"payload"`
}

func DecodeEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// Unwrap memudahkan decode payload spesifik
func Unwrap[T any](env Envelope) (T, error) {
	var t T
	if err := json.Unmarshal(env.Payload, &t); err != nil {
		return t, fmt.Errorf("decode %s payload: %w", env.EventType, err)
	}
	return t, nil
}

// ---- Payload tipe per event ----

type Operation string

const (
	OpDecrease      Operation = "DECREASE"
	OpIncrease      Operation = "INCREASE"
	OpSet           Operation = "SET"
	OpLowStockAlert Operation = "LOW_STOCK_ALERT"
)

// InventoryEvent is informational only; the ledger is the source of truth.
// OldQuantity is nil for LOW_STOCK_ALERT.
type InventoryEvent struct {
	ProductID   string    `json:"product_id"`
	ProductName string    `json:"product_name"`
	SKU         string    `json:"sku"`
	OldQuantity *int      `json:"old_quantity"`
	NewQuantity int       `json:"new_quantity"`
	Operation   Operation `json:"operation"`
	Reason      string    `json:"reason"`
	EventTime   time.Time `json:"event_time"`
}

type OrderEvent struct {
	OrderID       string          `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	CustomerID    string          `json:"customer_id"`
	CustomerEmail string          `json:"customer_email"`
	Status        string          `json:"status"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	EventTime     time.Time       `json:"event_time"`
}

type EmailNotification struct {
	RecipientEmail string `json:"recipient_email"`
	Subject        string `json:"subject"`
	Message        string `json:"message"`
	EventType      string `json:"event_type"`
}

type ProcurementAlert struct {
	ProductID    string `json:"product_id"`
	ProductName  string `json:"product_name"`
	SKU          string `json:"sku"`
	CurrentStock int    `json:"current_stock"`
	AlertType    string `json:"alert_type"`
	Message      string `json:"message"`
	Critical     bool   `json:"critical"`
}
