package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ariefcatur/order-inventory/internal/apperr"
	"github.com/ariefcatur/order-inventory/internal/orders"
	"github.com/ariefcatur/order-inventory/internal/redisx"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type OrderService interface {
	CreateOrder(ctx context.Context, req orders.CreateOrderRequest) (*orders.Order, error)
	GetOrder(ctx context.Context, id string) (*orders.Order, error)
	UpdateStatus(ctx context.Context, id, status string) (*orders.Order, error)
}

// Idempotency is satisfied by redisx.Idempotency.
type Idempotency interface {
	Begin(ctx context.Context, key string) (orderID string, claimed bool, err error)
	Complete(ctx context.Context, key, orderID string) error
	Abort(ctx context.Context, key string) error
}

type OrdersHandler struct {
	Orders OrderService
	Idem   Idempotency // optional
	Log    *zap.Logger
}

type CreateOrderResp struct {
	Order      *orders.Order `json:"order"`
	Idempotent bool          `json:"idempotent"`
}

type UpdateStatusReq struct {
	Status string `json:"status"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Patch("/orders/{id}/status", h.updateStatus)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.CreateOrderRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	key := r.Header.Get(HeaderIdempotencyKey)
	claimed := false
	if key != "" && h.Idem != nil {
		existing, ok, err := h.Idem.Begin(ctx, key)
		switch {
		case errors.Is(err, redisx.ErrInProgress):
			writeError(w, r, h.Log, &apperr.Error{Kind: apperr.KindConflict, Code: apperr.CodeConflict, Message: err.Error()})
			return
		case err != nil:
			// Redis cuma shortcut; lanjut tanpa idempotency
			h.Log.Warn("idempotency check failed", zap.String("key", key), zap.Error(err))
		case !ok:
			o, err := h.Orders.GetOrder(ctx, existing)
			if err != nil {
				writeError(w, r, h.Log, err)
				return
			}
			writeJSON(w, http.StatusOK, CreateOrderResp{Order: o, Idempotent: true})
			return
		default:
			claimed = true
		}
	}

	o, err := h.Orders.CreateOrder(ctx, req)
	if err != nil {
		if claimed {
			if aerr := h.Idem.Abort(context.WithoutCancel(ctx), key); aerr != nil {
				h.Log.Warn("idempotency abort failed", zap.String("key", key), zap.Error(aerr))
			}
		}
		writeError(w, r, h.Log, err)
		return
	}
	if claimed {
		if cerr := h.Idem.Complete(context.WithoutCancel(ctx), key, o.ID); cerr != nil {
			h.Log.Warn("idempotency complete failed", zap.String("key", key), zap.String("order_id", o.ID), zap.Error(cerr))
		}
	}
	writeJSON(w, http.StatusCreated, CreateOrderResp{Order: o})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Orders.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.UpdateStatus(ctx, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
