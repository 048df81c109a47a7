package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/order-inventory/internal/apperr"
	"github.com/ariefcatur/order-inventory/internal/catalog"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type InventoryService interface {
	Reserve(ctx context.Context, productID string, qty int, reason string) (bool, error)
	Release(ctx context.Context, productID string, qty int, reason string)
	UpdateStock(ctx context.Context, productID string, quantity int, reason string) error
	Available(ctx context.Context, productID string) (int, error)
	LowStockProducts(ctx context.Context) ([]catalog.Product, error)
}

type InventoryHandler struct {
	Inventory InventoryService
	Log       *zap.Logger
}

type StockChangeReq struct {
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason"`
}

type ReserveResp struct {
	ProductID string `json:"product_id"`
	Reserved  bool   `json:"reserved"`
}

type StockResp struct {
	ProductID string `json:"product_id"`
	Available int    `json:"available"`
}

func (h *InventoryHandler) Register(r chi.Router) {
	r.Route("/inventory", func(r chi.Router) {
		r.Get("/low-stock", h.lowStock)
		r.Get("/{productID}", h.available)
		r.Post("/{productID}/reserve", h.reserve)
		r.Post("/{productID}/release", h.release)
		r.Put("/{productID}/stock", h.updateStock)
	})
}

// reserve answers 409 when the stock could not be taken; the body still
// says reserved=false so clients need not parse an error.
func (h *InventoryHandler) reserve(w http.ResponseWriter, r *http.Request) {
	var req StockChangeReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	id := chi.URLParam(r, "productID")
	ok, err := h.Inventory.Reserve(ctx, id, req.Quantity, req.Reason)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	code := http.StatusOK
	if !ok {
		code = http.StatusConflict
	}
	writeJSON(w, code, ReserveResp{ProductID: id, Reserved: ok})
}

func (h *InventoryHandler) release(w http.ResponseWriter, r *http.Request) {
	var req StockChangeReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if req.Quantity < 1 {
		writeError(w, r, h.Log, apperr.Invalid("quantity must be at least 1, got %d", req.Quantity))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	h.Inventory.Release(ctx, chi.URLParam(r, "productID"), req.Quantity, req.Reason)
	w.WriteHeader(http.StatusAccepted)
}

func (h *InventoryHandler) updateStock(w http.ResponseWriter, r *http.Request) {
	var req StockChangeReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	id := chi.URLParam(r, "productID")
	if err := h.Inventory.UpdateStock(ctx, id, req.Quantity, req.Reason); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, StockResp{ProductID: id, Available: req.Quantity})
}

func (h *InventoryHandler) available(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	id := chi.URLParam(r, "productID")
	n, err := h.Inventory.Available(ctx, id)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, StockResp{ProductID: id, Available: n})
}

func (h *InventoryHandler) lowStock(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Inventory.LowStockProducts(ctx)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if ps == nil {
		ps = []catalog.Product{}
	}
	writeJSON(w, http.StatusOK, ps)
}
