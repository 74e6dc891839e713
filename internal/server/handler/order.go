package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/polymirror/internal/domain"
)

// OrderCanceller cancels a resting order on the exchange.
type OrderCanceller interface {
	CancelOrder(ctx context.Context, orderID string) error
}

// OrderHandler serves manual order cancellation. A nil canceller means the
// bot runs in paper mode and cancellation is refused.
type OrderHandler struct {
	orders OrderCanceller
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler. audit may be nil.
func NewOrderHandler(orders OrderCanceller, audit domain.AuditStore, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		audit:  audit,
		logger: logger.With(slog.String("handler", "orders")),
	}
}

// CancelOrder cancels an order by id.
// DELETE /api/orders/{id}
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		writeError(w, http.StatusConflict, "order cancellation is only available in live mode")
		return
	}
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	if err := h.orders.CancelOrder(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, domain.ErrOrderRejected):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "cancel order failed",
				slog.String("order_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusBadGateway, "failed to cancel order")
		}
		return
	}

	if h.audit != nil {
		if err := h.audit.Log(r.Context(), "manual_cancel", map[string]any{"order_id": id}); err != nil {
			h.logger.WarnContext(r.Context(), "audit manual cancel failed", slog.String("error", err.Error()))
		}
	}
	h.logger.InfoContext(r.Context(), "order cancelled", slog.String("order_id", id))
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "cancelled",
		"order_id": id,
	})
}
