package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

type recordRedemptionRequest struct {
	PromotionID    string          `json:"promotionId"`
	CustomerID     string          `json:"customerId"`
	OrderID        string          `json:"orderId"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
}

// recordRedemption confirms one promotion usage for a completed order.
// Retrying with the same order id returns the original redemption.
func (h *Handler) recordRedemption(w http.ResponseWriter, r *http.Request) {
	var req recordRedemptionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tenantID := chi.URLParam(r, "tenantID")

	switch {
	case req.PromotionID == "":
		writeError(w, http.StatusBadRequest, codeValidationError, "promotion id is required")
		return
	case req.OrderID == "":
		writeError(w, http.StatusBadRequest, codeValidationError, "order id is required")
		return
	case req.DiscountAmount.IsNegative():
		writeError(w, http.StatusBadRequest, codeValidationError, "discount amount must not be negative")
		return
	}

	stored, err := h.recorder.Record(r.Context(), tenantID, req.PromotionID, req.CustomerID, req.OrderID, req.DiscountAmount)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("id", func(e *jx.Encoder) { e.Str(stored.ID) })
			e.Field("promotionId", func(e *jx.Encoder) { e.Str(stored.PromotionID) })
			if stored.CustomerID != "" {
				e.Field("customerId", func(e *jx.Encoder) { e.Str(stored.CustomerID) })
			}
			e.Field("orderId", func(e *jx.Encoder) { e.Str(stored.OrderID) })
			e.Field("discountAmount", func(e *jx.Encoder) { money(e, stored.DiscountAmount) })
			e.Field("createdAt", func(e *jx.Encoder) { e.Str(stored.CreatedAt.Format(time.RFC3339)) })
		})
	})
}
