package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/orderdeck/promo-service/internal/domain/loyalty"
)

type accrueRequest struct {
	OrderID    string          `json:"orderId"`
	OrderTotal decimal.Decimal `json:"orderTotal"`
}

type redeemRequest struct {
	Points int64 `json:"points"`
}

func (h *Handler) getLoyaltyAccount(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	customerID := chi.URLParam(r, "customerID")

	acc, err := h.loyalty.Get(r.Context(), tenantID, customerID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeAccount(e, acc)
	})
}

func (h *Handler) accrueLoyalty(w http.ResponseWriter, r *http.Request) {
	var req accrueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tenantID := chi.URLParam(r, "tenantID")
	customerID := chi.URLParam(r, "customerID")

	switch {
	case req.OrderID == "":
		writeError(w, http.StatusBadRequest, codeValidationError, "order id is required")
		return
	case req.OrderTotal.IsNegative():
		writeError(w, http.StatusBadRequest, codeValidationError, "order total must not be negative")
		return
	}

	acc, earned, err := h.loyalty.Accrue(r.Context(), tenantID, customerID, req.OrderID, req.OrderTotal)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("pointsEarned", func(e *jx.Encoder) { e.Int64(earned) })
			e.Field("account", func(e *jx.Encoder) { encodeAccount(e, acc) })
		})
	})
}

func (h *Handler) redeemLoyalty(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tenantID := chi.URLParam(r, "tenantID")
	customerID := chi.URLParam(r, "customerID")

	if req.Points <= 0 {
		writeError(w, http.StatusBadRequest, codeValidationError, "points must be greater than 0")
		return
	}

	acc, value, err := h.loyalty.Redeem(r.Context(), tenantID, customerID, req.Points)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("discountValue", func(e *jx.Encoder) { money(e, value) })
			e.Field("account", func(e *jx.Encoder) { encodeAccount(e, acc) })
		})
	})
}

func encodeAccount(e *jx.Encoder, acc *loyalty.Account) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("customerId", func(e *jx.Encoder) { e.Str(acc.CustomerID) })
		e.Field("points", func(e *jx.Encoder) { e.Int64(acc.Points) })
		e.Field("tier", func(e *jx.Encoder) { e.Str(string(acc.Tier)) })
		e.Field("totalEarned", func(e *jx.Encoder) { e.Int64(acc.TotalEarned) })
		e.Field("totalRedeemed", func(e *jx.Encoder) { e.Int64(acc.TotalRedeemed) })
	})
}
