package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/orderdeck/promo-service/internal/domain/loyalty"
	"github.com/orderdeck/promo-service/internal/domain/promotion"
	"github.com/orderdeck/promo-service/internal/domain/redemption"
)

// Stable machine-readable error codes.
const (
	codeValidationError    = "VALIDATION_ERROR"
	codeNotFound           = "NOT_FOUND"
	codeRaceLost           = "RACE_LOST"
	codeInsufficientPoints = "INSUFFICIENT_POINTS"
	codeUpstreamError      = "UPSTREAM_ERROR"
)

// writeJSON encodes one value with jx and writes it with the given status.
func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := &jx.Encoder{}
	encode(e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError writes the standard error envelope.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Str(code) })
			e.Field("message", func(e *jx.Encoder) { e.Str(message) })
		})
	})
}

// writeDomainError maps domain failures onto the HTTP error taxonomy.
// Eligibility outcomes never reach here; they are 200 responses.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var invalid *promotion.InvalidRequestError
	switch {
	case errors.As(err, &invalid):
		writeError(w, http.StatusBadRequest, codeValidationError, invalid.Msg)
	case errors.Is(err, promotion.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, promotion.ReasonNotFound.Message())
	case errors.Is(err, redemption.ErrCapExhausted):
		writeError(w, http.StatusConflict, codeRaceLost,
			"the promotion reached its redemption limit before this order was confirmed")
	case errors.Is(err, loyalty.ErrInsufficientPoints):
		writeError(w, http.StatusUnprocessableEntity, codeInsufficientPoints,
			"the loyalty balance does not cover the requested points")
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, codeUpstreamError,
			"promotion service is temporarily unavailable, please retry")
	}
}

// money renders a decimal as a fixed two-place string. Money never travels as
// a binary float.
func money(e *jx.Encoder, d decimal.Decimal) {
	e.Str(d.StringFixed(2))
}

func encodeCalculation(e *jx.Encoder, calc *promotion.DetailedCalculation) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("applied", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, a := range calc.Applied {
					e.Obj(func(e *jx.Encoder) {
						e.Field("promotionId", func(e *jx.Encoder) { e.Str(a.PromotionID) })
						e.Field("name", func(e *jx.Encoder) { e.Str(a.PromotionName) })
						e.Field("kind", func(e *jx.Encoder) { e.Str(string(a.Kind)) })
						e.Field("discountAmount", func(e *jx.Encoder) { money(e, a.DiscountAmount) })
					})
				}
			})
		})
		e.Field("rejected", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, rej := range calc.Rejected {
					e.Obj(func(e *jx.Encoder) {
						if rej.PromotionID != "" {
							e.Field("promotionId", func(e *jx.Encoder) { e.Str(rej.PromotionID) })
						}
						if rej.Code != "" {
							e.Field("code", func(e *jx.Encoder) { e.Str(rej.Code) })
						}
						e.Field("reason", func(e *jx.Encoder) { e.Str(string(rej.Reason)) })
						e.Field("message", func(e *jx.Encoder) { e.Str(rej.Reason.Message()) })
					})
				}
			})
		})
		e.Field("totalDiscount", func(e *jx.Encoder) { money(e, calc.TotalDiscount) })
		e.Field("adjustedSubtotal", func(e *jx.Encoder) { money(e, calc.AdjustedSubtotal) })
		e.Field("adjustedDeliveryFee", func(e *jx.Encoder) { money(e, calc.AdjustedDeliveryFee) })
		e.Field("adjustedTax", func(e *jx.Encoder) { money(e, calc.AdjustedTax) })
		e.Field("adjustedTotal", func(e *jx.Encoder) { money(e, calc.AdjustedTotal) })
	})
}
