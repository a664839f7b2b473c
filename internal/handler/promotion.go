package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/orderdeck/promo-service/internal/domain/promotion"
)

type lineItemRequest struct {
	ItemID    string          `json:"itemId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type cartRequest struct {
	Items       []lineItemRequest `json:"items"`
	Subtotal    decimal.Decimal   `json:"subtotal"`
	DeliveryFee decimal.Decimal   `json:"deliveryFee"`
	TaxAmount   decimal.Decimal   `json:"taxAmount"`
}

func (c cartRequest) domain() promotion.Cart {
	items := make([]promotion.LineItem, len(c.Items))
	for i, item := range c.Items {
		items[i] = promotion.LineItem{
			ItemID:    item.ItemID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}
	return promotion.Cart{
		Items:       items,
		Subtotal:    c.Subtotal,
		DeliveryFee: c.DeliveryFee,
		TaxAmount:   c.TaxAmount,
	}
}

type validateRequest struct {
	Code             string      `json:"code"`
	CustomerID       string      `json:"customerId"`
	Cart             cartRequest `json:"cart"`
	TaxAfterDiscount bool        `json:"taxAfterDiscount"`
}

type recalculateRequest struct {
	AppliedCodes     []string    `json:"appliedCodes"`
	CustomerID       string      `json:"customerId"`
	Cart             cartRequest `json:"cart"`
	TaxAfterDiscount bool        `json:"taxAfterDiscount"`
}

// decodeJSON decodes the request body, reporting malformed payloads as a
// VALIDATION_ERROR before any domain work happens.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, codeValidationError, "invalid request body")
		return false
	}
	return true
}

func (h *Handler) validatePromotion(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tenantID := chi.URLParam(r, "tenantID")

	result, err := h.promotions.Validate(r.Context(), tenantID, req.Code, req.Cart.domain(), req.CustomerID, req.TaxAfterDiscount)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("isValid", func(e *jx.Encoder) { e.Bool(result.Valid) })
			if result.PromotionID != "" {
				e.Field("promotionId", func(e *jx.Encoder) { e.Str(result.PromotionID) })
			}
			if result.Valid {
				e.Field("discountPreview", func(e *jx.Encoder) { money(e, result.DiscountPreview) })
			} else {
				e.Field("reason", func(e *jx.Encoder) { e.Str(string(result.Reason)) })
				e.Field("message", func(e *jx.Encoder) { e.Str(result.Reason.Message()) })
			}
			e.Field("calculation", func(e *jx.Encoder) { encodeCalculation(e, &result.Calculation) })
		})
	})
}

func (h *Handler) listPromotions(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	promos, err := h.promotions.ListAvailable(r.Context(), tenantID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("promotions", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for i := range promos {
						encodePromotion(e, &promos[i])
					}
				})
			})
		})
	})
}

func (h *Handler) recalculate(w http.ResponseWriter, r *http.Request) {
	var req recalculateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tenantID := chi.URLParam(r, "tenantID")

	calc, err := h.promotions.Recalculate(r.Context(), tenantID, req.Cart.domain(), req.AppliedCodes, req.CustomerID, req.TaxAfterDiscount)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeCalculation(e, calc)
	})
}

func encodePromotion(e *jx.Encoder, p *promotion.Promotion) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("kind", func(e *jx.Encoder) { e.Str(string(p.Benefit.Kind())) })
		switch b := p.Benefit.(type) {
		case promotion.PercentOff:
			e.Field("percent", func(e *jx.Encoder) { e.Str(b.Percent.String()) })
		case promotion.AmountOff:
			e.Field("amount", func(e *jx.Encoder) { money(e, b.Amount) })
		case promotion.BuyXGetY:
			e.Field("buyQuantity", func(e *jx.Encoder) { e.Int(b.Buy) })
			e.Field("getQuantity", func(e *jx.Encoder) { e.Int(b.Get) })
		}
		if p.MinOrderAmount.IsPositive() {
			e.Field("minOrderAmount", func(e *jx.Encoder) { money(e, p.MinOrderAmount) })
		}
		e.Field("validFrom", func(e *jx.Encoder) { e.Str(p.ValidFrom.Format(time.RFC3339)) })
		if p.ValidUntil != nil {
			e.Field("validUntil", func(e *jx.Encoder) { e.Str(p.ValidUntil.Format(time.RFC3339)) })
		}
		e.Field("stackable", func(e *jx.Encoder) { e.Bool(p.Stackable) })
	})
}
