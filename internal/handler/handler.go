// Package handler exposes the promotion engine over HTTP. All routes are
// tenant-scoped; request bodies are JSON and money travels as decimal strings.
package handler

import (
	"github.com/go-chi/chi/v5"

	"github.com/orderdeck/promo-service/internal/domain/loyalty"
	"github.com/orderdeck/promo-service/internal/domain/promotion"
	"github.com/orderdeck/promo-service/internal/domain/redemption"
)

// Handler translates HTTP requests into domain operations and domain results
// back into the response taxonomy.
type Handler struct {
	promotions *promotion.Service
	recorder   *redemption.Recorder
	loyalty    *loyalty.Service
}

// New constructs a Handler with the required domain services.
func New(promotions *promotion.Service, recorder *redemption.Recorder, loyaltySvc *loyalty.Service) *Handler {
	return &Handler{
		promotions: promotions,
		recorder:   recorder,
		loyalty:    loyaltySvc,
	}
}

// Routes returns the tenant-scoped API router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/tenants/{tenantID}", func(r chi.Router) {
		r.Route("/promotions", func(r chi.Router) {
			r.Get("/", h.listPromotions)
			r.Post("/validate", h.validatePromotion)
			r.Post("/recalculate", h.recalculate)
		})
		r.Post("/redemptions", h.recordRedemption)
		r.Route("/loyalty/{customerID}", func(r chi.Router) {
			r.Get("/", h.getLoyaltyAccount)
			r.Post("/accrue", h.accrueLoyalty)
			r.Post("/redeem", h.redeemLoyalty)
		})
	})
	return r
}
