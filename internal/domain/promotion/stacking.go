package promotion

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// AppliedPromotion is one promotion's contribution to an order, in
// application order.
type AppliedPromotion struct {
	PromotionID    string
	PromotionName  string
	Kind           Kind
	DiscountAmount decimal.Decimal
}

// RejectedPromotion records why a candidate did not apply, for diagnostics
// and user messaging.
type RejectedPromotion struct {
	PromotionID string
	Code        string
	Reason      Reason
}

// DetailedCalculation is the full outcome of resolving promotions against a
// cart: applied promotions in application order, rejection diagnostics, and
// adjusted totals.
type DetailedCalculation struct {
	Applied             []AppliedPromotion
	Rejected            []RejectedPromotion
	TotalDiscount       decimal.Decimal
	AdjustedSubtotal    decimal.Decimal
	AdjustedDeliveryFee decimal.Decimal
	AdjustedTax         decimal.Decimal
	AdjustedTotal       decimal.Decimal
}

// ResolveRequest carries everything the stacking resolver needs. Candidates
// should include the tenant's auto-apply promotions plus any promotions the
// customer requested by code.
type ResolveRequest struct {
	Cart           Cart
	Candidates     []Promotion
	RequestedCodes []string
	Customer       CustomerContext
	Now            time.Time
	// TaxAfterDiscount recomputes tax proportionally on the discounted
	// subtotal. It mirrors the tenant's external pricing policy; when false
	// the snapshot's tax amount is carried through unchanged.
	TaxAfterDiscount bool
}

// Resolve decides which candidate promotions legally combine and computes the
// aggregate discount. The policy is deterministic:
//
//  1. Every candidate is evaluated for eligibility; ineligible ones are
//     retained as rejections with their reason. Code-gated candidates apply
//     only when their code is in RequestedCodes.
//  2. Among eligible non-stackable promotions at most one survives: the one
//     with the largest standalone discount (ties broken by lowest id). The
//     losers are rejected as SUPERSEDED. Promotions explicitly marked
//     stackable still combine with the survivor.
//  3. Application order: free-delivery promotions first (they never touch the
//     subtotal), then the subtotal promotion with the largest standalone
//     discount, then the remaining stackable subtotal promotions in
//     ascending id order. Each discount is computed against the running,
//     already-discounted amounts, so stacked percentages compound instead of
//     double-dipping on the original subtotal.
func Resolve(req ResolveRequest) DetailedCalculation {
	calc := DetailedCalculation{
		TotalDiscount:       decimal.Zero,
		AdjustedSubtotal:    req.Cart.Subtotal,
		AdjustedDeliveryFee: req.Cart.DeliveryFee,
		AdjustedTax:         req.Cart.TaxAmount,
	}

	requested := make(map[string]bool, len(req.RequestedCodes))
	for _, code := range req.RequestedCodes {
		if norm := NormalizeCode(code); norm != "" {
			requested[norm] = true
		}
	}

	// Eligibility pass.
	var eligible []Promotion
	for _, p := range req.Candidates {
		submitted := ""
		if p.Code != "" && requested[NormalizeCode(p.Code)] {
			submitted = p.Code
		}
		reason := Evaluate(&p, req.Cart, req.Customer, submitted, req.Now)
		if reason != ReasonEligible {
			calc.Rejected = append(calc.Rejected, RejectedPromotion{
				PromotionID: p.ID,
				Code:        p.Code,
				Reason:      reason,
			})
			continue
		}
		eligible = append(eligible, p)
	}
	if len(eligible) == 0 {
		calc.AdjustedTotal = total(calc)
		return calc
	}

	// Standalone discounts against the original snapshot drive both the
	// exclusivity contest and the application order.
	standalone := make(map[string]decimal.Decimal, len(eligible))
	for i := range eligible {
		standalone[eligible[i].ID] = Calculate(&eligible[i], req.Cart)
	}

	retained := resolveExclusive(eligible, standalone, &calc)

	// Split into delivery and subtotal promotions.
	var delivery, subtotal []Promotion
	for _, p := range retained {
		if p.Benefit.Kind() == KindFreeDelivery {
			delivery = append(delivery, p)
		} else {
			subtotal = append(subtotal, p)
		}
	}
	sortByID(delivery)
	orderSubtotalPromos(subtotal, standalone)

	// Sequential application against a working copy of the snapshot.
	running := req.Cart
	apply := func(p *Promotion) {
		d := Calculate(p, running)
		if p.Benefit.Kind() == KindFreeDelivery {
			running.DeliveryFee = running.DeliveryFee.Sub(d)
		} else {
			running.Subtotal = running.Subtotal.Sub(d)
		}
		calc.Applied = append(calc.Applied, AppliedPromotion{
			PromotionID:    p.ID,
			PromotionName:  p.Name,
			Kind:           p.Benefit.Kind(),
			DiscountAmount: d,
		})
		calc.TotalDiscount = calc.TotalDiscount.Add(d)
	}
	for i := range delivery {
		apply(&delivery[i])
	}
	for i := range subtotal {
		apply(&subtotal[i])
	}

	calc.AdjustedSubtotal = floorZero(running.Subtotal)
	calc.AdjustedDeliveryFee = floorZero(running.DeliveryFee)
	if req.TaxAfterDiscount && req.Cart.Subtotal.IsPositive() {
		ratio := calc.AdjustedSubtotal.Div(req.Cart.Subtotal)
		calc.AdjustedTax = req.Cart.TaxAmount.Mul(ratio).Round(2)
	}
	calc.AdjustedTotal = total(calc)
	return calc
}

// resolveExclusive enforces non-stackable exclusivity: when several
// non-stackable promotions are eligible, the one with the largest standalone
// discount survives and the rest are rejected as SUPERSEDED.
func resolveExclusive(eligible []Promotion, standalone map[string]decimal.Decimal, calc *DetailedCalculation) []Promotion {
	var exclusive []Promotion
	for _, p := range eligible {
		if !p.Stackable {
			exclusive = append(exclusive, p)
		}
	}
	if len(exclusive) <= 1 {
		return eligible
	}

	winner := exclusive[0]
	for _, p := range exclusive[1:] {
		w, c := standalone[winner.ID], standalone[p.ID]
		if c.GreaterThan(w) || (c.Equal(w) && p.ID < winner.ID) {
			winner = p
		}
	}

	retained := make([]Promotion, 0, len(eligible)-len(exclusive)+1)
	for _, p := range eligible {
		if p.Stackable || p.ID == winner.ID {
			retained = append(retained, p)
			continue
		}
		calc.Rejected = append(calc.Rejected, RejectedPromotion{
			PromotionID: p.ID,
			Code:        p.Code,
			Reason:      ReasonSuperseded,
		})
	}
	return retained
}

// orderSubtotalPromos places the largest standalone discount first (tie:
// lowest id) and the rest in ascending id order.
func orderSubtotalPromos(promos []Promotion, standalone map[string]decimal.Decimal) {
	if len(promos) < 2 {
		return
	}
	first := 0
	for i := 1; i < len(promos); i++ {
		f, c := standalone[promos[first].ID], standalone[promos[i].ID]
		if c.GreaterThan(f) || (c.Equal(f) && promos[i].ID < promos[first].ID) {
			first = i
		}
	}
	promos[0], promos[first] = promos[first], promos[0]
	rest := promos[1:]
	sortByID(rest)
}

func sortByID(promos []Promotion) {
	sort.Slice(promos, func(i, j int) bool {
		return promos[i].ID < promos[j].ID
	})
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func total(calc DetailedCalculation) decimal.Decimal {
	return calc.AdjustedSubtotal.Add(calc.AdjustedDeliveryFee).Add(calc.AdjustedTax)
}
