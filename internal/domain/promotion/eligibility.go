package promotion

import "time"

// Evaluate decides whether a promotion currently applies to the cart.
// Checks run in a fixed order and short-circuit on the first failure:
// active flag, validity window, minimum subtotal, global cap, per-customer
// cap, then code match. It returns ReasonEligible when every check passes.
//
// submittedCode is the customer's raw input; it is only consulted for
// promotions that require a code (code set and not auto-apply).
func Evaluate(p *Promotion, cart Cart, customer CustomerContext, submittedCode string, now time.Time) Reason {
	if !p.Active {
		return ReasonInactive
	}

	// The window is inclusive on both ends; ValidUntil may be open.
	if now.Before(p.ValidFrom) {
		return ReasonNotYetValid
	}
	if p.ValidUntil != nil && now.After(*p.ValidUntil) {
		return ReasonExpired
	}

	if cart.Subtotal.LessThan(p.MinOrderAmount) {
		return ReasonBelowMinimum
	}

	if p.MaxTotal > 0 && p.TotalRedemptions >= p.MaxTotal {
		return ReasonGlobalLimit
	}

	if p.MaxPerCustomer > 0 && customer.Redemptions[p.ID] >= p.MaxPerCustomer {
		return ReasonCustomerLimit
	}

	if p.Code != "" && !p.AutoApply {
		if NormalizeCode(submittedCode) != NormalizeCode(p.Code) {
			return ReasonCodeMismatch
		}
	}

	return ReasonEligible
}
