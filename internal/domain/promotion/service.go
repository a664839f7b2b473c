package promotion

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// InvalidRequestError reports a malformed request. It is raised before any
// datastore I/O.
type InvalidRequestError struct {
	Msg string
}

func (e *InvalidRequestError) Error() string { return e.Msg }

// ValidationResult is the outcome of validating a single code against a cart.
// Preview only: nothing is recorded.
type ValidationResult struct {
	Valid           bool
	Reason          Reason
	PromotionID     string
	DiscountPreview decimal.Decimal
	Calculation     DetailedCalculation
}

// Service exposes the promotion evaluation operations consumed by the
// storefront and checkout flow.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a promotion Service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Validate checks a submitted code against the cart and returns a discount
// preview together with the full calculation, including the tenant's
// auto-apply promotions. Eligibility failures are structured results, not
// errors; only malformed input and datastore failures return an error.
func (s *Service) Validate(ctx context.Context, tenantID, code string, cart Cart, customerID string, taxAfterDiscount bool) (*ValidationResult, error) {
	if err := checkRequest(tenantID, cart); err != nil {
		return nil, err
	}
	now := s.now()
	code = NormalizeCode(code)

	candidates, codePromoID, err := s.candidates(ctx, tenantID, code, now)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &ValidationResult{Valid: false, Reason: ReasonNotFound}, nil
		}
		return nil, err
	}

	customer, err := s.customerContext(ctx, tenantID, customerID, candidates)
	if err != nil {
		return nil, err
	}

	var codes []string
	if code != "" {
		codes = []string{code}
	}
	calc := Resolve(ResolveRequest{
		Cart:             cart,
		Candidates:       candidates,
		RequestedCodes:   codes,
		Customer:         customer,
		Now:              now,
		TaxAfterDiscount: taxAfterDiscount,
	})

	result := &ValidationResult{Calculation: calc}
	if code == "" {
		// Pure auto-apply preview.
		result.Valid = true
		result.DiscountPreview = calc.TotalDiscount
		return result, nil
	}

	for _, a := range calc.Applied {
		if a.PromotionID == codePromoID {
			result.Valid = true
			result.PromotionID = a.PromotionID
			result.DiscountPreview = a.DiscountAmount
			return result, nil
		}
	}
	for _, r := range calc.Rejected {
		if r.PromotionID == codePromoID {
			result.Reason = r.Reason
			result.PromotionID = r.PromotionID
			return result, nil
		}
	}
	result.Reason = ReasonNotFound
	return result, nil
}

// ListAvailable returns the tenant's promotions eligible for suggestion
// surfaces: active, inside their validity window, and not capped out.
// Code-gated promotions are excluded from the list but remain usable through
// direct code entry.
func (s *Service) ListAvailable(ctx context.Context, tenantID string) ([]Promotion, error) {
	if tenantID == "" {
		return nil, &InvalidRequestError{Msg: "tenant id is required"}
	}
	promos, err := s.repo.ListAutoApply(ctx, tenantID, s.now())
	if err != nil {
		return nil, errors.Wrap(err, "list promotions")
	}
	return promos, nil
}

// Recalculate re-derives the full calculation for a set of applied codes,
// so removing one promotion does not require the client to resubmit the rest
// one at a time. Same inputs always yield the same calculation.
func (s *Service) Recalculate(ctx context.Context, tenantID string, cart Cart, appliedCodes []string, customerID string, taxAfterDiscount bool) (*DetailedCalculation, error) {
	if err := checkRequest(tenantID, cart); err != nil {
		return nil, err
	}
	now := s.now()

	candidates, err := s.repo.ListAutoApply(ctx, tenantID, now)
	if err != nil {
		return nil, errors.Wrap(err, "list auto-apply promotions")
	}
	seen := make(map[string]bool, len(candidates))
	for _, p := range candidates {
		seen[p.ID] = true
	}

	calc := DetailedCalculation{}
	codes := make([]string, 0, len(appliedCodes))
	for _, raw := range appliedCodes {
		code := NormalizeCode(raw)
		if code == "" {
			continue
		}
		p, err := s.repo.FindByCode(ctx, tenantID, code)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				calc.Rejected = append(calc.Rejected, RejectedPromotion{
					Code:   code,
					Reason: ReasonNotFound,
				})
				continue
			}
			return nil, errors.Wrapf(err, "find promotion by code %q", code)
		}
		codes = append(codes, code)
		if !seen[p.ID] {
			candidates = append(candidates, *p)
			seen[p.ID] = true
		}
	}

	customer, err := s.customerContext(ctx, tenantID, customerID, candidates)
	if err != nil {
		return nil, err
	}

	resolved := Resolve(ResolveRequest{
		Cart:             cart,
		Candidates:       candidates,
		RequestedCodes:   codes,
		Customer:         customer,
		Now:              now,
		TaxAfterDiscount: taxAfterDiscount,
	})
	resolved.Rejected = append(calc.Rejected, resolved.Rejected...)
	return &resolved, nil
}

// candidates assembles the auto-apply promotions plus the code-requested one.
// The second return value is the id of the promotion matching the code, empty
// when no code was submitted.
func (s *Service) candidates(ctx context.Context, tenantID, code string, now time.Time) ([]Promotion, string, error) {
	candidates, err := s.repo.ListAutoApply(ctx, tenantID, now)
	if err != nil {
		return nil, "", errors.Wrap(err, "list auto-apply promotions")
	}
	if code == "" {
		return candidates, "", nil
	}

	p, err := s.repo.FindByCode(ctx, tenantID, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, "", ErrNotFound
		}
		return nil, "", errors.Wrapf(err, "find promotion by code %q", code)
	}
	for _, c := range candidates {
		if c.ID == p.ID {
			return candidates, p.ID, nil
		}
	}
	return append(candidates, *p), p.ID, nil
}

// customerContext fetches the customer's prior redemption counts for the
// candidate promotions. Anonymous customers get an empty context, which
// leaves per-customer caps unenforced at preview time.
func (s *Service) customerContext(ctx context.Context, tenantID, customerID string, candidates []Promotion) (CustomerContext, error) {
	customer := CustomerContext{CustomerID: customerID}
	if customerID == "" || len(candidates) == 0 {
		return customer, nil
	}
	ids := make([]string, len(candidates))
	for i, p := range candidates {
		ids[i] = p.ID
	}
	counts, err := s.repo.CustomerRedemptionCounts(ctx, tenantID, customerID, ids)
	if err != nil {
		return customer, errors.Wrap(err, "count customer redemptions")
	}
	customer.Redemptions = counts
	return customer, nil
}

func checkRequest(tenantID string, cart Cart) error {
	if tenantID == "" {
		return &InvalidRequestError{Msg: "tenant id is required"}
	}
	if cart.Subtotal.IsNegative() {
		return &InvalidRequestError{Msg: "cart subtotal must not be negative"}
	}
	if cart.DeliveryFee.IsNegative() {
		return &InvalidRequestError{Msg: "delivery fee must not be negative"}
	}
	if cart.TaxAmount.IsNegative() {
		return &InvalidRequestError{Msg: "tax amount must not be negative"}
	}
	for _, item := range cart.Items {
		if item.Quantity <= 0 {
			return &InvalidRequestError{Msg: "line item quantity must be greater than 0"}
		}
		if item.UnitPrice.IsNegative() {
			return &InvalidRequestError{Msg: "line item price must not be negative"}
		}
	}
	return nil
}
