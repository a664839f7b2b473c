package loyalty

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultEarnRate is the points credited per currency unit of the
// post-discount order total.
const DefaultEarnRate = 10

// redeemRate is the points required per currency unit of discount.
const redeemRate = 100

// Service implements loyalty accrual and redemption on top of a Repository.
type Service struct {
	repo     Repository
	earnRate int64
	now      func() time.Time
}

// NewService creates a loyalty Service. A non-positive earnRate falls back to
// DefaultEarnRate.
func NewService(repo Repository, earnRate int64) *Service {
	if earnRate <= 0 {
		earnRate = DefaultEarnRate
	}
	return &Service{repo: repo, earnRate: earnRate, now: time.Now}
}

// Get returns the customer's account with the derived tier.
func (s *Service) Get(ctx context.Context, tenantID, customerID string) (*Account, error) {
	if tenantID == "" || customerID == "" {
		return nil, errors.New("tenant id and customer id are required")
	}
	acc, err := s.repo.Get(ctx, tenantID, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "get loyalty account")
	}
	acc.Tier = TierFor(acc.TotalEarned)
	return acc, nil
}

// Accrue credits points for a confirmed order: floor(orderTotal * earnRate).
// Idempotent on orderID; a retried confirmation credits nothing extra.
// Returns the updated account and the points earned by this call.
func (s *Service) Accrue(ctx context.Context, tenantID, customerID, orderID string, orderTotal decimal.Decimal) (*Account, int64, error) {
	switch {
	case tenantID == "" || customerID == "":
		return nil, 0, errors.New("tenant id and customer id are required")
	case orderID == "":
		return nil, 0, errors.New("order id is required")
	case orderTotal.IsNegative():
		return nil, 0, errors.New("order total must not be negative")
	}

	points := orderTotal.Mul(decimal.NewFromInt(s.earnRate)).Floor().IntPart()
	acc, err := s.repo.Accrue(ctx, Transaction{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		CustomerID:  customerID,
		Delta:       points,
		Reason:      "order",
		ReferenceID: orderID,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return nil, 0, errors.Wrap(err, "accrue loyalty points")
	}
	acc.Tier = TierFor(acc.TotalEarned)
	return acc, points, nil
}

// Redeem debits points and returns the discount value they are worth
// (100 points = 1 currency unit).
func (s *Service) Redeem(ctx context.Context, tenantID, customerID string, points int64) (*Account, decimal.Decimal, error) {
	switch {
	case tenantID == "" || customerID == "":
		return nil, decimal.Zero, errors.New("tenant id and customer id are required")
	case points <= 0:
		return nil, decimal.Zero, errors.New("points must be greater than 0")
	}

	acc, err := s.repo.Redeem(ctx, Transaction{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		CustomerID: customerID,
		Delta:      -points,
		Reason:     "redeem",
		// The transaction id doubles as the reference for debits; accrual
		// idempotency only applies to order references.
		ReferenceID: uuid.New().String(),
		CreatedAt:   s.now(),
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientPoints) {
			return nil, decimal.Zero, ErrInsufficientPoints
		}
		return nil, decimal.Zero, errors.Wrap(err, "redeem loyalty points")
	}
	acc.Tier = TierFor(acc.TotalEarned)

	value := decimal.NewFromInt(points).Div(decimal.NewFromInt(redeemRate)).Round(2)
	return acc, value, nil
}
