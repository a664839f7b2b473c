package redemption

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrCapExhausted is returned when the promotion's global redemption cap
	// was consumed by a concurrent confirmation between validation and
	// recording. The caller must drop the discount or re-validate.
	ErrCapExhausted = errors.New("promotion redemption cap exhausted")
)

// Redemption links a promotion, a customer, and a confirmed order. It is
// created once at checkout completion and never mutated; voiding on refund is
// handled upstream.
type Redemption struct {
	ID             string
	TenantID       string
	PromotionID    string
	CustomerID     string
	OrderID        string
	DiscountAmount decimal.Decimal
	CreatedAt      time.Time
	Voided         bool
}

// Repository persists redemptions.
type Repository interface {
	// Record inserts the redemption and increments the promotion's redemption
	// counter in one atomic step. The counter increment is conditional on the
	// cap not being reached; exhaustion returns ErrCapExhausted and leaves no
	// side effects. When the (promotion, order) pair was already recorded the
	// existing redemption is returned unchanged.
	Record(ctx context.Context, r *Redemption) (*Redemption, error)
}

// Recorder records confirmed promotion redemptions. Recording is idempotent
// on the order id, so a retried confirmation never double-increments the
// promotion counters.
type Recorder struct {
	repo Repository
	now  func() time.Time
}

// NewRecorder creates a Recorder backed by the given repository.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo, now: time.Now}
}

// Record persists one redemption for a confirmed order.
func (rec *Recorder) Record(ctx context.Context, tenantID, promotionID, customerID, orderID string, discount decimal.Decimal) (*Redemption, error) {
	switch {
	case tenantID == "":
		return nil, errors.New("tenant id is required")
	case promotionID == "":
		return nil, errors.New("promotion id is required")
	case orderID == "":
		return nil, errors.New("order id is required")
	case discount.IsNegative():
		return nil, errors.New("discount amount must not be negative")
	}

	r := &Redemption{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		PromotionID:    promotionID,
		CustomerID:     customerID,
		OrderID:        orderID,
		DiscountAmount: discount.Round(2),
		CreatedAt:      rec.now(),
	}

	stored, err := rec.repo.Record(ctx, r)
	if err != nil {
		if errors.Is(err, ErrCapExhausted) {
			return nil, ErrCapExhausted
		}
		return nil, errors.Wrap(err, "record redemption")
	}
	return stored, nil
}
