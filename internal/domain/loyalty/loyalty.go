package loyalty

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Tier is a customer's loyalty tier, derived from lifetime earned points.
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// Lifetime earned point thresholds for each tier.
const (
	silverThreshold   = 500
	goldThreshold     = 1500
	platinumThreshold = 4000
)

// TierFor returns the tier a lifetime earned total qualifies for.
func TierFor(totalEarned int64) Tier {
	switch {
	case totalEarned >= platinumThreshold:
		return TierPlatinum
	case totalEarned >= goldThreshold:
		return TierGold
	case totalEarned >= silverThreshold:
		return TierSilver
	default:
		return TierBronze
	}
}

// ErrInsufficientPoints is returned when a redemption asks for more points
// than the account balance holds.
var ErrInsufficientPoints = errors.New("insufficient loyalty points")

// Account is a customer's loyalty balance within one tenant. Tier is derived
// from TotalEarned, never stored.
type Account struct {
	TenantID      string
	CustomerID    string
	Points        int64
	TotalEarned   int64
	TotalRedeemed int64
	Tier          Tier
	UpdatedAt     time.Time
}

// Transaction is one points movement, positive for accrual and negative for
// redemption. ReferenceID makes accruals idempotent per order.
type Transaction struct {
	ID          string
	TenantID    string
	CustomerID  string
	Delta       int64
	Reason      string
	ReferenceID string
	CreatedAt   time.Time
}

// Repository persists loyalty accounts and their transactions.
type Repository interface {
	// Get returns the account, or a zero-balance account when none exists yet.
	Get(ctx context.Context, tenantID, customerID string) (*Account, error)
	// Accrue credits points. Idempotent on (tenant, reference): a duplicate
	// reference returns the current account without crediting again.
	Accrue(ctx context.Context, tx Transaction) (*Account, error)
	// Redeem debits points with an atomic conditional decrement; returns
	// ErrInsufficientPoints when the balance is short.
	Redeem(ctx context.Context, tx Transaction) (*Account, error)
}
