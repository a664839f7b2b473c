package promotion

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind enumerates the supported promotion discount strategies.
type Kind string

const (
	// KindPercentage applies a percentage-based discount to the subtotal.
	KindPercentage Kind = "percentage"
	// KindFixedAmount applies a fixed monetary discount capped at the subtotal.
	KindFixedAmount Kind = "fixed_amount"
	// KindFreeDelivery zeroes the delivery fee; subtotal and tax are untouched.
	KindFreeDelivery Kind = "free_delivery"
	// KindBuyXGetY makes the cheapest units free for every complete group of
	// Buy eligible units.
	KindBuyXGetY Kind = "buy_x_get_y"
)

// ErrNotFound is returned when no promotion matches a submitted code.
var ErrNotFound = errors.New("promotion not found")

// Benefit is the discount shape of a promotion. The set of implementations is
// closed: exactly one per Kind, each carrying only the fields its calculation
// needs.
type Benefit interface {
	Kind() Kind
	benefit()
}

// PercentOff discounts a percentage of the subtotal.
type PercentOff struct {
	Percent decimal.Decimal
}

func (PercentOff) Kind() Kind { return KindPercentage }
func (PercentOff) benefit()   {}

// AmountOff discounts a fixed amount, capped at the subtotal.
type AmountOff struct {
	Amount decimal.Decimal
}

func (AmountOff) Kind() Kind { return KindFixedAmount }
func (AmountOff) benefit()   {}

// FreeDelivery removes the delivery fee.
type FreeDelivery struct{}

func (FreeDelivery) Kind() Kind { return KindFreeDelivery }
func (FreeDelivery) benefit()   {}

// BuyXGetY makes Get units free for every complete group of Buy eligible
// units, cheapest units first. Get defaults to 1 when non-positive.
type BuyXGetY struct {
	Buy int
	Get int
}

func (BuyXGetY) Kind() Kind { return KindBuyXGetY }
func (BuyXGetY) benefit()   {}

// Promotion is a discount campaign owned by one tenant.
type Promotion struct {
	ID       string
	TenantID string
	Name     string
	// Code is the human-entered code, matched case-insensitively.
	// Empty for promotions that have no code.
	Code    string
	Benefit Benefit
	// MinOrderAmount is the minimum eligible subtotal. Zero means no minimum.
	MinOrderAmount decimal.Decimal
	ValidFrom      time.Time
	// ValidUntil is the inclusive end of the validity window; nil = open-ended.
	ValidUntil *time.Time
	// MaxPerCustomer caps one customer's successful redemptions. Zero = uncapped.
	MaxPerCustomer int
	// MaxTotal caps redemptions across all customers. Zero = uncapped.
	MaxTotal         int
	TotalRedemptions int
	AutoApply        bool
	Active           bool
	// Stackable promotions may combine with others on the same order.
	// Non-stackable is the default and means exclusive.
	Stackable bool
}

// LineItem is one entry of a cart snapshot.
type LineItem struct {
	ItemID    string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Cart is a read-only snapshot of the customer's cart. Evaluation never
// mutates it; all calculation is a pure function of this value and the
// candidate promotions.
type Cart struct {
	Items       []LineItem
	Subtotal    decimal.Decimal
	DeliveryFee decimal.Decimal
	TaxAmount   decimal.Decimal
}

// CustomerContext identifies the initiating customer and carries their prior
// non-voided redemption counts, keyed by promotion id. A zero value means an
// anonymous customer with no redemption history.
type CustomerContext struct {
	CustomerID  string
	Redemptions map[string]int
}

// NormalizeCode upper-cases and trims a submitted promotion code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository provides tenant-scoped promotion lookups.
type Repository interface {
	// FindByCode returns the promotion matching the code, active or not.
	// Returns ErrNotFound when no promotion carries the code.
	FindByCode(ctx context.Context, tenantID, code string) (*Promotion, error)
	// ListAutoApply returns active, in-window, not capped-out auto-apply
	// promotions for the tenant.
	ListAutoApply(ctx context.Context, tenantID string, now time.Time) ([]Promotion, error)
	// CustomerRedemptionCounts returns the customer's non-voided redemption
	// counts for the given promotions, keyed by promotion id. Promotions with
	// no redemptions are absent from the map.
	CustomerRedemptionCounts(ctx context.Context, tenantID, customerID string, promotionIDs []string) (map[string]int, error)
}
