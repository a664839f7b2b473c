package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/orderdeck/promo-service/internal/domain/promotion"
)

const (
	promotionColumns = `id, tenant_id, name, code, kind, value, buy_quantity, get_quantity,
		min_order_amount, valid_from, valid_until, max_per_customer, max_total,
		total_redemptions, auto_apply, active, stackable`

	// The lookup deliberately ignores the active flag and validity window so
	// the evaluator can report INACTIVE / EXPIRED / NOT_YET_VALID distinctly
	// instead of a generic not-found.
	getPromotionByCodeSQL = `SELECT ` + promotionColumns + `
		FROM promotions WHERE tenant_id = $1 AND UPPER(code) = UPPER($2)`

	listAutoApplySQL = `SELECT ` + promotionColumns + `
		FROM promotions
		WHERE tenant_id = $1 AND auto_apply = TRUE AND active = TRUE
			AND valid_from <= $2 AND (valid_until IS NULL OR valid_until >= $2)
			AND (max_total = 0 OR total_redemptions < max_total)
		ORDER BY id`

	customerRedemptionCountsSQL = `SELECT promotion_id, COUNT(*)
		FROM redemptions
		WHERE tenant_id = $1 AND customer_id = $2 AND promotion_id = ANY($3) AND voided = FALSE
		GROUP BY promotion_id`
)

var _ promotion.Repository = (*PromotionRepository)(nil)

// PromotionRepository implements promotion.Repository backed by PostgreSQL.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// FindByCode looks up a promotion by its code (case-insensitive).
// Returns promotion.ErrNotFound when no promotion carries the code.
func (r *PromotionRepository) FindByCode(ctx context.Context, tenantID, code string) (*promotion.Promotion, error) {
	p, err := retryRead(ctx, func(ctx context.Context) (promotion.Promotion, error) {
		rows, err := r.pool.Query(ctx, getPromotionByCodeSQL, tenantID, code)
		if err != nil {
			return promotion.Promotion{}, err
		}
		return pgx.CollectExactlyOneRow(rows, scanPromotion)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrNotFound
		}
		return nil, fmt.Errorf("finding promotion by code %q: %w", code, err)
	}
	return &p, nil
}

// ListAutoApply returns the tenant's active, in-window, not capped-out
// auto-apply promotions.
func (r *PromotionRepository) ListAutoApply(ctx context.Context, tenantID string, now time.Time) ([]promotion.Promotion, error) {
	promos, err := retryRead(ctx, func(ctx context.Context) ([]promotion.Promotion, error) {
		rows, err := r.pool.Query(ctx, listAutoApplySQL, tenantID, now)
		if err != nil {
			return nil, err
		}
		return pgx.CollectRows(rows, scanPromotion)
	})
	if err != nil {
		return nil, fmt.Errorf("listing auto-apply promotions for tenant %q: %w", tenantID, err)
	}
	return promos, nil
}

// CustomerRedemptionCounts returns the customer's non-voided redemption
// counts for the given promotions.
func (r *PromotionRepository) CustomerRedemptionCounts(ctx context.Context, tenantID, customerID string, promotionIDs []string) (map[string]int, error) {
	counts, err := retryRead(ctx, func(ctx context.Context) (map[string]int, error) {
		rows, err := r.pool.Query(ctx, customerRedemptionCountsSQL, tenantID, customerID, promotionIDs)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		counts := make(map[string]int)
		for rows.Next() {
			var (
				id    string
				count int64
			)
			if err := rows.Scan(&id, &count); err != nil {
				return nil, err
			}
			counts[id] = int(count)
		}
		return counts, rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("counting redemptions for customer %q: %w", customerID, err)
	}
	return counts, nil
}

// InsertPromotion creates or updates a promotion row. Used by the seed and
// import tools.
func (r *PromotionRepository) InsertPromotion(ctx context.Context, p *promotion.Promotion) error {
	kind, value, buy, get := benefitColumns(p.Benefit)
	_, err := r.pool.Exec(ctx, `INSERT INTO promotions
		(id, tenant_id, name, code, kind, value, buy_quantity, get_quantity,
			min_order_amount, valid_from, valid_until, max_per_customer, max_total,
			auto_apply, active, stackable)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, code = EXCLUDED.code, kind = EXCLUDED.kind,
			value = EXCLUDED.value, buy_quantity = EXCLUDED.buy_quantity,
			get_quantity = EXCLUDED.get_quantity, min_order_amount = EXCLUDED.min_order_amount,
			valid_from = EXCLUDED.valid_from, valid_until = EXCLUDED.valid_until,
			max_per_customer = EXCLUDED.max_per_customer, max_total = EXCLUDED.max_total,
			auto_apply = EXCLUDED.auto_apply, active = EXCLUDED.active,
			stackable = EXCLUDED.stackable`,
		p.ID, p.TenantID, p.Name, p.Code, kind, value, buy, get,
		p.MinOrderAmount, p.ValidFrom, p.ValidUntil, p.MaxPerCustomer, p.MaxTotal,
		p.AutoApply, p.Active, p.Stackable,
	)
	if err != nil {
		return fmt.Errorf("inserting promotion %q: %w", p.ID, err)
	}
	return nil
}

func scanPromotion(row pgx.CollectableRow) (promotion.Promotion, error) {
	var (
		p          promotion.Promotion
		kind       string
		value      decimal.Decimal
		buy, get   int32
		perCust    int32
		maxTotal   int32
		total      int32
		validUntil *time.Time
	)
	err := row.Scan(
		&p.ID, &p.TenantID, &p.Name, &p.Code, &kind, &value, &buy, &get,
		&p.MinOrderAmount, &p.ValidFrom, &validUntil, &perCust, &maxTotal,
		&total, &p.AutoApply, &p.Active, &p.Stackable,
	)
	if err != nil {
		return promotion.Promotion{}, err
	}
	p.ValidUntil = validUntil
	p.MaxPerCustomer = int(perCust)
	p.MaxTotal = int(maxTotal)
	p.TotalRedemptions = int(total)

	p.Benefit, err = benefitFromColumns(kind, value, int(buy), int(get))
	if err != nil {
		return promotion.Promotion{}, fmt.Errorf("promotion %q: %w", p.ID, err)
	}
	return p, nil
}

// benefitFromColumns maps the flat storage columns onto the Benefit union.
func benefitFromColumns(kind string, value decimal.Decimal, buy, get int) (promotion.Benefit, error) {
	switch promotion.Kind(kind) {
	case promotion.KindPercentage:
		return promotion.PercentOff{Percent: value}, nil
	case promotion.KindFixedAmount:
		return promotion.AmountOff{Amount: value}, nil
	case promotion.KindFreeDelivery:
		return promotion.FreeDelivery{}, nil
	case promotion.KindBuyXGetY:
		return promotion.BuyXGetY{Buy: buy, Get: get}, nil
	default:
		return nil, fmt.Errorf("unsupported promotion kind %q", kind)
	}
}

func benefitColumns(b promotion.Benefit) (kind string, value decimal.Decimal, buy, get int32) {
	switch v := b.(type) {
	case promotion.PercentOff:
		return string(promotion.KindPercentage), v.Percent, 0, 0
	case promotion.AmountOff:
		return string(promotion.KindFixedAmount), v.Amount, 0, 0
	case promotion.FreeDelivery:
		return string(promotion.KindFreeDelivery), decimal.Zero, 0, 0
	case promotion.BuyXGetY:
		return string(promotion.KindBuyXGetY), decimal.Zero, int32(v.Buy), int32(v.Get)
	default:
		return "", decimal.Zero, 0, 0
	}
}
