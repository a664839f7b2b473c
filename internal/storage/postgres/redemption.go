package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orderdeck/promo-service/internal/domain/redemption"
)

const (
	insertRedemptionSQL = `INSERT INTO redemptions
		(id, tenant_id, promotion_id, customer_id, order_id, discount_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (promotion_id, order_id) DO NOTHING`

	getRedemptionByOrderSQL = `SELECT id, tenant_id, promotion_id, customer_id, order_id,
		discount_amount, created_at, voided
		FROM redemptions WHERE promotion_id = $1 AND order_id = $2`

	// The conditional increment is the whole cap-enforcement story: it only
	// advances while below the cap, so concurrent confirmations can never
	// push the counter past max_total.
	incrementRedemptionsSQL = `UPDATE promotions
		SET total_redemptions = total_redemptions + 1
		WHERE id = $1 AND (max_total = 0 OR total_redemptions < max_total)`
)

var _ redemption.Repository = (*RedemptionRepository)(nil)

// RedemptionRepository implements redemption.Repository backed by PostgreSQL.
type RedemptionRepository struct {
	pool *pgxpool.Pool
}

// NewRedemptionRepository returns a RedemptionRepository that uses the given pool.
func NewRedemptionRepository(pool *pgxpool.Pool) *RedemptionRepository {
	return &RedemptionRepository{pool: pool}
}

// Record inserts the redemption and conditionally increments the promotion
// counter inside one transaction. A duplicate (promotion, order) pair returns
// the previously stored redemption; a reached cap rolls everything back and
// returns redemption.ErrCapExhausted.
func (r *RedemptionRepository) Record(ctx context.Context, red *redemption.Redemption) (*redemption.Redemption, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning redemption transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, insertRedemptionSQL,
		red.ID, red.TenantID, red.PromotionID, red.CustomerID, red.OrderID,
		red.DiscountAmount, red.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting redemption for order %q: %w", red.OrderID, err)
	}

	if tag.RowsAffected() == 0 {
		// Idempotent retry: the order was already recorded. Return the
		// existing row without touching the counter.
		existing, err := r.findByOrder(ctx, tx, red.PromotionID, red.OrderID)
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("committing redemption lookup: %w", err)
		}
		return existing, nil
	}

	tag, err = tx.Exec(ctx, incrementRedemptionsSQL, red.PromotionID)
	if err != nil {
		return nil, fmt.Errorf("incrementing redemptions for promotion %q: %w", red.PromotionID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, redemption.ErrCapExhausted
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing redemption for order %q: %w", red.OrderID, err)
	}
	return red, nil
}

func (r *RedemptionRepository) findByOrder(ctx context.Context, tx pgx.Tx, promotionID, orderID string) (*redemption.Redemption, error) {
	rows, err := tx.Query(ctx, getRedemptionByOrderSQL, promotionID, orderID)
	if err != nil {
		return nil, fmt.Errorf("finding redemption for order %q: %w", orderID, err)
	}
	red, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (redemption.Redemption, error) {
		var red redemption.Redemption
		err := row.Scan(&red.ID, &red.TenantID, &red.PromotionID, &red.CustomerID,
			&red.OrderID, &red.DiscountAmount, &red.CreatedAt, &red.Voided)
		return red, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("redemption for order %q vanished mid-transaction: %w", orderID, err)
		}
		return nil, fmt.Errorf("finding redemption for order %q: %w", orderID, err)
	}
	return &red, nil
}
