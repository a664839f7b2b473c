package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orderdeck/promo-service/internal/domain/loyalty"
)

const (
	getLoyaltyAccountSQL = `SELECT tenant_id, customer_id, points_balance, total_earned,
		total_redeemed, updated_at
		FROM loyalty_accounts WHERE tenant_id = $1 AND customer_id = $2`

	insertLoyaltyTxSQL = `INSERT INTO loyalty_transactions
		(id, tenant_id, customer_id, delta, reason, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, reference_id) DO NOTHING`

	accrueLoyaltySQL = `INSERT INTO loyalty_accounts
		(tenant_id, customer_id, points_balance, total_earned, updated_at)
		VALUES ($1, $2, $3, $3, $4)
		ON CONFLICT (tenant_id, customer_id) DO UPDATE SET
			points_balance = loyalty_accounts.points_balance + EXCLUDED.points_balance,
			total_earned = loyalty_accounts.total_earned + EXCLUDED.total_earned,
			updated_at = EXCLUDED.updated_at
		RETURNING tenant_id, customer_id, points_balance, total_earned, total_redeemed, updated_at`

	// Conditional decrement: only debits while the balance covers the points.
	redeemLoyaltySQL = `UPDATE loyalty_accounts
		SET points_balance = points_balance - $3,
			total_redeemed = total_redeemed + $3,
			updated_at = $4
		WHERE tenant_id = $1 AND customer_id = $2 AND points_balance >= $3
		RETURNING tenant_id, customer_id, points_balance, total_earned, total_redeemed, updated_at`
)

var _ loyalty.Repository = (*LoyaltyRepository)(nil)

// LoyaltyRepository implements loyalty.Repository backed by PostgreSQL.
type LoyaltyRepository struct {
	pool *pgxpool.Pool
}

// NewLoyaltyRepository returns a LoyaltyRepository that uses the given pool.
func NewLoyaltyRepository(pool *pgxpool.Pool) *LoyaltyRepository {
	return &LoyaltyRepository{pool: pool}
}

// Get returns the account, or a zero-balance account when the customer has
// no loyalty history yet.
func (r *LoyaltyRepository) Get(ctx context.Context, tenantID, customerID string) (*loyalty.Account, error) {
	acc, err := retryRead(ctx, func(ctx context.Context) (loyalty.Account, error) {
		rows, err := r.pool.Query(ctx, getLoyaltyAccountSQL, tenantID, customerID)
		if err != nil {
			return loyalty.Account{}, err
		}
		return pgx.CollectExactlyOneRow(rows, scanLoyaltyAccount)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &loyalty.Account{TenantID: tenantID, CustomerID: customerID}, nil
		}
		return nil, fmt.Errorf("finding loyalty account for customer %q: %w", customerID, err)
	}
	return &acc, nil
}

// Accrue credits points inside one transaction. The transaction insert is the
// idempotency gate: a duplicate (tenant, reference) pair skips the credit and
// returns the current account.
func (r *LoyaltyRepository) Accrue(ctx context.Context, ltx loyalty.Transaction) (*loyalty.Account, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning accrual transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, insertLoyaltyTxSQL,
		ltx.ID, ltx.TenantID, ltx.CustomerID, ltx.Delta, ltx.Reason, ltx.ReferenceID, ltx.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting loyalty transaction %q: %w", ltx.ID, err)
	}

	if tag.RowsAffected() == 0 {
		rows, err := tx.Query(ctx, getLoyaltyAccountSQL, ltx.TenantID, ltx.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("finding loyalty account for customer %q: %w", ltx.CustomerID, err)
		}
		acc, err := pgx.CollectExactlyOneRow(rows, scanLoyaltyAccount)
		if err != nil {
			return nil, fmt.Errorf("finding loyalty account for customer %q: %w", ltx.CustomerID, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("committing accrual lookup: %w", err)
		}
		return &acc, nil
	}

	rows, err := tx.Query(ctx, accrueLoyaltySQL, ltx.TenantID, ltx.CustomerID, ltx.Delta, ltx.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("crediting loyalty points for customer %q: %w", ltx.CustomerID, err)
	}
	acc, err := pgx.CollectExactlyOneRow(rows, scanLoyaltyAccount)
	if err != nil {
		return nil, fmt.Errorf("crediting loyalty points for customer %q: %w", ltx.CustomerID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing accrual for customer %q: %w", ltx.CustomerID, err)
	}
	return &acc, nil
}

// Redeem debits points with a conditional decrement; an uncovered balance
// rolls the transaction back and returns loyalty.ErrInsufficientPoints.
func (r *LoyaltyRepository) Redeem(ctx context.Context, ltx loyalty.Transaction) (*loyalty.Account, error) {
	points := -ltx.Delta
	if points <= 0 {
		return nil, fmt.Errorf("redeem delta must be negative, got %d", ltx.Delta)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning redeem transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, insertLoyaltyTxSQL,
		ltx.ID, ltx.TenantID, ltx.CustomerID, ltx.Delta, ltx.Reason, ltx.ReferenceID, ltx.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("inserting loyalty transaction %q: %w", ltx.ID, err)
	}

	rows, err := tx.Query(ctx, redeemLoyaltySQL, ltx.TenantID, ltx.CustomerID, points, ltx.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("debiting loyalty points for customer %q: %w", ltx.CustomerID, err)
	}
	acc, err := pgx.CollectExactlyOneRow(rows, scanLoyaltyAccount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, loyalty.ErrInsufficientPoints
		}
		return nil, fmt.Errorf("debiting loyalty points for customer %q: %w", ltx.CustomerID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing redeem for customer %q: %w", ltx.CustomerID, err)
	}
	return &acc, nil
}

func scanLoyaltyAccount(row pgx.CollectableRow) (loyalty.Account, error) {
	var acc loyalty.Account
	err := row.Scan(&acc.TenantID, &acc.CustomerID, &acc.Points, &acc.TotalEarned,
		&acc.TotalRedeemed, &acc.UpdatedAt)
	return acc, err
}
