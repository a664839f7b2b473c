package loyalty

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRepo is an in-memory Repository with reference-based accrual
// idempotency and a conditional balance decrement.
type memRepo struct {
	account *Account
	refs    map[string]bool
	err     error
}

func newMemRepo() *memRepo {
	return &memRepo{refs: make(map[string]bool)}
}

func (m *memRepo) Get(_ context.Context, tenantID, customerID string) (*Account, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.account == nil {
		return &Account{TenantID: tenantID, CustomerID: customerID}, nil
	}
	return m.account, nil
}

func (m *memRepo) Accrue(_ context.Context, tx Transaction) (*Account, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.account == nil {
		m.account = &Account{TenantID: tx.TenantID, CustomerID: tx.CustomerID}
	}
	if m.refs[tx.ReferenceID] {
		return m.account, nil
	}
	m.refs[tx.ReferenceID] = true
	m.account.Points += tx.Delta
	m.account.TotalEarned += tx.Delta
	return m.account, nil
}

func (m *memRepo) Redeem(_ context.Context, tx Transaction) (*Account, error) {
	if m.err != nil {
		return nil, m.err
	}
	points := -tx.Delta
	if m.account == nil || m.account.Points < points {
		return nil, ErrInsufficientPoints
	}
	m.account.Points -= points
	m.account.TotalRedeemed += points
	return m.account, nil
}

func TestTierFor(t *testing.T) {
	tests := []struct {
		earned int64
		want   Tier
	}{
		{earned: 0, want: TierBronze},
		{earned: 499, want: TierBronze},
		{earned: 500, want: TierSilver},
		{earned: 1499, want: TierSilver},
		{earned: 1500, want: TierGold},
		{earned: 3999, want: TierGold},
		{earned: 4000, want: TierPlatinum},
		{earned: 100000, want: TierPlatinum},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, TierFor(tt.earned), "earned=%d", tt.earned)
	}
}

func TestService_Accrue(t *testing.T) {
	t.Run("credits floor of total times rate", func(t *testing.T) {
		svc := NewService(newMemRepo(), 10)

		acc, earned, err := svc.Accrue(context.Background(), "t1", "cust-1", "order-1", decimal.RequireFromString("25.49"))
		require.NoError(t, err)

		assert.Equal(t, int64(254), earned)
		assert.Equal(t, int64(254), acc.Points)
		assert.Equal(t, TierBronze, acc.Tier)
	})

	t.Run("retried order credits nothing extra", func(t *testing.T) {
		repo := newMemRepo()
		svc := NewService(repo, 10)

		_, _, err := svc.Accrue(context.Background(), "t1", "cust-1", "order-1", decimal.NewFromInt(30))
		require.NoError(t, err)
		acc, _, err := svc.Accrue(context.Background(), "t1", "cust-1", "order-1", decimal.NewFromInt(30))
		require.NoError(t, err)

		assert.Equal(t, int64(300), acc.Points)
	})

	t.Run("tier follows lifetime earned", func(t *testing.T) {
		repo := newMemRepo()
		svc := NewService(repo, 10)

		acc, _, err := svc.Accrue(context.Background(), "t1", "cust-1", "order-1", decimal.NewFromInt(60))
		require.NoError(t, err)
		assert.Equal(t, TierSilver, acc.Tier)

		// Redeeming points does not demote the tier.
		acc, _, err = svc.Redeem(context.Background(), "t1", "cust-1", 500)
		require.NoError(t, err)
		assert.Equal(t, TierSilver, acc.Tier)
		assert.Equal(t, int64(100), acc.Points)
	})

	t.Run("zero earn rate falls back to default", func(t *testing.T) {
		svc := NewService(newMemRepo(), 0)

		_, earned, err := svc.Accrue(context.Background(), "t1", "cust-1", "order-1", decimal.NewFromInt(10))
		require.NoError(t, err)
		assert.Equal(t, int64(10*DefaultEarnRate), earned)
	})

	t.Run("rejects bad input", func(t *testing.T) {
		svc := NewService(newMemRepo(), 10)

		_, _, err := svc.Accrue(context.Background(), "", "cust-1", "order-1", decimal.NewFromInt(10))
		assert.Error(t, err)
		_, _, err = svc.Accrue(context.Background(), "t1", "cust-1", "", decimal.NewFromInt(10))
		assert.Error(t, err)
		_, _, err = svc.Accrue(context.Background(), "t1", "cust-1", "order-1", decimal.NewFromInt(-1))
		assert.Error(t, err)
	})
}

func TestService_Redeem(t *testing.T) {
	t.Run("converts points to discount value", func(t *testing.T) {
		repo := newMemRepo()
		repo.account = &Account{TenantID: "t1", CustomerID: "cust-1", Points: 500, TotalEarned: 500}
		svc := NewService(repo, 10)

		acc, value, err := svc.Redeem(context.Background(), "t1", "cust-1", 250)
		require.NoError(t, err)

		assert.True(t, decimal.RequireFromString("2.50").Equal(value), "got %s", value)
		assert.Equal(t, int64(250), acc.Points)
		assert.Equal(t, int64(250), acc.TotalRedeemed)
	})

	t.Run("insufficient balance", func(t *testing.T) {
		repo := newMemRepo()
		repo.account = &Account{TenantID: "t1", CustomerID: "cust-1", Points: 100}
		svc := NewService(repo, 10)

		_, _, err := svc.Redeem(context.Background(), "t1", "cust-1", 101)
		assert.ErrorIs(t, err, ErrInsufficientPoints)
	})

	t.Run("rejects non-positive points", func(t *testing.T) {
		svc := NewService(newMemRepo(), 10)

		_, _, err := svc.Redeem(context.Background(), "t1", "cust-1", 0)
		assert.Error(t, err)
		_, _, err = svc.Redeem(context.Background(), "t1", "cust-1", -5)
		assert.Error(t, err)
	})
}

func TestService_Get(t *testing.T) {
	t.Run("new customer gets zero bronze account", func(t *testing.T) {
		svc := NewService(newMemRepo(), 10)

		acc, err := svc.Get(context.Background(), "t1", "cust-1")
		require.NoError(t, err)

		assert.Equal(t, int64(0), acc.Points)
		assert.Equal(t, TierBronze, acc.Tier)
	})

	t.Run("requires tenant and customer", func(t *testing.T) {
		svc := NewService(newMemRepo(), 10)

		_, err := svc.Get(context.Background(), "", "cust-1")
		assert.Error(t, err)
		_, err = svc.Get(context.Background(), "t1", "")
		assert.Error(t, err)
	})
}
