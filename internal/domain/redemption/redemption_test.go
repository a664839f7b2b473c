package redemption

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capRepo is an in-memory Repository enforcing a global cap and
// (promotion, order) idempotency the way the real store does.
type capRepo struct {
	mu      sync.Mutex
	limit   int
	count   int
	byOrder map[string]*Redemption
	err     error
}

func newCapRepo(limit int) *capRepo {
	return &capRepo{limit: limit, byOrder: make(map[string]*Redemption)}
}

func (m *capRepo) Record(_ context.Context, r *Redemption) (*Redemption, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := r.PromotionID + "/" + r.OrderID
	if existing, ok := m.byOrder[key]; ok {
		return existing, nil
	}
	if m.limit > 0 && m.count >= m.limit {
		return nil, ErrCapExhausted
	}
	m.count++
	stored := *r
	m.byOrder[key] = &stored
	return &stored, nil
}

func TestRecorder_Record(t *testing.T) {
	repo := newCapRepo(0)
	rec := NewRecorder(repo)

	r, err := rec.Record(context.Background(), "t1", "promo-1", "cust-1", "order-1", d("6.004"))
	require.NoError(t, err)

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "promo-1", r.PromotionID)
	assert.Equal(t, "order-1", r.OrderID)
	assert.True(t, d("6.00").Equal(r.DiscountAmount), "amount rounded to currency precision, got %s", r.DiscountAmount)
	assert.False(t, r.CreatedAt.IsZero())
}

func TestRecorder_Record_Validation(t *testing.T) {
	rec := NewRecorder(newCapRepo(0))

	tests := []struct {
		name                                   string
		tenantID, promotionID, orderID, amount string
	}{
		{name: "missing tenant", promotionID: "p", orderID: "o", amount: "1"},
		{name: "missing promotion", tenantID: "t", orderID: "o", amount: "1"},
		{name: "missing order", tenantID: "t", promotionID: "p", amount: "1"},
		{name: "negative amount", tenantID: "t", promotionID: "p", orderID: "o", amount: "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rec.Record(context.Background(), tt.tenantID, tt.promotionID, "", tt.orderID, d(tt.amount))
			assert.Error(t, err)
		})
	}
}

func TestRecorder_Record_Idempotent(t *testing.T) {
	repo := newCapRepo(1)
	rec := NewRecorder(repo)

	first, err := rec.Record(context.Background(), "t1", "promo-1", "cust-1", "order-1", d("5"))
	require.NoError(t, err)

	// A retried confirmation returns the original redemption and does not
	// consume more of the cap.
	second, err := rec.Record(context.Background(), "t1", "promo-1", "cust-1", "order-1", d("5"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, repo.count)
}

func TestRecorder_Record_CapExhausted(t *testing.T) {
	repo := newCapRepo(1)
	rec := NewRecorder(repo)

	_, err := rec.Record(context.Background(), "t1", "promo-1", "", "order-1", d("5"))
	require.NoError(t, err)

	_, err = rec.Record(context.Background(), "t1", "promo-1", "", "order-2", d("5"))
	assert.ErrorIs(t, err, ErrCapExhausted)
}

// With cap N and N+5 concurrent confirmations, exactly N succeed and the rest
// fail with ErrCapExhausted.
func TestRecorder_Record_ConcurrentCap(t *testing.T) {
	const limit = 20

	repo := newCapRepo(limit)
	rec := NewRecorder(repo)

	results := make(chan error, limit+5)
	var wg sync.WaitGroup
	for i := range limit + 5 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			orderID := "order-" + string(rune('a'+n/26)) + string(rune('a'+n%26))
			_, err := rec.Record(context.Background(), "t1", "promo-1", "", orderID, d("5"))
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var succeeded, exhausted int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrCapExhausted):
			exhausted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, limit, succeeded)
	assert.Equal(t, 5, exhausted)
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
