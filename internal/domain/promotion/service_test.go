package promotion

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	promos    []Promotion
	counts    map[string]int
	findErr   error
	listErr   error
	findCalls int
	listCalls int
}

func (m *mockRepo) FindByCode(_ context.Context, tenantID, code string) (*Promotion, error) {
	m.findCalls++
	if m.findErr != nil {
		return nil, m.findErr
	}
	for i := range m.promos {
		p := &m.promos[i]
		if p.TenantID == tenantID && NormalizeCode(p.Code) == code {
			return p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) ListAutoApply(_ context.Context, tenantID string, _ time.Time) ([]Promotion, error) {
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []Promotion
	for _, p := range m.promos {
		if p.TenantID == tenantID && p.AutoApply && p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockRepo) CustomerRedemptionCounts(_ context.Context, _, _ string, _ []string) (map[string]int, error) {
	return m.counts, nil
}

func newFixedService(repo *mockRepo, now time.Time) *Service {
	s := NewService(repo)
	s.now = func() time.Time { return now }
	return s
}

func summerPromo() Promotion {
	return Promotion{
		ID:             "promo-summer",
		TenantID:       "t1",
		Name:           "Summer special",
		Code:           "SUMMER20",
		Benefit:        PercentOff{Percent: decimal.NewFromInt(20)},
		MinOrderAmount: decimal.NewFromInt(25),
		ValidFrom:      time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		Active:         true,
	}
}

func TestService_Validate(t *testing.T) {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

	t.Run("valid code yields discount preview", func(t *testing.T) {
		repo := &mockRepo{promos: []Promotion{summerPromo()}}
		svc := newFixedService(repo, now)

		result, err := svc.Validate(context.Background(), "t1", "SUMMER20", Cart{Subtotal: d("30")}, "", false)
		require.NoError(t, err)

		assert.True(t, result.Valid)
		assert.Equal(t, "promo-summer", result.PromotionID)
		assert.True(t, d("6").Equal(result.DiscountPreview), "got %s", result.DiscountPreview)
		assert.True(t, d("24").Equal(result.Calculation.AdjustedSubtotal))
	})

	t.Run("below minimum reports reason", func(t *testing.T) {
		repo := &mockRepo{promos: []Promotion{summerPromo()}}
		svc := newFixedService(repo, now)

		result, err := svc.Validate(context.Background(), "t1", "SUMMER20", Cart{Subtotal: d("20")}, "", false)
		require.NoError(t, err)

		assert.False(t, result.Valid)
		assert.Equal(t, ReasonBelowMinimum, result.Reason)
	})

	t.Run("exhausted global cap reports reason", func(t *testing.T) {
		p := summerPromo()
		p.MaxTotal = 1
		p.TotalRedemptions = 1
		repo := &mockRepo{promos: []Promotion{p}}
		svc := newFixedService(repo, now)

		result, err := svc.Validate(context.Background(), "t1", "SUMMER20", Cart{Subtotal: d("30")}, "", false)
		require.NoError(t, err)

		assert.False(t, result.Valid)
		assert.Equal(t, ReasonGlobalLimit, result.Reason)
	})

	t.Run("unknown code reports NOT_FOUND", func(t *testing.T) {
		repo := &mockRepo{}
		svc := newFixedService(repo, now)

		result, err := svc.Validate(context.Background(), "t1", "NOPE", Cart{Subtotal: d("30")}, "", false)
		require.NoError(t, err)

		assert.False(t, result.Valid)
		assert.Equal(t, ReasonNotFound, result.Reason)
	})

	t.Run("customer cap uses prior redemption counts", func(t *testing.T) {
		p := summerPromo()
		p.MaxPerCustomer = 1
		repo := &mockRepo{
			promos: []Promotion{p},
			counts: map[string]int{"promo-summer": 1},
		}
		svc := newFixedService(repo, now)

		result, err := svc.Validate(context.Background(), "t1", "SUMMER20", Cart{Subtotal: d("30")}, "cust-1", false)
		require.NoError(t, err)

		assert.False(t, result.Valid)
		assert.Equal(t, ReasonCustomerLimit, result.Reason)
	})

	t.Run("empty code previews auto-apply promotions", func(t *testing.T) {
		auto := Promotion{
			ID:        "promo-auto",
			TenantID:  "t1",
			Name:      "10% off everything",
			Benefit:   PercentOff{Percent: decimal.NewFromInt(10)},
			ValidFrom: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
			AutoApply: true,
			Active:    true,
			Stackable: true,
		}
		repo := &mockRepo{promos: []Promotion{auto}}
		svc := newFixedService(repo, now)

		result, err := svc.Validate(context.Background(), "t1", "", Cart{Subtotal: d("50")}, "", false)
		require.NoError(t, err)

		assert.True(t, result.Valid)
		assert.True(t, d("5").Equal(result.DiscountPreview), "got %s", result.DiscountPreview)
	})

	t.Run("malformed request fails before any lookup", func(t *testing.T) {
		repo := &mockRepo{}
		svc := newFixedService(repo, now)

		_, err := svc.Validate(context.Background(), "", "SUMMER20", Cart{Subtotal: d("30")}, "", false)

		var invalid *InvalidRequestError
		require.ErrorAs(t, err, &invalid)
		assert.Zero(t, repo.findCalls)
		assert.Zero(t, repo.listCalls)
	})

	t.Run("negative subtotal fails before any lookup", func(t *testing.T) {
		repo := &mockRepo{}
		svc := newFixedService(repo, now)

		_, err := svc.Validate(context.Background(), "t1", "SUMMER20", Cart{Subtotal: d("-1")}, "", false)

		var invalid *InvalidRequestError
		require.ErrorAs(t, err, &invalid)
		assert.Zero(t, repo.findCalls)
	})

	t.Run("datastore failure surfaces as error, not not-found", func(t *testing.T) {
		repo := &mockRepo{listErr: errors.New("connection refused")}
		svc := newFixedService(repo, now)

		_, err := svc.Validate(context.Background(), "t1", "SUMMER20", Cart{Subtotal: d("30")}, "", false)
		require.Error(t, err)

		var invalid *InvalidRequestError
		assert.False(t, errors.As(err, &invalid))
		assert.False(t, errors.Is(err, ErrNotFound))
	})
}

func TestService_ListAvailable(t *testing.T) {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	auto := Promotion{
		ID:        "promo-auto",
		TenantID:  "t1",
		Name:      "Free delivery",
		Benefit:   FreeDelivery{},
		ValidFrom: now.Add(-time.Hour),
		AutoApply: true,
		Active:    true,
	}
	gated := summerPromo()

	repo := &mockRepo{promos: []Promotion{auto, gated}}
	svc := newFixedService(repo, now)

	promos, err := svc.ListAvailable(context.Background(), "t1")
	require.NoError(t, err)

	require.Len(t, promos, 1, "code-gated promotions stay off suggestion surfaces")
	assert.Equal(t, "promo-auto", promos[0].ID)
}

func TestService_Recalculate(t *testing.T) {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

	pct := summerPromo()
	pct.Stackable = true
	pct.MinOrderAmount = decimal.Zero
	amt := Promotion{
		ID:        "promo-save5",
		TenantID:  "t1",
		Name:      "$5 off",
		Code:      "SAVE5",
		Benefit:   AmountOff{Amount: decimal.NewFromInt(5)},
		ValidFrom: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		Active:    true,
		Stackable: true,
	}

	t.Run("re-derives the full calculation", func(t *testing.T) {
		repo := &mockRepo{promos: []Promotion{pct, amt}}
		svc := newFixedService(repo, now)

		calc, err := svc.Recalculate(context.Background(), "t1",
			Cart{Subtotal: d("100")}, []string{"SUMMER20", "SAVE5"}, "", false)
		require.NoError(t, err)

		require.Len(t, calc.Applied, 2)
		assert.True(t, d("25").Equal(calc.TotalDiscount), "got %s", calc.TotalDiscount)
		assert.True(t, d("75").Equal(calc.AdjustedSubtotal))
	})

	t.Run("same inputs yield the same calculation", func(t *testing.T) {
		repo := &mockRepo{promos: []Promotion{pct, amt}}
		svc := newFixedService(repo, now)

		first, err := svc.Recalculate(context.Background(), "t1",
			Cart{Subtotal: d("100")}, []string{"SUMMER20", "SAVE5"}, "", false)
		require.NoError(t, err)
		second, err := svc.Recalculate(context.Background(), "t1",
			Cart{Subtotal: d("100")}, []string{"SAVE5", "SUMMER20"}, "", false)
		require.NoError(t, err)

		assert.True(t, first.TotalDiscount.Equal(second.TotalDiscount))
		assert.True(t, first.AdjustedSubtotal.Equal(second.AdjustedSubtotal))
		require.Equal(t, len(first.Applied), len(second.Applied))
		for i := range first.Applied {
			assert.Equal(t, first.Applied[i].PromotionID, second.Applied[i].PromotionID)
		}
	})

	t.Run("unknown codes become rejections, not failures", func(t *testing.T) {
		repo := &mockRepo{promos: []Promotion{amt}}
		svc := newFixedService(repo, now)

		calc, err := svc.Recalculate(context.Background(), "t1",
			Cart{Subtotal: d("100")}, []string{"SAVE5", "GHOST"}, "", false)
		require.NoError(t, err)

		require.Len(t, calc.Applied, 1)
		found := false
		for _, r := range calc.Rejected {
			if r.Code == "GHOST" {
				found = true
				assert.Equal(t, ReasonNotFound, r.Reason)
			}
		}
		assert.True(t, found, "GHOST should be rejected with NOT_FOUND")
	})

	t.Run("duplicate codes apply once", func(t *testing.T) {
		repo := &mockRepo{promos: []Promotion{amt}}
		svc := newFixedService(repo, now)

		calc, err := svc.Recalculate(context.Background(), "t1",
			Cart{Subtotal: d("100")}, []string{"SAVE5", "save5"}, "", false)
		require.NoError(t, err)

		require.Len(t, calc.Applied, 1)
		assert.True(t, d("5").Equal(calc.TotalDiscount))
	})
}
