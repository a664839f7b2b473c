package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/orderdeck/promo-service/internal/domain/promotion"
	"github.com/orderdeck/promo-service/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		tenantID    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&tenantID, "tenant", "demo", "tenant id to seed promotions for")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, tenantID); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, tenantID string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewPromotionRepository(pool)

	if err := seedPromotions(ctx, repo, tenantID); err != nil {
		return errors.Wrap(err, "seed promotions")
	}
	return nil
}

func seedPromotions(ctx context.Context, repo *postgres.PromotionRepository, tenantID string) error {
	slog.Info("seeding demo promotions", slog.String("tenant", tenantID))

	now := time.Now().Truncate(time.Hour)
	summerEnd := now.AddDate(0, 3, 0)

	promos := []promotion.Promotion{
		{
			ID:             tenantID + "-summer20",
			TenantID:       tenantID,
			Name:           "Summer special: 20% off",
			Code:           "SUMMER20",
			Benefit:        promotion.PercentOff{Percent: decimal.NewFromInt(20)},
			MinOrderAmount: decimal.NewFromInt(25),
			ValidFrom:      now,
			ValidUntil:     &summerEnd,
			MaxPerCustomer: 3,
			Active:         true,
		},
		{
			ID:        tenantID + "-freedel",
			TenantID:  tenantID,
			Name:      "Free delivery on every order",
			Benefit:   promotion.FreeDelivery{},
			ValidFrom: now,
			AutoApply: true,
			Active:    true,
			Stackable: true,
		},
		{
			ID:        tenantID + "-bogo",
			TenantID:  tenantID,
			Name:      "Buy one get one free",
			Code:      "BOGO",
			Benefit:   promotion.BuyXGetY{Buy: 2, Get: 1},
			ValidFrom: now,
			Active:    true,
		},
		{
			ID:             tenantID + "-save5",
			TenantID:       tenantID,
			Name:           "$5 off orders over $30",
			Code:           "SAVE5",
			Benefit:        promotion.AmountOff{Amount: decimal.NewFromInt(5)},
			MinOrderAmount: decimal.NewFromInt(30),
			ValidFrom:      now,
			Active:         true,
			Stackable:      true,
		},
	}

	for i := range promos {
		p := &promos[i]
		if err := repo.InsertPromotion(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert promotion %s", p.ID)
		}
		slog.Info("upserted promotion", slog.String("id", p.ID), slog.String("name", p.Name))
	}
	return nil
}
