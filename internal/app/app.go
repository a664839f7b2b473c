package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/orderdeck/promo-service/internal/domain/loyalty"
	"github.com/orderdeck/promo-service/internal/domain/promotion"
	"github.com/orderdeck/promo-service/internal/domain/redemption"
	"github.com/orderdeck/promo-service/internal/handler"
	"github.com/orderdeck/promo-service/internal/storage/postgres"
	"github.com/orderdeck/promo-service/pkg/health"
	"github.com/orderdeck/promo-service/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	promoRepo := postgres.NewPromotionRepository(pool)
	redemptionRepo := postgres.NewRedemptionRepository(pool)
	loyaltyRepo := postgres.NewLoyaltyRepository(pool)

	// Domain services.
	promoService := promotion.NewService(promoRepo)
	recorder := redemption.NewRecorder(redemptionRepo)
	loyaltyService := loyalty.NewService(loyaltyRepo, cfg.Loyalty.EarnRate)

	// HTTP handlers.
	h := handler.New(promoService, recorder, loyaltyService)

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", h.Routes()))

	instrumented := otelhttp.NewHandler(mux, "promo-api",
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
	)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(instrumented,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			rateLimiter(ctx, cfg, pool),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// rateLimiter builds the rate limit middleware. With shared counters enabled
// the limit is enforced across every running instance through the database;
// otherwise each process keeps its own in-memory window.
func rateLimiter(ctx context.Context, cfg *Config, pool *pgxpool.Pool) httpmiddleware.Middleware {
	mwCfg := httpmiddleware.RateLimitConfig{
		Max:    cfg.RateLimit.Max,
		Window: cfg.RateLimit.Window,
	}
	if !cfg.RateLimit.Shared {
		return httpmiddleware.RateLimitWithCleanup(ctx, mwCfg)
	}

	store := postgres.NewRateCounterStore(pool)
	mwCfg.Store = store

	// Evict old counter rows in the background.
	go func() {
		ticker := time.NewTicker(2 * cfg.RateLimit.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if err := store.Cleanup(ctx, now.Add(-2*cfg.RateLimit.Window)); err != nil {
					zctx.From(ctx).Warn("Rate counter cleanup failed", zap.Error(err))
				}
			}
		}
	}()
	return httpmiddleware.RateLimit(mwCfg)
}
