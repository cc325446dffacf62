package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/sales-ledger/internal/api"
	"github.com/xenking/sales-ledger/internal/domain/ledger"
	"github.com/xenking/sales-ledger/internal/domain/report"
	"github.com/xenking/sales-ledger/internal/storage/postgres"
	"github.com/xenking/sales-ledger/internal/storage/rediscache"
	"github.com/xenking/sales-ledger/pkg/health"
	"github.com/xenking/sales-ledger/pkg/httpmiddleware"
)

const serviceName = "sales-ledger"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m httpmiddleware.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	svc, err := newService(ctx, lg, m, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	svc.health.Start(ctx, 10*time.Second)
	svc.health.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           svc.handler,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		svc.health.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		svc.health.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// service holds the wired HTTP handler and the resources it owns.
type service struct {
	handler http.Handler
	health  *health.Health
	closers []func()
}

// Close releases the resources in reverse order of acquisition.
func (s *service) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// newService connects the stores, builds the domain services and mounts the
// routes behind the middleware chain. Health checks are registered but not
// started.
func newService(ctx context.Context, lg *zap.Logger, m httpmiddleware.Telemetry, cfg *Config) (_ *service, rerr error) {
	svc := &service{health: health.New()}
	defer func() {
		if rerr != nil {
			svc.Close()
		}
	}()

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	svc.closers = append(svc.closers, pool.Close)

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return nil, errors.Wrap(err, "run migrations")
	}

	svc.health.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool),
		health.WithFailureThreshold(2),
	)
	svc.health.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	svc.health.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))

	// Report service, cached in Redis when configured.
	var reportOpts []report.Option
	if cfg.Redis.Addr != "" {
		rdb, err := rediscache.NewClient(cfg.Redis.Addr)
		if err != nil {
			return nil, errors.Wrap(err, "create redis client")
		}
		svc.closers = append(svc.closers, func() { _ = rdb.Close() })

		svc.health.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}, health.WithFailureThreshold(3))
		reportOpts = append(reportOpts, report.WithCache(rediscache.NewSummaryCache(rdb, cfg.Redis.ReportTTL)))
		lg.Info("Report cache enabled", zap.Duration("ttl", cfg.Redis.ReportTTL))
	}
	reports := report.NewService(postgres.NewReportRepository(pool), reportOpts...)

	ledgerSvc, err := newLedger(pool, m, cfg.Ledger, reports)
	if err != nil {
		return nil, errors.Wrap(err, "create ledger")
	}

	h := api.NewHandler(
		postgres.NewProductRepository(pool),
		postgres.NewOrderRepository(pool),
		postgres.NewPaymentRepository(pool),
		ledgerSvc,
		reports,
	)

	r := chi.NewRouter()
	r.Use(
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", httpmiddleware.RequestIDHeader},
			ExposeHeaders:    []string{httpmiddleware.RequestIDHeader, "Retry-After"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Rate:    cfg.RateLimit.Rate,
			Burst:   cfg.RateLimit.Burst,
			IdleTTL: cfg.RateLimit.IdleTTL,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.Instrument(serviceName, m),
		httpmiddleware.LogRequests(),
		httpmiddleware.Labeler(),
	)
	r.Get("/livez", svc.health.LiveEndpoint)
	r.Get("/readyz", svc.health.ReadyEndpoint)
	r.Route("/api", h.Mount)

	svc.handler = r
	return svc, nil
}

// newLedger builds the ledger on the Postgres store. Every committed change
// drops the cached report summary.
func newLedger(pool *pgxpool.Pool, m httpmiddleware.Telemetry, cfg LedgerConfig, reports *report.Service) (*ledger.Service, error) {
	return ledger.New(postgres.NewLedgerStore(pool, cfg.LockTimeout),
		ledger.WithReleaseOnCancel(cfg.ReleaseOnCancel),
		ledger.WithTracerProvider(m.TracerProvider()),
		ledger.WithMeterProvider(m.MeterProvider()),
		ledger.WithHook(func(ctx context.Context, c ledger.Change) {
			reports.Invalidate(ctx)
			zctx.From(ctx).Debug("Ledger change committed",
				zap.String("kind", string(c.Kind)),
				zap.Int64("order_id", c.OrderID),
				zap.Int64s("product_ids", c.ProductIDs),
			)
		}),
	)
}
