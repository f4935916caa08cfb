package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"budget/internal/amqp"
	"budget/internal/auth"
	"budget/internal/cache"
	"budget/internal/cli"
	"budget/internal/config"
	apphttp "budget/internal/http"
	"budget/internal/log"
	"budget/internal/metrics"
	"budget/internal/middleware/ratelimit"
	"budget/internal/services"
	"budget/internal/storage"
	"budget/internal/tenant"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg.LogLevel)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server exited with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	m := metrics.New()

	registry, err := storage.OpenRegistry(ctx, filepath.Join(cfg.DataDir, "users.db"))
	if err != nil {
		return err
	}
	defer registry.Close()

	pool, err := tenant.NewPool(tenant.Config{
		DataDir:    cfg.DataDir,
		MaxIdle:    cfg.TenantMaxIdle,
		IdleTTL:    cfg.TenantIdleTTL,
		Open:       storage.OpenSQLite,
		InitSchema: storage.EnsureTenantSchema,
	}, logger, m)
	if err != nil {
		return err
	}
	defer pool.Close()

	sessions, err := auth.NewSessions(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		return err
	}

	// Record events are optional; without a broker writes are not published.
	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			// The ledger works without the broker; events are best effort.
			logger.Warn("Record events disabled - broker unreachable", log.FieldError, err)
		} else {
			defer client.Close()
			publisher = client
			logger.Info("Record events enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("Record events disabled - no AMQP_URL provided")
	}

	ledger := services.NewLedgerService(pool, publisher, m, logger, cfg.SuggestionLimit)
	accounts := services.NewAccountService(registry, pool, sessions, m, logger)
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
	})

	caches := cache.NewManager(logger)
	caches.Register("tenant_pool", pool)
	caches.Register("session_users", accounts.UserCache())
	caches.Register("deleted_users", accounts.DeletedUsers())
	caches.Register("rate_limiter", limiter)

	srv := apphttp.NewServer(apphttp.Config{
		Addr:          cfg.Addr(),
		SecureCookies: cfg.Production,
	}, apphttp.Deps{
		Ledger:   ledger,
		Accounts: accounts,
		Metrics:  m,
		Limiter:  limiter,
		Checks:   map[string]apphttp.Check{"registry": registry.Ping},
		Logger:   logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return caches.Run(gctx, cfg.CleanupInterval)
	})
	g.Go(func() error {
		logger.Info("Starting budget server",
			"addr", cfg.Addr(),
			"data_dir", cfg.DataDir,
			"production", cfg.Production)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
