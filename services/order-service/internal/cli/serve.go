package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"bookstore-system/services/order-service/internal/config"
	"bookstore-system/services/order-service/internal/domain"
	"bookstore-system/services/order-service/internal/events"
	"bookstore-system/services/order-service/internal/handlers"
	"bookstore-system/services/order-service/internal/middleware"
	"bookstore-system/services/order-service/internal/payment"
	"bookstore-system/services/order-service/internal/repository"
	"bookstore-system/services/order-service/internal/service"
	"bookstore-system/services/order-service/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var seedPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the order HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, logger, seedPath)
			if err != nil {
				logger.Error("failed to start order service", "error", err)
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.Error("failed to release resources", "error", err)
				}
			}()
			return a.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&seedPath, "seed", "", "YAML list of books to load into the memory store")
	return cmd
}

// app is the wired order service: HTTP server, background sweeper and
// everything that must be closed on shutdown.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	server  *http.Server
	checker *worker.ExpirationChecker
	closers []io.Closer
}

func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger, seedPath string) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	health := map[string]handlers.HealthCheck{}
	var store domain.Transactor
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		pg, err := repository.NewPostgresStore(cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, pg)
		health["postgres"] = pg.Ping
		store = pg
	case config.DriverMemory:
		mem := repository.NewMemoryStore()
		if seedPath != "" {
			n, err := loadSeed(mem, seedPath)
			if err != nil {
				return nil, fmt.Errorf("failed to seed memory store: %w", err)
			}
			logger.Info("memory store seeded", "books", n)
		}
		store = mem
	}

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		rdb = redis.NewClient(opt)
		a.closers = append(a.closers, rdb)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		health["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		store = repository.NewCachedStore(store, rdb, cfg.Redis.CacheTTL, logger)
	}

	publisher, closer, err := events.New(cfg.Events, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to start event publisher: %w", err)
	}
	a.closers = append(a.closers, closer)

	gateway := payment.NewSimulatedGateway(cfg.Payment.SuccessRate, cfg.Payment.Delay)
	orders := service.NewOrderService(store, gateway, publisher, logger)

	router := handlers.NewRouter(handlers.NewOrderHandler(orders, logger), handlers.RouterConfig{
		Auth:           middleware.NewAuthenticator(cfg.Auth),
		Logger:         logger,
		RequestTimeout: cfg.Server.RequestTimeout,
		Redis:          rdb,
		RateLimit:      cfg.Redis.RateLimit,
		RateWindow:     cfg.Redis.RateWindow,
		Health:         health,
	})
	a.server = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + cfg.Payment.Delay + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if cfg.Orders.PendingTTL > 0 {
		a.checker = &worker.ExpirationChecker{
			Orders:   orders,
			TTL:      cfg.Orders.PendingTTL,
			Interval: cfg.Orders.SweepInterval,
			Batch:    cfg.Orders.SweepBatch,
			Logger:   logger,
		}
	}
	return a, nil
}

// Run serves until ctx is cancelled or the listener fails, then drains
// in-flight requests within the shutdown timeout.
func (a *app) Run(ctx context.Context) error {
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	if a.checker != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.checker.Run(workerCtx)
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("starting order service", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
	}

	a.logger.Info("shutting down server")
	stopWorkers()
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return errors.Join(runErr, fmt.Errorf("server shutdown failed: %w", err))
	}
	if runErr == nil {
		a.logger.Info("server exited properly")
	}
	return runErr
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
