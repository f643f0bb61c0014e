package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"bookstore-system/services/order-service/internal/domain"
	"bookstore-system/services/order-service/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	Auth           *middleware.Authenticator
	Logger         *slog.Logger
	RequestTimeout time.Duration

	// Redis enables rate limiting of mutating routes when set.
	Redis      *redis.Client
	RateLimit  int
	RateWindow time.Duration

	Health map[string]HealthCheck
}

func NewRouter(h *OrderHandler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(chimw.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
	}

	r.Get("/health", healthHandler(cfg.Health))

	limited := func(next http.Handler) http.Handler { return next }
	if cfg.Redis != nil && cfg.RateLimit > 0 {
		limited = middleware.RateLimit(cfg.Redis, cfg.RateLimit, cfg.RateWindow, cfg.Logger)
	}

	r.Route("/api/orders", func(r chi.Router) {
		r.Use(cfg.Auth.Authenticate)

		r.Get("/", h.ListOrders)
		r.Get("/summary", h.Summary)
		r.With(middleware.RequireRole(domain.RoleAdmin)).Get("/all", h.ListAllOrders)
		r.Get("/{id}", h.GetOrder)

		r.With(limited).Post("/", h.CreateOrder)
		r.With(limited).Post("/payment", h.ProcessPayment)
		r.With(limited).Put("/{id}/status", h.UpdateStatus)
	})
	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		report := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				report[name] = "unhealthy: " + err.Error()
				continue
			}
			report[name] = "healthy"
		}
		writeJSON(w, status, map[string]any{"status": http.StatusText(status), "checks": report})
	}
}
