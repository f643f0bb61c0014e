// Package worker runs background jobs alongside the HTTP server.
package worker

import (
	"context"
	"log/slog"
	"time"
)

// OrderCanceller cancels pending orders older than ttl, at most limit per
// call, and reports how many it cancelled.
type OrderCanceller interface {
	CancelExpiredOrders(ctx context.Context, ttl time.Duration, limit int) (int, error)
}

// ExpirationChecker periodically cancels orders left unpaid for longer
// than TTL so their reserved stock returns to the catalog.
type ExpirationChecker struct {
	Orders   OrderCanceller
	TTL      time.Duration
	Interval time.Duration
	Batch    int
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Run blocks until ctx is cancelled.
func (c *ExpirationChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()

	c.Logger.Info("order expiration checker started", "ttl", c.TTL, "interval", c.Interval)
	for {
		select {
		case <-ctx.Done():
			c.Logger.Info("order expiration checker stopped")
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

// sweep drains every expired order, one batch per transaction.
func (c *ExpirationChecker) sweep(ctx context.Context) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	total := 0
	for ctx.Err() == nil {
		runCtx, cancel := context.WithTimeout(ctx, timeout)
		n, err := c.Orders.CancelExpiredOrders(runCtx, c.TTL, c.Batch)
		cancel()

		if err != nil {
			c.Logger.Error("error cancelling expired orders", "error", err)
			return
		}
		total += n
		if n < c.Batch {
			break
		}
	}
	if total > 0 {
		c.Logger.Info("cancelled expired orders", "count", total)
	}
}
