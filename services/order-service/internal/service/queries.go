package service

import (
	"context"

	"bookstore-system/services/order-service/internal/domain"

	"github.com/shopspring/decimal"
)

const recentOrdersInSummary = 5

type OrderSummary struct {
	TotalOrders  int
	TotalSpent   decimal.Decimal
	RecentOrders []*domain.Order
}

func (s *OrderService) GetOrder(ctx context.Context, userID string, id int64) (*domain.Order, error) {
	order, err := s.store.Orders().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.OwnedBy(userID) {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

// ListUserOrders returns the user's orders, newest first.
func (s *OrderService) ListUserOrders(ctx context.Context, userID string) ([]*domain.Order, error) {
	return s.store.Orders().ListByUser(ctx, userID)
}

// Summary counts and sums only orders that were paid and not taken back
// (Processing and Delivered). RecentOrders holds the newest orders of any
// status.
func (s *OrderService) Summary(ctx context.Context, userID string) (*OrderSummary, error) {
	orders, err := s.store.Orders().ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	sum := &OrderSummary{TotalSpent: decimal.Zero}
	for _, o := range orders {
		if o.Counted() {
			sum.TotalOrders++
			sum.TotalSpent = sum.TotalSpent.Add(o.TotalAmount)
		}
	}
	n := min(len(orders), recentOrdersInSummary)
	sum.RecentOrders = orders[:n]
	return sum, nil
}

func (s *OrderService) ListAllOrders(ctx context.Context) ([]*domain.Order, error) {
	return s.store.Orders().ListAll(ctx)
}
