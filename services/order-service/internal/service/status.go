package service

import (
	"context"
	"time"

	"bookstore-system/services/order-service/internal/domain"
)

// UpdateStatus moves an order through its lifecycle. Customers may act only
// on their own orders and only within their row of the transition table;
// admins may act on any order.
func (s *OrderService) UpdateStatus(ctx context.Context, p domain.Principal, orderID int64, to domain.OrderStatus) (*domain.Order, error) {
	var (
		order   *domain.Order
		from    domain.OrderStatus
		changed bool
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		o, err := tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !p.IsAdmin() && !o.OwnedBy(p.UserID) {
			return domain.ErrOrderNotFound
		}
		if err := s.machine.Check(o.Status, to, p.Role()); err != nil {
			return err
		}
		order, from = o, o.Status
		if from == to {
			return nil
		}

		if o.TransitionTo(to, s.now()) {
			if err := releaseItems(ctx, tx.Books(), o.Items); err != nil {
				return err
			}
		}
		changed = true
		return tx.Orders().Update(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return order, nil
	}

	s.logger.Info("order status changed",
		"order_id", order.ID, "from", from.String(), "to", to.String(), "by", p.UserID)
	s.publish(ctx, domain.TopicOrderStatusChanged, order, func(ev *domain.OrderEvent) {
		ev.PrevStatus = from.String()
	})
	if (to == domain.Cancelled || to == domain.Refunded) && order.Paid() {
		s.publish(ctx, domain.TopicRefundRequested, order, func(ev *domain.OrderEvent) {
			ev.Amount = &order.TotalAmount
			ev.TransactionID = *order.PaymentTransactionID
			ev.PrevStatus = from.String()
		})
	}
	return order, nil
}

// CancelExpiredOrders cancels up to limit Pending orders created more than
// ttl ago and gives their stock back.
func (s *OrderService) CancelExpiredOrders(ctx context.Context, ttl time.Duration, limit int) (int, error) {
	now := s.now()
	var cancelled []*domain.Order
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		expired, err := tx.Orders().FindExpiredOrders(ctx, now.Add(-ttl), limit)
		if err != nil {
			return err
		}
		for _, o := range expired {
			if o.TransitionTo(domain.Cancelled, now) {
				if err := releaseItems(ctx, tx.Books(), o.Items); err != nil {
					return err
				}
			}
			if err := tx.Orders().Update(ctx, o); err != nil {
				return err
			}
			cancelled = append(cancelled, o)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, o := range cancelled {
		s.publish(ctx, domain.TopicOrderCancelled, o, func(ev *domain.OrderEvent) {
			ev.PrevStatus = domain.Pending.String()
			ev.Reason = "payment_timeout"
		})
	}
	return len(cancelled), nil
}
