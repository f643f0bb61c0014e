package service

import (
	"context"
	"errors"
	"fmt"

	"bookstore-system/services/order-service/internal/domain"
	"bookstore-system/services/order-service/internal/payment"
)

type ProcessPaymentInput struct {
	OrderID       int64
	PaymentMethod domain.PaymentMethod
	Card          *payment.CardDetails
}

type PaymentResult struct {
	Success       bool
	TransactionID string
	ErrorMessage  string
	Order         *domain.Order
}

// errRollback aborts a transaction whose outcome is already captured in a
// PaymentResult.
var errRollback = errors.New("rollback")

// ProcessPayment charges a pending order while holding its row. On
// approval the order moves to Processing; on decline its stock is given
// back and it stays Pending, so the client can try again. A retry after a
// decline reserves the stock again before charging.
func (s *OrderService) ProcessPayment(ctx context.Context, userID string, in ProcessPaymentInput) (*PaymentResult, error) {
	if !in.PaymentMethod.Valid() {
		return nil, fmt.Errorf("%w: unknown payment method %d", domain.ErrValidation, int(in.PaymentMethod))
	}
	if in.Card != nil {
		if err := in.Card.Validate(s.now()); err != nil {
			return nil, err
		}
	}

	var result *PaymentResult
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		order, err := tx.Orders().GetForUpdate(ctx, in.OrderID)
		if err != nil {
			return err
		}
		if !order.OwnedBy(userID) {
			return domain.ErrOrderNotFound
		}
		if order.Status != domain.Pending {
			return fmt.Errorf("%w: order %d is %s", domain.ErrInvalidState, order.ID, order.Status)
		}

		if !order.StockReserved {
			if err := reserveItems(ctx, tx.Books(), order.Items); err != nil {
				if !isStockError(err) {
					return err
				}
				result = &PaymentResult{ErrorMessage: err.Error(), Order: order}
				return errRollback
			}
			order.StockReserved = true
		}

		charge, err := s.gateway.Charge(ctx, payment.ChargeRequest{
			OrderID: order.ID,
			UserID:  order.UserID,
			Amount:  order.TotalAmount,
			Method:  in.PaymentMethod,
			Card:    in.Card,
		})
		if err != nil {
			s.logger.Error("payment gateway call failed", "order_id", order.ID, "error", err)
			charge = payment.ChargeResult{DeclineReason: "payment could not be processed, please try again"}
		}

		now := s.now()
		if charge.Approved {
			if err := order.MarkPaid(charge.TransactionID, in.PaymentMethod, now); err != nil {
				return err
			}
			result = &PaymentResult{Success: true, TransactionID: charge.TransactionID, Order: order}
		} else {
			if err := releaseItems(ctx, tx.Books(), order.Items); err != nil {
				return err
			}
			order.StockReserved = false
			order.UpdatedAt = now
			result = &PaymentResult{ErrorMessage: charge.DeclineReason, Order: order}
		}
		return tx.Orders().Update(ctx, order)
	})

	switch {
	case errors.Is(err, errRollback):
		s.logger.Info("payment refused, stock unavailable", "order_id", in.OrderID, "reason", result.ErrorMessage)
		return result, nil
	case err != nil:
		return nil, err
	}

	order := result.Order
	if result.Success {
		s.logger.Info("payment approved", "order_id", order.ID, "transaction_id", result.TransactionID)
		s.publish(ctx, domain.TopicOrderPaid, order, func(ev *domain.OrderEvent) {
			ev.Amount = &order.TotalAmount
			ev.TransactionID = result.TransactionID
		})
	} else {
		s.logger.Info("payment declined, stock released", "order_id", order.ID, "reason", result.ErrorMessage)
		s.publish(ctx, domain.TopicPaymentFailed, order, func(ev *domain.OrderEvent) {
			ev.Reason = result.ErrorMessage
		})
	}
	return result, nil
}
