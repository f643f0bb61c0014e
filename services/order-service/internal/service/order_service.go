// Package service implements the order workflow: placing orders against
// stock, paying for them, moving them through their lifecycle and reading
// them back.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"bookstore-system/services/order-service/internal/domain"
	"bookstore-system/services/order-service/internal/payment"

	"github.com/google/uuid"
)

type OrderService struct {
	store     domain.Transactor
	gateway   payment.Gateway
	publisher domain.EventPublisher
	machine   *domain.StateMachine
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*OrderService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *OrderService) { s.now = now }
}

func NewOrderService(
	store domain.Transactor,
	gateway payment.Gateway,
	publisher domain.EventPublisher,
	logger *slog.Logger,
	opts ...Option,
) *OrderService {
	s := &OrderService{
		store:     store,
		gateway:   gateway,
		publisher: publisher,
		machine:   domain.NewStateMachine(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type LineItem struct {
	BookID   int64
	Quantity int
}

type CreateOrderInput struct {
	Items           []LineItem
	PaymentMethod   domain.PaymentMethod
	ShippingAddress string
	Notes           string
}

// CreateOrder reserves stock for every line and persists the order with its
// items in one transaction. Nothing is reserved or written if any line
// fails.
func (s *OrderService) CreateOrder(ctx context.Context, userID string, in CreateOrderInput) (*domain.Order, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user", domain.ErrValidation)
	}
	if !in.PaymentMethod.Valid() {
		return nil, fmt.Errorf("%w: unknown payment method %d", domain.ErrValidation, int(in.PaymentMethod))
	}
	lines, err := normalizeLines(in.Items)
	if err != nil {
		return nil, err
	}

	var order *domain.Order
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		order = domain.NewOrder(userID, in.PaymentMethod,
			strings.TrimSpace(in.ShippingAddress), strings.TrimSpace(in.Notes), s.now())
		for _, l := range lines {
			book, err := tx.Books().Reserve(ctx, l.BookID, l.Quantity)
			if err != nil {
				return err
			}
			order.AddItem(book, l.Quantity)
		}
		order.StockReserved = true
		return tx.Orders().Create(ctx, order)
	})
	if err != nil {
		s.logger.Info("order rejected", "user_id", userID, "error", err)
		return nil, err
	}

	s.logger.Info("order created",
		"order_id", order.ID, "user_id", userID, "items", len(order.Items), "total", order.TotalAmount.StringFixed(2))
	s.publish(ctx, domain.TopicOrderCreated, order, nil)
	return order, nil
}

// maxLineQuantity bounds a merged line to what the stock column can hold.
const maxLineQuantity = math.MaxInt32

// normalizeLines validates quantities, merges repeated books and sorts by
// book id so concurrent orders lock rows in the same order.
func normalizeLines(items []LineItem) ([]LineItem, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: order must contain at least one item", domain.ErrValidation)
	}
	merged := make(map[int64]int, len(items))
	for _, it := range items {
		if it.BookID <= 0 {
			return nil, fmt.Errorf("%w: invalid book id %d", domain.ErrValidation, it.BookID)
		}
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for book %d must be positive", domain.ErrValidation, it.BookID)
		}
		if it.Quantity > maxLineQuantity-merged[it.BookID] {
			return nil, fmt.Errorf("%w: quantity for book %d exceeds %d", domain.ErrValidation, it.BookID, maxLineQuantity)
		}
		merged[it.BookID] += it.Quantity
	}
	lines := make([]LineItem, 0, len(merged))
	for id, qty := range merged {
		lines = append(lines, LineItem{BookID: id, Quantity: qty})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].BookID < lines[j].BookID })
	return lines, nil
}

func reserveItems(ctx context.Context, ledger domain.StockLedger, items []domain.OrderItem) error {
	for _, it := range items {
		if _, err := ledger.Reserve(ctx, it.BookID, it.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func releaseItems(ctx context.Context, ledger domain.StockLedger, items []domain.OrderItem) error {
	for _, it := range items {
		if err := ledger.Release(ctx, it.BookID, it.Quantity); err != nil {
			return fmt.Errorf("release stock for book %d: %w", it.BookID, err)
		}
	}
	return nil
}

func (s *OrderService) publish(ctx context.Context, topic string, o *domain.Order, fill func(*domain.OrderEvent)) {
	ev := domain.OrderEvent{
		EventID:    uuid.NewString(),
		OrderID:    o.ID,
		UserID:     o.UserID,
		Status:     o.Status.String(),
		OccurredAt: s.now(),
	}
	if fill != nil {
		fill(&ev)
	}
	if err := s.publisher.Publish(ctx, topic, ev); err != nil {
		s.logger.Error("failed to publish order event", "topic", topic, "order_id", o.ID, "error", err)
	}
}

func isStockError(err error) bool {
	return errors.Is(err, domain.ErrInsufficientStock) || errors.Is(err, domain.ErrBookNotFound)
}
