package service_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"bookstore-system/services/order-service/internal/domain"
	"bookstore-system/services/order-service/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrder_ReservesStockAndSnapshotsBooks(t *testing.T) {
	h := newHarness(t)

	o, err := h.svc.CreateOrder(context.Background(), "user-1", service.CreateOrderInput{
		Items:           []service.LineItem{line(bookA, 2)},
		PaymentMethod:   domain.CreditCard,
		ShippingAddress: "  221B Baker Street ",
	})
	require.NoError(t, err)

	assert.NotZero(t, o.ID)
	assert.Equal(t, domain.Pending, o.Status)
	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("20.00")), o.TotalAmount.String())
	assert.Equal(t, "221B Baker Street", o.ShippingAddress)
	assert.Equal(t, h.clock.Now(), o.CreatedAt)
	assert.Nil(t, o.PaymentTransactionID)
	assert.Nil(t, o.CompletedAt)
	assert.True(t, o.StockReserved)
	assert.Equal(t, 3, h.store.Stock(bookA))

	require.Len(t, o.Items, 1)
	item := o.Items[0]
	assert.Equal(t, o.ID, item.OrderID)
	assert.Equal(t, "Book A", item.BookTitle)
	assert.Equal(t, "Author A", item.BookAuthor)
	assert.Equal(t, "a.jpg", item.BookImageURL)
	assert.True(t, item.UnitPrice.Equal(decimal.RequireFromString("10")))
	assert.True(t, item.TotalPrice.Equal(decimal.RequireFromString("20")))

	ev, ok := h.publisher.last(domain.TopicOrderCreated)
	require.True(t, ok)
	assert.Equal(t, o.ID, ev.OrderID)
	assert.Equal(t, "user-1", ev.UserID)
	assert.Equal(t, "Pending", ev.Status)
	assert.NotEmpty(t, ev.EventID)
}

func TestCreateOrder_InsufficientStockLeavesNothingBehind(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.CreateOrder(context.Background(), "user-1", service.CreateOrderInput{
		Items: []service.LineItem{line(bookA, 10)},
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	var stockErr *domain.StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, bookA, stockErr.BookID)
	assert.Equal(t, 10, stockErr.Requested)
	assert.Equal(t, 5, stockErr.Available)
	assert.Contains(t, err.Error(), "Book A")

	assert.Equal(t, 5, h.store.Stock(bookA))
	assert.Zero(t, h.store.OrderCount())
	assert.Empty(t, h.publisher.topics())
}

func TestCreateOrder_AllOrNothingAcrossLines(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.CreateOrder(context.Background(), "user-1", service.CreateOrderInput{
		Items: []service.LineItem{line(bookA, 2), line(bookB, 4)},
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	assert.Equal(t, 5, h.store.Stock(bookA), "first line was rolled back")
	assert.Equal(t, 3, h.store.Stock(bookB))
	assert.Zero(t, h.store.OrderCount())
}

func TestCreateOrder_BookNotFound(t *testing.T) {
	h := newHarness(t)
	h.store.DeleteBook(bookB)

	for _, id := range []int64{bookB, 404} {
		_, err := h.svc.CreateOrder(context.Background(), "user-1", service.CreateOrderInput{
			Items: []service.LineItem{line(bookA, 1), line(id, 1)},
		})
		assert.ErrorIs(t, err, domain.ErrBookNotFound, "book %d", id)
	}
	assert.Equal(t, 5, h.store.Stock(bookA))
	assert.Zero(t, h.store.OrderCount())
}

func TestCreateOrder_Validation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		userID string
		in     service.CreateOrderInput
	}{
		{"no items", "user-1", service.CreateOrderInput{}},
		{"zero quantity", "user-1", service.CreateOrderInput{Items: []service.LineItem{line(bookA, 0)}}},
		{"negative quantity", "user-1", service.CreateOrderInput{Items: []service.LineItem{line(bookA, -1)}}},
		{"bad book id", "user-1", service.CreateOrderInput{Items: []service.LineItem{line(0, 1)}}},
		{"unknown payment method", "user-1", service.CreateOrderInput{Items: []service.LineItem{line(bookA, 1)}, PaymentMethod: 9}},
		{"anonymous", "", service.CreateOrderInput{Items: []service.LineItem{line(bookA, 1)}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.CreateOrder(context.Background(), tc.userID, tc.in)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	assert.Equal(t, 5, h.store.Stock(bookA))
}

func TestCreateOrder_MergesRepeatedBooks(t *testing.T) {
	h := newHarness(t)

	o := h.order(t, "user-1", line(bookB, 1), line(bookA, 1), line(bookA, 2))

	require.Len(t, o.Items, 2)
	assert.Equal(t, bookA, o.Items[0].BookID)
	assert.Equal(t, 3, o.Items[0].Quantity)
	assert.Equal(t, bookB, o.Items[1].BookID)
	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("45")))
	assert.Equal(t, 2, h.store.Stock(bookA))
}

func TestCreateOrder_TotalMatchesItemsExactly(t *testing.T) {
	h := newHarness(t)

	// Thirty copies at 0.10 must come to exactly 3.00.
	lines := make([]service.LineItem, 0, 3)
	for _, q := range []int{7, 11, 12} {
		lines = append(lines, line(bookC, q))
	}
	o := h.order(t, "user-1", append(lines, line(bookA, 1), line(bookB, 1))...)

	assert.True(t, o.TotalAmount.Equal(o.ItemsTotal()))
	assert.Equal(t, "28.00", o.TotalAmount.StringFixed(2))

	stored, err := h.svc.GetOrder(context.Background(), "user-1", o.ID)
	require.NoError(t, err)
	assert.True(t, stored.TotalAmount.Equal(stored.ItemsTotal()))
	for _, it := range stored.Items {
		assert.True(t, it.TotalPrice.Equal(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))))
	}
}

func TestCreateOrder_NoOversell(t *testing.T) {
	h := newHarness(t)
	h.store.AddBook(domain.Book{ID: 50, Title: "Last Copy", Price: decimal.RequireFromString("9.99"), StockQuantity: 1})

	const buyers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		refused   int
		start     = make(chan struct{})
	)
	for i := range buyers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := h.svc.CreateOrder(context.Background(), "buyer", service.CreateOrderInput{
				Items: []service.LineItem{line(50, 1)},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrInsufficientStock):
				refused++
			default:
				t.Errorf("buyer %d: unexpected error %v", i, err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, buyers-1, refused)
	assert.Equal(t, 0, h.store.Stock(50))
	assert.Equal(t, 1, h.store.OrderCount())
}

func TestCreateOrder_PublishFailureDoesNotFailOrder(t *testing.T) {
	h := newHarness(t)
	h.publisher.err = errBoom

	o := h.order(t, "user-1", line(bookA, 1))
	assert.NotZero(t, o.ID)
	assert.Equal(t, 4, h.store.Stock(bookA))
}

func TestCreateOrder_RejectsOversizedQuantities(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name  string
		lines []service.LineItem
	}{
		{"repeated lines wrap around", []service.LineItem{line(bookA, math.MaxInt), line(bookA, math.MaxInt)}},
		{"merged lines exceed the column", []service.LineItem{line(bookA, math.MaxInt32), line(bookA, 1)}},
		{"single line exceeds the column", []service.LineItem{line(bookA, math.MaxInt32 + 1)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.CreateOrder(context.Background(), "user-1", service.CreateOrderInput{Items: tc.lines})
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	assert.Equal(t, 5, h.store.Stock(bookA))
	assert.Zero(t, h.store.OrderCount())
}
