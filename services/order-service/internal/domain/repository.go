package domain

import (
	"context"
	"time"
)

// StockLedger guards books.stock_quantity. Reserve is a single atomic
// check-and-decrement; Release is not idempotent.
type StockLedger interface {
	Reserve(ctx context.Context, bookID int64, quantity int) (*Book, error)
	Release(ctx context.Context, bookID int64, quantity int) error
}

type OrderRepository interface {
	Create(ctx context.Context, order *Order) error
	Update(ctx context.Context, order *Order) error
	GetByID(ctx context.Context, id int64) (*Order, error)
	GetForUpdate(ctx context.Context, id int64) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]*Order, error)
	ListAll(ctx context.Context) ([]*Order, error)
	FindExpiredOrders(ctx context.Context, createdBefore time.Time, limit int) ([]*Order, error)
}

type Store interface {
	Books() StockLedger
	Orders() OrderRepository
}

// Transactor runs fn against a Store whose writes commit together or not
// at all.
type Transactor interface {
	Store
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
