package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrBookNotFound        = errors.New("book not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrOrderNotFound       = errors.New("order not found")
	ErrInvalidState        = errors.New("order is not pending")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrForbiddenTransition = errors.New("transition not allowed for role")
	ErrOptimisticLock      = errors.New("optimistic locking failed")
)

// StockError names the book a reservation failed for.
type StockError struct {
	BookID    int64
	Title     string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: requested %d, available %d", e.Title, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

func BookNotFound(id int64) error {
	return fmt.Errorf("%w: id %d", ErrBookNotFound, id)
}
