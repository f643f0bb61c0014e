package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bookstore-system/services/order-service/internal/domain"
)

type PostgresStockLedger struct {
	q querier
}

// The guard in the WHERE clause makes check-and-decrement a single
// statement, so two reservations for the last copy cannot both succeed.
const reserveStockSQL = `UPDATE books
	SET stock_quantity = stock_quantity - $2
	WHERE id = $1 AND NOT is_deleted AND stock_quantity >= $2
	RETURNING id, title, author, image_url, price, stock_quantity`

func (l *PostgresStockLedger) Reserve(ctx context.Context, bookID int64, quantity int) (*domain.Book, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: reserve quantity %d", domain.ErrValidation, quantity)
	}
	var b domain.Book
	err := l.q.QueryRowContext(ctx, reserveStockSQL, bookID, quantity).
		Scan(&b.ID, &b.Title, &b.Author, &b.ImageURL, &b.Price, &b.StockQuantity)
	if err == nil {
		return &b, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reserve book %d: %w", bookID, err)
	}
	return nil, l.classify(ctx, bookID, quantity)
}

// classify explains why the guarded update matched nothing.
func (l *PostgresStockLedger) classify(ctx context.Context, bookID int64, quantity int) error {
	var (
		title   string
		stock   int
		deleted bool
	)
	err := l.q.QueryRowContext(ctx, `SELECT title, stock_quantity, is_deleted FROM books WHERE id = $1`, bookID).
		Scan(&title, &stock, &deleted)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && deleted) {
		return domain.BookNotFound(bookID)
	}
	if err != nil {
		return fmt.Errorf("read book %d: %w", bookID, err)
	}
	return &domain.StockError{BookID: bookID, Title: title, Requested: quantity, Available: stock}
}

// Release ignores soft deletion: stock taken from a book must come back
// even if the book was hidden in the meantime.
func (l *PostgresStockLedger) Release(ctx context.Context, bookID int64, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: release quantity %d", domain.ErrValidation, quantity)
	}
	result, err := l.q.ExecContext(ctx,
		`UPDATE books SET stock_quantity = stock_quantity + $2 WHERE id = $1`, bookID, quantity)
	if err != nil {
		return fmt.Errorf("release book %d: %w", bookID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.BookNotFound(bookID)
	}
	return nil
}
