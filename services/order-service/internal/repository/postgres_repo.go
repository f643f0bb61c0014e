// order-service/internal/repository/postgres_repo.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bookstore-system/services/order-service/internal/domain"

	"github.com/lib/pq"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an already opened handle.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *PostgresStore) Books() domain.StockLedger { return &PostgresStockLedger{q: s.db} }

func (s *PostgresStore) Orders() domain.OrderRepository { return &PostgresOrderRepo{q: s.db} }

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(ctx, pgTxStore{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type pgTxStore struct {
	tx *sql.Tx
}

func (s pgTxStore) Books() domain.StockLedger       { return &PostgresStockLedger{q: s.tx} }
func (s pgTxStore) Orders() domain.OrderRepository { return &PostgresOrderRepo{q: s.tx} }

type PostgresOrderRepo struct {
	q querier
}

const orderColumns = `id, user_id, status, payment_method, payment_transaction_id, total_amount,
	shipping_address, notes, created_at, updated_at, completed_at, stock_reserved, version`

const itemColumns = `id, order_id, book_id, book_title, book_author, book_image_url,
	quantity, unit_price, total_price`

func (r *PostgresOrderRepo) Create(ctx context.Context, order *domain.Order) error {
	query := `INSERT INTO orders (user_id, status, payment_method, payment_transaction_id, total_amount,
	              shipping_address, notes, created_at, updated_at, completed_at, stock_reserved, version)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1)
	          RETURNING id`
	err := r.q.QueryRowContext(ctx, query,
		order.UserID,
		order.Status,
		order.PaymentMethod,
		nullString(order.PaymentTransactionID),
		order.TotalAmount,
		order.ShippingAddress,
		order.Notes,
		order.CreatedAt,
		order.UpdatedAt,
		nullTime(order.CompletedAt),
		order.StockReserved,
	).Scan(&order.ID)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	order.Version = 1

	itemQuery := `INSERT INTO order_items (order_id, book_id, book_title, book_author, book_image_url,
	                  quantity, unit_price, total_price)
	              VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	              RETURNING id`
	for i := range order.Items {
		it := &order.Items[i]
		it.OrderID = order.ID
		err := r.q.QueryRowContext(ctx, itemQuery,
			it.OrderID, it.BookID, it.BookTitle, it.BookAuthor, it.BookImageURL,
			it.Quantity, it.UnitPrice, it.TotalPrice,
		).Scan(&it.ID)
		if err != nil {
			return fmt.Errorf("insert order item for book %d: %w", it.BookID, err)
		}
	}
	return nil
}

// Update writes the mutable columns. Items, totals, owner and creation time
// are never rewritten.
func (r *PostgresOrderRepo) Update(ctx context.Context, order *domain.Order) error {
	query := `UPDATE orders
	          SET status = $1, payment_method = $2, payment_transaction_id = $3, completed_at = $4,
	              stock_reserved = $5, updated_at = $6, version = version + 1
	          WHERE id = $7 AND version = $8`
	result, err := r.q.ExecContext(ctx, query,
		order.Status,
		order.PaymentMethod,
		nullString(order.PaymentTransactionID),
		nullTime(order.CompletedAt),
		order.StockReserved,
		order.UpdatedAt,
		order.ID,
		order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order %d: %w", order.ID, err)
	}
	if rowsAffected, _ := result.RowsAffected(); rowsAffected == 0 {
		return domain.ErrOptimisticLock
	}
	order.Version++
	return nil
}

func (r *PostgresOrderRepo) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *PostgresOrderRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresOrderRepo) getOne(ctx context.Context, query string, id int64) (*domain.Order, error) {
	order, err := scanOrder(r.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}
	if err := r.attachItems(ctx, []*domain.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *PostgresOrderRepo) ListByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	return r.list(ctx, query, userID)
}

func (r *PostgresOrderRepo) ListAll(ctx context.Context) ([]*domain.Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, id DESC`)
}

// FindExpiredOrders skips rows other transactions hold, so a sweep never
// waits behind a payment in progress.
func (r *PostgresOrderRepo) FindExpiredOrders(ctx context.Context, createdBefore time.Time, limit int) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + `
	          FROM orders WHERE status = $1 AND created_at < $2
	          ORDER BY created_at
	          LIMIT $3
	          FOR UPDATE SKIP LOCKED`
	return r.list(ctx, query, domain.Pending, createdBefore, limit)
}

func (r *PostgresOrderRepo) list(ctx context.Context, query string, args ...any) ([]*domain.Order, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *PostgresOrderRepo) attachItems(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	byID := make(map[int64]*domain.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
	}

	query := `SELECT ` + itemColumns + ` FROM order_items WHERE order_id = ANY($1) ORDER BY id`
	rows, err := r.q.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(
			&it.ID, &it.OrderID, &it.BookID, &it.BookTitle, &it.BookAuthor, &it.BookImageURL,
			&it.Quantity, &it.UnitPrice, &it.TotalPrice,
		); err != nil {
			return err
		}
		if o, ok := byID[it.OrderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o           domain.Order
		txID        sql.NullString
		completedAt sql.NullTime
	)
	err := row.Scan(
		&o.ID,
		&o.UserID,
		&o.Status,
		&o.PaymentMethod,
		&txID,
		&o.TotalAmount,
		&o.ShippingAddress,
		&o.Notes,
		&o.CreatedAt,
		&o.UpdatedAt,
		&completedAt,
		&o.StockReserved,
		&o.Version,
	)
	if err != nil {
		return nil, err
	}
	if txID.Valid {
		o.PaymentTransactionID = &txID.String
	}
	if completedAt.Valid {
		o.CompletedAt = &completedAt.Time
	}
	return &o, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
