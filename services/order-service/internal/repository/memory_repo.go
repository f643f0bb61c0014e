package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"bookstore-system/services/order-service/internal/domain"
)

// MemoryStore keeps books and orders in process. A transaction works on a
// copy of the whole state under the store lock and swaps it in on success,
// which serializes every reservation.
//
// The lock is held for the whole transaction, including a payment's
// gateway delay, so the memory driver is for development and tests only.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	books     map[int64]*memBook
	orders    map[int64]*domain.Order
	nextOrder int64
	nextItem  int64
}

type memBook struct {
	book    domain.Book
	deleted bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		books:  make(map[int64]*memBook),
		orders: make(map[int64]*domain.Order),
	}}
}

// AddBook inserts or replaces a catalog row.
func (s *MemoryStore) AddBook(b domain.Book) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.books[b.ID] = &memBook{book: b}
}

func (s *MemoryStore) DeleteBook(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.state.books[id]; ok {
		b.deleted = true
	}
}

// Stock returns the current quantity of a book, or -1 if it is unknown.
func (s *MemoryStore) Stock(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.state.books[id]; ok {
		return b.book.StockQuantity
	}
	return -1
}

func (s *MemoryStore) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.orders)
}

func (s *MemoryStore) Books() domain.StockLedger { return memBooks{memView{store: s}} }

func (s *MemoryStore) Orders() domain.OrderRepository { return memOrders{memView{store: s}} }

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, memTxStore{tx: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

type memTxStore struct {
	tx *memState
}

func (t memTxStore) Books() domain.StockLedger       { return memBooks{memView{tx: t.tx}} }
func (t memTxStore) Orders() domain.OrderRepository { return memOrders{memView{tx: t.tx}} }

// memView runs against the transaction copy when there is one and against
// the shared state under the lock otherwise.
type memView struct {
	store *MemoryStore
	tx    *memState
}

func (v memView) with(fn func(st *memState) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.state)
}

type memBooks struct{ memView }

func (b memBooks) Reserve(_ context.Context, bookID int64, quantity int) (*domain.Book, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: reserve quantity %d", domain.ErrValidation, quantity)
	}
	var out *domain.Book
	err := b.with(func(st *memState) error {
		row, ok := st.books[bookID]
		if !ok || row.deleted {
			return domain.BookNotFound(bookID)
		}
		if row.book.StockQuantity < quantity {
			return &domain.StockError{
				BookID:    bookID,
				Title:     row.book.Title,
				Requested: quantity,
				Available: row.book.StockQuantity,
			}
		}
		row.book.StockQuantity -= quantity
		cp := row.book
		out = &cp
		return nil
	})
	return out, err
}

func (b memBooks) Release(_ context.Context, bookID int64, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: release quantity %d", domain.ErrValidation, quantity)
	}
	return b.with(func(st *memState) error {
		row, ok := st.books[bookID]
		if !ok {
			return domain.BookNotFound(bookID)
		}
		row.book.StockQuantity += quantity
		return nil
	})
}

type memOrders struct{ memView }

func (r memOrders) Create(_ context.Context, order *domain.Order) error {
	return r.with(func(st *memState) error {
		st.nextOrder++
		order.ID = st.nextOrder
		order.Version = 1
		for i := range order.Items {
			st.nextItem++
			order.Items[i].ID = st.nextItem
			order.Items[i].OrderID = order.ID
		}
		st.orders[order.ID] = cloneOrder(order)
		return nil
	})
}

func (r memOrders) Update(_ context.Context, order *domain.Order) error {
	return r.with(func(st *memState) error {
		cur, ok := st.orders[order.ID]
		if !ok || cur.Version != order.Version {
			return domain.ErrOptimisticLock
		}
		next := cloneOrder(cur)
		next.Status = order.Status
		next.PaymentMethod = order.PaymentMethod
		next.PaymentTransactionID = cloneString(order.PaymentTransactionID)
		next.CompletedAt = cloneTime(order.CompletedAt)
		next.StockReserved = order.StockReserved
		next.UpdatedAt = order.UpdatedAt
		next.Version++
		st.orders[order.ID] = next
		order.Version = next.Version
		return nil
	})
}

func (r memOrders) GetByID(_ context.Context, id int64) (*domain.Order, error) {
	var out *domain.Order
	err := r.with(func(st *memState) error {
		o, ok := st.orders[id]
		if !ok {
			return domain.ErrOrderNotFound
		}
		out = cloneOrder(o)
		return nil
	})
	return out, err
}

func (r memOrders) GetForUpdate(ctx context.Context, id int64) (*domain.Order, error) {
	return r.GetByID(ctx, id)
}

func (r memOrders) ListByUser(_ context.Context, userID string) ([]*domain.Order, error) {
	return r.collect(func(o *domain.Order) bool { return o.UserID == userID }, newestFirst, 0)
}

func (r memOrders) ListAll(_ context.Context) ([]*domain.Order, error) {
	return r.collect(func(*domain.Order) bool { return true }, newestFirst, 0)
}

func (r memOrders) FindExpiredOrders(_ context.Context, createdBefore time.Time, limit int) ([]*domain.Order, error) {
	keep := func(o *domain.Order) bool {
		return o.Status == domain.Pending && o.CreatedAt.Before(createdBefore)
	}
	oldestFirst := func(a, b *domain.Order) bool { return a.CreatedAt.Before(b.CreatedAt) }
	return r.collect(keep, oldestFirst, limit)
}

func (r memOrders) collect(keep func(*domain.Order) bool, less func(a, b *domain.Order) bool, limit int) ([]*domain.Order, error) {
	out := []*domain.Order{}
	err := r.with(func(st *memState) error {
		for _, o := range st.orders {
			if keep(o) {
				out = append(out, cloneOrder(o))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func newestFirst(a, b *domain.Order) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID > b.ID
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func (st *memState) clone() *memState {
	cp := &memState{
		books:     make(map[int64]*memBook, len(st.books)),
		orders:    make(map[int64]*domain.Order, len(st.orders)),
		nextOrder: st.nextOrder,
		nextItem:  st.nextItem,
	}
	for id, b := range st.books {
		row := *b
		cp.books[id] = &row
	}
	for id, o := range st.orders {
		cp.orders[id] = o
	}
	return cp
}

func cloneOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	cp.PaymentTransactionID = cloneString(o.PaymentTransactionID)
	cp.CompletedAt = cloneTime(o.CompletedAt)
	return &cp
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
