// order-service/internal/domain/order.go
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus int

// Integer values are part of the public API.
const (
	Pending OrderStatus = iota
	Processing
	Shipped
	Delivered
	Cancelled
	Refunded
)

var statusNames = [...]string{"Pending", "Processing", "Shipped", "Delivered", "Cancelled", "Refunded"}

func (s OrderStatus) String() string {
	if !s.Valid() {
		return fmt.Sprintf("OrderStatus(%d)", int(s))
	}
	return statusNames[s]
}

func (s OrderStatus) Valid() bool {
	return s >= Pending && s <= Refunded
}

type PaymentMethod int

const (
	CreditCard PaymentMethod = iota
	PayPal
	Stripe
	BankTransfer
)

var methodNames = [...]string{"CreditCard", "PayPal", "Stripe", "BankTransfer"}

func (m PaymentMethod) String() string {
	if !m.Valid() {
		return fmt.Sprintf("PaymentMethod(%d)", int(m))
	}
	return methodNames[m]
}

func (m PaymentMethod) Valid() bool {
	return m >= CreditCard && m <= BankTransfer
}

// Order is the aggregate root. TotalAmount is accumulated while items are
// added during creation and never recomputed afterwards.
type Order struct {
	ID                   int64
	UserID               string
	Status               OrderStatus
	PaymentMethod        PaymentMethod
	PaymentTransactionID *string
	TotalAmount          decimal.Decimal
	ShippingAddress      string
	Notes                string
	CreatedAt            time.Time
	UpdatedAt            time.Time
	CompletedAt          *time.Time
	// StockReserved is true while the order holds stock that has to be
	// given back if it never ships.
	StockReserved bool
	Version       int
	Items         []OrderItem
}

type OrderItem struct {
	ID           int64
	OrderID      int64
	BookID       int64
	BookTitle    string
	BookAuthor   string
	BookImageURL string
	Quantity     int
	UnitPrice    decimal.Decimal
	TotalPrice   decimal.Decimal
}

func NewOrder(userID string, method PaymentMethod, shippingAddress, notes string, now time.Time) *Order {
	return &Order{
		UserID:          userID,
		Status:          Pending,
		PaymentMethod:   method,
		TotalAmount:     decimal.Zero,
		ShippingAddress: shippingAddress,
		Notes:           notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// AddItem snapshots the book and adds the line total to the order total.
func (o *Order) AddItem(book *Book, quantity int) {
	unit := book.Price
	line := unit.Mul(decimal.NewFromInt(int64(quantity)))
	o.Items = append(o.Items, OrderItem{
		OrderID:      o.ID,
		BookID:       book.ID,
		BookTitle:    book.Title,
		BookAuthor:   book.Author,
		BookImageURL: book.ImageURL,
		Quantity:     quantity,
		UnitPrice:    unit,
		TotalPrice:   line,
	})
	o.TotalAmount = o.TotalAmount.Add(line)
}

// ItemsTotal sums the persisted line totals.
func (o *Order) ItemsTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range o.Items {
		sum = sum.Add(it.TotalPrice)
	}
	return sum
}

func (o *Order) OwnedBy(userID string) bool {
	return o.UserID == userID
}

func (o *Order) Paid() bool {
	return o.PaymentTransactionID != nil
}

// MarkPaid records a successful charge. Transaction id and completion time
// are write-once.
func (o *Order) MarkPaid(transactionID string, method PaymentMethod, now time.Time) error {
	if o.Status != Pending {
		return fmt.Errorf("%w: order %d is %s", ErrInvalidState, o.ID, o.Status)
	}
	o.Status = Processing
	o.PaymentMethod = method
	if o.PaymentTransactionID == nil {
		o.PaymentTransactionID = &transactionID
	}
	o.stampCompleted(now)
	o.UpdatedAt = now
	return nil
}

// TransitionTo applies a status change already approved by the state
// machine and reports whether the caller must give the order's stock back.
func (o *Order) TransitionTo(to OrderStatus, now time.Time) (releaseStock bool) {
	if o.Status == to {
		return false
	}
	switch to {
	case Shipped:
		o.StockReserved = false
	case Delivered:
		o.StockReserved = false
		o.stampCompleted(now)
	case Cancelled, Refunded:
		releaseStock = o.StockReserved
		o.StockReserved = false
	}
	o.Status = to
	o.UpdatedAt = now
	return releaseStock
}

func (o *Order) stampCompleted(now time.Time) {
	if o.CompletedAt == nil {
		t := now
		o.CompletedAt = &t
	}
}

// Counted reports whether the order contributes to a user's spend.
func (o *Order) Counted() bool {
	return o.Status == Processing || o.Status == Delivered
}
