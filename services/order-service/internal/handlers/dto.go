package handlers

import (
	"time"

	"bookstore-system/services/order-service/internal/domain"
	"bookstore-system/services/order-service/internal/payment"
	"bookstore-system/services/order-service/internal/service"

	"github.com/shopspring/decimal"
)

// Money goes over the wire as a JSON number, as the storefront expects.
type Money decimal.Decimal

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(m).String()), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	*m = Money(d)
	return nil
}

type OrderItemRequest struct {
	BookID   int64 `json:"bookId"`
	Quantity int   `json:"quantity"`
}

type CreateOrderRequest struct {
	OrderItems      []OrderItemRequest   `json:"orderItems"`
	PaymentMethod   domain.PaymentMethod `json:"paymentMethod"`
	ShippingAddress string               `json:"shippingAddress,omitempty"`
	Notes           string               `json:"notes,omitempty"`
}

func (r CreateOrderRequest) input() service.CreateOrderInput {
	in := service.CreateOrderInput{
		PaymentMethod:   r.PaymentMethod,
		ShippingAddress: r.ShippingAddress,
		Notes:           r.Notes,
		Items:           make([]service.LineItem, 0, len(r.OrderItems)),
	}
	for _, it := range r.OrderItems {
		in.Items = append(in.Items, service.LineItem{BookID: it.BookID, Quantity: it.Quantity})
	}
	return in
}

type ProcessPaymentRequest struct {
	OrderID        int64                `json:"orderId"`
	PaymentMethod  domain.PaymentMethod `json:"paymentMethod"`
	CardNumber     string               `json:"cardNumber,omitempty"`
	CardHolderName string               `json:"cardHolderName,omitempty"`
	ExpiryDate     string               `json:"expiryDate,omitempty"`
	CVV            string               `json:"cvv,omitempty"`
}

func (r ProcessPaymentRequest) input() service.ProcessPaymentInput {
	in := service.ProcessPaymentInput{OrderID: r.OrderID, PaymentMethod: r.PaymentMethod}
	if r.CardNumber != "" || r.CVV != "" || r.ExpiryDate != "" {
		in.Card = &payment.CardDetails{
			Number:     r.CardNumber,
			HolderName: r.CardHolderName,
			Expiry:     r.ExpiryDate,
			CVV:        r.CVV,
		}
	}
	return in
}

type UpdateStatusRequest struct {
	Status *domain.OrderStatus `json:"status"`
}

type OrderItemResponse struct {
	ID           int64  `json:"id"`
	OrderID      int64  `json:"orderId"`
	BookID       int64  `json:"bookId"`
	BookTitle    string `json:"bookTitle"`
	BookAuthor   string `json:"bookAuthor"`
	BookImageURL string `json:"bookImageUrl"`
	Quantity     int    `json:"quantity"`
	UnitPrice    Money  `json:"unitPrice"`
	TotalPrice   Money  `json:"totalPrice"`
}

type OrderResponse struct {
	ID                   int64                `json:"id"`
	UserID               string               `json:"userId"`
	Status               domain.OrderStatus   `json:"status"`
	PaymentMethod        domain.PaymentMethod `json:"paymentMethod"`
	PaymentTransactionID *string              `json:"paymentTransactionId"`
	TotalAmount          Money                `json:"totalAmount"`
	ShippingAddress      string               `json:"shippingAddress"`
	Notes                string               `json:"notes"`
	CreatedAt            time.Time            `json:"createdAt"`
	CompletedAt          *time.Time           `json:"completedAt"`
	OrderItems           []OrderItemResponse  `json:"orderItems"`
}

type PaymentResultResponse struct {
	Success       bool           `json:"success"`
	TransactionID string         `json:"transactionId,omitempty"`
	ErrorMessage  string         `json:"errorMessage,omitempty"`
	Order         *OrderResponse `json:"order,omitempty"`
}

type OrderSummaryResponse struct {
	TotalOrders  int             `json:"totalOrders"`
	TotalSpent   Money           `json:"totalSpent"`
	RecentOrders []OrderResponse `json:"recentOrders"`
}

func toOrderResponse(o *domain.Order) OrderResponse {
	resp := OrderResponse{
		ID:                   o.ID,
		UserID:               o.UserID,
		Status:               o.Status,
		PaymentMethod:        o.PaymentMethod,
		PaymentTransactionID: o.PaymentTransactionID,
		TotalAmount:          Money(o.TotalAmount),
		ShippingAddress:      o.ShippingAddress,
		Notes:                o.Notes,
		CreatedAt:            o.CreatedAt,
		CompletedAt:          o.CompletedAt,
		OrderItems:           make([]OrderItemResponse, 0, len(o.Items)),
	}
	for _, it := range o.Items {
		resp.OrderItems = append(resp.OrderItems, OrderItemResponse{
			ID:           it.ID,
			OrderID:      it.OrderID,
			BookID:       it.BookID,
			BookTitle:    it.BookTitle,
			BookAuthor:   it.BookAuthor,
			BookImageURL: it.BookImageURL,
			Quantity:     it.Quantity,
			UnitPrice:    Money(it.UnitPrice),
			TotalPrice:   Money(it.TotalPrice),
		})
	}
	return resp
}

func toOrderResponses(orders []*domain.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	return out
}

func toPaymentResultResponse(r *service.PaymentResult) PaymentResultResponse {
	resp := PaymentResultResponse{
		Success:       r.Success,
		TransactionID: r.TransactionID,
		ErrorMessage:  r.ErrorMessage,
	}
	if r.Order != nil {
		o := toOrderResponse(r.Order)
		resp.Order = &o
	}
	return resp
}
