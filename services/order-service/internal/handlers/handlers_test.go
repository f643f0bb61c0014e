package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"bookstore-system/services/order-service/internal/config"
	"bookstore-system/services/order-service/internal/domain"
	"bookstore-system/services/order-service/internal/events"
	"bookstore-system/services/order-service/internal/middleware"
	"bookstore-system/services/order-service/internal/payment"
	"bookstore-system/services/order-service/internal/repository"
	"bookstore-system/services/order-service/internal/service"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "handler-secret"

type fixture struct {
	store   *repository.MemoryStore
	gateway *payment.SimulatedGateway
	server  http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repository.NewMemoryStore()
	store.AddBook(domain.Book{ID: 1, Title: "Dune", Author: "Frank Herbert", ImageURL: "dune.jpg", Price: decimal.RequireFromString("10.00"), StockQuantity: 5})
	store.AddBook(domain.Book{ID: 2, Title: "Emma", Author: "Jane Austen", Price: decimal.RequireFromString("15.00"), StockQuantity: 1})

	gw := payment.NewSimulatedGateway(1, 0)
	svc := service.NewOrderService(store, gw, events.NopPublisher{}, logger)
	router := NewRouter(NewOrderHandler(svc, logger), RouterConfig{
		Auth:   middleware.NewAuthenticator(config.AuthConfig{JWTSecret: secret}),
		Logger: logger,
		Health: map[string]HealthCheck{"store": func(context.Context) error { return nil }},
	})
	return &fixture{store: store, gateway: gw, server: router}
}

func token(t *testing.T, sub string, roles ...string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"roles": roles,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func (f *fixture) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (f *fixture) createOrder(t *testing.T, bearer string, bookID int64, qty int) OrderResponse {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/orders", bearer, CreateOrderRequest{
		OrderItems:    []OrderItemRequest{{BookID: bookID, Quantity: qty}},
		PaymentMethod: domain.CreditCard,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[OrderResponse](t, rec)
}

func TestCreateOrder_WireFormat(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/orders", token(t, "user-1"),
		`{"orderItems":[{"bookId":1,"quantity":2}],"paymentMethod":1,"shippingAddress":"1 Main St"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 0, body["status"], "Pending is 0")
	assert.EqualValues(t, 1, body["paymentMethod"], "PayPal is 1")
	assert.EqualValues(t, 20, body["totalAmount"], "money is a JSON number")
	assert.Equal(t, "user-1", body["userId"])
	assert.Nil(t, body["paymentTransactionId"])

	items := body["orderItems"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "Dune", item["bookTitle"])
	assert.Equal(t, "Frank Herbert", item["bookAuthor"])
	assert.Equal(t, "dune.jpg", item["bookImageUrl"])
	assert.EqualValues(t, 10, item["unitPrice"])
	assert.EqualValues(t, 20, item["totalPrice"])

	assert.Equal(t, 3, f.store.Stock(1))
}

func TestMoney_LeavesDecimalDefaultsAlone(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/orders", token(t, "user-1"), `{"orderItems":[{"bookId":1,"quantity":1}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"totalAmount":10`)

	// Other encoders, such as the order cache and event payloads, keep quoted decimals.
	assert.False(t, decimal.MarshalJSONWithoutQuotes)
	raw, err := json.Marshal(decimal.RequireFromString("10.50"))
	require.NoError(t, err)
	assert.Equal(t, `"10.5"`, string(raw))

	var m Money
	require.NoError(t, json.Unmarshal([]byte(`12.25`), &m))
	assert.True(t, decimal.Decimal(m).Equal(decimal.RequireFromString("12.25")))
}

func TestCreateOrder_Failures(t *testing.T) {
	f := newFixture(t)
	bearer := token(t, "user-1")

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"insufficient stock names the book", CreateOrderRequest{OrderItems: []OrderItemRequest{{BookID: 1, Quantity: 10}}}, http.StatusBadRequest, "insufficient_stock", "Dune"},
		{"unknown book", CreateOrderRequest{OrderItems: []OrderItemRequest{{BookID: 99, Quantity: 1}}}, http.StatusBadRequest, "book_not_found", "99"},
		{"empty order", CreateOrderRequest{}, http.StatusBadRequest, "validation_failed", "at least one item"},
		{"zero quantity", CreateOrderRequest{OrderItems: []OrderItemRequest{{BookID: 1, Quantity: 0}}}, http.StatusBadRequest, "validation_failed", "positive"},
		{"malformed json", `{"orderItems":`, http.StatusBadRequest, "invalid_request", "Invalid JSON"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/orders", bearer, tc.body)
			assert.Equal(t, tc.wantStatus, rec.Code)
			e := decode[ErrorResponse](t, rec)
			assert.Equal(t, tc.wantCode, e.Error)
			assert.Contains(t, e.Message, tc.wantMsg)
		})
	}
	assert.Equal(t, 5, f.store.Stock(1))
	assert.Zero(t, f.store.OrderCount())
}

func TestRoutes_RequireToken(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/api/orders", "/api/orders/1", "/api/orders/summary", "/api/orders/all"} {
		assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, path, "", nil).Code, path)
	}
}

func TestProcessPayment(t *testing.T) {
	f := newFixture(t)
	bearer := token(t, "user-1")
	order := f.createOrder(t, bearer, 1, 2)

	f.gateway.SuccessRate = 0
	rec := f.do(t, http.MethodPost, "/api/orders/payment", bearer, ProcessPaymentRequest{OrderID: order.ID, PaymentMethod: domain.CreditCard})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	failed := decode[PaymentResultResponse](t, rec)
	assert.False(t, failed.Success)
	assert.NotEmpty(t, failed.ErrorMessage)
	require.NotNil(t, failed.Order)
	assert.Equal(t, domain.Pending, failed.Order.Status)
	assert.Equal(t, 5, f.store.Stock(1), "declined payment gives the stock back")

	f.gateway.SuccessRate = 1
	rec = f.do(t, http.MethodPost, "/api/orders/payment", bearer, ProcessPaymentRequest{
		OrderID:        order.ID,
		PaymentMethod:  domain.CreditCard,
		CardNumber:     "4111 1111 1111 1111",
		CardHolderName: "Ada",
		ExpiryDate:     "12/99",
		CVV:            "123",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	paid := decode[PaymentResultResponse](t, rec)
	assert.True(t, paid.Success)
	assert.Regexp(t, `^TXN_[0-9A-F]{32}$`, paid.TransactionID)
	assert.Equal(t, domain.Processing, paid.Order.Status)
	assert.Equal(t, paid.TransactionID, *paid.Order.PaymentTransactionID)
	assert.NotNil(t, paid.Order.CompletedAt)
	assert.Equal(t, 3, f.store.Stock(1), "retry reserved the stock again")

	rec = f.do(t, http.MethodPost, "/api/orders/payment", bearer, ProcessPaymentRequest{OrderID: order.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_state", decode[ErrorResponse](t, rec).Error)
}

func TestProcessPayment_Rejections(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, token(t, "user-1"), 1, 1)

	rec := f.do(t, http.MethodPost, "/api/orders/payment", token(t, "user-2"), ProcessPaymentRequest{OrderID: order.ID})
	assert.Equal(t, http.StatusNotFound, rec.Code, "another user's order is invisible")

	rec = f.do(t, http.MethodPost, "/api/orders/payment", token(t, "user-1"), ProcessPaymentRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/orders/payment", token(t, "user-1"), ProcessPaymentRequest{
		OrderID: order.ID, CardNumber: "123", CVV: "1", ExpiryDate: "01/20",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", decode[ErrorResponse](t, rec).Error)
}

func TestGetAndListOrders(t *testing.T) {
	f := newFixture(t)
	alice, bob := token(t, "alice"), token(t, "bob")
	first := f.createOrder(t, alice, 1, 1)
	second := f.createOrder(t, alice, 2, 1)
	f.createOrder(t, bob, 1, 1)

	rec := f.do(t, http.MethodGet, "/api/orders", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]OrderResponse](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")
	assert.Equal(t, first.ID, list[1].ID)

	rec = f.do(t, http.MethodGet, "/api/orders/"+itoa(first.ID), alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first.ID, decode[OrderResponse](t, rec).ID)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/orders/"+itoa(first.ID), bob, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/orders/999", alice, nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/orders/abc", alice, nil).Code)
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	alice := token(t, "alice")
	paid := f.createOrder(t, alice, 1, 2)
	f.createOrder(t, alice, 2, 1)

	rec := f.do(t, http.MethodPost, "/api/orders/payment", alice, ProcessPaymentRequest{OrderID: paid.ID})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/orders/summary", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 1, body["totalOrders"])
	assert.EqualValues(t, 20, body["totalSpent"])
	assert.Len(t, body["recentOrders"], 2)
}

func TestListAllOrders_AdminOnly(t *testing.T) {
	f := newFixture(t)
	f.createOrder(t, token(t, "alice"), 1, 1)
	f.createOrder(t, token(t, "bob"), 1, 1)

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/api/orders/all", token(t, "alice", "Customer"), nil).Code)

	rec := f.do(t, http.MethodGet, "/api/orders/all", token(t, "root", "Admin"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]OrderResponse](t, rec), 2)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	alice, admin := token(t, "alice"), token(t, "root", "admin")
	order := f.createOrder(t, alice, 1, 2)
	path := "/api/orders/" + itoa(order.ID) + "/status"

	rec := f.do(t, http.MethodPost, "/api/orders/payment", alice, ProcessPaymentRequest{OrderID: order.ID})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPut, path, alice, map[string]int{"status": int(domain.Shipped)})
	assert.Equal(t, http.StatusForbidden, rec.Code, "customers cannot ship")

	rec = f.do(t, http.MethodPut, path, token(t, "mallory"), map[string]int{"status": int(domain.Cancelled)})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPut, path, admin, map[string]int{"status": int(domain.Shipped)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.Shipped, decode[OrderResponse](t, rec).Status)

	rec = f.do(t, http.MethodPut, path, admin, map[string]int{"status": int(domain.Pending)})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decode[ErrorResponse](t, rec).Error)

	rec = f.do(t, http.MethodPut, path, admin, map[string]int{"status": 42})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, path, admin, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateStatus_CustomerCancelReleasesStock(t *testing.T) {
	f := newFixture(t)
	alice := token(t, "alice")
	order := f.createOrder(t, alice, 2, 1)
	require.Equal(t, 0, f.store.Stock(2))

	rec := f.do(t, http.MethodPut, "/api/orders/"+itoa(order.ID)+"/status", alice, UpdateStatusRequest{Status: ptr(domain.Cancelled)})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.Cancelled, decode[OrderResponse](t, rec).Status)
	assert.Equal(t, 1, f.store.Stock(2))
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"store":"healthy"`)
}

func TestHealth_Unhealthy(t *testing.T) {
	router := NewRouter(nil, RouterConfig{
		Auth:   middleware.NewAuthenticator(config.AuthConfig{JWTSecret: secret}),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Health: map[string]HealthCheck{"postgres": func(context.Context) error { return errors.New("connection refused") }},
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestWriteServiceError_HidesInternals(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	writeServiceError(rec, req, slog.New(slog.NewTextHandler(io.Discard, nil)), errors.New("pq: relation \"orders\" does not exist"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pq:")
	assert.Equal(t, "internal server error", decode[ErrorResponse](t, rec).Message)
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func ptr[T any](v T) *T { return &v }
