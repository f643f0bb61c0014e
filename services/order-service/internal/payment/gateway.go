// Package payment holds the payment gateway boundary and the simulated
// gateway used outside production.
package payment

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"bookstore-system/services/order-service/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Gateway charges an order. A decline is a normal result, not an error;
// errors mean the gateway could not be asked at all.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

type ChargeRequest struct {
	OrderID int64
	UserID  string
	Amount  decimal.Decimal
	Method  domain.PaymentMethod
	Card    *CardDetails
}

type ChargeResult struct {
	Approved      bool
	TransactionID string
	DeclineReason string
}

// SimulatedGateway approves a fixed share of charges after a fixed,
// non-cancellable delay.
type SimulatedGateway struct {
	SuccessRate float64
	Delay       time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSimulatedGateway(successRate float64, delay time.Duration) *SimulatedGateway {
	return &SimulatedGateway{
		SuccessRate: successRate,
		Delay:       delay,
		rng:         rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
	}
}

func (g *SimulatedGateway) Charge(_ context.Context, req ChargeRequest) (ChargeResult, error) {
	if g.Delay > 0 {
		time.Sleep(g.Delay)
	}

	g.mu.Lock()
	roll := g.rng.Float64()
	g.mu.Unlock()

	if roll >= g.SuccessRate {
		return ChargeResult{
			Approved:      false,
			DeclineReason: fmt.Sprintf("payment declined by %s processor", req.Method),
		}, nil
	}
	return ChargeResult{Approved: true, TransactionID: NewTransactionID()}, nil
}

func NewTransactionID() string {
	return "TXN_" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}
