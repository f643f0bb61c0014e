package domain

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// StateMachine holds the status transitions reachable through a status
// update and the roles allowed to perform each of them. Pending to
// Processing is missing on purpose: only a successful payment does that.
type StateMachine struct {
	rules map[OrderStatus]map[OrderStatus][]Role
}

func NewStateMachine() *StateMachine {
	both := []Role{RoleCustomer, RoleAdmin}
	admin := []Role{RoleAdmin}
	return &StateMachine{
		rules: map[OrderStatus]map[OrderStatus][]Role{
			Pending: {
				Cancelled: both,
			},
			Processing: {
				Shipped:   admin,
				Cancelled: both,
				Refunded:  admin,
			},
			Shipped: {
				Delivered: admin,
				Refunded:  admin,
			},
			Delivered: {
				Refunded: admin,
			},
			Cancelled: {},
			Refunded:  {},
		},
	}
}

// Check returns nil when role may move an order from one status to the
// other. Setting the current status again is always allowed and is a no-op.
func (sm *StateMachine) Check(from, to OrderStatus, role Role) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %d", ErrValidation, int(to))
	}
	if from == to {
		return nil
	}
	roles, ok := sm.rules[from][to]
	if !ok {
		return fmt.Errorf("%w: %s to %s (next for %s: %s)", ErrInvalidTransition, from, to, role, sm.next(from, role))
	}
	for _, r := range roles {
		if r == role {
			return nil
		}
	}
	return fmt.Errorf("%w: %s may not move an order from %s to %s (next for %s: %s)",
		ErrForbiddenTransition, role, from, to, role, sm.next(from, role))
}

func (sm *StateMachine) next(from OrderStatus, role Role) string {
	allowed := sm.Allowed(from, role)
	if len(allowed) == 0 {
		return "none"
	}
	names := make([]string, len(allowed))
	for i, st := range allowed {
		names[i] = st.String()
	}
	return strings.Join(names, ", ")
}

// Allowed lists the statuses role may move an order to from the given one.
func (sm *StateMachine) Allowed(from OrderStatus, role Role) []OrderStatus {
	var out []OrderStatus
	for to := Pending; to <= Refunded; to++ {
		for _, r := range sm.rules[from][to] {
			if r == role {
				out = append(out, to)
				break
			}
		}
	}
	return out
}
