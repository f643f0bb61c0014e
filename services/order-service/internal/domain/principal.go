package domain

import "strings"

// Principal is the authenticated caller as described by the identity
// service's bearer token.
type Principal struct {
	UserID string
	Email  string
	Roles  []string
}

func (p Principal) IsAdmin() bool {
	for _, r := range p.Roles {
		if strings.EqualFold(r, string(RoleAdmin)) {
			return true
		}
	}
	return false
}

func (p Principal) Role() Role {
	if p.IsAdmin() {
		return RoleAdmin
	}
	return RoleCustomer
}
