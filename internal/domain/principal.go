package domain

import (
	"strings"
	"time"
)

const (
	RoleCustomer = "CUSTOMER"
	RolePorter   = "PORTER"
	RoleAdmin    = "ADMIN"
)

// Principal is an account identity. Porters additionally need admin approval
// before they can hold a session.
type Principal struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Verified     bool      `json:"verified"`
	Blocked      bool      `json:"blocked"`
	Approved     bool      `json:"approved"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func NormalizeRole(role string) string {
	return strings.ToUpper(strings.TrimSpace(role))
}

func IsValidRole(role string) bool {
	switch role {
	case RoleCustomer, RolePorter, RoleAdmin:
		return true
	default:
		return false
	}
}

// CanHoldSession reports whether a token may be minted for the principal.
func (p Principal) CanHoldSession() error {
	if p.Blocked {
		return ErrAccountBlocked
	}
	if p.Role == RolePorter && !p.Approved {
		return ErrPorterNotApproved
	}
	return nil
}
