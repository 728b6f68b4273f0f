package jwtx

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the access-token claims issued by the ESB auth service. The
// console only ever reads them, it never signs or verifies.
type Claims struct {
	jwt.RegisteredClaims

	// Permission names granted to the user, e.g. "users:write".
	Permissions []string `json:"permissions,omitempty"`

	// Display attributes, optional depending on the issuing realm.
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// IssuedAtTime returns the iat claim, or the zero time when absent.
func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// ExpiresAtTime returns the exp claim. Decoded claims always carry one.
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// HasPermission reports whether the permission claim contains p.
func (c *Claims) HasPermission(p string) bool {
	return slices.Contains(c.Permissions, p)
}
