// Package jwtxtest mints tokens shaped like the ESB auth service's for tests.
package jwtxtest

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/saccoesb/pkg/idx"
	"github.com/aussiebroadwan/saccoesb/pkg/jwtx"
)

var signingKey = []byte("jwtxtest-signing-key")

// Token returns an HS256 token for subject expiring ttl from now. Every call
// yields a distinct token.
func Token(t testing.TB, subject string, ttl time.Duration, permissions ...string) string {
	t.Helper()

	now := time.Now()
	return Sign(t, jwtx.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        idx.New().String(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Permissions: permissions,
	})
}

// Sign signs arbitrary claims.
func Sign(t testing.TB, claims jwt.Claims) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	require.NoError(t, err)
	return token
}
