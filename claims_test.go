package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	auth "github.com/weshop/go-auth"
)

func TestJWTClaimsAccessors(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	claims := &auth.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "subject-id",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		UID:      "uid-id",
		UserRole: "employee",
	}

	assert.Equal(t, "subject-id", claims.Subject())
	assert.Equal(t, "uid-id", claims.UserID())
	assert.Equal(t, "employee", claims.Role())
	assert.True(t, claims.HasRole("employee"))
	assert.False(t, claims.HasRole("admin"))
	assert.Equal(t, now, claims.IssuedAt())
	assert.Equal(t, now.Add(time.Hour), claims.Expires())
}

func TestJWTClaimsUserIDFallsBackToSubject(t *testing.T) {
	claims := &auth.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "subject-id"},
	}
	assert.Equal(t, "subject-id", claims.UserID())
}

func TestJWTClaimsZeroTimes(t *testing.T) {
	claims := &auth.JWTClaims{}
	assert.True(t, claims.IssuedAt().IsZero())
	assert.True(t, claims.Expires().IsZero())
}

func TestIsStale(t *testing.T) {
	issuedAt := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	before := issuedAt.Add(-time.Minute)
	after := issuedAt.Add(time.Minute)

	tests := []struct {
		name              string
		passwordChangedAt *time.Time
		expected          bool
	}{
		{"never changed", nil, false},
		{"changed before issuance", &before, false},
		{"changed after issuance", &after, true},
		{"changed exactly at issuance", &issuedAt, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, auth.IsStale(issuedAt, tt.passwordChangedAt))
		})
	}
}
