package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	auth "github.com/weshop/go-auth"
)

func newTestTokenService(duration time.Duration) auth.TokenService {
	return auth.NewTokenService(
		[]byte("test-signing-key"),
		duration,
		"test-issuer",
		jwt.ClaimStrings{"test-app"},
		testLogger{},
	)
}

func TestTokenServiceMintAndValidateRoundTrip(t *testing.T) {
	service := newTestTokenService(time.Hour)

	identity := &MockIdentity{}
	identity.On("ID").Return("user-123")
	identity.On("Role").Return("admin")

	now := time.Now()
	token, expiresAt, err := service.Mint(identity, now)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.WithinDuration(t, now.Add(time.Hour), expiresAt, time.Second)

	claims, err := service.Validate(token)
	require.NoError(t, err)

	assert.Equal(t, "user-123", claims.Subject())
	assert.Equal(t, "user-123", claims.UserID())
	assert.Equal(t, "admin", claims.Role())
	assert.True(t, claims.HasRole("admin"))
	assert.False(t, claims.HasRole("user"))
	assert.WithinDuration(t, expiresAt, claims.Expires(), time.Second)
	assert.WithinDuration(t, now, claims.IssuedAt(), time.Second)

	jwtClaims, ok := claims.(*auth.JWTClaims)
	require.True(t, ok)
	assert.Equal(t, "test-issuer", jwtClaims.Issuer)
	assert.Equal(t, jwt.ClaimStrings{"test-app"}, jwtClaims.Audience)
	assert.NotEmpty(t, jwtClaims.ID)

	identity.AssertExpectations(t)
}

func TestTokenServiceMintRequiresIdentity(t *testing.T) {
	service := newTestTokenService(time.Hour)

	_, _, err := service.Mint(nil, time.Now())
	require.Error(t, err)
}

func TestTokenServiceValidateExpiredToken(t *testing.T) {
	service := newTestTokenService(time.Minute)

	identity := &MockIdentity{}
	identity.On("ID").Return("user-123")
	identity.On("Role").Return("user")

	// minted two hours in the past, so exp is already behind us
	token, _, err := service.Mint(identity, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)

	_, err = service.Validate(token)
	require.Error(t, err)
	assert.True(t, auth.IsTokenExpiredError(err))
	assertTextCode(t, err, auth.TextCodeTokenExpired)
}

func TestTokenServiceValidateRejectsGarbage(t *testing.T) {
	service := newTestTokenService(time.Hour)

	tests := []struct {
		name  string
		token string
	}{
		{"empty string", ""},
		{"not a jwt", "not-a-token"},
		{"truncated jwt", "eyJhbGciOiJIUzI1NiJ9.e30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Validate(tt.token)
			require.Error(t, err)
			assertTextCode(t, err, auth.TextCodeTokenMalformed)
		})
	}
}

func TestTokenServiceValidateRejectsUnexpectedSigningMethod(t *testing.T) {
	service := newTestTokenService(time.Hour)

	now := time.Now()
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &auth.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "test-issuer",
			Subject:   "user-123",
			Audience:  jwt.ClaimStrings{"test-app"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		UID:      "user-123",
		UserRole: "user",
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = service.Validate(token)
	require.Error(t, err)
	assertTextCode(t, err, auth.TextCodeTokenMalformed)
}

func TestTokenServiceValidateRejectsForeignSignature(t *testing.T) {
	service := newTestTokenService(time.Hour)
	foreign := auth.NewTokenService([]byte("other-key"), time.Hour, "test-issuer", jwt.ClaimStrings{"test-app"}, testLogger{})

	identity := &MockIdentity{}
	identity.On("ID").Return("user-123")
	identity.On("Role").Return("user")

	token, _, err := foreign.Mint(identity, time.Now())
	require.NoError(t, err)

	_, err = service.Validate(token)
	require.Error(t, err)
}

func TestTokenServiceValidateRejectsWrongIssuer(t *testing.T) {
	service := newTestTokenService(time.Hour)
	other := auth.NewTokenService([]byte("test-signing-key"), time.Hour, "someone-else", jwt.ClaimStrings{"test-app"}, testLogger{})

	identity := &MockIdentity{}
	identity.On("ID").Return("user-123")
	identity.On("Role").Return("user")

	token, _, err := other.Mint(identity, time.Now())
	require.NoError(t, err)

	_, err = service.Validate(token)
	require.Error(t, err)
}

func TestTokenServiceSignClaims(t *testing.T) {
	service := newTestTokenService(time.Hour)

	t.Run("nil claims rejected", func(t *testing.T) {
		_, err := service.SignClaims(nil)
		require.Error(t, err)
	})

	t.Run("custom claims round trip", func(t *testing.T) {
		now := time.Now()
		signed, err := service.SignClaims(&auth.JWTClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "test-issuer",
				Subject:   "user-456",
				Audience:  jwt.ClaimStrings{"test-app"},
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
			},
			UID:      "user-456",
			UserRole: "employee",
		})
		require.NoError(t, err)

		claims, err := service.Validate(signed)
		require.NoError(t, err)
		assert.Equal(t, "user-456", claims.UserID())
		assert.Equal(t, "employee", claims.Role())
	})
}
