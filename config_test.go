package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	auth "github.com/weshop/go-auth"
)

func TestNewSimpleConfigDefaults(t *testing.T) {
	cfg := auth.NewSimpleConfig("signing-key")

	assert.Equal(t, "signing-key", cfg.GetSigningKey())
	assert.Equal(t, "HS256", cfg.GetSigningMethod())
	assert.Equal(t, "user", cfg.GetContextKey())
	assert.Equal(t, "session", cfg.GetCookieName())
	assert.Equal(t, "cookie:session,header:Authorization", cfg.GetTokenLookup())
	assert.Equal(t, "Bearer", cfg.GetAuthScheme())
	assert.Equal(t, 90*time.Minute, cfg.GetTokenDuration())
	assert.Equal(t, auth.DefaultCodeDuration, cfg.GetCodeDuration())
	assert.Equal(t, auth.DefaultDeliveryTimeout, cfg.GetDeliveryTimeout())
	assert.Equal(t, auth.DefaultMaxVerifyAttempts, cfg.GetMaxVerifyAttempts())
	assert.False(t, cfg.GetSecureCookies())
}

func TestSimpleConfigKeepsExplicitValues(t *testing.T) {
	got := &auth.SimpleConfig{
		SigningKey:        "signing-key",
		CookieName:        "sid",
		TokenDuration:     15 * time.Minute,
		MaxVerifyAttempts: 5,
		SecureCookies:     true,
	}
	got.ApplyDefaults()

	assert.Equal(t, "sid", got.GetCookieName())
	assert.Equal(t, "cookie:sid,header:Authorization", got.GetTokenLookup())
	assert.Equal(t, 15*time.Minute, got.GetTokenDuration())
	assert.Equal(t, 5, got.GetMaxVerifyAttempts())
	assert.True(t, got.GetSecureCookies())
}
