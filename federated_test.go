package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyIDTokenRejectsEmptyToken(t *testing.T) {
	verifier := &FederatedVerifier{issuer: "https://idp.example.com", audience: []string{"client-1"}, logger: testNoopLogger{}}

	_, err := verifier.VerifyIDToken(context.Background(), "")
	require.Error(t, err)
	assert.True(t, IsMalformedError(err))
}

func TestVerifyIDTokenHonorsCancelledContext(t *testing.T) {
	verifier := &FederatedVerifier{logger: testNoopLogger{}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := verifier.VerifyIDToken(ctx, "some-token")
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewFederatedVerifierRequiresJWKSetURL(t *testing.T) {
	_, err := NewFederatedVerifier(FederatedVerifierConfig{}, nil)
	require.Error(t, err)
}

type testNoopLogger struct{}

func (testNoopLogger) Debug(string, ...any) {}
func (testNoopLogger) Info(string, ...any)  {}
func (testNoopLogger) Warn(string, ...any)  {}
func (testNoopLogger) Error(string, ...any) {}

func TestFederatedAccountIDIsStablePerAddress(t *testing.T) {
	first, err := federatedAccountID("ada@example.com")
	require.NoError(t, err)

	again, err := federatedAccountID("ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, first, again)

	normalized, err := federatedAccountID("  Ada@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, first, normalized)

	other, err := federatedAccountID("grace@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestUpstreamIdentityAccessors(t *testing.T) {
	id := upstreamIdentity{email: "ada@example.com", name: "Ada Lovelace"}

	assert.Equal(t, "ada@example.com", id.Email())
	assert.Equal(t, "Ada Lovelace", id.DisplayName())
}
