package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Session holds attributes that are part of an auth session
type Session interface {
	GetUserID() string
	GetUserUUID() (uuid.UUID, error)
	GetAudience() []string
	GetIssuer() string
	GetIssuedAt() *time.Time
	GetData() map[string]any
}

// Identity holds the attributes of an identity
type Identity interface {
	ID() string
	Email() string
	Role() string
}

// Gateway is the account facade the rest of the application talks to.
// Every operation is a complete lifecycle transition: it validates input,
// consults the state machine, persists through the credential store and,
// where a one-time code is involved, attempts out-of-band delivery.
type Gateway interface {
	Signup(ctx context.Context, input SignupInput) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	Verify(ctx context.Context, code string, opts ...VerifyOption) (*AuthResult, error)
	ChangeState(ctx context.Context, callerID string, target AccountState) (*User, error)
	ForgotPassword(ctx context.Context, email string) error
	VerifyResetToken(ctx context.Context, candidate string) error
	ResetPassword(ctx context.Context, candidate, password, passwordConfirm string) (*AuthResult, error)
	UpdatePassword(ctx context.Context, callerID, current, password, passwordConfirm string) (*AuthResult, error)
	FederatedLogin(ctx context.Context, upstream FederatedIdentity, allowedRoles ...UserRole) (*AuthResult, error)
	Resolve(ctx context.Context, claims AuthClaims) (*User, error)
}

// SignupInput carries the fields a new registration needs. The password
// confirmation is checked before any record is touched.
type SignupInput struct {
	Name            string
	Email           string
	Phone           string
	Password        string
	PasswordConfirm string
}

// AuthResult is the outcome of an operation that may mint a session.
// PendingVerification signals the caller got a fresh verification code
// instead of an authenticated session.
type AuthResult struct {
	User                *User
	Token               string
	ExpiresAt           time.Time
	PendingVerification bool
}

// FederatedIdentity is an upstream-asserted identity. Implementations are
// expected to have verified the assertion (signature, issuer, audience)
// before the gateway trusts it.
type FederatedIdentity interface {
	Email() string
	DisplayName() string
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetSigningMethod() string
	GetContextKey() string
	GetCookieName() string
	GetTokenLookup() string
	GetAuthScheme() string
	GetIssuer() string
	GetAudience() []string
	GetTokenDuration() time.Duration
	GetCodeDuration() time.Duration
	GetDeliveryTimeout() time.Duration
	GetMaxVerifyAttempts() int
	GetSecureCookies() bool
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
