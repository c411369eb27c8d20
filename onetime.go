package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"math/big"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// CodePurpose selects the kind of one-time secret to issue.
type CodePurpose string

const (
	// PurposeVerification is the 6 digit email ownership code
	PurposeVerification CodePurpose = "verification"
	// PurposeReset is the high-entropy password reset token
	PurposeReset CodePurpose = "reset"
)

// OneTimeOutcome is the result of validating a candidate secret.
type OneTimeOutcome int

const (
	OneTimeValid OneTimeOutcome = iota
	OneTimeExpired
	OneTimeMismatch
)

const (
	verificationCodeDigits = 6
	resetTokenBytes        = 32
	// DefaultCodeDuration is the validity window of a one-time secret.
	DefaultCodeDuration = 10 * time.Minute
)

// IssuedCode is a freshly generated one-time secret. The plaintext exists
// only here; callers persist the hash and the expiry, never the plaintext.
type IssuedCode struct {
	Plaintext string
	Hash      string
	ExpiresAt time.Time
}

// CodeIssuer generates and validates one-time secrets. Issuance has no
// side effects: committing the hash alongside the record mutation, and
// rolling it back when delivery fails, is the caller's job.
type CodeIssuer struct {
	ttl time.Duration
	now func() time.Time
}

type CodeIssuerOption func(*CodeIssuer)

// WithCodeTTL overrides the validity window.
func WithCodeTTL(ttl time.Duration) CodeIssuerOption {
	return func(ci *CodeIssuer) {
		if ttl > 0 {
			ci.ttl = ttl
		}
	}
}

// WithCodeClock injects a custom clock (useful for tests).
func WithCodeClock(clock func() time.Time) CodeIssuerOption {
	return func(ci *CodeIssuer) {
		if clock != nil {
			ci.now = clock
		}
	}
}

// NewCodeIssuer creates a CodeIssuer with the default 10 minute window.
func NewCodeIssuer(opts ...CodeIssuerOption) *CodeIssuer {
	ci := &CodeIssuer{
		ttl: DefaultCodeDuration,
		now: time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ci)
		}
	}

	return ci
}

// Issue generates a secret for the given purpose and returns the
// plaintext exactly once, together with its sha256 hash and expiry.
func (ci *CodeIssuer) Issue(purpose CodePurpose) (IssuedCode, error) {
	var plaintext string
	var err error

	switch purpose {
	case PurposeVerification:
		plaintext, err = randomDigits(verificationCodeDigits)
	case PurposeReset:
		plaintext, err = randomHex(resetTokenBytes)
	default:
		return IssuedCode{}, goerrors.New("unknown one-time code purpose", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"purpose": string(purpose)})
	}

	if err != nil {
		return IssuedCode{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate one-time code")
	}

	return IssuedCode{
		Plaintext: plaintext,
		Hash:      HashOneTimeCode(plaintext),
		ExpiresAt: ci.now().Add(ci.ttl),
	}, nil
}

// Validate hashes the candidate and compares it against the stored hash
// in constant time. Expiry wins over a matching hash: a correct code past
// its window is still rejected.
func (ci *CodeIssuer) Validate(candidate, storedHash string, expiresAt *time.Time, now time.Time) OneTimeOutcome {
	if storedHash == "" || expiresAt == nil {
		return OneTimeMismatch
	}

	if now.After(*expiresAt) {
		return OneTimeExpired
	}

	candidateHash := HashOneTimeCode(candidate)
	if subtle.ConstantTimeCompare([]byte(candidateHash), []byte(storedHash)) != 1 {
		return OneTimeMismatch
	}

	return OneTimeValid
}

// HashOneTimeCode is the one-way function shared by issuance and lookup.
// The store only ever sees this value.
func HashOneTimeCode(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// randomDigits draws each digit from a uniform distribution, so leading
// zeros are as likely as any other digit.
func randomDigits(n int) (string, error) {
	digits := make([]byte, n)
	for i := range digits {
		v, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0') + byte(v.Int64())
	}
	return string(digits), nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
