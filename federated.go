package auth

import (
	"context"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// FederatedVerifierConfig configures upstream ID token validation.
type FederatedVerifierConfig struct {
	// JWKSetURL is the upstream provider's published JWK Set.
	JWKSetURL string

	// Issuer is the expected iss claim.
	Issuer string

	// Audience is the set of acceptable aud claims (our client IDs).
	Audience []string

	// RefreshInterval controls background JWK Set refresh.
	RefreshInterval time.Duration
}

// FederatedVerifier validates ID tokens minted by an upstream identity
// provider against its JWK Set and extracts the asserted identity. The
// gateway trusts whatever comes out of here, so the signature, issuer and
// audience checks all happen on this side of the boundary.
type FederatedVerifier struct {
	jwks     *keyfunc.JWKS
	issuer   string
	audience []string
	logger   Logger
}

// NewFederatedVerifier fetches the JWK Set and keeps it refreshed in the
// background until Close is called.
func NewFederatedVerifier(cfg FederatedVerifierConfig, logger Logger) (*FederatedVerifier, error) {
	if cfg.JWKSetURL == "" {
		return nil, goerrors.New("JWK Set URL is required", goerrors.CategoryBadInput)
	}

	if logger == nil {
		logger = defLogger{}
	}

	refreshInterval := cfg.RefreshInterval
	if refreshInterval <= 0 {
		refreshInterval = time.Hour
	}

	jwks, err := keyfunc.Get(cfg.JWKSetURL, keyfunc.Options{
		RefreshInterval:   refreshInterval,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			logger.Warn("federated JWK Set refresh failed: %v", err)
		},
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to fetch JWK Set")
	}

	return &FederatedVerifier{
		jwks:     jwks,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		logger:   logger,
	}, nil
}

// Close stops the background JWK Set refresh.
func (v *FederatedVerifier) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

type federatedClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// upstreamIdentity is the FederatedIdentity handed to the gateway after a
// token passed validation.
type upstreamIdentity struct {
	email string
	name  string
}

func (u upstreamIdentity) Email() string       { return u.email }
func (u upstreamIdentity) DisplayName() string { return u.name }

// VerifyIDToken validates the raw upstream token and returns the identity
// it asserts. Tokens for unverified email addresses are refused: the whole
// point of the federated path is that the upstream proved the address.
func (v *FederatedVerifier) VerifyIDToken(ctx context.Context, raw string) (FederatedIdentity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if raw == "" {
		return nil, ErrTokenMalformed
	}

	parserOptions := make([]jwt.ParserOption, 0, 2)
	if v.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(v.issuer))
	}
	if len(v.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(v.audience...))
	}

	token, err := jwt.ParseWithClaims(raw, &federatedClaims{}, v.jwks.Keyfunc, parserOptions...)
	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, goerrors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode)
	}

	claims, ok := token.Claims.(*federatedClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenMalformed
	}

	if claims.Email == "" || !claims.EmailVerified {
		return nil, ErrValidationFailure.WithMetadata(map[string]any{
			"reason": "upstream email is missing or unverified",
		})
	}

	return upstreamIdentity{
		email: claims.Email,
		name:  claims.Name,
	}, nil
}

// federatedAccountID derives a stable account ID from the address, so a
// provision retried after a partial failure lands on the same record.
func federatedAccountID(email string) (uuid.UUID, error) {
	return hashid.NewUUID(NormalizeEmail(email))
}
