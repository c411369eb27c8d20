package auth

import (
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/weshop/go-auth/middleware/jwtware"
)

// RouteAuthenticator wires the gateway into HTTP middleware: session
// cookie handling, the protect guard and the role guard.
type RouteAuthenticator struct {
	gateway          Gateway
	validator        TokenValidator
	cfg              Config
	cookieDuration   time.Duration
	Logger           Logger
	AuthErrorHandler func(c router.Context, err error) error
	ErrorHandler     func(c router.Context, err error) error
}

func NewHTTPAuthenticator(gateway Gateway, validator TokenValidator, cfg Config) (*RouteAuthenticator, error) {
	if gateway == nil {
		return nil, errors.New("gateway is required", errors.CategoryBadInput)
	}
	if validator == nil {
		return nil, errors.New("token validator is required", errors.CategoryBadInput)
	}

	cookieDuration := 90 * time.Minute
	if cfg.GetTokenDuration() > 0 {
		cookieDuration = cfg.GetTokenDuration()
	}

	a := &RouteAuthenticator{
		cfg:            cfg,
		gateway:        gateway,
		validator:      validator,
		Logger:         defLogger{},
		cookieDuration: cookieDuration,
	}

	a.ErrorHandler = a.defaultErrHandler
	a.AuthErrorHandler = a.defaultAuthErrHandler

	return a, nil
}

func (a RouteAuthenticator) GetCookieDuration() time.Duration {
	return a.cookieDuration
}

// Protect guards a route: it extracts the token (cookie before header),
// validates it, rejects sessions whose account is gone or stale, and
// attaches the claims and resolved user to the request context.
func (a *RouteAuthenticator) Protect(errorHandler func(router.Context, error) error) router.MiddlewareFunc {
	if errorHandler == nil {
		errorHandler = a.MakeClientRouteAuthErrorHandler(false)
	}

	return jwtware.New(jwtware.Config{
		ErrorHandler: errorHandler,
		SigningKey: jwtware.SigningKey{
			Key:    []byte(a.cfg.GetSigningKey()),
			JWTAlg: a.cfg.GetSigningMethod(),
		},
		AuthScheme:     a.cfg.GetAuthScheme(),
		ContextKey:     a.cfg.GetContextKey(),
		TokenLookup:    a.tokenLookup(),
		TokenValidator: validatorAdapter{a.validator},
		ValidationListeners: []jwtware.ValidationListener{
			a.resolveAccount,
		},
	})
}

// RestrictTo composes after Protect: the resolved role must be in the
// allowed set.
func (a *RouteAuthenticator) RestrictTo(roles ...UserRole) router.MiddlewareFunc {
	return jwtware.RestrictTo(a.cfg.GetContextKey(), func(c router.Context, err error) error {
		return a.ErrorHandler(c, ErrForbidden)
	}, roles...)
}

// resolveAccount rejects tokens whose account no longer exists, is banned,
// or changed its password after the token was minted. The live record is
// propagated on the standard context for handlers that need it.
func (a *RouteAuthenticator) resolveAccount(ctx router.Context, claims jwtware.AuthClaims) error {
	user, err := a.gateway.Resolve(ctx.Context(), claims)
	if err != nil {
		return err
	}

	ctx.SetContext(WithContext(WithClaimsContext(ctx.Context(), claims), user))
	return nil
}

func (a *RouteAuthenticator) MakeClientRouteAuthErrorHandler(optional bool) func(router.Context, error) error {
	return func(ctx router.Context, err error) error {
		var richErr *errors.Error

		if IsTokenExpiredError(err) {
			richErr = ErrTokenExpired
		} else if IsMalformedError(err) {
			richErr = ErrTokenMalformed
		} else if errors.Is(err, ErrStaleSession) {
			richErr = ErrStaleSession
		} else {
			richErr = errors.Wrap(err, errors.CategoryAuth, "Invalid authentication token").
				WithCode(errors.CodeUnauthorized)
		}

		if optional {
			a.Logger.Info("Optional auth failed, proceeding: %s", richErr.Message)
			return ctx.Next()
		}

		return a.AuthErrorHandler(ctx, richErr)
	}
}

// SetSessionCookie installs the minted token as the session cookie. The
// cookie lifetime matches the token's absolute lifetime.
func (a *RouteAuthenticator) SetSessionCookie(c router.Context, token string, expiresAt time.Time) {
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(a.cookieDuration)
	}

	c.Cookie(&router.Cookie{
		Name:     a.cfg.GetCookieName(),
		Value:    token,
		Expires:  expiresAt,
		HTTPOnly: true,
		Secure:   a.cfg.GetSecureCookies(),
		SameSite: "Strict",
	})
}

// Logout replaces the session cookie with an immediately expiring one.
// Sessions are stateless: a copy of the token presented via the bearer
// header stays valid until its natural expiry.
func (a *RouteAuthenticator) Logout(c router.Context) {
	a.cookieDel(c, a.cfg.GetCookieName())
}

func (a *RouteAuthenticator) tokenLookup() string {
	if lookup := a.cfg.GetTokenLookup(); lookup != "" {
		return lookup
	}
	return "cookie:" + a.cfg.GetCookieName() + ",header:" + router.HeaderAuthorization
}

func (a *RouteAuthenticator) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   a.cfg.GetSecureCookies(),
		SameSite: "Strict",
	})
}

func (a *RouteAuthenticator) defaultAuthErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryAuth, "An unexpected authentication error").
			WithCode(errors.CodeUnauthorized)
	}

	return c.JSON(richErr.Code, map[string]any{
		"error": map[string]any{
			"message":   richErr.Message,
			"text_code": richErr.TextCode,
		},
	})
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	a.Logger.Info(
		"Middleware error handler: %s category=%s details=%s",
		richErr.Message,
		richErr.Category,
		print.MaybePrettyJSON(richErr.Metadata),
	)

	switch richErr.Category {
	case errors.CategoryAuth, errors.CategoryAuthz:
		return a.AuthErrorHandler(c, richErr)
	default:
		return c.JSON(richErr.Code, map[string]any{
			"error": map[string]any{
				"message":   richErr.Message,
				"text_code": richErr.TextCode,
			},
		})
	}
}

// validatorAdapter bridges the auth TokenValidator to the middleware's
// import-cycle-free mirror of it.
type validatorAdapter struct {
	validator TokenValidator
}

func (v validatorAdapter) Validate(tokenString string) (jwtware.AuthClaims, error) {
	claims, err := v.validator.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
