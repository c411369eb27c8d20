package auth

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Helpers for applications that mount the router on top of Fiber and need
// to reach the session from a raw fiber handler.

// ExtractFiberToken pulls the raw session token from a fiber request,
// checking the session cookie before the Authorization header.
func ExtractFiberToken(c *fiber.Ctx, cfg Config) string {
	if token := c.Cookies(cfg.GetCookieName()); token != "" {
		return token
	}

	header := c.Get(fiber.HeaderAuthorization)
	scheme := cfg.GetAuthScheme()
	if scheme == "" {
		scheme = "Bearer"
	}

	if len(header) > len(scheme)+1 && strings.EqualFold(header[:len(scheme)], scheme) {
		return strings.TrimSpace(header[len(scheme):])
	}

	return ""
}

// GetFiberSession validates the request's token and maps it to a session
// object.
func GetFiberSession(c *fiber.Ctx, cfg Config, validator TokenValidator) (*SessionObject, error) {
	raw := ExtractFiberToken(c, cfg)
	if raw == "" {
		return nil, ErrUnauthenticated
	}

	claims, err := validator.Validate(raw)
	if err != nil {
		return nil, err
	}

	return SessionFromClaims(claims)
}

// SetFiberSessionCookie installs the minted token on a fiber response.
func SetFiberSessionCookie(c *fiber.Ctx, cfg Config, token string, expiresAt time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     cfg.GetCookieName(),
		Value:    token,
		Expires:  expiresAt,
		HTTPOnly: true,
		Secure:   cfg.GetSecureCookies(),
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

// FiberLogout replaces the session cookie with an immediately expiring one.
func FiberLogout(c *fiber.Ctx, cfg Config) {
	c.Cookie(&fiber.Cookie{
		Name:     cfg.GetCookieName(),
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   cfg.GetSecureCookies(),
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}
