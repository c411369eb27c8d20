package auth

import "time"

// SimpleConfig is a plain-struct Config implementation for callers that
// do not have their own configuration layer.
type SimpleConfig struct {
	SigningKey        string
	SigningMethod     string
	ContextKey        string
	CookieName        string
	TokenLookup       string
	AuthScheme        string
	Issuer            string
	Audience          []string
	TokenDuration     time.Duration
	CodeDuration      time.Duration
	DeliveryTimeout   time.Duration
	MaxVerifyAttempts int
	SecureCookies     bool
}

var _ Config = (*SimpleConfig)(nil)

// NewSimpleConfig returns a config with sensible defaults applied on top
// of the provided signing key.
func NewSimpleConfig(signingKey string) *SimpleConfig {
	cfg := &SimpleConfig{SigningKey: signingKey}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset field. Callers that build the struct
// literal directly should invoke it before use.
func (c *SimpleConfig) ApplyDefaults() {
	if c.SigningMethod == "" {
		c.SigningMethod = "HS256"
	}
	if c.ContextKey == "" {
		c.ContextKey = "user"
	}
	if c.CookieName == "" {
		c.CookieName = "session"
	}
	if c.TokenLookup == "" {
		c.TokenLookup = "cookie:" + c.CookieName + ",header:Authorization"
	}
	if c.AuthScheme == "" {
		c.AuthScheme = "Bearer"
	}
	if c.TokenDuration <= 0 {
		c.TokenDuration = 90 * time.Minute
	}
	if c.CodeDuration <= 0 {
		c.CodeDuration = DefaultCodeDuration
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = DefaultDeliveryTimeout
	}
	if c.MaxVerifyAttempts <= 0 {
		c.MaxVerifyAttempts = DefaultMaxVerifyAttempts
	}
}

func (c *SimpleConfig) GetSigningKey() string { return c.SigningKey }
func (c *SimpleConfig) GetSigningMethod() string { return c.SigningMethod }
func (c *SimpleConfig) GetContextKey() string { return c.ContextKey }
func (c *SimpleConfig) GetCookieName() string { return c.CookieName }
func (c *SimpleConfig) GetTokenLookup() string { return c.TokenLookup }
func (c *SimpleConfig) GetAuthScheme() string { return c.AuthScheme }
func (c *SimpleConfig) GetIssuer() string { return c.Issuer }
func (c *SimpleConfig) GetAudience() []string { return c.Audience }
func (c *SimpleConfig) GetTokenDuration() time.Duration { return c.TokenDuration }
func (c *SimpleConfig) GetCodeDuration() time.Duration { return c.CodeDuration }
func (c *SimpleConfig) GetDeliveryTimeout() time.Duration { return c.DeliveryTimeout }
func (c *SimpleConfig) GetMaxVerifyAttempts() int { return c.MaxVerifyAttempts }
func (c *SimpleConfig) GetSecureCookies() bool { return c.SecureCookies }
