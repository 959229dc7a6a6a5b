package auth

import "time"

// Config holds auth options. One secret and TTL per token kind: a leaked
// verification secret must not be replayable as an access token.
type Config interface {
	GetAccessSigningKey() string
	GetAccessTokenTTL() time.Duration
	GetRefreshSigningKey() string
	GetRefreshTokenTTL() time.Duration
	GetVerificationSigningKey() string
	GetVerificationTokenTTL() time.Duration
	GetResetSigningKey() string
	GetResetTokenTTL() time.Duration
	GetIssuer() string
	GetAudience() []string
	GetContextKey() string
	GetTokenLookup() string
	GetAuthScheme() string
	GetRefreshCookieName() string
	GetRefreshCookiePath() string
}

const (
	defAccessTokenTTL       = 15 * time.Minute
	defRefreshTokenTTL      = 7 * 24 * time.Hour
	defVerificationTokenTTL = 24 * time.Hour
	defResetTokenTTL        = time.Hour
)

// SimpleConfig is a plain struct implementation of Config. Construct it once
// at process start and pass it by reference into the constructors; the
// package keeps no ambient configuration.
type SimpleConfig struct {
	AccessSigningKey       string
	AccessTokenTTL         time.Duration
	RefreshSigningKey      string
	RefreshTokenTTL        time.Duration
	VerificationSigningKey string
	VerificationTokenTTL   time.Duration
	ResetSigningKey        string
	ResetTokenTTL          time.Duration
	Issuer                 string
	Audience               []string
	ContextKey             string
	TokenLookup            string
	AuthScheme             string
	RefreshCookieName      string
	RefreshCookiePath      string
}

var _ Config = (*SimpleConfig)(nil)

func (c *SimpleConfig) GetAccessSigningKey() string { return c.AccessSigningKey }

func (c *SimpleConfig) GetAccessTokenTTL() time.Duration {
	if c.AccessTokenTTL == 0 {
		return defAccessTokenTTL
	}
	return c.AccessTokenTTL
}

func (c *SimpleConfig) GetRefreshSigningKey() string { return c.RefreshSigningKey }

func (c *SimpleConfig) GetRefreshTokenTTL() time.Duration {
	if c.RefreshTokenTTL == 0 {
		return defRefreshTokenTTL
	}
	return c.RefreshTokenTTL
}

func (c *SimpleConfig) GetVerificationSigningKey() string { return c.VerificationSigningKey }

func (c *SimpleConfig) GetVerificationTokenTTL() time.Duration {
	if c.VerificationTokenTTL == 0 {
		return defVerificationTokenTTL
	}
	return c.VerificationTokenTTL
}

func (c *SimpleConfig) GetResetSigningKey() string { return c.ResetSigningKey }

func (c *SimpleConfig) GetResetTokenTTL() time.Duration {
	if c.ResetTokenTTL == 0 {
		return defResetTokenTTL
	}
	return c.ResetTokenTTL
}

func (c *SimpleConfig) GetIssuer() string { return c.Issuer }

func (c *SimpleConfig) GetAudience() []string { return c.Audience }

func (c *SimpleConfig) GetContextKey() string {
	if c.ContextKey == "" {
		return "user"
	}
	return c.ContextKey
}

func (c *SimpleConfig) GetTokenLookup() string {
	if c.TokenLookup == "" {
		return "header:Authorization"
	}
	return c.TokenLookup
}

func (c *SimpleConfig) GetAuthScheme() string {
	if c.AuthScheme == "" {
		return "Bearer"
	}
	return c.AuthScheme
}

func (c *SimpleConfig) GetRefreshCookieName() string {
	if c.RefreshCookieName == "" {
		return "refresh_token"
	}
	return c.RefreshCookieName
}

func (c *SimpleConfig) GetRefreshCookiePath() string {
	if c.RefreshCookiePath == "" {
		return "/auth/refresh"
	}
	return c.RefreshCookiePath
}
