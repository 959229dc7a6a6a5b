package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind selects the signing secret and TTL a token is bound to.
type TokenKind string

const (
	TokenKindAccess       TokenKind = "access"
	TokenKindRefresh      TokenKind = "refresh"
	TokenKindVerification TokenKind = "email-verification"
	TokenKindReset        TokenKind = "password-reset"
)

// AuthClaims is the read side of a verified token
type AuthClaims interface {
	Subject() string
	UserID() string
	Role() string
	UserEmail() string
	TokenKind() TokenKind
	Expires() time.Time
	IssuedAt() time.Time
}

// TokenClaims is the concrete claim set carried by every token kind. Access
// tokens fill uid/role/name/email, refresh tokens carry the subject only,
// verification and reset tokens carry the email they are bound to.
type TokenClaims struct {
	jwt.RegisteredClaims
	Kind     TokenKind `json:"kind,omitempty"`
	UID      string    `json:"uid,omitempty"`
	UserRole string    `json:"role,omitempty"`
	Name     string    `json:"name,omitempty"`
	Email    string    `json:"email,omitempty"`
}

var _ AuthClaims = (*TokenClaims)(nil)

// Subject returns the subject claim
func (c *TokenClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user ID
func (c *TokenClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// Role returns the global role
func (c *TokenClaims) Role() string {
	return c.UserRole
}

// UserEmail returns the email the token is bound to, if any
func (c *TokenClaims) UserEmail() string {
	return c.Email
}

// TokenKind returns the token kind
func (c *TokenClaims) TokenKind() TokenKind {
	return c.Kind
}

// Expires returns the expiration time
func (c *TokenClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *TokenClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// RemainingTTL is the time left until expiry, measured from now. Zero or
// negative means the token already expired naturally.
func (c *TokenClaims) RemainingTTL(now time.Time) time.Duration {
	if c.RegisteredClaims.ExpiresAt == nil {
		return 0
	}
	return c.RegisteredClaims.ExpiresAt.Time.Sub(now)
}

func jwtSubject(sub string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{Subject: sub}
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}
