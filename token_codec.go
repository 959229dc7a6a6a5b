package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// TokenCodec issues and verifies signed tokens for each TokenKind.
type TokenCodec interface {
	// Issue serializes the claims with an expiry of now + the kind's TTL and
	// signs them with the kind's secret.
	Issue(kind TokenKind, claims *TokenClaims) (string, error)
	// Verify checks signature and expiry against the kind's secret. It never
	// consults external state.
	Verify(kind TokenKind, raw string) (*TokenClaims, error)
	// DecodeUnsafe returns claims without checking signature or expiry. Only
	// for revocation bookkeeping, never for authorization decisions.
	DecodeUnsafe(raw string) (*TokenClaims, bool)
}

// HMACTokenCodec implements TokenCodec with HS256 and per kind secrets
type HMACTokenCodec struct {
	cfg    Config
	logger Logger
}

var _ TokenCodec = (*HMACTokenCodec)(nil)

// NewTokenCodec creates a codec. A missing secret for any kind is a
// configuration error and fails construction; it is not a runtime condition.
func NewTokenCodec(cfg Config) (*HMACTokenCodec, error) {
	for _, kind := range []TokenKind{TokenKindAccess, TokenKindRefresh, TokenKindVerification, TokenKindReset} {
		if secretForKind(cfg, kind) == "" {
			return nil, errors.New(
				fmt.Sprintf("missing signing secret for %q tokens", kind),
				errors.CategoryInternal,
			).WithTextCode("MISCONFIGURED_SECRET")
		}
	}

	return &HMACTokenCodec{cfg: cfg, logger: defLogger{}}, nil
}

func (tc *HMACTokenCodec) WithLogger(logger Logger) *HMACTokenCodec {
	if logger != nil {
		tc.logger = logger
	}
	return tc
}

func secretForKind(cfg Config, kind TokenKind) string {
	switch kind {
	case TokenKindAccess:
		return cfg.GetAccessSigningKey()
	case TokenKindRefresh:
		return cfg.GetRefreshSigningKey()
	case TokenKindVerification:
		return cfg.GetVerificationSigningKey()
	case TokenKindReset:
		return cfg.GetResetSigningKey()
	}
	return ""
}

func ttlForKind(cfg Config, kind TokenKind) time.Duration {
	switch kind {
	case TokenKindAccess:
		return cfg.GetAccessTokenTTL()
	case TokenKindRefresh:
		return cfg.GetRefreshTokenTTL()
	case TokenKindVerification:
		return cfg.GetVerificationTokenTTL()
	case TokenKindReset:
		return cfg.GetResetTokenTTL()
	}
	return 0
}

// Issue signs the claims for the given kind
func (tc *HMACTokenCodec) Issue(kind TokenKind, claims *TokenClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	secret := secretForKind(tc.cfg, kind)
	if secret == "" {
		return "", errors.New(
			fmt.Sprintf("missing signing secret for %q tokens", kind),
			errors.CategoryInternal,
		).WithTextCode("MISCONFIGURED_SECRET")
	}

	now := time.Now()

	claims.Kind = kind
	claims.RegisteredClaims.Issuer = tc.cfg.GetIssuer()
	claims.RegisteredClaims.IssuedAt = jwt.NewNumericDate(now)
	claims.RegisteredClaims.ExpiresAt = jwt.NewNumericDate(now.Add(ttlForKind(tc.cfg, kind)))

	if aud := tc.cfg.GetAudience(); len(aud) > 0 {
		claims.RegisteredClaims.Audience = make(jwt.ClaimStrings, len(aud))
		copy(claims.RegisteredClaims.Audience, aud)
	}

	ensureTokenID(&claims.RegisteredClaims)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign token")
	}

	return signed, nil
}

// Verify parses and validates a token string, returning structured claims
func (tc *HMACTokenCodec) Verify(kind TokenKind, raw string) (*TokenClaims, error) {
	secret := secretForKind(tc.cfg, kind)

	parserOptions := make([]jwt.ParserOption, 0, 1)
	if issuer := tc.cfg.GetIssuer(); issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(issuer))
	}

	token, err := jwt.ParseWithClaims(raw, &TokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			tc.logger.Error("token codec encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		tc.logger.Debug("token parse failed", "error", err)
		return nil, ErrTokenMalformed
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		tc.logger.Error("token codec could not decode claims")
		return nil, ErrTokenMalformed
	}

	// distinct secrets already isolate kinds; the kind claim catches two
	// kinds configured with the same secret
	if claims.Kind != kind {
		tc.logger.Debug("token kind mismatch", "expected", string(kind), "actual", string(claims.Kind))
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

// DecodeUnsafe parses the claims without signature or expiry checks
func (tc *HMACTokenCodec) DecodeUnsafe(raw string) (*TokenClaims, bool) {
	claims := &TokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, false
	}
	return claims, true
}
