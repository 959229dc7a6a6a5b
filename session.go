package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// Revocation keys carry a kind prefix so an access token and a refresh token
// with the same raw value cannot shadow each other.
const (
	revokedAccessPrefix  = "bl_acc_"
	revokedRefreshPrefix = "bl_ref_"
)

// SessionStore is the slice of the users repository the session lifecycle
// needs. *users implements it.
type SessionStore interface {
	GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*User, error)
	GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*User, error)
	StoreRefreshToken(ctx context.Context, id uuid.UUID, token string) error
	RotateRefreshToken(ctx context.Context, id uuid.UUID, current, next string) error
	ClearRefreshToken(ctx context.Context, id uuid.UUID) error
}

// TokenPair is an access/refresh token pair
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// LoginResult is a token pair plus the public user fields
type LoginResult struct {
	TokenPair
	User *PublicUser `json:"user"`
}

// SessionManager orchestrates login, refresh rotation, and logout.
type SessionManager struct {
	codec       TokenCodec
	revocations RevocationStore
	store       SessionStore
	logger      Logger
}

// NewSessionManager returns a new SessionManager
func NewSessionManager(codec TokenCodec, revocations RevocationStore, store SessionStore) *SessionManager {
	return &SessionManager{
		codec:       codec,
		revocations: revocations,
		store:       store,
		logger:      defLogger{},
	}
}

func (s *SessionManager) WithLogger(logger Logger) *SessionManager {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// dummy hash compared on unknown identifiers so a login miss costs the same
// as a wrong password
var dummyPasswordHash = RandomPasswordHash()

// Login verifies the email/password pair and opens a session: it issues an
// access/refresh pair, persists the refresh token on the user record
// (displacing any previous one), and returns the tokens plus public user
// fields. A missing user and a wrong password are indistinguishable to the
// caller.
func (s *SessionManager) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	user, err := s.store.GetByIdentifier(ctx, identifier)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			_ = ComparePasswordAndHash(password, dummyPasswordHash)
			s.logger.Debug("login identifier not found", "identifier", identifier)
			return nil, ErrInvalidCredentials
		}
		s.logger.Error("login user lookup failed", "error", err)
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load user for login")
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		s.logger.Debug("login password mismatch", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		TokenPair: *pair,
		User:      user.Public(),
	}, nil
}

// VerifyAccess is the guard predicate for protected requests: revocation
// first, then signature and expiry. Order matters, a revoked token that
// still verifies must surface as revoked.
func (s *SessionManager) VerifyAccess(ctx context.Context, raw string) (*TokenClaims, error) {
	revoked, err := s.revocations.IsRevoked(ctx, revokedAccessPrefix+raw)
	if err != nil {
		s.logger.Error("access revocation lookup failed", "error", err)
		return nil, err
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	return s.codec.Verify(TokenKindAccess, raw)
}

// Refresh exchanges a refresh token for a fresh pair. Rotation is single
// use: the stored token must still equal the presented one, and the swap to
// the new token is a conditional write, so the second of two concurrent
// calls with the same token loses.
func (s *SessionManager) Refresh(ctx context.Context, raw string) (*TokenPair, error) {
	revoked, err := s.revocations.IsRevoked(ctx, revokedRefreshPrefix+raw)
	if err != nil {
		s.logger.Error("refresh revocation lookup failed", "error", err)
		return nil, err
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	claims, err := s.codec.Verify(TokenKindRefresh, raw)
	if err != nil {
		return nil, err
	}

	user, err := s.store.GetByID(ctx, claims.Subject())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrInvalidRefreshToken
		}
		s.logger.Error("refresh user lookup failed", "error", err)
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load user for refresh")
	}

	if user.RefreshToken == "" || user.RefreshToken != raw {
		s.logger.Debug("refresh token no longer on file", "user_id", user.ID)
		return nil, ErrInvalidRefreshToken
	}

	access, next, err := s.mintPair(user)
	if err != nil {
		return nil, err
	}

	if err := s.store.RotateRefreshToken(ctx, user.ID, raw, next); err != nil {
		if repository.IsRecordNotFound(err) {
			// lost the rotation race; the presented token was just consumed
			return nil, ErrInvalidRefreshToken
		}
		s.logger.Error("refresh rotation failed", "error", err, "user_id", user.ID)
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to rotate refresh token")
	}

	return &TokenPair{AccessToken: access, RefreshToken: next}, nil
}

// Logout closes the session: it clears the stored refresh token and
// blacklists both the presented access token and the former refresh token
// for their remaining lifetime. Idempotent, a second call revokes already
// revoked or expired tokens, which is a no-op.
func (s *SessionManager) Logout(ctx context.Context, userID, accessToken string) error {
	user, err := s.store.GetByID(ctx, userID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrIdentityNotFound
		}
		s.logger.Error("logout user lookup failed", "error", err)
		return errors.Wrap(err, errors.CategoryInternal, "failed to load user for logout")
	}

	formerRefresh := user.RefreshToken

	if err := s.store.ClearRefreshToken(ctx, user.ID); err != nil && !repository.IsRecordNotFound(err) {
		s.logger.Error("logout failed to clear refresh token", "error", err, "user_id", user.ID)
		return errors.Wrap(err, errors.CategoryInternal, "failed to clear refresh token")
	}

	// both writes must land before logout reports success; a client
	// retrying after a confirmed logout assumes the old tokens are dead
	if err := s.revokeRemaining(ctx, revokedAccessPrefix, accessToken); err != nil {
		return err
	}

	if formerRefresh != "" {
		if err := s.revokeRemaining(ctx, revokedRefreshPrefix, formerRefresh); err != nil {
			return err
		}
	}

	return nil
}

func (s *SessionManager) revokeRemaining(ctx context.Context, prefix, raw string) error {
	if raw == "" {
		return nil
	}

	claims, ok := s.codec.DecodeUnsafe(raw)
	if !ok {
		s.logger.Warn("logout could not decode token for revocation")
		return nil
	}

	ttl := claims.RemainingTTL(time.Now())
	if ttl <= 0 {
		return nil
	}

	if err := s.revocations.Revoke(ctx, prefix+raw, ttl); err != nil {
		s.logger.Error("token revocation write failed", "error", err)
		return errors.Wrap(err, errors.CategoryInternal, "failed to revoke token")
	}

	return nil
}

func (s *SessionManager) issueTokenPair(ctx context.Context, user *User) (*TokenPair, error) {
	access, refresh, err := s.mintPair(user)
	if err != nil {
		return nil, err
	}

	// the pair only exists for the caller once the refresh token is on
	// file; if persistence fails the previous session stays valid
	if err := s.store.StoreRefreshToken(ctx, user.ID, refresh); err != nil {
		s.logger.Error("failed to persist refresh token", "error", err, "user_id", user.ID)
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to persist refresh token")
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *SessionManager) mintPair(user *User) (access string, refresh string, err error) {
	access, err = s.codec.Issue(TokenKindAccess, &TokenClaims{
		UID:              user.ID.String(),
		UserRole:         user.Role,
		Name:             user.FullName(),
		Email:            user.Email,
		RegisteredClaims: jwtSubject(user.ID.String()),
	})
	if err != nil {
		s.logger.Error("failed to issue access token", "error", err)
		return "", "", err
	}

	refresh, err = s.codec.Issue(TokenKindRefresh, &TokenClaims{
		RegisteredClaims: jwtSubject(user.ID.String()),
	})
	if err != nil {
		s.logger.Error("failed to issue refresh token", "error", err)
		return "", "", err
	}

	return access, refresh, nil
}
