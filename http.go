package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-sessionauth/middleware/guard"
)

// RouteGuard adapts a SessionManager to the guard middleware and owns the
// refresh token cookie. The cookie carries the refresh token between
// /auth/refresh calls so browser clients never see it in a response body
// unless they ask for it.
type RouteGuard struct {
	sessions     *SessionManager
	cfg          Config
	Logger       Logger
	ErrorHandler func(c router.Context, err error) error
}

func NewRouteGuard(sessions *SessionManager, cfg Config) (*RouteGuard, error) {
	if sessions == nil {
		return nil, errors.New("route guard requires a session manager", errors.CategoryBadInput)
	}

	a := &RouteGuard{
		sessions: sessions,
		cfg:      cfg,
		Logger:   defLogger{},
	}

	a.ErrorHandler = a.defaultErrHandler

	return a, nil
}

// ContextKey is the Locals key the guard stores verified claims under.
func (a *RouteGuard) ContextKey() string {
	return a.cfg.GetContextKey()
}

// TokenContextKey is the Locals key the guard stores the raw access token under.
func (a *RouteGuard) TokenContextKey() string {
	return a.cfg.GetContextKey() + "_token"
}

// RefreshCookieName is the cookie the refresh token travels in.
func (a *RouteGuard) RefreshCookieName() string {
	return a.cfg.GetRefreshCookieName()
}

// Protected builds the middleware for routes that require a live access
// token. Claims land in Locals under the configured context key, the raw
// token under its token key, and both are propagated to the request context.
func (a *RouteGuard) Protected(errorHandler router.ErrorHandler) router.MiddlewareFunc {
	if errorHandler == nil {
		errorHandler = a.MakeAuthErrorHandler()
	}

	return guard.New(guard.Config{
		ErrorHandler: errorHandler,
		AuthScheme:   a.cfg.GetAuthScheme(),
		ContextKey:   a.cfg.GetContextKey(),
		TokenLookup:  a.cfg.GetTokenLookup(),
		Verify: func(ctx context.Context, raw string) (guard.AuthClaims, error) {
			claims, err := a.sessions.VerifyAccess(ctx, raw)
			if err != nil {
				return nil, err
			}
			return claims, nil
		},
		ContextEnricher: func(c context.Context, claims guard.AuthClaims) context.Context {
			if ac, ok := claims.(AuthClaims); ok {
				return WithClaimsContext(c, ac)
			}
			return c
		},
	})
}

// MakeAuthErrorHandler normalizes guard failures into the structured token
// errors before responding, so clients can tell an expired token from a
// revoked or garbled one by text code.
func (a *RouteGuard) MakeAuthErrorHandler() func(router.Context, error) error {
	return func(ctx router.Context, err error) error {
		var richErr *errors.Error

		if IsTokenExpiredError(err) {
			richErr = ErrTokenExpired
		} else if errors.Is(err, ErrTokenRevoked) {
			richErr = ErrTokenRevoked
		} else if IsMalformedError(err) || err == guard.ErrTokenMissingOrMalformed {
			richErr = ErrTokenMalformed
		} else {
			richErr = errors.Wrap(err, errors.CategoryAuth, "Invalid authentication token").
				WithCode(errors.CodeUnauthorized)
		}

		return a.ErrorHandler(ctx, richErr)
	}
}

// SetRefreshCookie stores the refresh token scoped to the refresh path so it
// only travels with refresh calls.
func (a *RouteGuard) SetRefreshCookie(c router.Context, token string) {
	expires := time.Now().Add(a.cfg.GetRefreshTokenTTL())

	if claims, ok := a.sessions.codec.DecodeUnsafe(token); ok {
		expires = claims.Expires()
	}

	c.Cookie(&router.Cookie{
		Name:     a.cfg.GetRefreshCookieName(),
		Value:    token,
		Path:     a.cfg.GetRefreshCookiePath(),
		Expires:  expires,
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Strict",
	})
}

// ClearRefreshCookie expires the refresh cookie.
func (a *RouteGuard) ClearRefreshCookie(c router.Context) {
	c.Cookie(&router.Cookie{
		Name:     a.cfg.GetRefreshCookieName(),
		Value:    "",
		Path:     a.cfg.GetRefreshCookiePath(),
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Strict",
	})
}

func (a *RouteGuard) defaultErrHandler(c router.Context, err error) error {
	return RespondWithError(c, a.Logger, err)
}

// RespondWithError maps a structured error to a JSON problem payload. Errors
// without an explicit code fall back to a status derived from their category.
func RespondWithError(c router.Context, logger Logger, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	status := richErr.Code
	if status == 0 {
		status = statusFromCategory(richErr.Category)
	}

	if logger != nil && status >= http.StatusInternalServerError {
		logger.Error(
			"request failed",
			"error", richErr.Message,
			"category", richErr.Category,
			"details", print.MaybePrettyJSON(richErr.Metadata),
		)
	}

	return c.JSON(status, router.ViewContext{
		"error": router.ViewContext{
			"message":   richErr.Message,
			"text_code": richErr.TextCode,
		},
	})
}

// isAuthFailure reports whether the error is a rejection of the presented
// credentials rather than an infrastructure failure.
func isAuthFailure(err error) bool {
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.Category == errors.CategoryAuth
	}
	return false
}

func statusFromCategory(category errors.Category) int {
	switch category {
	case errors.CategoryAuth, errors.CategoryAuthz:
		return http.StatusUnauthorized
	// conflicts report as plain bad requests, the endpoints here promise
	// 400/401 for every business outcome
	case errors.CategoryValidation, errors.CategoryBadInput, errors.CategoryConflict:
		return http.StatusBadRequest
	case errors.CategoryNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
