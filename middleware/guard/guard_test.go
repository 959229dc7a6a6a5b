package guard_test

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"testing"

	"github.com/goliatone/go-router"
	"github.com/goliatone/go-sessionauth/middleware/guard"
	"github.com/stretchr/testify/assert"
)

type stubClaims struct {
	subject string
	role    string
	email   string
}

func (c stubClaims) Subject() string   { return c.subject }
func (c stubClaims) UserID() string    { return c.subject }
func (c stubClaims) Role() string      { return c.role }
func (c stubClaims) UserEmail() string { return c.email }

// stubContext is a minimal stateful router.Context for middleware tests.
type stubContext struct {
	headers    map[string]string
	queries    map[string]string
	params     map[string]string
	cookies    map[string]string
	locals     map[any]any
	ctx        context.Context
	nextCalled bool
	status     int
	sent       string
}

func newStubContext() *stubContext {
	return &stubContext{
		headers: map[string]string{},
		queries: map[string]string{},
		params:  map[string]string{},
		cookies: map[string]string{},
		locals:  map[any]any{},
		ctx:     context.Background(),
	}
}

func (s *stubContext) Next() error {
	s.nextCalled = true
	return nil
}

func (s *stubContext) Context() context.Context       { return s.ctx }
func (s *stubContext) SetContext(ctx context.Context) { s.ctx = ctx }
func (s *stubContext) Path() string                   { return "/" }
func (s *stubContext) Method() string                 { return "GET" }
func (s *stubContext) Body() []byte                   { return nil }

func (s *stubContext) Status(code int) router.Context {
	s.status = code
	return s
}

func (s *stubContext) SendString(v string) error {
	s.sent = v
	return nil
}

func (s *stubContext) Send(b []byte) error {
	s.sent = string(b)
	return nil
}

func (s *stubContext) JSON(code int, _ any) error {
	s.status = code
	return nil
}

func (s *stubContext) NoContent(code int) error {
	s.status = code
	return nil
}

func (s *stubContext) Render(string, any, ...string) error { return nil }

func (s *stubContext) Redirect(string, ...int) error { return nil }

func (s *stubContext) RedirectToRoute(string, router.ViewContext, ...int) error { return nil }

func (s *stubContext) RedirectBack(string, ...int) error { return nil }

func (s *stubContext) SetHeader(key, val string) router.Context {
	s.headers[key] = val
	return s
}

func (s *stubContext) Header(key string) string { return s.headers[key] }

func (s *stubContext) Get(key string, def any) any {
	if v, ok := s.locals[key]; ok {
		return v
	}
	return def
}

func (s *stubContext) GetBool(string, bool) bool { return false }
func (s *stubContext) GetInt(_ string, def int) int {
	return def
}
func (s *stubContext) Set(key string, val any) { s.locals[key] = val }

func (s *stubContext) Bind(any) error         { return nil }
func (s *stubContext) BindJSON(any) error     { return nil }
func (s *stubContext) BindXML(any) error      { return nil }
func (s *stubContext) BindQuery(any) error    { return nil }
func (s *stubContext) CookieParser(any) error { return nil }

func (s *stubContext) Cookie(cookie *router.Cookie) {
	s.cookies[cookie.Name] = cookie.Value
}

func (s *stubContext) Cookies(key string, def ...string) string {
	if v, ok := s.cookies[key]; ok {
		return v
	}
	if len(def) > 0 {
		return def[0]
	}
	return ""
}

func (s *stubContext) Param(key string, def ...string) string {
	if v, ok := s.params[key]; ok {
		return v
	}
	if len(def) > 0 {
		return def[0]
	}
	return ""
}

func (s *stubContext) ParamsInt(_ string, def int) int { return def }

func (s *stubContext) Query(key string, def ...string) string {
	if v, ok := s.queries[key]; ok {
		return v
	}
	if len(def) > 0 {
		return def[0]
	}
	return ""
}

func (s *stubContext) QueryValues(key string) []string {
	if v, ok := s.queries[key]; ok {
		return []string{v}
	}
	return nil
}

func (s *stubContext) QueryInt(_ string, def int) int { return def }

func (s *stubContext) Queries() map[string]string { return s.queries }

func (s *stubContext) GetString(key string, def string) string {
	if v, ok := s.headers[key]; ok {
		return v
	}
	return def
}

func (s *stubContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		s.locals[key] = value[0]
		return nil
	}
	return s.locals[key]
}

func (s *stubContext) LocalsMerge(key any, value map[string]any) map[string]any {
	existing, _ := s.locals[key].(map[string]any)
	if existing == nil {
		existing = map[string]any{}
	}
	for k, v := range value {
		existing[k] = v
	}
	s.locals[key] = existing
	return existing
}

func (s *stubContext) FormFile(string) (*multipart.FileHeader, error) { return nil, nil }

func (s *stubContext) FormValue(_ string, def ...string) string {
	if len(def) > 0 {
		return def[0]
	}
	return ""
}

func (s *stubContext) IP() string { return "127.0.0.1" }

func (s *stubContext) RouteName() string { return "" }

func (s *stubContext) RouteParams() map[string]string { return s.params }

func (s *stubContext) SendStatus(code int) error {
	s.status = code
	return nil
}

func (s *stubContext) SendStream(io.Reader) error { return nil }

func (s *stubContext) OriginalURL() string { return "/" }
func (s *stubContext) OnNext(func() error) {}
func (s *stubContext) Referer() string     { return "" }

func passthroughError(_ router.Context, err error) error { return err }

func okVerifier(claims guard.AuthClaims) guard.Verifier {
	return func(_ context.Context, raw string) (guard.AuthClaims, error) {
		if raw == "" {
			return nil, errors.New("empty token")
		}
		return claims, nil
	}
}

func terminal() router.HandlerFunc {
	return func(ctx router.Context) error {
		return ctx.Next()
	}
}

func TestGuardAcceptsBearerHeader(t *testing.T) {
	claims := stubClaims{subject: "user-1", role: "member", email: "ada@example.com"}

	mw := guard.New(guard.Config{
		Verify:       okVerifier(claims),
		ErrorHandler: passthroughError,
	})

	ctx := newStubContext()
	ctx.headers[router.HeaderAuthorization] = "Bearer some.access.token"

	err := mw(terminal())(ctx)
	assert.NoError(t, err)
	assert.True(t, ctx.nextCalled)

	stored, ok := ctx.Locals("user").(guard.AuthClaims)
	assert.True(t, ok)
	assert.Equal(t, "user-1", stored.Subject())

	raw, ok := ctx.Locals("user_token").(string)
	assert.True(t, ok)
	assert.Equal(t, "some.access.token", raw)
}

func TestGuardRejectsMissingToken(t *testing.T) {
	mw := guard.New(guard.Config{
		Verify:       okVerifier(stubClaims{}),
		ErrorHandler: passthroughError,
	})

	ctx := newStubContext()

	err := mw(terminal())(ctx)
	assert.ErrorIs(t, err, guard.ErrTokenMissingOrMalformed)
	assert.False(t, ctx.nextCalled)
}

func TestGuardRejectsWrongScheme(t *testing.T) {
	mw := guard.New(guard.Config{
		Verify:       okVerifier(stubClaims{}),
		ErrorHandler: passthroughError,
	})

	ctx := newStubContext()
	ctx.headers[router.HeaderAuthorization] = "Basic dXNlcjpwYXNz"

	err := mw(terminal())(ctx)
	assert.ErrorIs(t, err, guard.ErrTokenMissingOrMalformed)
}

func TestGuardPropagatesVerifierError(t *testing.T) {
	verifyErr := errors.New("token has been revoked")

	mw := guard.New(guard.Config{
		Verify: func(context.Context, string) (guard.AuthClaims, error) {
			return nil, verifyErr
		},
		ErrorHandler: passthroughError,
	})

	ctx := newStubContext()
	ctx.headers[router.HeaderAuthorization] = "Bearer some.access.token"

	err := mw(terminal())(ctx)
	assert.ErrorIs(t, err, verifyErr)
	assert.False(t, ctx.nextCalled)
	assert.Nil(t, ctx.Locals("user"))
}

func TestGuardFilterSkipsPublicRoutes(t *testing.T) {
	verifierCalled := false

	mw := guard.New(guard.Config{
		Filter: func(router.Context) bool { return true },
		Verify: func(context.Context, string) (guard.AuthClaims, error) {
			verifierCalled = true
			return nil, errors.New("should not run")
		},
		ErrorHandler: passthroughError,
	})

	ctx := newStubContext()

	err := mw(terminal())(ctx)
	assert.NoError(t, err)
	assert.True(t, ctx.nextCalled)
	assert.False(t, verifierCalled)
}

func TestGuardLookupFallbackOrder(t *testing.T) {
	claims := stubClaims{subject: "user-1"}

	cfg := guard.Config{
		TokenLookup:  "header:" + router.HeaderAuthorization + ",cookie:access_token,query:token",
		Verify:       okVerifier(claims),
		ErrorHandler: passthroughError,
	}

	t.Run("cookie fallback", func(t *testing.T) {
		ctx := newStubContext()
		ctx.cookies["access_token"] = "cookie.token"

		err := guard.New(cfg)(terminal())(ctx)
		assert.NoError(t, err)
		assert.Equal(t, "cookie.token", ctx.Locals("user_token"))
	})

	t.Run("query fallback", func(t *testing.T) {
		ctx := newStubContext()
		ctx.queries["token"] = "query.token"

		err := guard.New(cfg)(terminal())(ctx)
		assert.NoError(t, err)
		assert.Equal(t, "query.token", ctx.Locals("user_token"))
	})

	t.Run("header wins over cookie", func(t *testing.T) {
		ctx := newStubContext()
		ctx.headers[router.HeaderAuthorization] = "Bearer header.token"
		ctx.cookies["access_token"] = "cookie.token"

		err := guard.New(cfg)(terminal())(ctx)
		assert.NoError(t, err)
		assert.Equal(t, "header.token", ctx.Locals("user_token"))
	})
}

func TestGuardContextEnricher(t *testing.T) {
	type ctxKey struct{}

	mw := guard.New(guard.Config{
		Verify:       okVerifier(stubClaims{subject: "user-1"}),
		ErrorHandler: passthroughError,
		ContextEnricher: func(c context.Context, claims guard.AuthClaims) context.Context {
			return context.WithValue(c, ctxKey{}, claims.Subject())
		},
	})

	ctx := newStubContext()
	ctx.headers[router.HeaderAuthorization] = "Bearer some.access.token"

	err := mw(terminal())(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "user-1", ctx.Context().Value(ctxKey{}))
}

func TestGetExtractorsParsesLookupString(t *testing.T) {
	extractors := guard.GetExtractors("header:Authorization, query:token , cookie:jwt,param:id")
	assert.Len(t, extractors, 4)

	// unknown sources are ignored
	extractors = guard.GetExtractors("body:token")
	assert.Len(t, extractors, 0)
}
