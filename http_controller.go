package auth

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// AuthControllerRoutes holds the route paths the controller registers.
type AuthControllerRoutes struct {
	Login          string
	Refresh        string
	Logout         string
	Register       string
	VerifyEmail    string
	ChangePassword string
	ForgotPassword string
	ResetPassword  string
	Account        string
}

// AuthController is a JSON controller for the full session and account
// recovery surface. Anything stateful lives in the injected collaborators;
// the controller only binds, validates, dispatches, and shapes responses.
type AuthController struct {
	Debug        bool
	Logger       Logger
	Repo         RepositoryManager
	Sessions     *SessionManager
	Codec        TokenCodec
	Mailer       Mailer
	Guard        *RouteGuard
	Routes       *AuthControllerRoutes
	ErrorHandler router.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Routes: &AuthControllerRoutes{
			Login:          "/auth/login",
			Refresh:        "/auth/refresh",
			Logout:         "/auth/logout",
			Register:       "/auth/register",
			VerifyEmail:    "/auth/verify-email",
			ChangePassword: "/auth/change-password",
			ForgotPassword: "/auth/forgot-password",
			ResetPassword:  "/auth/reset-password",
			Account:        "/auth/account",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Sessions == nil {
		panic("Missing SessionManager in auth controller...")
	}

	if c.Codec == nil {
		panic("Missing TokenCodec in auth controller...")
	}

	if c.Mailer == nil {
		panic("Missing Mailer in auth controller...")
	}

	if c.Guard == nil {
		panic("Missing RouteGuard in auth controller...")
	}

	if c.ErrorHandler == nil {
		c.ErrorHandler = func(ctx router.Context, err error) error {
			return RespondWithError(ctx, c.Logger, err)
		}
	}

	return c
}

// RegisterAuthRoutes mounts the controller. Logout, change-password, and
// account sit behind the access token guard; everything else is public by
// construction.
func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {

	controller := NewAuthController(opts...)

	protected := controller.Guard.Protected(nil)

	app.Post(controller.Routes.Login, controller.LoginPost).
		SetName("auth.login")

	app.Post(controller.Routes.Refresh, controller.RefreshPost).
		SetName("auth.refresh")

	app.Post(controller.Routes.Logout, controller.LogoutPost, protected).
		SetName("auth.logout")

	app.Post(controller.Routes.Register, controller.RegisterPost).
		SetName("auth.register")

	app.Get(controller.Routes.VerifyEmail, controller.VerifyEmailGet).
		SetName("auth.verify-email")

	app.Post(controller.Routes.ChangePassword, controller.ChangePasswordPost, protected).
		SetName("auth.change-password")

	app.Post(controller.Routes.ForgotPassword, controller.ForgotPasswordPost).
		SetName("auth.forgot-password")

	app.Post(controller.Routes.ResetPassword, controller.ResetPasswordPost).
		SetName("auth.reset-password")

	app.Get(controller.Routes.Account, controller.AccountShow, protected).
		SetName("auth.account")
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.respondBindError(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.respondValidationError(ctx, err)
	}

	if a.Debug {
		fmt.Println("======= AUTH LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("=========================")
	}

	result, err := a.Sessions.Login(ctx.Context(), payload.Identifier, payload.Password)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	a.Guard.SetRefreshCookie(ctx, result.RefreshToken)

	return ctx.JSON(fiber.StatusOK, router.ViewContext{
		"message":       MsgLoggedIn,
		"access_token":  result.AccessToken,
		"refresh_token": result.RefreshToken,
		"user":          result.User,
	})
}

// RefreshRequest payload. The cookie set on login wins over the body field.
type RefreshRequest struct {
	RefreshToken string `form:"refresh_token" json:"refresh_token"`
}

func (a *AuthController) RefreshPost(ctx router.Context) error {
	raw := ctx.Cookies(a.Guard.RefreshCookieName())

	if raw == "" {
		payload := new(RefreshRequest)
		if err := ctx.Bind(payload); err == nil {
			raw = payload.RefreshToken
		}
	}

	if raw == "" {
		return a.ErrorHandler(ctx, ErrInvalidRefreshToken)
	}

	pair, err := a.Sessions.Refresh(ctx.Context(), raw)
	if err != nil {
		// a dead token is gone for good, but an infrastructure failure is
		// retryable and must not log the client out
		if isAuthFailure(err) {
			a.Guard.ClearRefreshCookie(ctx)
		}
		return a.ErrorHandler(ctx, err)
	}

	a.Guard.SetRefreshCookie(ctx, pair.RefreshToken)

	return ctx.JSON(fiber.StatusOK, router.ViewContext{
		"message":       MsgTokenRefreshed,
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

func (a *AuthController) LogoutPost(ctx router.Context) error {
	claims, ok := GetRouterClaims(ctx, a.Guard.ContextKey())
	if !ok {
		return a.ErrorHandler(ctx, ErrTokenMalformed)
	}

	raw, _ := ctx.Locals(a.Guard.TokenContextKey()).(string)

	if err := a.Sessions.Logout(ctx.Context(), claims.Subject(), raw); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	a.Guard.ClearRefreshCookie(ctx)

	return ctx.JSON(fiber.StatusOK, router.ViewContext{
		"message": MsgLoggedOut,
	})
}

// RegistrationCreatePayload is the registration payload
type RegistrationCreatePayload struct {
	FirstName       string `form:"first_name" json:"first_name"`
	LastName        string `form:"last_name" json:"last_name"`
	Username        string `form:"username" json:"username"`
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Username, validation.Length(1, 100)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) RegisterPost(ctx router.Context) error {
	payload := new(RegistrationCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		return a.respondBindError(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.respondValidationError(ctx, err)
	}

	req := RegisterUserMessage{
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Username:  payload.Username,
		Email:     payload.Email,
		Role:      RoleMember,
		Password:  payload.Password,
	}

	registerUser := NewRegisterUserHandler(a.Repo, a.Codec, a.Mailer).WithLogger(a.Logger)
	if err := registerUser.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("register user error: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(fiber.StatusCreated, router.ViewContext{
		"message": MsgRegistered,
	})
}

func (a *AuthController) VerifyEmailGet(ctx router.Context) error {
	token := ctx.Query("token", "")
	if token == "" {
		return a.ErrorHandler(ctx, ErrInvalidVerificationToken)
	}

	verifyEmail := NewVerifyEmailHandler(a.Repo, a.Codec).WithLogger(a.Logger)
	if err := verifyEmail.Execute(ctx.Context(), VerifyEmailMessage{Token: token}); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(fiber.StatusOK, router.ViewContext{
		"message": MsgEmailVerified,
	})
}

// ChangePasswordPayload holds values for an authenticated password change
type ChangePasswordPayload struct {
	CurrentPassword string `form:"current_password" json:"current_password"`
	NewPassword     string `form:"new_password" json:"new_password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r ChangePasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.NewPassword)),
		),
	)
}

func (a *AuthController) ChangePasswordPost(ctx router.Context) error {
	claims, ok := GetRouterClaims(ctx, a.Guard.ContextKey())
	if !ok {
		return a.ErrorHandler(ctx, ErrTokenMalformed)
	}

	payload := new(ChangePasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.respondBindError(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.respondValidationError(ctx, err)
	}

	req := ChangePasswordMessage{
		UserID:          claims.Subject(),
		CurrentPassword: payload.CurrentPassword,
		NewPassword:     payload.NewPassword,
		ConfirmPassword: payload.ConfirmPassword,
	}

	changePassword := NewChangePasswordHandler(a.Repo).WithLogger(a.Logger)
	if err := changePassword.Execute(ctx.Context(), req); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(fiber.StatusOK, router.ViewContext{
		"message": MsgPasswordChanged,
	})
}

// ForgotPasswordPayload holds values for a password reset request
type ForgotPasswordPayload struct {
	Email string `form:"email" json:"email"`
}

// Validate will validate the payload
func (r ForgotPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// ForgotPasswordPost always answers with the same generic message; whether
// the email maps to an account is not observable from the response.
func (a *AuthController) ForgotPasswordPost(ctx router.Context) error {
	payload := new(ForgotPasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.respondBindError(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.respondValidationError(ctx, err)
	}

	message := MsgResetEmailSent

	req := InitializePasswordResetMessage{
		Email: payload.Email,
		OnResponse: func(resp *InitializePasswordResetResponse) {
			message = resp.Message
		},
	}

	initPwdReset := NewInitializePasswordResetHandler(a.Repo, a.Codec, a.Mailer).WithLogger(a.Logger)
	if err := initPwdReset.Execute(ctx.Context(), req); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(fiber.StatusOK, router.ViewContext{
		"message": message,
	})
}

// ResetPasswordPayload holds values to finalize a password reset
type ResetPasswordPayload struct {
	Token           string `form:"token" json:"token"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r ResetPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) ResetPasswordPost(ctx router.Context) error {
	payload := new(ResetPasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.respondBindError(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.respondValidationError(ctx, err)
	}

	req := FinalizePasswordResetMessage{
		Token:           payload.Token,
		Password:        payload.Password,
		ConfirmPassword: payload.ConfirmPassword,
	}

	finalizePwdReset := NewFinalizePasswordResetHandler(a.Repo).WithLogger(a.Logger)
	if err := finalizePwdReset.Execute(ctx.Context(), req); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(fiber.StatusOK, router.ViewContext{
		"message": MsgPasswordReset,
	})
}

func (a *AuthController) AccountShow(ctx router.Context) error {
	claims, ok := GetRouterClaims(ctx, a.Guard.ContextKey())
	if !ok {
		return a.ErrorHandler(ctx, ErrTokenMalformed)
	}

	user, err := a.Repo.Users().GetByID(ctx.Context(), claims.Subject())
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(fiber.StatusOK, router.ViewContext{
		"user": user.Public(),
	})
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field->message map for JSON responses
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			out[field] = ferr.Error()
		}
		return out
	}

	out["payload"] = err.Error()
	return out
}

func (a *AuthController) respondBindError(ctx router.Context, err error) error {
	a.Logger.Error("failed to parse request payload", "error", err)
	return ctx.JSON(fiber.StatusBadRequest, router.ViewContext{
		"error": router.ViewContext{
			"message": "Failed to parse request payload",
		},
	})
}

func (a *AuthController) respondValidationError(ctx router.Context, err error) error {
	return ctx.JSON(fiber.StatusBadRequest, router.ViewContext{
		"error": router.ViewContext{
			"message": "Validation failed",
			"fields":  FormatValidationErrorToMap(err),
		},
	})
}
