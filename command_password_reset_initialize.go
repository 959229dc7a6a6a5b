package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type InitializePasswordResetMessage struct {
	Email      string `json:"email"`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "user.password_reset" }

type InitializePasswordResetResponse struct {
	// Delivered reports whether a token was actually issued and mailed.
	// Handlers must not expose it to the caller: the HTTP response is the
	// same whether or not the email is registered.
	Delivered bool
	Message   string
}

// InitializePasswordResetHandler starts the forgot-password flow. For a
// known email it issues a reset token, stores its digest plus an explicit
// expiry on the record, and mails the raw token. Unknown emails get the
// exact same outward response so the endpoint cannot be used to probe for
// accounts.
type InitializePasswordResetHandler struct {
	repo   RepositoryManager
	codec  TokenCodec
	mailer Mailer
	logger Logger
}

func NewInitializePasswordResetHandler(repo RepositoryManager, codec TokenCodec, mailer Mailer) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:   repo,
		codec:  codec,
		mailer: mailer,
		logger: defLogger{},
	}
}

func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	resp := &InitializePasswordResetResponse{Message: MsgResetEmailSent}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetByIdentifier(ctx, event.Email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			h.logger.Debug("password reset requested for unknown email", "email", event.Email)
			h.respond(event, resp)
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password reset")
	}

	token, err := h.codec.Issue(TokenKindReset, &TokenClaims{
		Email:            user.Email,
		RegisteredClaims: jwtSubject(user.Email),
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue reset token")
	}

	expiresAt := time.Now().Add(time.Hour)
	if claims, ok := h.codec.DecodeUnsafe(token); ok {
		expiresAt = claims.Expires()
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return h.repo.Users().SetResetTokenTx(ctx, tx, user.ID, HashResetToken(token), expiresAt)
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store reset token")
	}

	if err := h.mailer.SendPasswordResetEmail(ctx, user.Email, token); err != nil {
		h.logger.Error("failed to send reset email", "error", err, "email", user.Email)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to send reset email")
	}

	resp.Delivered = true
	h.respond(event, resp)

	return nil
}

func (h *InitializePasswordResetHandler) respond(event InitializePasswordResetMessage, resp *InitializePasswordResetResponse) {
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}
}
