package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type VerifyEmailMessage struct {
	Token string `json:"token"`
}

func (e VerifyEmailMessage) Type() string { return "user.verify_email" }

// VerifyEmailHandler consumes a verification token: the token must verify
// against the verification secret AND still be the pending one on the user
// record. A token superseded by a newer registration-triggered token fails
// even though its signature is fine.
type VerifyEmailHandler struct {
	repo   RepositoryManager
	codec  TokenCodec
	logger Logger
}

func NewVerifyEmailHandler(repo RepositoryManager, codec TokenCodec) *VerifyEmailHandler {
	return &VerifyEmailHandler{
		repo:   repo,
		codec:  codec,
		logger: defLogger{},
	}
}

func (h *VerifyEmailHandler) WithLogger(logger Logger) *VerifyEmailHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *VerifyEmailHandler) Execute(ctx context.Context, event VerifyEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyEmailHandler) execute(ctx context.Context, event VerifyEmailMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	claims, err := h.codec.Verify(TokenKindVerification, event.Token)
	if err != nil {
		h.logger.Debug("verification token rejected by codec", "error", err)
		return ErrInvalidVerificationToken
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().GetByIdentifier(ctx, claims.UserEmail())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrInvalidVerificationToken
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load user for verification")
		}

		if user.VerificationToken == "" || user.VerificationToken != event.Token {
			return ErrInvalidVerificationToken
		}

		if err := h.repo.Users().ConsumeVerificationTokenTx(ctx, tx, user.ID, event.Token); err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrInvalidVerificationToken
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark email verified")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "email verification failed")
	}

	return nil
}
