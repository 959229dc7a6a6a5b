package auth_test

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-sessionauth"
	"github.com/stretchr/testify/assert"
)

func TestRegisterUserSuccess(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig()
	codec := newTestCodec(t, cfg)
	repo := newFakeRepo()
	mailer := &fakeMailer{}

	handler := auth.NewRegisterUserHandler(repo, codec, mailer)

	err := handler.Execute(ctx, auth.RegisterUserMessage{
		FirstName: "Grace",
		LastName:  "Hopper",
		Email:     "grace@example.com",
		Role:      auth.RoleMember,
		Password:  "securePassword123!",
	})
	assert.NoError(t, err)

	user, err := repo.Users().GetByIdentifier(ctx, "grace@example.com")
	assert.NoError(t, err)
	assert.False(t, user.EmailVerified)
	assert.NotEmpty(t, user.VerificationToken)
	// username falls back to the email local part
	assert.Equal(t, "grace", user.Username)

	// the password is stored hashed, never verbatim
	assert.NotEqual(t, "securePassword123!", user.PasswordHash)
	assert.NoError(t, auth.ComparePasswordAndHash("securePassword123!", user.PasswordHash))

	// the stored token is the one that went out, and it verifies as a
	// verification token bound to the email
	assert.Len(t, mailer.verifications, 1)
	assert.Equal(t, "grace@example.com", mailer.verifications[0].email)
	assert.Equal(t, user.VerificationToken, mailer.verifications[0].token)

	claims, err := codec.Verify(auth.TokenKindVerification, user.VerificationToken)
	assert.NoError(t, err)
	assert.Equal(t, "grace@example.com", claims.UserEmail())
}

func TestRegisterUserDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig()
	codec := newTestCodec(t, cfg)
	existing := seedUser(t, "securePassword123!")
	repo := newFakeRepo(existing)
	mailer := &fakeMailer{}

	handler := auth.NewRegisterUserHandler(repo, codec, mailer)

	err := handler.Execute(ctx, auth.RegisterUserMessage{
		FirstName: "Other",
		LastName:  "Person",
		Email:     existing.Email,
		Password:  "anotherPassword1!",
	})

	assert.True(t, goerrors.Is(err, auth.ErrEmailAlreadyExists))
	assert.Empty(t, mailer.verifications)
}

func TestRegisterUserKeepsExplicitUsername(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig()
	codec := newTestCodec(t, cfg)
	repo := newFakeRepo()

	handler := auth.NewRegisterUserHandler(repo, codec, &fakeMailer{})

	err := handler.Execute(ctx, auth.RegisterUserMessage{
		FirstName: "Grace",
		LastName:  "Hopper",
		Username:  "amazing-grace",
		Email:     "grace@example.com",
		Password:  "securePassword123!",
	})
	assert.NoError(t, err)

	user, err := repo.Users().GetByIdentifier(ctx, "amazing-grace")
	assert.NoError(t, err)
	assert.Equal(t, "grace@example.com", user.Email)
}
