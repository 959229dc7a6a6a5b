package auth

import (
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Business outcomes of the auth flows. These are expected results, reported
// to the caller with a stable message and never retried internally.
var (
	// ErrInvalidCredentials covers both an unknown identifier and a wrong
	// password; the caller cannot tell which.
	ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
				WithCode(goerrors.CodeUnauthorized).
				WithTextCode("INVALID_CREDENTIALS")

	// ErrEmailAlreadyExists reports as a plain bad request, matching the
	// response contract of the registration endpoint.
	ErrEmailAlreadyExists = goerrors.New("email already exists", goerrors.CategoryConflict).
				WithCode(goerrors.CodeBadRequest).
				WithTextCode("EMAIL_EXISTS")

	// ErrTokenMalformed is a token that fails signature or parse checks.
	ErrTokenMalformed = goerrors.New("invalid authentication token", goerrors.CategoryAuth).
				WithCode(goerrors.CodeUnauthorized).
				WithTextCode("TOKEN_MALFORMED")

	// ErrTokenExpired is a well formed token past its expiry.
	ErrTokenExpired = goerrors.New("authentication token expired", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized).
			WithTextCode("TOKEN_EXPIRED")

	// ErrTokenRevoked is a token blacklisted before its natural expiry.
	ErrTokenRevoked = goerrors.New("token has been revoked", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized).
			WithTextCode("TOKEN_REVOKED")

	// ErrInvalidRefreshToken is a refresh token that verified fine but is no
	// longer the one on file: it was rotated away or never issued.
	ErrInvalidRefreshToken = goerrors.New("invalid refresh token", goerrors.CategoryAuth).
				WithCode(goerrors.CodeUnauthorized).
				WithTextCode("INVALID_REFRESH_TOKEN")

	ErrInvalidVerificationToken = goerrors.New("invalid or expired verification token", goerrors.CategoryValidation).
					WithTextCode("INVALID_VERIFICATION_TOKEN")

	ErrInvalidResetToken = goerrors.New("invalid or expired reset token", goerrors.CategoryValidation).
				WithTextCode("INVALID_RESET_TOKEN")

	ErrPasswordsDoNotMatch = goerrors.New("passwords do not match", goerrors.CategoryValidation).
				WithTextCode("PASSWORDS_DO_NOT_MATCH")

	ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryAuth).
				WithCode(goerrors.CodeUnauthorized).
				WithTextCode("IDENTITY_NOT_FOUND")
)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = errors.New("password can not be an empty string")

// ErrMismatchedHashAndPassword is the bcrypt mismatch error
var ErrMismatchedHashAndPassword = errors.New("mismatched hash and password")

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
