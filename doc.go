// Package auth implements bearer token lifecycle management and credential
// recovery flows for HTTP backends: login with an access/refresh token pair,
// single-use refresh rotation, logout with token revocation, registration
// with email verification, and forgot/reset password.
//
// Tokens are HMAC signed JWTs. Each token kind (access, refresh,
// email-verification, password-reset) is signed with its own secret so a
// leaked secret for one kind cannot be replayed as another. Revocation of
// otherwise stateless tokens is handled by a TTL bounded RevocationStore,
// Redis backed in production and in-memory for tests.
package auth
