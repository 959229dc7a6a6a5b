package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the user's role
type UserRole = string

const (
	// RoleGuest is an guest role (ie. view)
	RoleGuest UserRole = "guest"
	// RoleMember us a member (i.e. view, edit)
	RoleMember UserRole = "member"
	// RoleAdmin is an admin role (i.e. view, edit, create)
	RoleAdmin UserRole = "admin"
	// RoleOwner is an admin role (i.e. view, edit, create, delete)
	RoleOwner UserRole = "owner"
)

// User is the credential record. Session, verification, and recovery state
// all live here:
//   - RefreshToken is the single live refresh token; issuing a new one
//     overwrites it, which is what makes rotation single use.
//   - VerificationToken is the pending email verification token, stored
//     verbatim and compared on consume so a superseded token is rejected.
//   - ResetTokenDigest holds a SHA-256 digest of the live reset token; the
//     raw token is only ever mailed, never persisted.
type User struct {
	bun.BaseModel       `bun:"table:users,alias:usr"`
	ID                  uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role                UserRole   `bun:"user_role,notnull" json:"user_role,omitempty"`
	FirstName           string     `bun:"first_name,notnull" json:"first_name,omitempty"`
	LastName            string     `bun:"last_name,notnull" json:"last_name,omitempty"`
	Username            string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email               string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash        string     `bun:"password_hash" json:"-"`
	EmailVerified       bool       `bun:"is_email_verified" json:"is_email_verified,omitempty"`
	VerificationToken   string     `bun:"verification_token,nullzero" json:"-"`
	RefreshToken        string     `bun:"refresh_token,nullzero" json:"-"`
	ResetTokenDigest    string     `bun:"reset_token_digest,nullzero" json:"-"`
	ResetTokenExpiresAt *time.Time `bun:"reset_token_expires_at,nullzero" json:"-"`
	LoggedInAt          *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt           *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt           *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt           *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// FullName joins first and last name
func (u *User) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}

// PublicUser is the caller facing projection of a User. It never carries the
// password hash or any token state.
type PublicUser struct {
	ID            uuid.UUID `json:"id"`
	Role          UserRole  `json:"user_role,omitempty"`
	FirstName     string    `json:"first_name,omitempty"`
	LastName      string    `json:"last_name,omitempty"`
	Username      string    `json:"username,omitempty"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"is_email_verified"`
}

// Public returns the caller facing projection
func (u *User) Public() *PublicUser {
	return &PublicUser{
		ID:            u.ID,
		Role:          u.Role,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Username:      u.Username,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
	}
}
