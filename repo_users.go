package auth

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// StoreRefreshTokenSQL overwrites the live refresh token unconditionally and
// stamps the login time. Used on login, where the previous session is
// deliberately displaced.
var StoreRefreshTokenSQL = `UPDATE "users" AS "usr"
SET
	"refresh_token" = ?,
	"loggedin_at" = ?
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

// RotateRefreshTokenSQL swaps the refresh token only while the presented one
// is still the one on file. Zero rows back means the token already rotated;
// the conditional write closes the race between two concurrent refresh calls
// holding the same soon to be invalidated token.
var RotateRefreshTokenSQL = `UPDATE "users" AS "usr"
SET
	"refresh_token" = ?,
	"loggedin_at" = ?
WHERE
	"usr"."deleted_at" IS NULL
AND "usr"."refresh_token" = ?
AND (
	"usr"."id" = ?
) RETURNING *;`

var ClearRefreshTokenSQL = `UPDATE "users" AS "usr"
SET
	"refresh_token" = NULL
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

// ConsumeVerificationTokenSQL marks the email verified only while the stored
// pending token equals the presented one, and clears it. A token superseded
// by a newer registration no longer matches and consumes nothing.
var ConsumeVerificationTokenSQL = `UPDATE "users" AS "usr"
SET
	"is_email_verified" = TRUE,
	"verification_token" = NULL
WHERE
	"usr"."deleted_at" IS NULL
AND "usr"."verification_token" = ?
AND (
	"usr"."id" = ?
) RETURNING *;`

var SetResetTokenSQL = `UPDATE "users" AS "usr"
SET
	"reset_token_digest" = ?,
	"reset_token_expires_at" = ?
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

// ConsumeResetTokenSQL sets the new password and clears the reset state in
// one write, conditional on the digest still being on file so a reset token
// accepted once cannot be accepted again.
var ConsumeResetTokenSQL = `UPDATE "users" AS "usr"
SET
	"password_hash" = ?,
	"reset_token_digest" = NULL,
	"reset_token_expires_at" = NULL
WHERE
	"usr"."deleted_at" IS NULL
AND "usr"."reset_token_digest" = ?
AND (
	"usr"."id" = ?
) RETURNING *;`

var UpdatePasswordSQL = `UPDATE "users" AS "usr"
SET
	"password_hash" = ?
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

type Users interface {
	GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*User, error)
	GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*User, error)
	GetByResetTokenDigest(ctx context.Context, digest string) (*User, error)

	Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error)

	StoreRefreshToken(ctx context.Context, id uuid.UUID, token string) error
	RotateRefreshToken(ctx context.Context, id uuid.UUID, current, next string) error
	ClearRefreshToken(ctx context.Context, id uuid.UUID) error

	ConsumeVerificationToken(ctx context.Context, id uuid.UUID, token string) error
	ConsumeVerificationTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token string) error

	SetResetToken(ctx context.Context, id uuid.UUID, digest string, expiresAt time.Time) error
	SetResetTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, digest string, expiresAt time.Time) error
	ConsumeResetToken(ctx context.Context, id uuid.UUID, digest, passwordHash string) error
	ConsumeResetTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, digest, passwordHash string) error

	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users        = (*users)(nil)
	_ SessionStore = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*User, error) {
	return a.GetByIdentifierTx(ctx, a.db, identifier, criteria...)
}

func (a *users) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*User, error) {
	options := resolveUserIdentifier(identifier)
	if len(options) == 0 {
		options = []identifierOption{
			{
				column: "id",
				value:  strings.TrimSpace(identifier),
			},
		}
	}

	for _, opt := range options {
		record := &User{}
		q := tx.NewSelect().Model(record)

		for _, c := range criteria {
			q.Apply(c)
		}

		err := q.
			Where(fmt.Sprintf("?TableAlias.%s = ?", opt.column), opt.value).
			Limit(1).
			Scan(ctx)

		if err != nil {
			if repository.IsRecordNotFound(err) {
				continue
			}
			return nil, err
		}

		return record, nil
	}

	return nil, repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			"identifier": identifier,
		})
}

func (a *users) GetByResetTokenDigest(ctx context.Context, digest string) (*User, error) {
	record := &User{}

	err := a.db.NewSelect().Model(record).
		Where("?TableAlias.reset_token_digest = ?", digest).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"lookup": "reset_token_digest"})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	prepareUserDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *users) StoreRefreshToken(ctx context.Context, id uuid.UUID, token string) error {
	return a.conditionalUpdate(ctx, a.db, StoreRefreshTokenSQL, token, time.Now(), id.String())
}

func (a *users) RotateRefreshToken(ctx context.Context, id uuid.UUID, current, next string) error {
	return a.conditionalUpdate(ctx, a.db, RotateRefreshTokenSQL, next, time.Now(), current, id.String())
}

func (a *users) ClearRefreshToken(ctx context.Context, id uuid.UUID) error {
	return a.conditionalUpdate(ctx, a.db, ClearRefreshTokenSQL, id.String())
}

func (a *users) ConsumeVerificationToken(ctx context.Context, id uuid.UUID, token string) error {
	return a.ConsumeVerificationTokenTx(ctx, a.db, id, token)
}

func (a *users) ConsumeVerificationTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token string) error {
	return a.conditionalUpdate(ctx, tx, ConsumeVerificationTokenSQL, token, id.String())
}

func (a *users) SetResetToken(ctx context.Context, id uuid.UUID, digest string, expiresAt time.Time) error {
	return a.SetResetTokenTx(ctx, a.db, id, digest, expiresAt)
}

func (a *users) SetResetTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, digest string, expiresAt time.Time) error {
	return a.conditionalUpdate(ctx, tx, SetResetTokenSQL, digest, expiresAt, id.String())
}

func (a *users) ConsumeResetToken(ctx context.Context, id uuid.UUID, digest, passwordHash string) error {
	return a.ConsumeResetTokenTx(ctx, a.db, id, digest, passwordHash)
}

func (a *users) ConsumeResetTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, digest, passwordHash string) error {
	return a.conditionalUpdate(ctx, tx, ConsumeResetTokenSQL, passwordHash, digest, id.String())
}

func (a *users) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return a.UpdatePasswordTx(ctx, a.db, id, passwordHash)
}

func (a *users) UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	return a.conditionalUpdate(ctx, tx, UpdatePasswordSQL, passwordHash, id.String())
}

// conditionalUpdate runs a RETURNING update and maps "no rows touched" to a
// record-not-found, which callers translate into their flow's business error.
func (a *users) conditionalUpdate(ctx context.Context, tx bun.IDB, query string, args ...any) error {
	res, err := a.Repository.RawTx(ctx, tx, query, args...)
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"query": strings.SplitN(query, "\n", 2)[0],
			})
	}

	return nil
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.Role == "" {
		record.Role = RoleGuest
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

type identifierOption struct {
	column string
	value  string
}

func resolveUserIdentifier(identifier string) []identifierOption {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil
	}

	options := make([]identifierOption, 0, 3)

	if isUUID(trimmed) {
		options = append(options, identifierOption{
			column: "id",
			value:  trimmed,
		})
	}

	if isEmail(trimmed) {
		options = append(options, identifierOption{
			column: "email",
			value:  trimmed,
		})
	}

	options = append(options, identifierOption{
		column: "username",
		value:  trimmed,
	})

	return options
}

func isEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func isUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}
