package auth_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-repository-bun"
	auth "github.com/goliatone/go-sessionauth"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// fakeUsers is an in-memory Users implementation with the same conditional
// write semantics as the SQL repository: consume and rotate operations fail
// with a record-not-found when their precondition no longer holds.
type fakeUsers struct {
	mu    sync.Mutex
	users map[string]*auth.User
}

func newFakeUsers(seed ...*auth.User) *fakeUsers {
	f := &fakeUsers{users: map[string]*auth.User{}}
	for _, u := range seed {
		if u.ID == uuid.Nil {
			u.ID = uuid.New()
		}
		f.users[u.ID.String()] = u
	}
	return f
}

func (f *fakeUsers) GetByID(_ context.Context, id string, _ ...repository.SelectCriteria) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeUsers) GetByIdentifier(_ context.Context, identifier string, _ ...repository.SelectCriteria) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.ID.String() == identifier || u.Email == identifier || u.Username == identifier {
			return u, nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeUsers) GetByResetTokenDigest(_ context.Context, digest string) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if digest != "" && u.ResetTokenDigest == digest {
			return u, nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeUsers) Create(ctx context.Context, record *auth.User, criteria ...repository.InsertCriteria) (*auth.User, error) {
	return f.CreateTx(ctx, nil, record, criteria...)
}

func (f *fakeUsers) CreateTx(_ context.Context, _ bun.IDB, record *auth.User, _ ...repository.InsertCriteria) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Role == "" {
		record.Role = auth.RoleGuest
	}

	f.users[record.ID.String()] = record
	return record, nil
}

func (f *fakeUsers) StoreRefreshToken(_ context.Context, id uuid.UUID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id.String()]
	if !ok {
		return repository.NewRecordNotFound()
	}

	now := time.Now()
	u.RefreshToken = token
	u.LoggedInAt = &now
	return nil
}

func (f *fakeUsers) RotateRefreshToken(_ context.Context, id uuid.UUID, current, next string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id.String()]
	if !ok || u.RefreshToken != current {
		return repository.NewRecordNotFound()
	}

	now := time.Now()
	u.RefreshToken = next
	u.LoggedInAt = &now
	return nil
}

func (f *fakeUsers) ClearRefreshToken(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id.String()]
	if !ok {
		return repository.NewRecordNotFound()
	}

	u.RefreshToken = ""
	return nil
}

func (f *fakeUsers) ConsumeVerificationToken(ctx context.Context, id uuid.UUID, token string) error {
	return f.ConsumeVerificationTokenTx(ctx, nil, id, token)
}

func (f *fakeUsers) ConsumeVerificationTokenTx(_ context.Context, _ bun.IDB, id uuid.UUID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id.String()]
	if !ok || u.VerificationToken == "" || u.VerificationToken != token {
		return repository.NewRecordNotFound()
	}

	u.EmailVerified = true
	u.VerificationToken = ""
	return nil
}

func (f *fakeUsers) SetResetToken(ctx context.Context, id uuid.UUID, digest string, expiresAt time.Time) error {
	return f.SetResetTokenTx(ctx, nil, id, digest, expiresAt)
}

func (f *fakeUsers) SetResetTokenTx(_ context.Context, _ bun.IDB, id uuid.UUID, digest string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id.String()]
	if !ok {
		return repository.NewRecordNotFound()
	}

	u.ResetTokenDigest = digest
	u.ResetTokenExpiresAt = &expiresAt
	return nil
}

func (f *fakeUsers) ConsumeResetToken(ctx context.Context, id uuid.UUID, digest, passwordHash string) error {
	return f.ConsumeResetTokenTx(ctx, nil, id, digest, passwordHash)
}

func (f *fakeUsers) ConsumeResetTokenTx(_ context.Context, _ bun.IDB, id uuid.UUID, digest, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id.String()]
	if !ok || u.ResetTokenDigest == "" || u.ResetTokenDigest != digest {
		return repository.NewRecordNotFound()
	}

	u.PasswordHash = passwordHash
	u.ResetTokenDigest = ""
	u.ResetTokenExpiresAt = nil
	return nil
}

func (f *fakeUsers) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return f.UpdatePasswordTx(ctx, nil, id, passwordHash)
}

func (f *fakeUsers) UpdatePasswordTx(_ context.Context, _ bun.IDB, id uuid.UUID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id.String()]
	if !ok {
		return repository.NewRecordNotFound()
	}

	u.PasswordHash = passwordHash
	return nil
}

var _ auth.Users = (*fakeUsers)(nil)
var _ auth.SessionStore = (*fakeUsers)(nil)

// fakeRepo satisfies RepositoryManager without a database; RunInTx just
// invokes the function since the fakes are already atomic under their mutex.
type fakeRepo struct {
	users *fakeUsers
}

func newFakeRepo(seed ...*auth.User) *fakeRepo {
	return &fakeRepo{users: newFakeUsers(seed...)}
}

func (f *fakeRepo) Validate() error { return nil }

func (f *fakeRepo) MustValidate() {}

func (f *fakeRepo) RunInTx(ctx context.Context, _ *sql.TxOptions, fn func(context.Context, bun.Tx) error) error {
	return fn(ctx, bun.Tx{})
}

func (f *fakeRepo) Users() auth.Users { return f.users }

var _ auth.RepositoryManager = (*fakeRepo)(nil)

type sentMail struct {
	email string
	token string
}

// fakeMailer records deliveries
type fakeMailer struct {
	mu            sync.Mutex
	failWith      error
	verifications []sentMail
	resets        []sentMail
}

func (m *fakeMailer) SendVerificationEmail(_ context.Context, email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return m.failWith
	}

	m.verifications = append(m.verifications, sentMail{email: email, token: token})
	return nil
}

func (m *fakeMailer) SendPasswordResetEmail(_ context.Context, email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return m.failWith
	}

	m.resets = append(m.resets, sentMail{email: email, token: token})
	return nil
}

var _ auth.Mailer = (*fakeMailer)(nil)

func newTestConfig() *auth.SimpleConfig {
	return &auth.SimpleConfig{
		AccessSigningKey:       "test-access-secret",
		RefreshSigningKey:      "test-refresh-secret",
		VerificationSigningKey: "test-verification-secret",
		ResetSigningKey:        "test-reset-secret",
		Issuer:                 "test-issuer",
	}
}

func newTestCodec(t *testing.T, cfg *auth.SimpleConfig) *auth.HMACTokenCodec {
	t.Helper()

	codec, err := auth.NewTokenCodec(cfg)
	if err != nil {
		t.Fatalf("failed to build token codec: %v", err)
	}
	return codec
}

func seedUser(t *testing.T, password string) *auth.User {
	t.Helper()

	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	return &auth.User{
		ID:            uuid.New(),
		Role:          auth.RoleMember,
		FirstName:     "Ada",
		LastName:      "Lovelace",
		Username:      "ada",
		Email:         "ada@example.com",
		PasswordHash:  hash,
		EmailVerified: true,
	}
}
