package accounts_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"
)

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

// MockUsers implements accounts.Users. Only the methods exercised by the
// account flows are mocked, the embedded interface covers the rest.
type MockUsers struct {
	accounts.Users
	mock.Mock
}

func (m *MockUsers) GetActiveByEmail(ctx context.Context, email string) (*accounts.User, error) {
	args := m.Called(ctx, email)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *MockUsers) GetActiveByEmailTx(ctx context.Context, tx bun.IDB, email string) (*accounts.User, error) {
	args := m.Called(ctx, tx, email)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *MockUsers) FindByID(ctx context.Context, id string) (*accounts.User, error) {
	args := m.Called(ctx, id)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *MockUsers) FindConflictsTx(ctx context.Context, tx bun.IDB, uname, pnumber, email string) (map[string]bool, error) {
	args := m.Called(ctx, tx, uname, pnumber, email)
	taken, _ := args.Get(0).(map[string]bool)
	return taken, args.Error(1)
}

// RegisterTx echoes the submitted record when the expectation returns nil,
// mirroring the create-and-return behavior of the real repository.
func (m *MockUsers) RegisterTx(ctx context.Context, tx bun.IDB, user *accounts.User) (*accounts.User, error) {
	args := m.Called(ctx, tx, user)
	if record := userArg(args.Get(0)); record != nil {
		return record, args.Error(1)
	}
	if args.Error(1) != nil {
		return nil, args.Error(1)
	}
	if user != nil && user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	return user, nil
}

func (m *MockUsers) TrackAttemptedLogin(ctx context.Context, user *accounts.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUsers) TrackSucccessfulLogin(ctx context.Context, user *accounts.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUsers) VerifyEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*accounts.User, error) {
	args := m.Called(ctx, tx, id)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *MockUsers) HideTx(ctx context.Context, tx bun.IDB, id uuid.UUID, salt string, at time.Time) (*accounts.User, error) {
	args := m.Called(ctx, tx, id, salt, at)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *MockUsers) DeleteByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

func userArg(v any) *accounts.User {
	user, _ := v.(*accounts.User)
	return user
}

// MockVerifications implements accounts.Verifications.
type MockVerifications struct {
	accounts.Verifications
	mock.Mock
}

func (m *MockVerifications) GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*accounts.UserVerification, error) {
	args := m.Called(ctx, tx, token)
	record, _ := args.Get(0).(*accounts.UserVerification)
	return record, args.Error(1)
}

func (m *MockVerifications) CreateTx(ctx context.Context, tx bun.IDB, record *accounts.UserVerification, criteria ...repository.InsertCriteria) (*accounts.UserVerification, error) {
	args := m.Called(ctx, tx, record)
	if created, ok := args.Get(0).(*accounts.UserVerification); ok {
		return created, args.Error(1)
	}
	return record, args.Error(1)
}

func (m *MockVerifications) DeleteByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error {
	args := m.Called(ctx, tx, userID)
	return args.Error(0)
}

// MockRepositoryManager hands the command handlers a transaction without a
// database: RunInTx invokes the function with a zero bun.Tx, every repository
// call inside is mocked.
type MockRepositoryManager struct {
	UsersRepo         *MockUsers
	VerificationsRepo *MockVerifications
}

var _ accounts.RepositoryManager = (*MockRepositoryManager)(nil)

func newMockRepositoryManager() (*MockRepositoryManager, *MockUsers, *MockVerifications) {
	users := &MockUsers{}
	verifications := &MockVerifications{}
	return &MockRepositoryManager{
		UsersRepo:         users,
		VerificationsRepo: verifications,
	}, users, verifications
}

func (m *MockRepositoryManager) Users() accounts.Users { return m.UsersRepo }

func (m *MockRepositoryManager) Verifications() accounts.Verifications {
	return m.VerificationsRepo
}

func (m *MockRepositoryManager) Validate() error { return nil }

func (m *MockRepositoryManager) MustValidate() {}

func (m *MockRepositoryManager) RunInTx(ctx context.Context, _ *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	return f(ctx, bun.Tx{})
}

// MockIdentityProvider implements accounts.IdentityProvider.
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) VerifyIdentity(ctx context.Context, identifier, password string) (accounts.Identity, error) {
	args := m.Called(ctx, identifier, password)
	return identityArg(args.Get(0)), args.Error(1)
}

func (m *MockIdentityProvider) VerifyCredentials(ctx context.Context, identifier, password string) (accounts.Identity, error) {
	args := m.Called(ctx, identifier, password)
	return identityArg(args.Get(0)), args.Error(1)
}

func (m *MockIdentityProvider) FindIdentityByIdentifier(ctx context.Context, identifier string) (accounts.Identity, error) {
	args := m.Called(ctx, identifier)
	return identityArg(args.Get(0)), args.Error(1)
}

func identityArg(v any) accounts.Identity {
	identity, _ := v.(accounts.Identity)
	return identity
}

// MockAuthenticator implements accounts.Authenticator.
type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Login(ctx context.Context, identifier, password string) (*accounts.LoginResult, error) {
	args := m.Called(ctx, identifier, password)
	result, _ := args.Get(0).(*accounts.LoginResult)
	return result, args.Error(1)
}

func (m *MockAuthenticator) Refresh(ctx context.Context, token string) (*accounts.LoginResult, error) {
	args := m.Called(ctx, token)
	result, _ := args.Get(0).(*accounts.LoginResult)
	return result, args.Error(1)
}

func (m *MockAuthenticator) Logout(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockAuthenticator) SessionFromToken(token string) (accounts.Session, error) {
	args := m.Called(token)
	session, _ := args.Get(0).(accounts.Session)
	return session, args.Error(1)
}

func (m *MockAuthenticator) IdentityFromSession(ctx context.Context, session accounts.Session) (accounts.Identity, error) {
	args := m.Called(ctx, session)
	return identityArg(args.Get(0)), args.Error(1)
}

// MockActivitySink implements accounts.ActivitySink.
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event accounts.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// staticHasher is a deterministic accounts.PasswordAuthenticator so tests
// can assert on hash output without paying for bcrypt.
type staticHasher struct{}

func (staticHasher) HashPassword(password string) (string, error) {
	return "static:" + password, nil
}

func (staticHasher) ComparePasswordAndHash(password, hash string) error {
	if hash != "static:"+password {
		return accounts.ErrMismatchedHashAndPassword
	}
	return nil
}

var _ accounts.PasswordAuthenticator = staticHasher{}

// testIdentity implements accounts.Identity.
type testIdentity struct {
	id       string
	username string
	email    string
}

func (t testIdentity) ID() string       { return t.id }
func (t testIdentity) Username() string { return t.username }
func (t testIdentity) Email() string    { return t.email }

// testConfig implements accounts.Config.
type testConfig struct {
	signingKey      string
	signingMethod   string
	contextKey      string
	tokenExpiration int
	refreshGrace    int
	tokenLookup     string
	authScheme      string
	issuer          string
	audience        []string
}

func newTestConfig() testConfig {
	return testConfig{
		signingKey:      "test-signing-key",
		signingMethod:   "HS256",
		contextKey:      "user",
		tokenExpiration: 60,
		refreshGrace:    10,
		tokenLookup:     "header:Authorization",
		authScheme:      "Bearer",
		issuer:          "test-issuer",
		audience:        []string{"test-aud"},
	}
}

func (c testConfig) GetSigningKey() string      { return c.signingKey }
func (c testConfig) GetSigningMethod() string   { return c.signingMethod }
func (c testConfig) GetContextKey() string      { return c.contextKey }
func (c testConfig) GetTokenExpiration() int    { return c.tokenExpiration }
func (c testConfig) GetRefreshGraceWindow() int { return c.refreshGrace }
func (c testConfig) GetTokenLookup() string     { return c.tokenLookup }
func (c testConfig) GetAuthScheme() string      { return c.authScheme }
func (c testConfig) GetIssuer() string          { return c.issuer }
func (c testConfig) GetAudience() []string      { return c.audience }

var _ accounts.Config = testConfig{}

// hashPassword hashes at min cost to keep the suite fast.
func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	return string(hash)
}

// newVerifiedUser builds an active, email verified user record.
func newVerifiedUser(t *testing.T, email, password string) *accounts.User {
	t.Helper()
	return &accounts.User{
		ID:             uuid.New(),
		Username:       "tester",
		FirstName:      "Test",
		LastName:       "User",
		Phone:          "+14155552671",
		Email:          email,
		PasswordHash:   hashPassword(t, password),
		EmailValidated: true,
	}
}
