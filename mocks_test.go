package auth_test

import (
	"context"
	"database/sql"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
	auth "github.com/weshop/go-auth"
)

// MockAccounts implements auth.Accounts. The embedded repository interface
// covers the generic CRUD surface; only the methods the gateway reaches
// for are wired through testify.
type MockAccounts struct {
	mock.Mock
	repository.Repository[*auth.User]
}

func userResult(args mock.Arguments) (*auth.User, error) {
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

func (m *MockAccounts) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*auth.User, error) {
	args := m.Called(ctx, id)
	return userResult(args)
}

// Return values are stored verbatim by testify, so an echo func has to be
// invoked here with the call's own arguments.
func (m *MockAccounts) CreateAccount(ctx context.Context, user *auth.User) (*auth.User, error) {
	args := m.Called(ctx, user)
	if echo, ok := args.Get(0).(func(context.Context, *auth.User) *auth.User); ok {
		return echo(ctx, user), args.Error(1)
	}
	return userResult(args)
}

func (m *MockAccounts) CreateAccountTx(ctx context.Context, tx bun.IDB, user *auth.User) (*auth.User, error) {
	args := m.Called(ctx, tx, user)
	if echo, ok := args.Get(0).(func(context.Context, *auth.User) *auth.User); ok {
		return echo(ctx, user), args.Error(1)
	}
	return userResult(args)
}

func (m *MockAccounts) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	return userResult(args)
}

func (m *MockAccounts) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*auth.User, error) {
	args := m.Called(ctx, tx, email)
	return userResult(args)
}

func (m *MockAccounts) GetByVerificationHash(ctx context.Context, hash string, now time.Time) (*auth.User, error) {
	args := m.Called(ctx, hash, now)
	return userResult(args)
}

func (m *MockAccounts) GetByResetHash(ctx context.Context, hash string, now time.Time) (*auth.User, error) {
	args := m.Called(ctx, hash, now)
	return userResult(args)
}

func (m *MockAccounts) FindVerificationCandidate(ctx context.Context, hash string) (*auth.User, error) {
	args := m.Called(ctx, hash)
	return userResult(args)
}

func (m *MockAccounts) SetVerificationToken(ctx context.Context, id string, hash string, expiresAt time.Time) error {
	args := m.Called(ctx, id, hash, expiresAt)
	return args.Error(0)
}

func (m *MockAccounts) SetVerificationTokenTx(ctx context.Context, tx bun.IDB, id string, hash string, expiresAt time.Time) error {
	args := m.Called(ctx, tx, id, hash, expiresAt)
	return args.Error(0)
}

func (m *MockAccounts) ClearVerificationToken(ctx context.Context, id string, hash string) error {
	args := m.Called(ctx, id, hash)
	return args.Error(0)
}

func (m *MockAccounts) ActivateVerified(ctx context.Context, id string, hash string) (*auth.User, error) {
	args := m.Called(ctx, id, hash)
	return userResult(args)
}

func (m *MockAccounts) RecordFailedVerification(ctx context.Context, id string, maxAttempts int) (*auth.User, error) {
	args := m.Called(ctx, id, maxAttempts)
	return userResult(args)
}

func (m *MockAccounts) SetResetToken(ctx context.Context, id string, hash string, expiresAt time.Time) error {
	args := m.Called(ctx, id, hash, expiresAt)
	return args.Error(0)
}

func (m *MockAccounts) ClearResetToken(ctx context.Context, id string, hash string) error {
	args := m.Called(ctx, id, hash)
	return args.Error(0)
}

func (m *MockAccounts) ReplacePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) (*auth.User, error) {
	args := m.Called(ctx, id, passwordHash, changedAt)
	return userResult(args)
}

func (m *MockAccounts) UpdateStateIf(ctx context.Context, id string, from, to auth.AccountState) (*auth.User, error) {
	args := m.Called(ctx, id, from, to)
	return userResult(args)
}

// MockRepositoryManager implements auth.RepositoryManager over a MockAccounts.
type MockRepositoryManager struct {
	mock.Mock
	accounts *MockAccounts
}

func newMockRepositoryManager() *MockRepositoryManager {
	return &MockRepositoryManager{accounts: &MockAccounts{}}
}

func (m *MockRepositoryManager) Accounts() auth.Accounts {
	return m.accounts
}

func (m *MockRepositoryManager) Validate() error {
	return nil
}

func (m *MockRepositoryManager) MustValidate() {}

func (m *MockRepositoryManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	args := m.Called(ctx, opts, f)
	return args.Error(0)
}

// MockDeliveryChannel implements auth.DeliveryChannel.
type MockDeliveryChannel struct {
	mock.Mock
}

func (m *MockDeliveryChannel) DeliverVerificationCode(ctx context.Context, user *auth.User, code string, expiresAt time.Time) error {
	args := m.Called(ctx, user, code, expiresAt)
	return args.Error(0)
}

func (m *MockDeliveryChannel) DeliverResetToken(ctx context.Context, user *auth.User, token string, expiresAt time.Time) error {
	args := m.Called(ctx, user, token, expiresAt)
	return args.Error(0)
}

// capturingSink records every activity event it sees.
type capturingSink struct {
	events []auth.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, evt auth.ActivityEvent) error {
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) eventTypes() []auth.ActivityEventType {
	types := make([]auth.ActivityEventType, 0, len(c.events))
	for _, evt := range c.events {
		types = append(types, evt.EventType)
	}
	return types
}

// MockIdentity implements auth.Identity for testing
type MockIdentity struct {
	mock.Mock
}

func (m *MockIdentity) ID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockIdentity) Email() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockIdentity) Role() string {
	args := m.Called()
	return args.String(0)
}

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}
