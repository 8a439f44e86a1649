package accounts_test

import (
	"context"
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestHideAccountAnonymizesRecord(t *testing.T) {
	ctx := context.Background()
	repo, users, verifications := newMockRepositoryManager()
	provider := &MockIdentityProvider{}

	now := time.Now()
	lifecycle := accounts.NewAccountLifecycle(users, verifications,
		accounts.WithLifecycleClock(func() time.Time { return now }),
	)
	handler := accounts.NewHideAccountHandler(repo, provider, lifecycle)

	user := newVerifiedUser(t, "pepe@example.com", "password123")
	identity := testIdentity{id: user.ID.String(), email: user.Email}

	provider.On("VerifyCredentials", mock.Anything, user.Email, "password123").
		Return(identity, nil).Once()
	provider.On("FindIdentityByIdentifier", mock.Anything, user.ID.String()).
		Return(identity, nil).Once()

	users.On("GetActiveByEmailTx", mock.Anything, mock.Anything, user.Email).
		Return(user, nil).Once()

	users.On("HideTx", mock.Anything, mock.Anything, user.ID, mock.AnythingOfType("string"), now).
		Run(func(args mock.Arguments) {
			salt := args.Get(3).(string)
			assert.Len(t, salt, accounts.HideSaltLength)
		}).
		Return(&accounts.User{
			ID:       user.ID,
			Email:    "xYz" + user.Email,
			Username: "xYz" + user.Username,
			Phone:    "xYz" + user.Phone,
			HiddenAt: &now,
		}, nil).Once()

	var resp *accounts.HideAccountResponse
	err := handler.Execute(ctx, accounts.HideAccountMessage{
		Email:    user.Email,
		Password: "password123",
		Session:  &accounts.SessionObject{UserID: user.ID.String()},
		OnResponse: func(r *accounts.HideAccountResponse) {
			resp = r
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)

	assert.True(t, resp.User.IsHidden())
	assert.NotEqual(t, user.Email, resp.User.Email)

	provider.AssertExpectations(t)
	users.AssertExpectations(t)
}

func TestHideAccountRequiresActiveSession(t *testing.T) {
	ctx := context.Background()
	repo, users, _ := newMockRepositoryManager()
	provider := &MockIdentityProvider{}

	lifecycle := accounts.NewAccountLifecycle(repo.UsersRepo, repo.VerificationsRepo)
	handler := accounts.NewHideAccountHandler(repo, provider, lifecycle)

	user := newVerifiedUser(t, "pepe@example.com", "password123")
	identity := testIdentity{id: user.ID.String(), email: user.Email}

	provider.On("VerifyCredentials", mock.Anything, user.Email, "password123").
		Return(identity, nil).Once()

	err := handler.Execute(ctx, accounts.HideAccountMessage{
		Email:    user.Email,
		Password: "password123",
	})
	require.ErrorIs(t, err, accounts.ErrNoActiveSession)

	users.AssertNotCalled(t, "HideTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	provider.AssertExpectations(t)
}

func TestHideAccountRejectsCrossAccountSession(t *testing.T) {
	ctx := context.Background()
	repo, users, _ := newMockRepositoryManager()
	provider := &MockIdentityProvider{}

	lifecycle := accounts.NewAccountLifecycle(repo.UsersRepo, repo.VerificationsRepo)
	handler := accounts.NewHideAccountHandler(repo, provider, lifecycle)

	user := newVerifiedUser(t, "pepe@example.com", "password123")
	identity := testIdentity{id: user.ID.String(), email: user.Email}

	// the live session belongs to a different account than the submitted email
	other := testIdentity{id: "other-user", email: "other@example.com"}

	provider.On("VerifyCredentials", mock.Anything, user.Email, "password123").
		Return(identity, nil).Once()
	provider.On("FindIdentityByIdentifier", mock.Anything, other.id).
		Return(other, nil).Once()

	err := handler.Execute(ctx, accounts.HideAccountMessage{
		Email:    user.Email,
		Password: "password123",
		Session:  &accounts.SessionObject{UserID: other.id},
	})
	require.ErrorIs(t, err, accounts.ErrRequestNotAllowed)

	users.AssertNotCalled(t, "HideTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	provider.AssertExpectations(t)
}

func TestHideAccountSessionIdentityMustResolve(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newMockRepositoryManager()
	provider := &MockIdentityProvider{}

	lifecycle := accounts.NewAccountLifecycle(repo.UsersRepo, repo.VerificationsRepo)
	handler := accounts.NewHideAccountHandler(repo, provider, lifecycle)

	user := newVerifiedUser(t, "pepe@example.com", "password123")
	identity := testIdentity{id: user.ID.String(), email: user.Email}

	provider.On("VerifyCredentials", mock.Anything, user.Email, "password123").
		Return(identity, nil).Once()
	provider.On("FindIdentityByIdentifier", mock.Anything, "stale-session-user").
		Return(nil, accounts.ErrIdentityNotFound).Once()

	err := handler.Execute(ctx, accounts.HideAccountMessage{
		Email:    user.Email,
		Password: "password123",
		Session:  &accounts.SessionObject{UserID: "stale-session-user"},
	})
	require.ErrorIs(t, err, accounts.ErrNoActiveSession)

	provider.AssertExpectations(t)
}
