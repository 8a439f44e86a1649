package accounts_test

import (
	"context"
	"testing"

	accounts "github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestDeleteAccountRemovesRecord(t *testing.T) {
	ctx := context.Background()
	repo, users, verifications := newMockRepositoryManager()
	provider := &MockIdentityProvider{}

	lifecycle := accounts.NewAccountLifecycle(users, verifications)
	handler := accounts.NewDeleteAccountHandler(repo, provider, lifecycle)

	user := newVerifiedUser(t, "pepe@example.com", "password123")
	identity := testIdentity{id: user.ID.String(), email: user.Email}

	provider.On("VerifyCredentials", mock.Anything, user.Email, "password123").
		Return(identity, nil).Once()

	users.On("GetActiveByEmailTx", mock.Anything, mock.Anything, user.Email).
		Return(user, nil).Once()
	verifications.On("DeleteByUserTx", mock.Anything, mock.Anything, user.ID).Return(nil).Once()
	users.On("DeleteByIDTx", mock.Anything, mock.Anything, user.ID).Return(nil).Once()

	var resp *accounts.DeleteAccountResponse
	err := handler.Execute(ctx, accounts.DeleteAccountMessage{
		Email:    user.Email,
		Password: "password123",
		Session:  &accounts.SessionObject{UserID: user.ID.String()},
		OnResponse: func(r *accounts.DeleteAccountResponse) {
			resp = r
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, user.ID, resp.User.ID)

	provider.AssertExpectations(t)
	users.AssertExpectations(t)
	verifications.AssertExpectations(t)
}

func TestDeleteAccountRequiresValidCredentials(t *testing.T) {
	ctx := context.Background()
	repo, users, _ := newMockRepositoryManager()
	provider := &MockIdentityProvider{}

	lifecycle := accounts.NewAccountLifecycle(repo.UsersRepo, repo.VerificationsRepo)
	handler := accounts.NewDeleteAccountHandler(repo, provider, lifecycle)

	provider.On("VerifyCredentials", mock.Anything, "pepe@example.com", "wrong").
		Return(nil, accounts.ErrMismatchedHashAndPassword).Once()

	err := handler.Execute(ctx, accounts.DeleteAccountMessage{
		Email:    "pepe@example.com",
		Password: "wrong",
		Session:  &accounts.SessionObject{UserID: "some-user"},
	})
	require.ErrorIs(t, err, accounts.ErrMismatchedHashAndPassword)

	users.AssertNotCalled(t, "DeleteByIDTx", mock.Anything, mock.Anything, mock.Anything)
	provider.AssertExpectations(t)
}

func TestDeleteAccountRequiresActiveSession(t *testing.T) {
	ctx := context.Background()
	repo, users, _ := newMockRepositoryManager()
	provider := &MockIdentityProvider{}

	lifecycle := accounts.NewAccountLifecycle(repo.UsersRepo, repo.VerificationsRepo)
	handler := accounts.NewDeleteAccountHandler(repo, provider, lifecycle)

	user := newVerifiedUser(t, "pepe@example.com", "password123")
	identity := testIdentity{id: user.ID.String(), email: user.Email}

	provider.On("VerifyCredentials", mock.Anything, user.Email, "password123").
		Return(identity, nil).Once()

	err := handler.Execute(ctx, accounts.DeleteAccountMessage{
		Email:    user.Email,
		Password: "password123",
	})
	require.ErrorIs(t, err, accounts.ErrNoActiveSession)

	users.AssertNotCalled(t, "DeleteByIDTx", mock.Anything, mock.Anything, mock.Anything)
	provider.AssertExpectations(t)
}
