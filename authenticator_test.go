package accounts_test

import (
	"context"
	"testing"

	accounts "github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAutherLoginIssuesBearerToken(t *testing.T) {
	ctx := context.Background()
	provider := &MockIdentityProvider{}
	sink := &MockActivitySink{}

	auther := accounts.NewAuthenticator(provider, newTestConfig()).
		WithLogger(testLogger{}).
		WithActivitySink(sink)

	identity := testIdentity{id: "88f628e9-6b97-4cbd-a656-8d29f6e6b9fc", username: "pepe", email: "pepe@example.com"}

	provider.On("VerifyIdentity", mock.Anything, identity.email, "password123").
		Return(identity, nil).Once()

	sink.On("Record", mock.Anything, mock.MatchedBy(func(evt accounts.ActivityEvent) bool {
		return evt.EventType == accounts.ActivityEventLoginSuccess &&
			evt.UserID == identity.id
	})).Return(nil).Once()

	result, err := auther.Login(ctx, identity.email, "password123")
	require.NoError(t, err)

	assert.Equal(t, accounts.TokenTypeBearer, result.TokenType)
	assert.Equal(t, 3600, result.ExpiresIn)
	assert.Equal(t, identity.id, result.Identity.ID())

	claims, err := auther.TokenService().Validate(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, identity.id, claims.UserID())

	provider.AssertExpectations(t)
	sink.AssertExpectations(t)
}

func TestAutherLoginPropagatesCredentialErrors(t *testing.T) {
	ctx := context.Background()
	provider := &MockIdentityProvider{}
	sink := &MockActivitySink{}

	auther := accounts.NewAuthenticator(provider, newTestConfig()).
		WithLogger(testLogger{}).
		WithActivitySink(sink)

	provider.On("VerifyIdentity", mock.Anything, "pepe@example.com", "wrong").
		Return(nil, accounts.ErrMismatchedHashAndPassword).Once()

	sink.On("Record", mock.Anything, mock.MatchedBy(func(evt accounts.ActivityEvent) bool {
		return evt.EventType == accounts.ActivityEventLoginFailure
	})).Return(nil).Once()

	_, err := auther.Login(ctx, "pepe@example.com", "wrong")
	require.ErrorIs(t, err, accounts.ErrMismatchedHashAndPassword)

	provider.AssertExpectations(t)
	sink.AssertExpectations(t)
}

func TestAutherLoginRejectsZeroIdentity(t *testing.T) {
	ctx := context.Background()
	provider := &MockIdentityProvider{}

	auther := accounts.NewAuthenticator(provider, newTestConfig()).WithLogger(testLogger{})

	provider.On("VerifyIdentity", mock.Anything, "pepe@example.com", "password123").
		Return(testIdentity{}, nil).Once()

	_, err := auther.Login(ctx, "pepe@example.com", "password123")
	require.ErrorIs(t, err, accounts.ErrIdentityNotFound)

	provider.AssertExpectations(t)
}

func TestAutherLogoutRevokesToken(t *testing.T) {
	ctx := context.Background()
	provider := &MockIdentityProvider{}
	sink := &MockActivitySink{}

	auther := accounts.NewAuthenticator(provider, newTestConfig()).
		WithLogger(testLogger{}).
		WithActivitySink(sink)

	identity := testIdentity{id: "88f628e9-6b97-4cbd-a656-8d29f6e6b9fc", email: "pepe@example.com"}

	provider.On("VerifyIdentity", mock.Anything, identity.email, "password123").
		Return(identity, nil).Once()
	sink.On("Record", mock.Anything, mock.Anything).Return(nil)

	result, err := auther.Login(ctx, identity.email, "password123")
	require.NoError(t, err)

	require.NoError(t, auther.Logout(ctx, result.AccessToken))

	_, err = auther.TokenService().Validate(result.AccessToken)
	require.ErrorIs(t, err, accounts.ErrTokenRevoked)

	// a second logout fails, the token is already revoked
	require.Error(t, auther.Logout(ctx, result.AccessToken))
}

func TestAutherRefreshRotatesSession(t *testing.T) {
	ctx := context.Background()
	provider := &MockIdentityProvider{}
	sink := &MockActivitySink{}

	auther := accounts.NewAuthenticator(provider, newTestConfig()).
		WithLogger(testLogger{}).
		WithActivitySink(sink)

	identity := testIdentity{id: "88f628e9-6b97-4cbd-a656-8d29f6e6b9fc", username: "pepe", email: "pepe@example.com"}

	provider.On("VerifyIdentity", mock.Anything, identity.email, "password123").
		Return(identity, nil).Once()
	provider.On("FindIdentityByIdentifier", mock.Anything, identity.id).
		Return(identity, nil).Once()

	sink.On("Record", mock.Anything, mock.Anything).Return(nil)

	result, err := auther.Login(ctx, identity.email, "password123")
	require.NoError(t, err)

	refreshed, err := auther.Refresh(ctx, result.AccessToken)
	require.NoError(t, err)

	assert.NotEqual(t, result.AccessToken, refreshed.AccessToken)
	assert.Equal(t, accounts.TokenTypeBearer, refreshed.TokenType)
	assert.Equal(t, identity.id, refreshed.Identity.ID())

	_, err = auther.TokenService().Validate(result.AccessToken)
	require.ErrorIs(t, err, accounts.ErrTokenRevoked)

	sink.AssertCalled(t, "Record", mock.Anything, mock.MatchedBy(func(evt accounts.ActivityEvent) bool {
		return evt.EventType == accounts.ActivityEventTokenRefreshed
	}))

	provider.AssertExpectations(t)
}

func TestAutherSessionFromToken(t *testing.T) {
	provider := &MockIdentityProvider{}
	auther := accounts.NewAuthenticator(provider, newTestConfig()).WithLogger(testLogger{})

	identity := testIdentity{id: "88f628e9-6b97-4cbd-a656-8d29f6e6b9fc", email: "pepe@example.com"}

	token, err := auther.TokenService().Generate(identity)
	require.NoError(t, err)

	session, err := auther.SessionFromToken(token)
	require.NoError(t, err)

	assert.Equal(t, identity.id, session.GetUserID())
	assert.Equal(t, "test-issuer", session.GetIssuer())
	assert.Equal(t, []string{"test-aud"}, session.GetAudience())
	assert.NotEmpty(t, session.GetTokenID())

	_, err = auther.SessionFromToken("not.a.token")
	require.Error(t, err)
}

func TestAutherIdentityFromSession(t *testing.T) {
	ctx := context.Background()
	provider := &MockIdentityProvider{}
	auther := accounts.NewAuthenticator(provider, newTestConfig()).WithLogger(testLogger{})

	identity := testIdentity{id: "88f628e9-6b97-4cbd-a656-8d29f6e6b9fc", email: "pepe@example.com"}
	session := &accounts.SessionObject{UserID: identity.id}

	provider.On("FindIdentityByIdentifier", mock.Anything, identity.id).
		Return(identity, nil).Once()

	resolved, err := auther.IdentityFromSession(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, identity.email, resolved.Email())

	provider.AssertExpectations(t)
}
