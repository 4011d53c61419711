package credentials_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	credentials "github.com/goliatone/go-credentials"
)

func newAuthFixture(t *testing.T, password string) (*memStore, *credentials.Auther, *credentials.User) {
	t.Helper()

	store := newMemStore()
	sessions := credentials.NewSessionManager(store, credentials.ConfigOptions{})
	auther := credentials.NewAuthenticator(store, sessions)

	hash, err := credentials.HashPassword(password)
	require.NoError(t, err)

	user := store.seed(&credentials.User{
		Email:        "tess@example.com",
		PasswordHash: hash,
		Verified:     true,
	})

	return store, auther, user
}

func TestLoginSuccess(t *testing.T) {
	store, auther, user := newAuthFixture(t, "correct-password-1")

	token, got, err := auther.Login(context.Background(), "tess@example.com", "correct-password-1", credentials.SessionContext{
		IP: "203.0.113.9",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, user.ID, got.ID)

	stored := store.get(user.ID)
	require.Len(t, stored.Sessions, 1)
	assert.Equal(t, "203.0.113.9", stored.Sessions[0].IP)
}

func TestLoginNormalizesEmail(t *testing.T) {
	_, auther, _ := newAuthFixture(t, "correct-password-1")

	_, _, err := auther.Login(context.Background(), "  TESS@Example.COM ", "correct-password-1", credentials.SessionContext{})
	assert.NoError(t, err)
}

func TestLoginFailures(t *testing.T) {
	_, auther, _ := newAuthFixture(t, "correct-password-1")

	t.Run("unknown email", func(t *testing.T) {
		_, _, err := auther.Login(context.Background(), "nobody@example.com", "correct-password-1", credentials.SessionContext{})
		assert.ErrorIs(t, err, credentials.ErrInvalidCredentials)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, _, err := auther.Login(context.Background(), "tess@example.com", "wrong-password", credentials.SessionContext{})
		assert.ErrorIs(t, err, credentials.ErrInvalidCredentials)
	})
}

func TestLoginBlockedWhileVerificationPending(t *testing.T) {
	store, auther, user := newAuthFixture(t, "correct-password-1")

	pending := store.get(user.ID)
	pending.SetCode(credentials.CodeVerification, "digest", time.Now().Add(time.Hour))
	store.seed(pending)

	_, _, err := auther.Login(context.Background(), "tess@example.com", "correct-password-1", credentials.SessionContext{})
	assert.ErrorIs(t, err, credentials.ErrEmailUnverified)
}

func TestLogout(t *testing.T) {
	store, auther, user := newAuthFixture(t, "correct-password-1")

	token, got, err := auther.Login(context.Background(), "tess@example.com", "correct-password-1", credentials.SessionContext{})
	require.NoError(t, err)

	require.NoError(t, auther.Logout(context.Background(), got, token))
	assert.Empty(t, store.get(user.ID).Sessions)

	_, err = auther.VerifySession(context.Background(), token)
	assert.ErrorIs(t, err, credentials.ErrSessionNotFound)
}

func TestLogoutAll(t *testing.T) {
	store, auther, user := newAuthFixture(t, "correct-password-1")

	var got *credentials.User
	for range 3 {
		var err error
		_, got, err = auther.Login(context.Background(), "tess@example.com", "correct-password-1", credentials.SessionContext{})
		require.NoError(t, err)
	}
	require.Len(t, store.get(user.ID).Sessions, 3)

	require.NoError(t, auther.LogoutAll(context.Background(), got))
	assert.Empty(t, store.get(user.ID).Sessions)
}

func TestLoginEmitsActivity(t *testing.T) {
	_, auther, _ := newAuthFixture(t, "correct-password-1")

	sink := &recordingSink{}
	auther.WithActivitySink(sink)

	_, _, err := auther.Login(context.Background(), "tess@example.com", "wrong", credentials.SessionContext{})
	require.Error(t, err)

	_, _, err = auther.Login(context.Background(), "tess@example.com", "correct-password-1", credentials.SessionContext{})
	require.NoError(t, err)

	assert.Equal(t, []credentials.ActivityEventType{
		credentials.ActivityEventLoginFailure,
		credentials.ActivityEventLoginSuccess,
	}, sink.types())
}

func TestLoginSurvivesActivitySinkFailure(t *testing.T) {
	_, auther, _ := newAuthFixture(t, "correct-password-1")

	sink := &MockActivitySink{}
	sink.On("Record", mock.Anything, mock.Anything).Return(assert.AnError)
	auther.WithActivitySink(sink)

	token, _, err := auther.Login(context.Background(), "tess@example.com", "correct-password-1", credentials.SessionContext{})
	require.NoError(t, err, "a broken sink never fails the login")
	assert.NotEmpty(t, token)
	sink.AssertExpectations(t)
}
