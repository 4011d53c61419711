package credentials_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	credentials "github.com/goliatone/go-credentials"
)

func newCodeFixture(t *testing.T) (*memStore, *credentials.CodeManager, *recordingNotifier) {
	t.Helper()
	store := newMemStore()
	cfg := credentials.ConfigOptions{BaseURL: "https://app.example.com"}
	notifier := &recordingNotifier{}
	codes := credentials.NewCodeManager(store, cfg).WithNotifier(notifier)
	return store, codes, notifier
}

// extractCode pulls the raw code out of the emailed confirmation link.
func extractCode(t *testing.T, n credentials.Notification, prefix string) string {
	t.Helper()
	link, ok := n.Params["email_url"].(string)
	require.True(t, ok, "notification carries the link")
	require.Contains(t, link, prefix)
	return link[len("https://app.example.com/"+prefix):]
}

func TestVerificationFlow(t *testing.T) {
	store, codes, notifier := newCodeFixture(t)
	user := store.seed(&credentials.User{Email: "tess@example.com"})

	require.NoError(t, codes.IssueVerification(context.Background(), user))

	msg, ok := notifier.last()
	require.True(t, ok)
	assert.Equal(t, "tess@example.com", msg.Recipient)
	assert.Equal(t, credentials.TemplateVerificationCode, msg.Template)

	raw := extractCode(t, msg, "email-verification/")

	// only the digest is stored
	stored := store.get(user.ID)
	assert.True(t, stored.HasPendingVerification())
	assert.NotEqual(t, raw, stored.CodeDigest(credentials.CodeVerification))
	assert.Equal(t, credentials.Digest(raw), stored.CodeDigest(credentials.CodeVerification))

	confirmed, err := codes.ConfirmVerification(context.Background(), raw)
	require.NoError(t, err)
	assert.True(t, confirmed.Verified)
	assert.False(t, confirmed.HasPendingVerification())

	// code is consumed
	_, err = codes.ConfirmVerification(context.Background(), raw)
	assert.ErrorIs(t, err, credentials.ErrCodeInvalid)

	msg, _ = notifier.last()
	assert.Equal(t, credentials.TemplateVerificationSuccess, msg.Template)
}

func TestConfirmVerificationFailures(t *testing.T) {
	store, codes, notifier := newCodeFixture(t)
	user := store.seed(&credentials.User{Email: "tess@example.com"})

	require.NoError(t, codes.IssueVerification(context.Background(), user))
	msg, _ := notifier.last()
	raw := extractCode(t, msg, "email-verification/")

	t.Run("empty code", func(t *testing.T) {
		_, err := codes.ConfirmVerification(context.Background(), "")
		assert.ErrorIs(t, err, credentials.ErrCodeInvalid)
	})

	t.Run("garbage code", func(t *testing.T) {
		_, err := codes.ConfirmVerification(context.Background(), "bogus")
		assert.ErrorIs(t, err, credentials.ErrCodeInvalid)
	})

	t.Run("expired code fails like garbage", func(t *testing.T) {
		stored := store.get(user.ID)
		past := time.Now().Add(-time.Minute)
		stored.SetCode(credentials.CodeVerification, stored.CodeDigest(credentials.CodeVerification), past)
		store.seed(stored)

		_, err := codes.ConfirmVerification(context.Background(), raw)
		assert.ErrorIs(t, err, credentials.ErrCodeInvalid)
	})
}

func TestReissueInvalidatesPreviousCode(t *testing.T) {
	store, codes, notifier := newCodeFixture(t)
	user := store.seed(&credentials.User{Email: "tess@example.com"})

	require.NoError(t, codes.IssueVerification(context.Background(), user))
	first, _ := notifier.last()
	firstRaw := extractCode(t, first, "email-verification/")

	require.NoError(t, codes.IssueVerification(context.Background(), user))
	second, _ := notifier.last()
	secondRaw := extractCode(t, second, "email-verification/")

	_, err := codes.ConfirmVerification(context.Background(), firstRaw)
	assert.ErrorIs(t, err, credentials.ErrCodeInvalid, "only the newest link works")

	confirmed, err := codes.ConfirmVerification(context.Background(), secondRaw)
	require.NoError(t, err)
	assert.True(t, confirmed.Verified)
}

func TestPasswordChangeFlow(t *testing.T) {
	store, codes, notifier := newCodeFixture(t)

	oldHash, err := credentials.HashPassword("old-password-123")
	require.NoError(t, err)
	user := store.seed(&credentials.User{
		Email:        "tess@example.com",
		PasswordHash: oldHash,
		Verified:     true,
	})

	sessions := credentials.NewSessionManager(store, credentials.ConfigOptions{})
	token, err := sessions.Issue(context.Background(), user, credentials.SessionContext{})
	require.NoError(t, err)

	require.NoError(t, codes.IssuePasswordChange(context.Background(), user, "new-password-456"))

	// the replacement is staged hashed, the live credential is untouched
	stored := store.get(user.ID)
	assert.NotEmpty(t, stored.NewPasswordHash)
	assert.Equal(t, oldHash, stored.PasswordHash)
	assert.NoError(t, credentials.ComparePasswordAndHash("new-password-456", stored.NewPasswordHash))

	msg, _ := notifier.last()
	assert.Equal(t, credentials.TemplateChangePasswordCode, msg.Template)
	raw := extractCode(t, msg, "change-password-confirmation/")

	changed, err := codes.ConfirmPasswordChange(context.Background(), raw)
	require.NoError(t, err)

	assert.NoError(t, credentials.ComparePasswordAndHash("new-password-456", changed.PasswordHash))
	assert.Empty(t, changed.NewPasswordHash)
	assert.Empty(t, changed.Sessions, "every session revoked")

	// the pre-change session is dead
	_, err = sessions.Verify(context.Background(), token)
	assert.ErrorIs(t, err, credentials.ErrSessionNotFound)

	// the code is consumed
	_, err = codes.ConfirmPasswordChange(context.Background(), raw)
	assert.ErrorIs(t, err, credentials.ErrCodeInvalid)

	msg, _ = notifier.last()
	assert.Equal(t, credentials.TemplatePasswordChanged, msg.Template)
}

func TestPasswordForgotFlow(t *testing.T) {
	store, codes, notifier := newCodeFixture(t)

	oldHash, err := credentials.HashPassword("old-password-123")
	require.NoError(t, err)
	user := store.seed(&credentials.User{
		Email:        "tess@example.com",
		PasswordHash: oldHash,
		Verified:     true,
	})

	require.NoError(t, codes.IssuePasswordForgot(context.Background(), user))
	msg, _ := notifier.last()
	raw := extractCode(t, msg, "forgot-password-confirmation/")

	// step one: inspect without consuming
	inspected, err := codes.InspectPasswordForgot(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, user.ID, inspected.ID)

	inspected, err = codes.InspectPasswordForgot(context.Background(), raw)
	require.NoError(t, err, "inspection does not consume the code")
	assert.Equal(t, user.ID, inspected.ID)

	// step two: finalize
	reset, err := codes.FinalizePasswordForgot(context.Background(), raw, "brand-new-password")
	require.NoError(t, err)
	assert.NoError(t, credentials.ComparePasswordAndHash("brand-new-password", reset.PasswordHash))
	assert.Empty(t, reset.Sessions)

	_, err = codes.FinalizePasswordForgot(context.Background(), raw, "another-password-1")
	assert.ErrorIs(t, err, credentials.ErrCodeInvalid, "code consumed by the successful reset")
}

func TestPasswordForgotRejectsSamePassword(t *testing.T) {
	store, codes, notifier := newCodeFixture(t)

	oldHash, err := credentials.HashPassword("current-password-1")
	require.NoError(t, err)
	user := store.seed(&credentials.User{
		Email:        "tess@example.com",
		PasswordHash: oldHash,
		Verified:     true,
	})

	require.NoError(t, codes.IssuePasswordForgot(context.Background(), user))
	msg, _ := notifier.last()
	raw := extractCode(t, msg, "forgot-password-confirmation/")

	_, err = codes.FinalizePasswordForgot(context.Background(), raw, "current-password-1")
	assert.ErrorIs(t, err, credentials.ErrSamePassword)

	// the rejection did not consume the code; a different password works
	reset, err := codes.FinalizePasswordForgot(context.Background(), raw, "different-password-2")
	require.NoError(t, err)
	assert.NoError(t, credentials.ComparePasswordAndHash("different-password-2", reset.PasswordHash))
}
