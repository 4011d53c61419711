package credentials_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	credentials "github.com/goliatone/go-credentials"
)

func TestUserSessionHelpers(t *testing.T) {
	now := time.Now()
	user := &credentials.User{}

	live := credentials.Session{TokenHash: "live", ExpiresAt: now.Add(time.Hour)}
	dead := credentials.Session{TokenHash: "dead", ExpiresAt: now.Add(-time.Hour)}

	user.AddSession(dead)
	user.AddSession(live)

	assert.Equal(t, "live", user.Sessions[0].TokenHash, "newest first")

	s, ok := user.SessionByDigest("dead")
	assert.True(t, ok)
	assert.True(t, s.Expired(now))

	user.PruneExpiredSessions(now)
	assert.Len(t, user.Sessions, 1)
	assert.Equal(t, "live", user.Sessions[0].TokenHash)

	assert.False(t, user.RemoveSession("unknown"))
	assert.True(t, user.RemoveSession("live"))
	assert.Empty(t, user.Sessions)
}

func TestUserCodeLifecycle(t *testing.T) {
	now := time.Now()
	user := &credentials.User{}

	kinds := []credentials.CodeKind{
		credentials.CodeVerification,
		credentials.CodePasswordChange,
		credentials.CodePasswordForgot,
	}

	for _, kind := range kinds {
		t.Run(kind, func(t *testing.T) {
			assert.False(t, user.CodeValid(kind, "digest", now), "nothing staged yet")

			user.SetCode(kind, "digest", now.Add(time.Hour))
			assert.True(t, user.CodeValid(kind, "digest", now))
			assert.False(t, user.CodeValid(kind, "other", now), "wrong digest")
			assert.False(t, user.CodeValid(kind, "digest", now.Add(2*time.Hour)), "expired")

			// re-staging replaces the previous code
			user.SetCode(kind, "fresh", now.Add(time.Hour))
			assert.False(t, user.CodeValid(kind, "digest", now))
			assert.True(t, user.CodeValid(kind, "fresh", now))

			user.ClearCode(kind)
			assert.Equal(t, "", user.CodeDigest(kind))
			assert.Nil(t, user.CodeExpiresAt(kind))
			assert.False(t, user.CodeValid(kind, "fresh", now))
		})
	}
}

func TestHasPendingVerification(t *testing.T) {
	user := &credentials.User{}
	assert.False(t, user.HasPendingVerification())

	user.SetCode(credentials.CodeVerification, "digest", time.Now().Add(time.Hour))
	assert.True(t, user.HasPendingVerification())

	user.ClearCode(credentials.CodeVerification)
	assert.False(t, user.HasPendingVerification())
}

func TestDigestRefs(t *testing.T) {
	now := time.Now()
	user := &credentials.User{}

	assert.Empty(t, user.DigestRefs())

	user.AddSession(credentials.Session{TokenHash: "s1", ExpiresAt: now.Add(time.Hour)})
	user.AddSession(credentials.Session{TokenHash: "s2", ExpiresAt: now.Add(time.Hour)})
	user.SetCode(credentials.CodeVerification, "v1", now.Add(time.Hour))
	user.SetCode(credentials.CodePasswordForgot, "f1", now.Add(time.Hour))

	refs := user.DigestRefs()
	assert.Len(t, refs, 4)

	byDigest := map[string]string{}
	for _, ref := range refs {
		byDigest[ref.Digest] = ref.Kind
	}
	assert.Equal(t, "session", byDigest["s1"])
	assert.Equal(t, "session", byDigest["s2"])
	assert.Equal(t, credentials.CodeVerification, byDigest["v1"])
	assert.Equal(t, credentials.CodePasswordForgot, byDigest["f1"])
}

func TestLiveCSRFTokens(t *testing.T) {
	now := time.Now()
	user := &credentials.User{
		CSRFTokens: []credentials.CSRFToken{
			{Token: "live", ExpiresAt: now.Add(time.Hour)},
			{Token: "dead", ExpiresAt: now.Add(-time.Minute)},
		},
	}

	live := user.LiveCSRFTokens(now)
	assert.Len(t, live, 1)
	assert.Equal(t, "live", live[0].Token)
}
