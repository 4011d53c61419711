package credentials_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	credentials "github.com/goliatone/go-credentials"
)

func TestRemoveUnverifiedUsersCommand(t *testing.T) {
	store := newMemStore()

	expired := &credentials.User{Email: "expired@example.com"}
	expired.SetCode(credentials.CodeVerification, credentials.Digest("a"), time.Now().Add(-time.Hour))
	store.seed(expired)

	pending := &credentials.User{Email: "pending@example.com"}
	pending.SetCode(credentials.CodeVerification, credentials.Digest("b"), time.Now().Add(time.Hour))
	store.seed(pending)

	store.seed(&credentials.User{Email: "verified@example.com", Verified: true})

	sink := &recordingSink{}
	handler := credentials.NewRemoveUnverifiedUsersHandler(store).WithActivitySink(sink)

	var removed int
	err := handler.Execute(context.Background(), credentials.RemoveUnverifiedUsersMessage{
		OnResponse: func(n int) { removed = n },
	})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.FindByEmail(context.Background(), "expired@example.com")
	assert.Error(t, err)

	_, err = store.FindByEmail(context.Background(), "pending@example.com")
	assert.NoError(t, err)

	_, err = store.FindByEmail(context.Background(), "verified@example.com")
	assert.NoError(t, err)

	assert.Equal(t, []credentials.ActivityEventType{credentials.ActivityEventUnverifiedSweep}, sink.types())
}

func TestRemoveUnverifiedUsersCommandNothingToSweep(t *testing.T) {
	store := newMemStore()
	store.seed(&credentials.User{Email: "verified@example.com", Verified: true})

	handler := credentials.NewRemoveUnverifiedUsersHandler(store)

	removed := -1
	err := handler.Execute(context.Background(), credentials.RemoveUnverifiedUsersMessage{
		OnResponse: func(n int) { removed = n },
	})
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}
