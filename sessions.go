package credentials

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// SessionManager issues, verifies, prunes, and revokes the opaque session
// tokens embedded in the User aggregate.
type SessionManager struct {
	store  UserStore
	config Config
	logger Logger
}

func NewSessionManager(store UserStore, cfg Config) *SessionManager {
	return &SessionManager{
		store:  store,
		config: cfg,
		logger: defLogger{},
	}
}

func (m *SessionManager) WithLogger(logger Logger) *SessionManager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// Issue creates a new session for the user and returns the raw token, the
// only time it is ever visible. Issuing prunes every expired session from
// the list as a side effect before the full list is persisted.
func (m *SessionManager) Issue(ctx context.Context, user *User, sctx SessionContext) (string, error) {
	raw, err := GenerateToken()
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate session token")
	}
	digest := Digest(raw)

	err = mutateAggregate(ctx, m.store, user, func(u *User) error {
		now := time.Now()
		u.RemoveSession(digest)
		u.PruneExpiredSessions(now)
		u.AddSession(Session{
			TokenHash: digest,
			IP:        sctx.IP,
			Platform:  sctx.Platform,
			Browser:   sctx.Browser,
			Country:   sctx.Country,
			UserAgent: sctx.UserAgent,
			ExpiresAt: now.Add(m.config.GetSessionDuration()),
		})
		return nil
	})
	if err != nil {
		return "", err
	}

	return raw, nil
}

// Verify resolves a raw token to its owning user. A digest with no match
// anywhere fails with ErrSessionNotFound; a match whose expiry has passed
// fails with ErrSessionExpired. The index lookup only proves a digest
// exists somewhere in the user's list, so the expiry is re-checked against
// the exact matched session after the fetch.
func (m *SessionManager) Verify(ctx context.Context, rawToken string) (*User, error) {
	if rawToken == "" {
		return nil, ErrSessionNotFound
	}

	digest := Digest(rawToken)

	user, err := m.store.FindBySessionDigest(ctx, digest)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrSessionNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "session lookup failed")
	}

	session, ok := user.SessionByDigest(digest)
	if !ok {
		// index row outlived the embedded record; treat as unknown
		return nil, ErrSessionNotFound
	}

	if session.Expired(time.Now()) {
		m.logger.Debug("session matched but is expired", "user_id", user.ID.String())
		return nil, ErrSessionExpired
	}

	return user, nil
}

// Revoke removes the single session matching the raw token. Revoking an
// absent token is a no-op, not an error; nothing is persisted in that case.
func (m *SessionManager) Revoke(ctx context.Context, user *User, rawToken string) error {
	digest := Digest(rawToken)

	return mutateAggregate(ctx, m.store, user, func(u *User) error {
		if !u.RemoveSession(digest) {
			return errNoChange
		}
		return nil
	})
}

// RevokeAll clears the whole session list, used after password changes.
func (m *SessionManager) RevokeAll(ctx context.Context, user *User) error {
	return mutateAggregate(ctx, m.store, user, func(u *User) error {
		u.ClearSessions()
		return nil
	})
}
