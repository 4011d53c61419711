package credentials

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// Auther is the login/logout surface. It resolves emails to users, checks
// passwords and verification status, and drives the session manager.
type Auther struct {
	store        UserStore
	sessions     *SessionManager
	logger       Logger
	activitySink ActivitySink
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(store UserStore, sessions *SessionManager) *Auther {
	return &Auther{
		store:        store,
		sessions:     sessions,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// Login checks the email/password pair and issues a session, returning the
// raw session token. Unknown email and wrong password both fail with
// ErrInvalidCredentials so callers cannot tell which emails exist; a
// correct pair on an unverified account fails with ErrEmailUnverified.
func (s *Auther) Login(ctx context.Context, email, password string, sctx SessionContext) (string, *User, error) {
	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
				"email": NormalizeEmail(email),
				"error": ErrInvalidCredentials.Error(),
			})
			return "", nil, ErrInvalidCredentials
		}
		s.logger.Error("Login user lookup error", "error", err)
		return "", nil, goerrors.Wrap(err, goerrors.CategoryInternal, "login lookup failed")
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, s.actorFromUser(user), user.GetID(), map[string]any{
			"email": user.Email,
			"error": ErrInvalidCredentials.Error(),
		})
		return "", nil, ErrInvalidCredentials
	}

	if user.HasPendingVerification() {
		s.logger.Warn("Login blocked, email not verified", "user_id", user.GetID())
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, s.actorFromUser(user), user.GetID(), map[string]any{
			"email": user.Email,
			"error": ErrEmailUnverified.Error(),
		})
		return "", nil, ErrEmailUnverified
	}

	token, err := s.sessions.Issue(ctx, user, sctx)
	if err != nil {
		s.logger.Error("Login session issue error", "error", err)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, s.actorFromUser(user), user.GetID(), map[string]any{
			"email": user.Email,
			"error": err.Error(),
		})
		return "", nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, s.actorFromUser(user), user.GetID(), map[string]any{
		"email": user.Email,
	})

	return token, user, nil
}

// Logout revokes the single session behind the raw token.
func (s *Auther) Logout(ctx context.Context, user *User, rawToken string) error {
	if err := s.sessions.Revoke(ctx, user, rawToken); err != nil {
		s.logger.Error("Logout revoke error", "error", err)
		return err
	}

	s.emitAuthEvent(ctx, ActivityEventLogout, s.actorFromUser(user), user.GetID(), nil)

	return nil
}

// LogoutAll revokes every session the user holds.
func (s *Auther) LogoutAll(ctx context.Context, user *User) error {
	if err := s.sessions.RevokeAll(ctx, user); err != nil {
		s.logger.Error("LogoutAll revoke error", "error", err)
		return err
	}

	s.emitAuthEvent(ctx, ActivityEventSessionsRevoked, s.actorFromUser(user), user.GetID(), nil)

	return nil
}

// VerifySession resolves a raw session token to its user.
func (s *Auther) VerifySession(ctx context.Context, rawToken string) (*User, error) {
	return s.sessions.Verify(ctx, rawToken)
}

// Sessions exposes the underlying session manager.
func (s *Auther) Sessions() *SessionManager {
	return s.sessions
}

func (s *Auther) actorFromUser(user *User) ActorRef {
	return ActorRef{ID: user.GetID(), Type: "user"}
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID string, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      actor,
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}

	if err := s.activitySink.Record(ctx, event); err != nil {
		s.logger.Error("activity sink record failed", "event", string(eventType), "error", err)
	}
}
