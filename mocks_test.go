package credentials_test

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	credentials "github.com/goliatone/go-credentials"
)

// memStore is an in-memory UserStore with the same optimistic versioning
// semantics as the bun-backed repository.
type memStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*credentials.User

	saveCalls int
	failSave  error
}

func newMemStore() *memStore {
	return &memStore{users: map[uuid.UUID]*credentials.User{}}
}

// notFoundErr mirrors the miss the bun-backed repository produces, so the
// managers see the same error shape with either store behind them.
func notFoundErr() error {
	return repository.NewRecordNotFound()
}

func cloneUser(u *credentials.User) *credentials.User {
	if u == nil {
		return nil
	}
	out := *u
	out.Sessions = append([]credentials.Session(nil), u.Sessions...)
	out.CSRFTokens = append([]credentials.CSRFToken(nil), u.CSRFTokens...)
	return &out
}

// seed stores the user bypassing version checks, assigning defaults.
func (s *memStore) seed(u *credentials.User) *credentials.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Version == 0 {
		u.Version = 1
	}
	u.Email = credentials.NormalizeEmail(u.Email)
	s.users[u.ID] = cloneUser(u)
	return u
}

func (s *memStore) FindByID(_ context.Context, id uuid.UUID) (*credentials.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, notFoundErr()
}

func (s *memStore) FindByEmail(_ context.Context, email string) (*credentials.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = credentials.NormalizeEmail(email)
	for _, u := range s.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, notFoundErr()
}

func (s *memStore) FindBySessionDigest(_ context.Context, digest string) (*credentials.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		for _, ref := range u.DigestRefs() {
			if ref.Kind == "session" && ref.Digest == digest {
				return cloneUser(u), nil
			}
		}
	}
	return nil, notFoundErr()
}

func (s *memStore) FindByCodeDigest(_ context.Context, kind credentials.CodeKind, digest string) (*credentials.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.CodeDigest(kind) == digest && digest != "" {
			return cloneUser(u), nil
		}
	}
	return nil, notFoundErr()
}

func (s *memStore) Register(_ context.Context, user *credentials.User) (*credentials.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := credentials.NormalizeEmail(user.Email)
	for _, u := range s.users {
		if u.Email == email {
			return nil, credentials.ErrEmailRegistered
		}
	}

	user.Email = email
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.Version = 1
	s.users[user.ID] = cloneUser(user)
	return user, nil
}

func (s *memStore) Save(_ context.Context, user *credentials.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.saveCalls++
	if s.failSave != nil {
		err := s.failSave
		s.failSave = nil
		return err
	}

	stored, ok := s.users[user.ID]
	if !ok {
		return notFoundErr()
	}
	if stored.Version != user.Version {
		return credentials.ErrVersionConflict
	}

	user.Version++
	s.users[user.ID] = cloneUser(user)
	return nil
}

func (s *memStore) DeleteExpiredUnverified(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, u := range s.users {
		exp := u.CodeExpiresAt(credentials.CodeVerification)
		if !u.Verified && u.HasPendingVerification() && exp != nil && exp.Before(now) {
			delete(s.users, id)
			removed++
		}
	}
	return removed, nil
}

// get returns the stored copy for assertions.
func (s *memStore) get(id uuid.UUID) *credentials.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneUser(s.users[id])
}

// recordingNotifier captures dispatched notifications.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []credentials.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, msg credentials.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
}

func (n *recordingNotifier) last() (credentials.Notification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return credentials.Notification{}, false
	}
	return n.sent[len(n.sent)-1], true
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// MockActivitySink implements credentials.ActivitySink
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event credentials.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// recordingSink is a lighter sink for flows where we only care about the
// ordered event types.
type recordingSink struct {
	mu     sync.Mutex
	events []credentials.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event credentials.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) types() []credentials.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]credentials.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}
