package credentials

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// CSRFManager maintains the bounded per-user pool of single-use CSRF
// tokens. Tokens live in the aggregate itself, so validation never touches
// the digest index.
type CSRFManager struct {
	store  UserStore
	config Config
	logger Logger
}

func NewCSRFManager(store UserStore, cfg Config) *CSRFManager {
	return &CSRFManager{
		store:  store,
		config: cfg,
		logger: defLogger{},
	}
}

func (m *CSRFManager) WithLogger(logger Logger) *CSRFManager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// Issue mints a token for the user. Expired tokens are dropped first; if the
// pool is still at capacity the token closest to expiry is evicted to make
// room, so an attacker flooding the form can never grow the list unbounded.
func (m *CSRFManager) Issue(ctx context.Context, user *User) (string, error) {
	token, err := GenerateToken()
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate csrf token")
	}

	err = mutateAggregate(ctx, m.store, user, func(u *User) error {
		now := time.Now()
		live := u.LiveCSRFTokens(now)
		for len(live) >= m.config.GetCSRFPoolSize() {
			live = evictOldestCSRF(live)
		}
		u.CSRFTokens = append(live, CSRFToken{
			Token:     token,
			ExpiresAt: now.Add(m.config.GetCSRFDuration()),
		})
		return nil
	})
	if err != nil {
		return "", err
	}

	return token, nil
}

// Validate consumes the token if it is live. Each token passes at most once;
// the aggregate is only written back when a match was actually removed, so a
// flood of garbage tokens costs no writes.
func (m *CSRFManager) Validate(ctx context.Context, user *User, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	matched := false
	err := mutateAggregate(ctx, m.store, user, func(u *User) error {
		matched = false
		now := time.Now()
		kept := make([]CSRFToken, 0, len(u.CSRFTokens))
		for _, t := range u.CSRFTokens {
			if t.Expired(now) {
				continue
			}
			if !matched && SecureCompare(t.Token, token) {
				matched = true
				continue
			}
			kept = append(kept, t)
		}
		if !matched {
			return errNoChange
		}
		u.CSRFTokens = kept
		return nil
	})
	if err != nil {
		return false, err
	}

	return matched, nil
}

func evictOldestCSRF(tokens []CSRFToken) []CSRFToken {
	if len(tokens) == 0 {
		return tokens
	}
	oldest := 0
	for i, t := range tokens {
		if t.ExpiresAt.Before(tokens[oldest].ExpiresAt) {
			oldest = i
		}
	}
	return append(tokens[:oldest], tokens[oldest+1:]...)
}
