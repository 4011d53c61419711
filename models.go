package credentials

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CodeKind identifies which one-time code family a digest belongs to.
type CodeKind = string

const (
	// CodeVerification is the email verification code issued at registration.
	CodeVerification CodeKind = "verification"
	// CodePasswordChange confirms a password change requested while logged in.
	CodePasswordChange CodeKind = "password_change"
	// CodePasswordForgot confirms a forgotten-password reset.
	CodePasswordForgot CodeKind = "password_forgot"
)

// Session is a login session embedded in the User aggregate. The request
// context fields are informational only, they play no part in validation.
type Session struct {
	TokenHash string    `json:"token_hash"`
	IP        string    `json:"ip,omitempty"`
	Platform  string    `json:"platform,omitempty"`
	Browser   string    `json:"browser,omitempty"`
	Country   string    `json:"country,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session expiry has passed.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// CSRFToken is a short-lived single-use token embedded in the User
// aggregate. The value is stored in the clear: it is only ever compared
// against entries of the owner's private bounded list, never looked up in a
// shared index.
type CSRFToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the token expiry has passed.
func (t CSRFToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// User is the aggregate root. Sessions, CSRF tokens, and pending one-time
// codes are persisted and mutated as one unit; Version backs the optimistic
// concurrency check on every save.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID           uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email        string    `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash string    `bun:"password_hash" json:"password_hash,omitempty"`

	Verified                  bool       `bun:"verified" json:"verified"`
	VerificationCode          string     `bun:"verification_code" json:"verification_code,omitempty"`
	VerificationCodeExpiresAt *time.Time `bun:"verification_code_expires_at,nullzero" json:"verification_code_expires_at,omitempty"`

	PasswordChangeCode          string     `bun:"password_change_code" json:"password_change_code,omitempty"`
	PasswordChangeCodeExpiresAt *time.Time `bun:"password_change_code_expires_at,nullzero" json:"password_change_code_expires_at,omitempty"`
	NewPasswordHash             string     `bun:"new_password_hash" json:"new_password_hash,omitempty"`

	PasswordForgotCode          string     `bun:"password_forgot_code" json:"password_forgot_code,omitempty"`
	PasswordForgotCodeExpiresAt *time.Time `bun:"password_forgot_code_expires_at,nullzero" json:"password_forgot_code_expires_at,omitempty"`

	Sessions   []Session   `bun:"sessions,type:jsonb" json:"sessions,omitempty"`
	CSRFTokens []CSRFToken `bun:"csrf_tokens,type:jsonb" json:"csrf_tokens,omitempty"`

	Version   int64      `bun:"version,notnull,default:1" json:"version,omitempty"`
	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// GetID implements the identity contract used by middleware packages.
func (u *User) GetID() string {
	return u.ID.String()
}

// GetEmail implements the identity contract used by middleware packages.
func (u *User) GetEmail() string {
	return u.Email
}

// HasPendingVerification reports whether the account still has an
// unconsumed email verification code. Login is blocked while pending.
func (u *User) HasPendingVerification() bool {
	return u.VerificationCode != ""
}

// AddSession prepends a session, most recent first.
func (u *User) AddSession(s Session) {
	u.Sessions = append([]Session{s}, u.Sessions...)
}

// PruneExpiredSessions drops every session whose expiry has passed.
func (u *User) PruneExpiredSessions(now time.Time) {
	u.Sessions = slices.DeleteFunc(u.Sessions, func(s Session) bool {
		return s.Expired(now)
	})
}

// SessionByDigest returns the stored session matching the digest.
func (u *User) SessionByDigest(digest string) (Session, bool) {
	for _, s := range u.Sessions {
		if s.TokenHash == digest {
			return s, true
		}
	}
	return Session{}, false
}

// RemoveSession drops the single session matching the digest. Removing an
// absent digest is a no-op, not an error.
func (u *User) RemoveSession(digest string) bool {
	before := len(u.Sessions)
	u.Sessions = slices.DeleteFunc(u.Sessions, func(s Session) bool {
		return s.TokenHash == digest
	})
	return len(u.Sessions) != before
}

// ClearSessions revokes every session, used on password changes.
func (u *User) ClearSessions() {
	u.Sessions = nil
}

// LiveCSRFTokens returns the tokens whose expiry has not passed.
func (u *User) LiveCSRFTokens(now time.Time) []CSRFToken {
	live := make([]CSRFToken, 0, len(u.CSRFTokens))
	for _, t := range u.CSRFTokens {
		if !t.Expired(now) {
			live = append(live, t)
		}
	}
	return live
}

// CodeDigest returns the stored digest for the given code kind.
func (u *User) CodeDigest(kind CodeKind) string {
	switch kind {
	case CodeVerification:
		return u.VerificationCode
	case CodePasswordChange:
		return u.PasswordChangeCode
	case CodePasswordForgot:
		return u.PasswordForgotCode
	}
	return ""
}

// CodeExpiresAt returns the stored expiry for the given code kind.
func (u *User) CodeExpiresAt(kind CodeKind) *time.Time {
	switch kind {
	case CodeVerification:
		return u.VerificationCodeExpiresAt
	case CodePasswordChange:
		return u.PasswordChangeCodeExpiresAt
	case CodePasswordForgot:
		return u.PasswordForgotCodeExpiresAt
	}
	return nil
}

// SetCode stages a pending one-time code, overwriting any prior request of
// the same kind. At most one request per kind is live at a time.
func (u *User) SetCode(kind CodeKind, digest string, expiresAt time.Time) {
	switch kind {
	case CodeVerification:
		u.VerificationCode = digest
		u.VerificationCodeExpiresAt = &expiresAt
	case CodePasswordChange:
		u.PasswordChangeCode = digest
		u.PasswordChangeCodeExpiresAt = &expiresAt
	case CodePasswordForgot:
		u.PasswordForgotCode = digest
		u.PasswordForgotCodeExpiresAt = &expiresAt
	}
}

// ClearCode marks a one-time code consumed: the digest is emptied and the
// expiry reset to the zero value.
func (u *User) ClearCode(kind CodeKind) {
	switch kind {
	case CodeVerification:
		u.VerificationCode = ""
		u.VerificationCodeExpiresAt = nil
	case CodePasswordChange:
		u.PasswordChangeCode = ""
		u.PasswordChangeCodeExpiresAt = nil
	case CodePasswordForgot:
		u.PasswordForgotCode = ""
		u.PasswordForgotCodeExpiresAt = nil
	}
}

// CodeValid reports whether the given kind has a live, unconsumed code whose
// expiry has not passed. Callers cannot tell an expired code apart from a
// missing one.
func (u *User) CodeValid(kind CodeKind, digest string, now time.Time) bool {
	stored := u.CodeDigest(kind)
	if stored == "" || !SecureCompare(stored, digest) {
		return false
	}
	exp := u.CodeExpiresAt(kind)
	return exp != nil && exp.After(now)
}

// DigestRef is one row of the digest→user secondary index.
type DigestRef struct {
	Kind   CodeKind
	Digest string
}

// DigestRefs enumerates every digest the aggregate currently owns. The
// store adapter keeps the user_digests index in sync with this set on every
// save.
func (u *User) DigestRefs() []DigestRef {
	refs := make([]DigestRef, 0, len(u.Sessions)+3)
	for _, s := range u.Sessions {
		refs = append(refs, DigestRef{Kind: digestKindSession, Digest: s.TokenHash})
	}
	for _, kind := range []CodeKind{CodeVerification, CodePasswordChange, CodePasswordForgot} {
		if d := u.CodeDigest(kind); d != "" {
			refs = append(refs, DigestRef{Kind: kind, Digest: d})
		}
	}
	return refs
}
