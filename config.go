package credentials

import "time"

// Config holds the lifecycle policies the managers consult.
type Config interface {
	GetSessionDuration() time.Duration
	GetCodeDuration() time.Duration
	GetCSRFDuration() time.Duration
	GetCSRFPoolSize() int
	GetCookieName() string
	GetBaseURL() string
	GetRejectedRouteKey() string
	GetRejectedRouteDefault() string
}

const (
	// DefaultSessionDuration is the session expiry window.
	DefaultSessionDuration = 30 * 24 * time.Hour
	// DefaultCodeDuration is the expiry for verification, password change,
	// and forgot-password codes.
	DefaultCodeDuration = 24 * time.Hour
	// DefaultCSRFDuration keeps CSRF tokens short-lived, hours not days.
	DefaultCSRFDuration = 3 * time.Hour
	// DefaultCSRFPoolSize bounds the per-user CSRF token list.
	DefaultCSRFPoolSize = 10
	// DefaultCookieName is the session cookie identifier.
	DefaultCookieName = "app-session"
	// DefaultRejectedRouteKey names the cookie holding the route a visitor
	// was bounced from, so login can send them back.
	DefaultRejectedRouteKey = "rejected-route"
	// DefaultRejectedRouteDefault is the post-login landing page when no
	// rejected route was recorded.
	DefaultRejectedRouteDefault = "/"
)

// ConfigOptions is the value implementation of Config. The zero value is
// usable; empty fields fall back to the defaults above.
type ConfigOptions struct {
	SessionDuration      time.Duration
	CodeDuration         time.Duration
	CSRFDuration         time.Duration
	CSRFPoolSize         int
	CookieName           string
	BaseURL              string
	RejectedRouteKey     string
	RejectedRouteDefault string
}

func (c ConfigOptions) GetSessionDuration() time.Duration {
	if c.SessionDuration <= 0 {
		return DefaultSessionDuration
	}
	return c.SessionDuration
}

func (c ConfigOptions) GetCodeDuration() time.Duration {
	if c.CodeDuration <= 0 {
		return DefaultCodeDuration
	}
	return c.CodeDuration
}

func (c ConfigOptions) GetCSRFDuration() time.Duration {
	if c.CSRFDuration <= 0 {
		return DefaultCSRFDuration
	}
	return c.CSRFDuration
}

func (c ConfigOptions) GetCSRFPoolSize() int {
	if c.CSRFPoolSize <= 0 {
		return DefaultCSRFPoolSize
	}
	return c.CSRFPoolSize
}

func (c ConfigOptions) GetCookieName() string {
	if c.CookieName == "" {
		return DefaultCookieName
	}
	return c.CookieName
}

func (c ConfigOptions) GetBaseURL() string {
	return c.BaseURL
}

func (c ConfigOptions) GetRejectedRouteKey() string {
	if c.RejectedRouteKey == "" {
		return DefaultRejectedRouteKey
	}
	return c.RejectedRouteKey
}

func (c ConfigOptions) GetRejectedRouteDefault() string {
	if c.RejectedRouteDefault == "" {
		return DefaultRejectedRouteDefault
	}
	return c.RejectedRouteDefault
}
