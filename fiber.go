package credentials

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// Fiber glue for applications mounting the credential flows on a raw
// fiber.App instead of go-router.

// SessionTokenFromFiber reads the raw session token from the request cookie.
func SessionTokenFromFiber(c *fiber.Ctx, cookieName string) string {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return c.Cookies(cookieName)
}

// CurrentUserFromFiber returns the user a session middleware stored in
// Locals, or nil when the request is anonymous.
func CurrentUserFromFiber(c *fiber.Ctx, contextKey string) *User {
	if contextKey == "" {
		contextKey = "user"
	}
	if user, ok := c.Locals(contextKey).(*User); ok {
		return user
	}
	return nil
}

// SetFiberSessionCookie writes the session cookie after a login.
func SetFiberSessionCookie(c *fiber.Ctx, cfg Config, rawToken string) {
	c.Cookie(&fiber.Cookie{
		Name:     cfg.GetCookieName(),
		Value:    rawToken,
		Expires:  time.Now().Add(cfg.GetSessionDuration()),
		HTTPOnly: true,
		Secure:   true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// ClearFiberSessionCookie expires the session cookie after a logout.
func ClearFiberSessionCookie(c *fiber.Ctx, cfg Config) {
	c.Cookie(&fiber.Cookie{
		Name:     cfg.GetCookieName(),
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// SessionContextFromFiber captures request metadata for session bookkeeping.
func SessionContextFromFiber(c *fiber.Ctx) SessionContext {
	return SessionContext{
		IP:        c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
		Country:   c.Get("X-Country"),
	}
}
