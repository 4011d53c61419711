package credentials

import (
	"context"
	"net/http"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"

	"github.com/goliatone/go-credentials/middleware/csrf"
	"github.com/goliatone/go-credentials/middleware/sessionware"
)

// LoginPayload is the contract HTTP handlers use to pass credentials in.
type LoginPayload interface {
	GetEmail() string
	GetPassword() string
}

// RouteAuthenticator glues the Auther to go-router: session cookies,
// protected-route middleware, CSRF protection, and redirect handling.
type RouteAuthenticator struct {
	auth             *Auther
	csrf             *CSRFManager
	cfg              Config
	cookieDuration   time.Duration
	Logger           Logger
	AuthErrorHandler func(c router.Context, err error) error
	ErrorHandler     func(c router.Context, err error) error
}

func NewHTTPAuthenticator(auther *Auther, csrfManager *CSRFManager, cfg Config) (*RouteAuthenticator, error) {
	a := &RouteAuthenticator{
		cfg:            cfg,
		auth:           auther,
		csrf:           csrfManager,
		Logger:         defLogger{},
		cookieDuration: cfg.GetSessionDuration(),
	}

	a.ErrorHandler = a.defaultErrHandler
	a.AuthErrorHandler = a.defaultAuthErrHandler

	return a, nil
}

func (a RouteAuthenticator) GetCookieDuration() time.Duration {
	return a.cookieDuration
}

// SessionVerifier adapts the Auther to the session middleware contract.
func (a *RouteAuthenticator) SessionVerifier() sessionware.Verifier {
	return sessionware.VerifierFunc(func(ctx context.Context, rawToken string) (sessionware.SessionUser, error) {
		user, err := a.auth.VerifySession(ctx, rawToken)
		if err != nil {
			return nil, err
		}
		return user, nil
	})
}

// CSRFProvider adapts the CSRFManager to the csrf middleware contract.
func (a *RouteAuthenticator) CSRFProvider(store UserStore) csrf.Provider {
	return &csrfProvider{store: store, csrf: a.csrf}
}

// ProtectedRoute returns middleware that rejects requests without a live
// session and stores the verified user under the configured context key.
func (a *RouteAuthenticator) ProtectedRoute(errorHandler func(router.Context, error) error) router.MiddlewareFunc {
	return sessionware.New(sessionware.Config{
		ErrorHandler: errorHandler,
		Verifier:     a.SessionVerifier(),
		TokenLookup:  "cookie:" + a.cfg.GetCookieName(),
	})
}

// Login authenticates the payload and sets the session cookie.
func (a *RouteAuthenticator) Login(ctx router.Context, payload LoginPayload) error {
	token, _, err := a.auth.Login(ctx.Context(), payload.GetEmail(), payload.GetPassword(), SessionContextFromRouter(ctx))
	if err != nil {
		a.Logger.Error("Login error: %s", err)
		return err
	}

	a.setCookieToken(ctx, token, a.cookieDuration)
	return nil
}

// Logout revokes the session behind the cookie and clears it. A missing or
// already dead session still clears the cookie.
func (a *RouteAuthenticator) Logout(ctx router.Context) {
	raw := ctx.Cookies(a.cfg.GetCookieName())
	if raw != "" {
		if user, err := a.auth.VerifySession(ctx.Context(), raw); err == nil {
			if err := a.auth.Logout(ctx.Context(), user, raw); err != nil {
				a.Logger.Error("Logout error: %s", err)
			}
		}
	}
	a.cookieDel(ctx, a.cfg.GetCookieName())
}

func (a *RouteAuthenticator) MakeClientRouteAuthErrorHandler(optional bool) func(router.Context, error) error {
	return func(ctx router.Context, err error) error {
		var richErr *goerrors.Error
		if !goerrors.As(err, &richErr) {
			richErr = goerrors.Wrap(err, goerrors.CategoryAuth, "Invalid session").
				WithCode(goerrors.CodeUnauthorized)
		}

		if optional {
			a.Logger.Info("Optional auth failed, proceeding", "error", richErr.Message)
			return ctx.Next()
		}

		return a.ErrorHandler(ctx, richErr)
	}
}

func (a *RouteAuthenticator) GetRedirect(ctx router.Context, def ...string) string {
	rejectedRoute := a.cfg.GetRejectedRouteKey()
	r := ctx.Cookies(rejectedRoute)
	if r == "" {
		if len(def) == 0 {
			return a.cfg.GetRejectedRouteDefault()
		}
		return def[0]
	}
	a.cookieDel(ctx, rejectedRoute)
	return r
}

func (a *RouteAuthenticator) GetRedirectOrDefault(ctx router.Context) string {
	rejectedRoute := a.cfg.GetRejectedRouteKey()
	refererHeader := string(ctx.Referer())

	r := ctx.Cookies(rejectedRoute, refererHeader)
	if r == "" {
		r = a.cfg.GetRejectedRouteDefault()
	}
	a.cookieDel(ctx, rejectedRoute)
	return r
}

func (a *RouteAuthenticator) SetRedirect(ctx router.Context) {
	rejectedRoute := a.cfg.GetRejectedRouteKey()

	a.Logger.Info("Setting redirect cookie", "key", rejectedRoute, "path", ctx.OriginalURL())

	ctx.Cookie(&router.Cookie{
		Name:     rejectedRoute,
		Value:    ctx.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

// SessionContextFromRouter captures request metadata for session bookkeeping.
func SessionContextFromRouter(ctx router.Context) SessionContext {
	return SessionContext{
		IP:        ctx.IP(),
		UserAgent: ctx.GetString("User-Agent", ""),
		Country:   ctx.GetString("X-Country", ""),
	}
}

func (a *RouteAuthenticator) setCookieToken(c router.Context, val string, duration time.Duration) {
	c.Cookie(&router.Cookie{
		Name:     a.cfg.GetCookieName(),
		Value:    val,
		Expires:  time.Now().Add(duration),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *RouteAuthenticator) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *RouteAuthenticator) defaultAuthErrHandler(c router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryAuth, "An unexpected authentication error").
			WithCode(goerrors.CodeUnauthorized)
	}

	a.Logger.Info(
		"Authentication error, redirecting to login",
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"path", c.OriginalURL(),
	)

	a.SetRedirect(c)

	statusCode := http.StatusSeeOther
	if c.Method() == string(router.GET) {
		statusCode = http.StatusFound
	}
	return c.Redirect("/login", statusCode)
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	a.Logger.Info(
		"Middleware error handler",
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	switch richErr.Category {
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return a.AuthErrorHandler(c, richErr)
	default:
		return c.Status(richErr.Code).Render("errors/500", router.ViewContext{
			"error": richErr,
		})
	}
}

// csrfProvider resolves the user id back to the aggregate and delegates to
// the core CSRF manager.
type csrfProvider struct {
	store UserStore
	csrf  *CSRFManager
}

func (p *csrfProvider) Issue(ctx context.Context, userID string) (string, error) {
	user, err := p.findUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return p.csrf.Issue(ctx, user)
}

func (p *csrfProvider) Validate(ctx context.Context, userID string, token string) (bool, error) {
	user, err := p.findUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return p.csrf.Validate(ctx, user, token)
}

func (p *csrfProvider) findUser(ctx context.Context, userID string) (*User, error) {
	id, err := ParseUUID(userID)
	if err != nil {
		return nil, err
	}
	return p.store.FindByID(ctx, id)
}
