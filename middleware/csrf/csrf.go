package csrf

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/goliatone/go-router"
)

var (
	ErrTokenMismatch  = errors.New("CSRF token mismatch")
	ErrTokenMissing   = errors.New("CSRF token missing")
	ErrSessionMissing = errors.New("CSRF protection requires an authenticated session")
)

// TemplateHelperFactory allows template engines to lazily evaluate CSRF helpers per request.
// When configured, CSRFTemplateHelpers will invoke the factory for each helper name and
// fallback value, enabling callers to return closures instead of static strings.
type TemplateHelperFactory func(name string, fallback string) any

var (
	templateHelperFactory   TemplateHelperFactory
	templateHelperFactoryMu sync.RWMutex
)

// SetTemplateHelperFactory registers the factory used to create CSRF template helpers.
// Passing nil resets the behavior to the default static placeholder strings.
func SetTemplateHelperFactory(factory TemplateHelperFactory) {
	templateHelperFactoryMu.Lock()
	defer templateHelperFactoryMu.Unlock()
	templateHelperFactory = factory
}

func getTemplateHelperFactory() TemplateHelperFactory {
	templateHelperFactoryMu.RLock()
	defer templateHelperFactoryMu.RUnlock()
	return templateHelperFactory
}

// DefaultTemplateHelpersKey defines the default context key used when merging CSRF template helpers.
const DefaultTemplateHelpersKey = "template_helpers"

// DefaultContextKey is the default key for storing CSRF tokens in context
const DefaultContextKey = "csrf_token"

// DefaultUserContextKey is the default key where the session middleware
// stores the authenticated user.
const DefaultUserContextKey = "user"

// DefaultFormFieldName is the default name for the CSRF token form field
const DefaultFormFieldName = "_token"

// DefaultHeaderName is the default header name for CSRF tokens
const DefaultHeaderName = "X-CSRF-Token"

// Provider issues and validates single-use tokens against the per-user pool
// without import cycles. This mirrors the CSRFManager surface from the
// credentials package, keyed by user id.
type Provider interface {
	Issue(ctx context.Context, userID string) (string, error)
	Validate(ctx context.Context, userID string, token string) (bool, error)
}

// UserResolver extracts the authenticated user id from the request context.
// The default reads the session middleware's context key.
type UserResolver func(router.Context) string

// Config defines the configuration for CSRF middleware
type Config struct {
	// Skip defines a function to skip middleware
	Skip func(router.Context) bool

	// ContextKey defines the key for storing the token in context
	ContextKey string

	// UserContextKey defines where the session middleware stored the user
	UserContextKey string

	// UserResolver overrides how the user id is derived from the request
	UserResolver UserResolver

	// FormFieldName defines the name of the form field containing the token
	FormFieldName string

	// HeaderName defines the header name for the token
	HeaderName string

	// TokenLookup defines where to look for the token
	// Format: "form:_token,header:X-CSRF-Token"
	TokenLookup string

	// Provider is required; it backs issuing and validation
	Provider Provider

	// ErrorHandler defines the error handler
	ErrorHandler router.ErrorHandler

	// SuccessHandler defines the success handler
	SuccessHandler router.HandlerFunc

	// SafeMethods defines HTTP methods that don't require CSRF protection
	SafeMethods []string

	// DisableTemplateHelpers disables automatic template helper injection when true.
	DisableTemplateHelpers bool
	// TemplateHelpersKey defines the context key used when storing helper maps via LocalsMerge.
	TemplateHelpersKey string
}

// TokenExtractor defines a function to extract token from request
type TokenExtractor func(router.Context) (string, error)

// New creates a new CSRF middleware. Safe methods get a fresh token issued
// into the context for the next form render; unsafe methods must carry a
// live token, which is consumed on first use.
func New(config ...Config) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		cfg := configDefault(config...)

		return func(ctx router.Context) error {
			if cfg.Skip != nil && cfg.Skip(ctx) {
				return ctx.Next()
			}

			userID := cfg.UserResolver(ctx)
			if userID == "" {
				return cfg.ErrorHandler(ctx, ErrSessionMissing)
			}

			method := strings.ToUpper(ctx.Method())
			if !slices.Contains(cfg.SafeMethods, method) {
				received, err := extractToken(ctx, cfg)
				if err != nil {
					return cfg.ErrorHandler(ctx, err)
				}
				if received == "" {
					return cfg.ErrorHandler(ctx, ErrTokenMissing)
				}

				ok, err := cfg.Provider.Validate(ctx.Context(), userID, received)
				if err != nil {
					return cfg.ErrorHandler(ctx, err)
				}
				if !ok {
					return cfg.ErrorHandler(ctx, ErrTokenMismatch)
				}
			}

			token, err := cfg.Provider.Issue(ctx.Context(), userID)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			ctx.Locals(cfg.ContextKey, token)
			ctx.Locals(cfg.ContextKey+"_field", cfg.FormFieldName)
			ctx.Locals(cfg.ContextKey+"_header", cfg.HeaderName)
			if !cfg.DisableTemplateHelpers {
				helpers := CSRFTemplateHelpersWithRouter(ctx, cfg.ContextKey)
				ctx.LocalsMerge(cfg.TemplateHelpersKey, helpers)
			}

			return cfg.SuccessHandler(ctx)
		}
	}
}

func extractToken(ctx router.Context, cfg Config) (string, error) {
	extractors := getExtractors(cfg.TokenLookup, cfg.FormFieldName, cfg.HeaderName)

	for _, extractor := range extractors {
		token, err := extractor(ctx)
		if token != "" && err == nil {
			return token, nil
		}
	}

	return "", nil
}

// getExtractors returns token extractors based on configuration
func getExtractors(tokenLookup, formField, header string) []TokenExtractor {
	var extractors []TokenExtractor

	if tokenLookup == "" {
		// Default extractors
		extractors = append(extractors,
			extractorFromForm(formField),
			extractorFromHeader(header),
		)
		return extractors
	}

	// Parse tokenLookup: "form:_token,header:X-CSRF-Token"
	parts := strings.Split(tokenLookup, ",")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "form:") {
			field := strings.TrimPrefix(part, "form:")
			extractors = append(extractors, extractorFromForm(field))
		} else if strings.HasPrefix(part, "header:") {
			headerName := strings.TrimPrefix(part, "header:")
			extractors = append(extractors, extractorFromHeader(headerName))
		}
	}

	return extractors
}

// extractorFromForm extracts token from form data
func extractorFromForm(fieldName string) TokenExtractor {
	return func(ctx router.Context) (string, error) {
		return ctx.FormValue(fieldName), nil
	}
}

// extractorFromHeader extracts token from request header
func extractorFromHeader(headerName string) TokenExtractor {
	return func(ctx router.Context) (string, error) {
		return ctx.GetString(headerName, ""), nil
	}
}

// configDefault returns a default config
func configDefault(config ...Config) Config {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Provider == nil {
		panic("CREDENTIALS: CSRF middleware configuration: Provider is required.")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}

	if cfg.UserContextKey == "" {
		cfg.UserContextKey = DefaultUserContextKey
	}

	if cfg.FormFieldName == "" {
		cfg.FormFieldName = DefaultFormFieldName
	}

	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultHeaderName
	}

	if cfg.SafeMethods == nil {
		cfg.SafeMethods = []string{"GET", "HEAD", "OPTIONS", "TRACE"}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler(cfg)
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(ctx router.Context) error {
			return ctx.Next()
		}
	}

	if cfg.TemplateHelpersKey == "" {
		cfg.TemplateHelpersKey = DefaultTemplateHelpersKey
	}

	if cfg.UserResolver == nil {
		userKey := cfg.UserContextKey
		cfg.UserResolver = func(ctx router.Context) string {
			value := ctx.Locals(userKey)
			if value == nil {
				return ""
			}
			if user, ok := value.(interface{ GetID() string }); ok {
				return user.GetID()
			}
			if id, ok := value.(string); ok {
				return id
			}
			return ""
		}
	}

	return cfg
}

func defaultErrorHandler(cfg Config) router.ErrorHandler {
	return func(ctx router.Context, err error) error {
		switch err {
		case ErrTokenMissing:
			return ctx.Status(router.StatusBadRequest).SendString("CSRF token missing")
		case ErrTokenMismatch:
			return ctx.Status(router.StatusForbidden).SendString("CSRF token mismatch")
		case ErrSessionMissing:
			return ctx.Status(router.StatusUnauthorized).SendString("CSRF protection requires login")
		default:
			return ctx.Status(router.StatusInternalServerError).SendString("CSRF validation error")
		}
	}
}

// CSRFTemplateHelpers returns template helper functions for CSRF protection
func CSRFTemplateHelpers() map[string]any {
	base := map[string]string{
		"csrf_token":       "",
		"csrf_field":       `<input type="hidden" name="` + DefaultFormFieldName + `" value="">`,
		"csrf_meta":        `<meta name="csrf-token" content="">`,
		"csrf_header_name": DefaultHeaderName,
	}

	result := make(map[string]any, len(base))
	if factory := getTemplateHelperFactory(); factory != nil {
		for key, value := range base {
			result[key] = factory(key, value)
		}
		return result
	}

	for key, value := range base {
		result[key] = value
	}

	return result
}

// CSRFTemplateHelpersWithRouter returns template helpers with access to router context
func CSRFTemplateHelpersWithRouter(ctx router.Context, tokenKey string) map[string]any {
	if tokenKey == "" {
		tokenKey = DefaultContextKey
	}

	token := ""
	if value := ctx.Locals(tokenKey); value != nil {
		if str, ok := value.(string); ok {
			token = str
		}
	}

	fieldName := DefaultFormFieldName
	if raw := ctx.Locals(tokenKey + "_field"); raw != nil {
		if val, ok := raw.(string); ok && val != "" {
			fieldName = val
		}
	}

	headerName := DefaultHeaderName
	if raw := ctx.Locals(tokenKey + "_header"); raw != nil {
		if val, ok := raw.(string); ok && val != "" {
			headerName = val
		}
	}

	return map[string]any{
		"csrf_token":       token,
		"csrf_field":       `<input type="hidden" name="` + fieldName + `" value="` + token + `">`,
		"csrf_meta":        `<meta name="csrf-token" content="` + token + `">`,
		"csrf_header_name": headerName,
	}
}
