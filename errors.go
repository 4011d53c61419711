package credentials

import "github.com/goliatone/go-errors"

const (
	TextCodeEmailRegistered    = "credentials_email_registered"
	TextCodeEmailUnverified    = "credentials_email_unverified"
	TextCodeInvalidCredentials = "credentials_invalid_credentials"
	TextCodeSessionNotFound    = "credentials_session_not_found"
	TextCodeSessionExpired     = "credentials_session_expired"
	TextCodeCodeInvalid        = "credentials_code_invalid"
	TextCodeSamePassword       = "credentials_same_password"
	TextCodeVersionConflict    = "credentials_version_conflict"
)

// ErrEmailRegistered is returned when a registration reuses a known email.
var ErrEmailRegistered = errors.New("email address is already registered", errors.CategoryConflict).
	WithTextCode(TextCodeEmailRegistered).
	WithCode(errors.CodeConflict)

// ErrEmailUnverified blocks login until the account email is verified.
var ErrEmailUnverified = errors.New("email address has not been verified", errors.CategoryAuth).
	WithTextCode(TextCodeEmailUnverified).
	WithCode(errors.CodeForbidden)

// ErrInvalidCredentials is the generic login failure. We never tell the
// caller whether the email or the password was wrong.
var ErrInvalidCredentials = errors.New("wrong email or password", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrSessionNotFound is returned when no stored session matches the token
// digest. Distinguishable from ErrSessionExpired for logging only; both map
// to the same user-facing failure.
var ErrSessionNotFound = errors.New("session token does not exist", errors.CategoryAuth).
	WithTextCode(TextCodeSessionNotFound).
	WithCode(errors.CodeUnauthorized)

// ErrSessionExpired is returned when a stored session matches the digest but
// its expiry has passed.
var ErrSessionExpired = errors.New("session has expired", errors.CategoryAuth).
	WithTextCode(TextCodeSessionExpired).
	WithCode(errors.CodeUnauthorized)

// ErrCodeInvalid covers every confirmation code failure: unknown digest and
// expired code alike. Keeping them indistinguishable avoids leaking which
// codes ever existed.
var ErrCodeInvalid = errors.New("confirmation code is not valid", errors.CategoryAuth).
	WithTextCode(TextCodeCodeInvalid).
	WithCode(errors.CodeUnauthorized)

// ErrSamePassword rejects a forgot-password submission that matches the
// current password. The confirmation code is not consumed.
var ErrSamePassword = errors.New("new password can not be the same as the old one", errors.CategoryValidation).
	WithTextCode(TextCodeSamePassword).
	WithCode(errors.CodeBadRequest)

// ErrVersionConflict signals that the aggregate was modified by a concurrent
// writer between read and save. Callers retry the whole read-mutate-save
// cycle.
var ErrVersionConflict = errors.New("user aggregate version conflict", errors.CategoryConflict).
	WithTextCode(TextCodeVersionConflict).
	WithCode(errors.CodeConflict)

// ErrNoEmptyString rejects empty password or token material.
var ErrNoEmptyString = errors.New("value should not be an empty string", errors.CategoryBadInput).
	WithCode(errors.CodeBadRequest)

// ErrMismatchedHashAndPassword wraps the bcrypt mismatch failure.
var ErrMismatchedHashAndPassword = errors.New("password does not match", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized)

// IsVersionConflict reports whether err is the optimistic concurrency
// failure, including clones carrying metadata.
func IsVersionConflict(err error) bool {
	return hasTextCode(err, TextCodeVersionConflict)
}

// IsEmailRegistered reports whether err is the duplicate registration
// conflict.
func IsEmailRegistered(err error) bool {
	return hasTextCode(err, TextCodeEmailRegistered)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var rich *errors.Error
	if errors.As(err, &rich) {
		return rich.TextCode == code
	}
	return false
}
