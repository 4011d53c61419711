package credentials

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// Email template identifiers resolved by the notifier.
const (
	TemplateVerificationCode    = "verification_code"
	TemplateVerificationSuccess = "verification_success"
	TemplateChangePasswordCode  = "change_password_code"
	TemplatePasswordChanged     = "password_changed"
)

// CodeManager drives the three one-time code flows: email verification,
// password change, and forgotten password. Codes are single-use, expire
// after the configured window, and only their sha256 digest is ever stored.
type CodeManager struct {
	store    UserStore
	config   Config
	notifier Notifier
	logger   Logger
}

func NewCodeManager(store UserStore, cfg Config) *CodeManager {
	return &CodeManager{
		store:    store,
		config:   cfg,
		notifier: noopNotifier{},
		logger:   defLogger{},
	}
}

func (m *CodeManager) WithNotifier(n Notifier) *CodeManager {
	m.notifier = normalizeNotifier(n)
	return m
}

func (m *CodeManager) WithLogger(logger Logger) *CodeManager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// IssueVerification stages a fresh email verification code on the user and
// emails the confirmation link. Re-issuing overwrites the previous code.
func (m *CodeManager) IssueVerification(ctx context.Context, user *User) error {
	raw, err := m.stageCode(ctx, user, CodeVerification, nil)
	if err != nil {
		return err
	}

	link := m.link("email-verification/" + raw)
	m.notifier.Notify(ctx, Notification{
		Recipient: user.Email,
		Subject:   "Verify e-mail address",
		Template:  TemplateVerificationCode,
		TextBody: "Thank you for registering at our web app! Please verify your e-mail by " +
			"clicking on the link below (you have 24 hours):\n" + link + "\n",
		Params: map[string]any{"email_url": link},
	})

	return nil
}

// ConfirmVerification consumes a raw verification code, marking the account
// verified. Unknown and expired codes fail identically with ErrCodeInvalid.
func (m *CodeManager) ConfirmVerification(ctx context.Context, rawCode string) (*User, error) {
	user, err := m.resolveCode(ctx, CodeVerification, rawCode)
	if err != nil {
		return nil, err
	}

	err = mutateAggregate(ctx, m.store, user, func(u *User) error {
		if !u.CodeValid(CodeVerification, Digest(rawCode), time.Now()) {
			return ErrCodeInvalid
		}
		u.ClearCode(CodeVerification)
		u.Verified = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	link := m.link("")
	m.notifier.Notify(ctx, Notification{
		Recipient: user.Email,
		Subject:   "E-mail address confirmed",
		Template:  TemplateVerificationSuccess,
		TextBody: "Your e-mail has been confirmed! Thank you, you can now login with " +
			"the link below:\n" + link + "\n",
		Params: map[string]any{"email_url": link},
	})

	return user, nil
}

// IssuePasswordChange starts a password change for a logged-in user. The
// replacement password is hashed and staged immediately; it only becomes the
// live credential once the emailed code is confirmed, so the plaintext never
// has to survive past this call.
func (m *CodeManager) IssuePasswordChange(ctx context.Context, user *User, newPassword string) error {
	staged, err := HashPassword(newPassword)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash replacement password")
	}

	raw, err := m.stageCode(ctx, user, CodePasswordChange, func(u *User) {
		u.NewPasswordHash = staged
	})
	if err != nil {
		return err
	}

	link := m.link("change-password-confirmation/" + raw)
	m.notifier.Notify(ctx, Notification{
		Recipient: user.Email,
		Subject:   "Change password confirmation",
		Template:  TemplateChangePasswordCode,
		TextBody: "You have requested to change your password at our app. Confirm this action by " +
			"clicking on the link below (you have 24 hours):\n" + link +
			"\n\n If this was not you, please contact us immediately.",
		Params: map[string]any{"email_url": link},
	})

	return nil
}

// ConfirmPasswordChange consumes the change code, promotes the staged hash
// to the live credential, and revokes every session in the same write.
func (m *CodeManager) ConfirmPasswordChange(ctx context.Context, rawCode string) (*User, error) {
	user, err := m.resolveCode(ctx, CodePasswordChange, rawCode)
	if err != nil {
		return nil, err
	}

	err = mutateAggregate(ctx, m.store, user, func(u *User) error {
		if !u.CodeValid(CodePasswordChange, Digest(rawCode), time.Now()) {
			return ErrCodeInvalid
		}
		u.PasswordHash = u.NewPasswordHash
		u.NewPasswordHash = ""
		u.ClearCode(CodePasswordChange)
		u.ClearSessions()
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.notifyPasswordChanged(ctx, user)

	return user, nil
}

// IssuePasswordForgot starts the reset flow for a user who cannot log in.
// Nothing but the code is staged; the replacement password arrives in the
// finalize step.
func (m *CodeManager) IssuePasswordForgot(ctx context.Context, user *User) error {
	raw, err := m.stageCode(ctx, user, CodePasswordForgot, nil)
	if err != nil {
		return err
	}

	link := m.link("forgot-password-confirmation/" + raw)
	m.notifier.Notify(ctx, Notification{
		Recipient: user.Email,
		Subject:   "Forgot password confirmation",
		Template:  TemplateChangePasswordCode,
		TextBody: "You have requested to change your password at our app. Confirm this action by " +
			"clicking on the link below (you have 24 hours):\n" + link +
			"\n\n If this was not you, please ignore this e-mail.",
		Params: map[string]any{"email_url": link},
	})

	return nil
}

// InspectPasswordForgot checks a reset code without consuming it, so the
// new-password form can be shown before the user commits. The code stays
// live until FinalizePasswordForgot succeeds.
func (m *CodeManager) InspectPasswordForgot(ctx context.Context, rawCode string) (*User, error) {
	return m.resolveCode(ctx, CodePasswordForgot, rawCode)
}

// FinalizePasswordForgot consumes the reset code and installs the new
// password. A replacement identical to the current password fails with
// ErrSamePassword and leaves the code live, so the user can retry with a
// different one without requesting a fresh email.
func (m *CodeManager) FinalizePasswordForgot(ctx context.Context, rawCode, newPassword string) (*User, error) {
	user, err := m.resolveCode(ctx, CodePasswordForgot, rawCode)
	if err != nil {
		return nil, err
	}

	if err := ComparePasswordAndHash(newPassword, user.PasswordHash); err == nil {
		return nil, ErrSamePassword
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash replacement password")
	}

	err = mutateAggregate(ctx, m.store, user, func(u *User) error {
		if !u.CodeValid(CodePasswordForgot, Digest(rawCode), time.Now()) {
			return ErrCodeInvalid
		}
		u.PasswordHash = hash
		u.ClearCode(CodePasswordForgot)
		u.ClearSessions()
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.notifyPasswordChanged(ctx, user)

	return user, nil
}

// stageCode generates a code, stores its digest with a fresh expiry, and
// returns the raw value for the email link. extra runs inside the same
// mutation for flows that stage more than the code itself.
func (m *CodeManager) stageCode(ctx context.Context, user *User, kind CodeKind, extra func(*User)) (string, error) {
	raw, err := GenerateToken()
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate one-time code")
	}
	digest := Digest(raw)

	err = mutateAggregate(ctx, m.store, user, func(u *User) error {
		u.SetCode(kind, digest, time.Now().Add(m.config.GetCodeDuration()))
		if extra != nil {
			extra(u)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return raw, nil
}

// resolveCode maps a raw code to its owning user and validates it in
// memory. The index only proves the digest exists somewhere, so the expiry
// is always re-checked against the matched kind after the fetch.
func (m *CodeManager) resolveCode(ctx context.Context, kind CodeKind, rawCode string) (*User, error) {
	if rawCode == "" {
		return nil, ErrCodeInvalid
	}

	digest := Digest(rawCode)

	user, err := m.store.FindByCodeDigest(ctx, kind, digest)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrCodeInvalid
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "code lookup failed")
	}

	if !user.CodeValid(kind, digest, time.Now()) {
		m.logger.Debug("one-time code matched but is invalid", "kind", kind, "user_id", user.ID.String())
		return nil, ErrCodeInvalid
	}

	return user, nil
}

func (m *CodeManager) notifyPasswordChanged(ctx context.Context, user *User) {
	link := m.link("")
	m.notifier.Notify(ctx, Notification{
		Recipient: user.Email,
		Subject:   "Your password has been changed",
		Template:  TemplatePasswordChanged,
		TextBody: "Your password has been successfully changed! Thank you, you can now login with " +
			"the link below:\n" + link + "\n\n If this was not you, please contact us immediately.",
		Params: map[string]any{"email_url": link},
	})
}

func (m *CodeManager) link(path string) string {
	base := strings.TrimSuffix(m.config.GetBaseURL(), "/")
	if path == "" {
		return base + "/"
	}
	return base + "/" + path
}
