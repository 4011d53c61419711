package credentials

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

type InitializePasswordForgotMessage struct {
	Email string `json:"email"`
}

func (e InitializePasswordForgotMessage) Type() string { return "user.password.forgot.initialize" }

func (e InitializePasswordForgotMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
	)
}

// InitializePasswordForgotHandler starts the reset flow for a user who
// cannot log in. An unknown email succeeds silently so the endpoint cannot
// be used to enumerate accounts.
type InitializePasswordForgotHandler struct {
	store  UserStore
	codes  *CodeManager
	logger Logger
}

func NewInitializePasswordForgotHandler(store UserStore, codes *CodeManager) *InitializePasswordForgotHandler {
	return &InitializePasswordForgotHandler{
		store:  store,
		codes:  codes,
		logger: defLogger{},
	}
}

func (h *InitializePasswordForgotHandler) WithLogger(logger Logger) *InitializePasswordForgotHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordForgotHandler) Execute(ctx context.Context, event InitializePasswordForgotMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during forgot password initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordForgotHandler) execute(ctx context.Context, event InitializePasswordForgotMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid forgot password payload")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.store.FindByEmail(ctx, event.Email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			h.logger.Debug("forgot password requested for unknown email")
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user")
	}

	return h.codes.IssuePasswordForgot(ctx, user)
}
