package credentials

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

type InitializePasswordChangeMessage struct {
	UserID      string `json:"user_id"`
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (e InitializePasswordChangeMessage) Type() string { return "user.password.change.initialize" }

func (e InitializePasswordChangeMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.UserID, validation.Required),
		validation.Field(&e.OldPassword, validation.Required),
		validation.Field(&e.NewPassword, validation.Required, validation.Length(10, 100)),
	)
}

// InitializePasswordChangeHandler starts a password change for a logged-in
// user. The current password is re-checked even though the caller already
// holds a session, and the replacement is hashed and staged until the
// emailed code confirms the change.
type InitializePasswordChangeHandler struct {
	store UserStore
	codes *CodeManager
}

func NewInitializePasswordChangeHandler(store UserStore, codes *CodeManager) *InitializePasswordChangeHandler {
	return &InitializePasswordChangeHandler{store: store, codes: codes}
}

func (h *InitializePasswordChangeHandler) Execute(ctx context.Context, event InitializePasswordChangeMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password change initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordChangeHandler) execute(ctx context.Context, event InitializePasswordChangeMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password change payload")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	id, err := ParseUUID(event.UserID)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid user id")
	}

	user, err := h.store.FindByID(ctx, id)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrInvalidCredentials
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user")
	}

	if err := ComparePasswordAndHash(event.OldPassword, user.PasswordHash); err != nil {
		return ErrInvalidCredentials
	}

	return h.codes.IssuePasswordChange(ctx, user, event.NewPassword)
}
