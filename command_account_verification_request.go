package credentials

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

type AccountVerificationMessage struct {
	Email      string `json:"email"`
	OnResponse func(a *AccountVerificationResponse)
}

func (e AccountVerificationMessage) Type() string { return "user.verification.request" }

func (e AccountVerificationMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
	)
}

type AccountVerificationResponse struct {
	Found   bool `json:"found"`
	Pending bool `json:"pending"`
}

// AccountVerificationHandler re-sends the verification email. The previous
// code is replaced; only the newest link works. An already verified account
// or an unknown email is reported through the response, not as an error, so
// the endpoint cannot be used to discover which emails exist.
type AccountVerificationHandler struct {
	store UserStore
	codes *CodeManager
}

func NewAccountVerificationHandler(store UserStore, codes *CodeManager) *AccountVerificationHandler {
	return &AccountVerificationHandler{store: store, codes: codes}
}

func (h *AccountVerificationHandler) Execute(ctx context.Context, event AccountVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during verification request")
	default:
		return h.execute(ctx, event)
	}
}

func (h *AccountVerificationHandler) execute(ctx context.Context, event AccountVerificationMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid verification request payload")
	}

	resp := &AccountVerificationResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.store.FindByEmail(ctx, event.Email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			if event.OnResponse != nil {
				event.OnResponse(resp)
			}
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve verification request")
	}

	resp.Found = true

	if user.HasPendingVerification() || !user.Verified {
		if err := h.codes.IssueVerification(ctx, user); err != nil {
			return err
		}
		resp.Pending = true
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
