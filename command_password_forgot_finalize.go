package credentials

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

type InspectPasswordForgotMessage struct {
	Code       string `json:"code"`
	OnResponse func(a *InspectPasswordForgotResponse)
}

func (e InspectPasswordForgotMessage) Type() string { return "user.password.forgot.inspect" }

type InspectPasswordForgotResponse struct {
	Valid bool   `json:"valid"`
	Email string `json:"email,omitempty"`
}

// InspectPasswordForgotHandler checks a reset code without consuming it so
// the new-password form can be shown first. The code stays live until the
// finalize step succeeds.
type InspectPasswordForgotHandler struct {
	codes *CodeManager
}

func NewInspectPasswordForgotHandler(codes *CodeManager) *InspectPasswordForgotHandler {
	return &InspectPasswordForgotHandler{codes: codes}
}

func (h *InspectPasswordForgotHandler) Execute(ctx context.Context, event InspectPasswordForgotMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during forgot password inspection")
	default:
		return h.execute(ctx, event)
	}
}

func (h *InspectPasswordForgotHandler) execute(ctx context.Context, event InspectPasswordForgotMessage) error {
	resp := &InspectPasswordForgotResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.codes.InspectPasswordForgot(ctx, event.Code)
	if err == nil {
		resp.Valid = true
		resp.Email = user.Email
	} else if !hasTextCode(err, TextCodeCodeInvalid) {
		return err
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

type FinalizePasswordForgotMessage struct {
	Code       string `json:"code"`
	Password   string `json:"password"`
	OnResponse func(u *User)
}

func (e FinalizePasswordForgotMessage) Type() string { return "user.password.forgot.finalize" }

func (e FinalizePasswordForgotMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Code, validation.Required),
		validation.Field(&e.Password, validation.Required, validation.Length(10, 100)),
	)
}

// FinalizePasswordForgotHandler consumes the reset code and installs the
// replacement password. A replacement equal to the current password fails
// with ErrSamePassword and leaves the code live for another attempt.
type FinalizePasswordForgotHandler struct {
	codes    *CodeManager
	activity ActivitySink
	logger   Logger
}

func NewFinalizePasswordForgotHandler(codes *CodeManager) *FinalizePasswordForgotHandler {
	return &FinalizePasswordForgotHandler{
		codes:    codes,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *FinalizePasswordForgotHandler) WithActivitySink(sink ActivitySink) *FinalizePasswordForgotHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *FinalizePasswordForgotHandler) WithLogger(logger Logger) *FinalizePasswordForgotHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *FinalizePasswordForgotHandler) Execute(ctx context.Context, event FinalizePasswordForgotMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during forgot password finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordForgotHandler) execute(ctx context.Context, event FinalizePasswordForgotMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid forgot password payload")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.codes.FinalizePasswordForgot(ctx, event.Code, event.Password)
	if err != nil {
		return err
	}

	h.recordActivity(ctx, user)

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}

func (h *FinalizePasswordForgotHandler) recordActivity(ctx context.Context, user *User) {
	event := ActivityEvent{
		EventType: ActivityEventPasswordResetSuccess,
		Actor: ActorRef{
			ID:   user.GetID(),
			Type: "user",
		},
		UserID:     user.GetID(),
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during password reset: %v", err)
	}
}
