package credentials

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

type FinalizePasswordChangeMessage struct {
	Code       string `json:"code"`
	OnResponse func(u *User)
}

func (e FinalizePasswordChangeMessage) Type() string { return "user.password.change.finalize" }

func (e FinalizePasswordChangeMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Code, validation.Required),
	)
}

// FinalizePasswordChangeHandler consumes the emailed change code, promotes
// the staged password hash, and leaves the account with zero live sessions.
type FinalizePasswordChangeHandler struct {
	codes    *CodeManager
	activity ActivitySink
	logger   Logger
}

func NewFinalizePasswordChangeHandler(codes *CodeManager) *FinalizePasswordChangeHandler {
	return &FinalizePasswordChangeHandler{
		codes:    codes,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *FinalizePasswordChangeHandler) WithActivitySink(sink ActivitySink) *FinalizePasswordChangeHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *FinalizePasswordChangeHandler) WithLogger(logger Logger) *FinalizePasswordChangeHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *FinalizePasswordChangeHandler) Execute(ctx context.Context, event FinalizePasswordChangeMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password change finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordChangeHandler) execute(ctx context.Context, event FinalizePasswordChangeMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password change payload")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.codes.ConfirmPasswordChange(ctx, event.Code)
	if err != nil {
		return err
	}

	h.recordActivity(ctx, user)

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}

func (h *FinalizePasswordChangeHandler) recordActivity(ctx context.Context, user *User) {
	event := ActivityEvent{
		EventType: ActivityEventPasswordChangeSuccess,
		Actor: ActorRef{
			ID:   user.GetID(),
			Type: "user",
		},
		UserID:     user.GetID(),
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during password change: %v", err)
	}
}
