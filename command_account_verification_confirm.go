package credentials

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

type ConfirmVerificationMessage struct {
	Code       string `json:"code"`
	OnResponse func(u *User)
}

func (e ConfirmVerificationMessage) Type() string { return "user.verification.confirm" }

func (e ConfirmVerificationMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Code, validation.Required),
	)
}

// ConfirmVerificationHandler consumes the emailed verification code and
// unlocks login for the account.
type ConfirmVerificationHandler struct {
	codes    *CodeManager
	activity ActivitySink
	logger   Logger
}

func NewConfirmVerificationHandler(codes *CodeManager) *ConfirmVerificationHandler {
	return &ConfirmVerificationHandler{
		codes:    codes,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *ConfirmVerificationHandler) WithActivitySink(sink ActivitySink) *ConfirmVerificationHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *ConfirmVerificationHandler) WithLogger(logger Logger) *ConfirmVerificationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ConfirmVerificationHandler) Execute(ctx context.Context, event ConfirmVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during verification confirm")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConfirmVerificationHandler) execute(ctx context.Context, event ConfirmVerificationMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid verification confirm payload")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.codes.ConfirmVerification(ctx, event.Code)
	if err != nil {
		return err
	}

	h.recordActivity(ctx, user)

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}

func (h *ConfirmVerificationHandler) recordActivity(ctx context.Context, user *User) {
	event := ActivityEvent{
		EventType: ActivityEventEmailVerified,
		Actor: ActorRef{
			ID:   user.GetID(),
			Type: "user",
		},
		UserID:     user.GetID(),
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during email verification: %v", err)
	}
}
