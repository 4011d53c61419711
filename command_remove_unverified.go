package credentials

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type RemoveUnverifiedUsersMessage struct {
	OnResponse func(removed int)
}

func (e RemoveUnverifiedUsersMessage) Type() string { return "user.unverified.sweep" }

// RemoveUnverifiedUsersHandler deletes accounts whose email verification
// expired before it was confirmed. Intended to run on a schedule; accounts
// with a still-live code are left alone.
type RemoveUnverifiedUsersHandler struct {
	store    UserStore
	activity ActivitySink
	logger   Logger
}

func NewRemoveUnverifiedUsersHandler(store UserStore) *RemoveUnverifiedUsersHandler {
	return &RemoveUnverifiedUsersHandler{
		store:    store,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *RemoveUnverifiedUsersHandler) WithActivitySink(sink ActivitySink) *RemoveUnverifiedUsersHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *RemoveUnverifiedUsersHandler) WithLogger(logger Logger) *RemoveUnverifiedUsersHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RemoveUnverifiedUsersHandler) Execute(ctx context.Context, event RemoveUnverifiedUsersMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during unverified user sweep")
	default:
		return h.execute(ctx, event)
	}
}

func (h *RemoveUnverifiedUsersHandler) execute(ctx context.Context, event RemoveUnverifiedUsersMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*30)
	defer cancel()

	removed, err := h.store.DeleteExpiredUnverified(ctx)
	if err != nil {
		return err
	}

	h.logger.Info("unverified user sweep complete", "removed", removed)
	h.recordActivity(ctx, removed)

	if event.OnResponse != nil {
		event.OnResponse(removed)
	}

	return nil
}

func (h *RemoveUnverifiedUsersHandler) recordActivity(ctx context.Context, removed int) {
	event := ActivityEvent{
		EventType: ActivityEventUnverifiedSweep,
		Actor: ActorRef{
			Type: "system",
		},
		Metadata: map[string]any{
			"removed": removed,
		},
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during unverified sweep: %v", err)
	}
}
