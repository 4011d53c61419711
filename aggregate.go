package credentials

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

// errNoChange tells mutateAggregate the mutation was a no-op and nothing
// needs to be written.
var errNoChange = errors.New("credentials: aggregate unchanged")

const (
	saveAttempts   = 3
	saveRetryDelay = 25 * time.Millisecond
)

// mutateAggregate applies fn to the aggregate and persists it, retrying the
// whole read-mutate-save cycle when a concurrent writer bumped the version
// first. fn runs against refreshed state on every retry, so it must derive
// its mutation from the aggregate it is handed.
func mutateAggregate(ctx context.Context, store UserStore, user *User, fn func(*User) error) error {
	b := retry.WithMaxRetries(saveAttempts, retry.NewConstant(saveRetryDelay))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		if err := fn(user); err != nil {
			if errors.Is(err, errNoChange) {
				return nil
			}
			return err
		}

		err := store.Save(ctx, user)
		if err == nil {
			return nil
		}
		if !IsVersionConflict(err) {
			return err
		}

		fresh, ferr := store.FindByID(ctx, user.ID)
		if ferr != nil {
			return ferr
		}
		*user = *fresh

		return retry.RetryableError(err)
	})
}
