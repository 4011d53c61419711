package credentials

import (
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// ParseUUID parses a string identifier into a UUID with a categorized error.
func ParseUUID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "malformed uuid").
			WithMetadata(map[string]any{"value": s})
	}
	return id, nil
}
