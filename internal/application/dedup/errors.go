package dedup

import (
	"errors"

	"github.com/mergedesk/backend/internal/domain/shared"
)

func isNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound)
}
