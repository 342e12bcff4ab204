package pushstore

import (
	"fmt"

	"github.com/dmitrymomot/pushkit/pkg/push"
)

// storeError marks a storage failure so callers can match push.ErrRegistryUnavailable.
func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", push.ErrRegistryUnavailable, op, err)
}
