package push

import "context"

// Registry is the durable store of subscriptions keyed by (identity, channel).
type Registry interface {
	// Upsert creates or replaces the subscription for (identity, channel).
	// Invalid input fails with ErrValidation and leaves the registry untouched.
	Upsert(ctx context.Context, identity string, channel Channel, cred Credential) error

	// Resolve returns the subscriptions of target, or every subscription when
	// target is empty. An unknown identity yields an empty slice and nil error.
	Resolve(ctx context.Context, target string) ([]Subscription, error)

	// Remove deletes the subscription for (identity, channel). Removing an
	// absent subscription is not an error.
	Remove(ctx context.Context, identity string, channel Channel) error

	// PruneInvalid deletes every listed subscription in one batch.
	PruneInvalid(ctx context.Context, keys []Key) error
}

// DedupKeys drops repeated keys while preserving order.
func DedupKeys(keys []Key) []Key {
	if len(keys) < 2 {
		return keys
	}
	seen := make(map[Key]struct{}, len(keys))
	out := make([]Key, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
