package push

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryRegistry is an in-memory Registry.
// Suitable for development and testing.
type MemoryRegistry struct {
	mu   sync.RWMutex
	subs map[Key]Subscription
	now  func() time.Time
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		subs: make(map[Key]Subscription),
		now:  time.Now,
	}
}

func (r *MemoryRegistry) Upsert(ctx context.Context, identity string, channel Channel, cred Credential) error {
	identity, cred, err := ValidateRegistration(identity, channel, cred)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := Key{Identity: identity, Channel: channel}
	now := r.now().UTC()
	sub, exists := r.subs[key]
	if !exists {
		sub = Subscription{Identity: identity, Channel: channel, CreatedAt: now}
	}
	sub.Credential = cred
	sub.UpdatedAt = now
	r.subs[key] = sub
	return nil
}

func (r *MemoryRegistry) Resolve(ctx context.Context, target string) ([]Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target = strings.TrimSpace(target)

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		if target != "" && sub.Identity != target {
			continue
		}
		out = append(out, sub)
	}

	// Map iteration order is random; keep results stable for callers and logs.
	slices.SortFunc(out, func(a, b Subscription) int {
		return cmp.Or(
			strings.Compare(a.Identity, b.Identity),
			strings.Compare(string(a.Channel), string(b.Channel)),
		)
	})
	return out, nil
}

func (r *MemoryRegistry) Remove(ctx context.Context, identity string, channel Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.subs, Key{Identity: strings.TrimSpace(identity), Channel: channel})
	return nil
}

func (r *MemoryRegistry) PruneInvalid(ctx context.Context, keys []Key) error {
	if len(keys) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, k := range keys {
		delete(r.subs, k)
	}
	return nil
}

// Len returns the number of stored subscriptions.
func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}
