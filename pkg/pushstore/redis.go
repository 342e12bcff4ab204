package pushstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/pushkit/pkg/push"
)

const defaultRedisPrefix = "push"

// Each identity owns one hash. Field <channel> holds the credential JSON;
// <channel>:created and <channel>:updated hold unix nanoseconds.
var (
	redisUpsertScript = redis.NewScript(`
redis.call('HSET', KEYS[1], ARGV[2], ARGV[3], ARGV[2] .. ':updated', ARGV[4])
redis.call('HSETNX', KEYS[1], ARGV[2] .. ':created', ARGV[4])
redis.call('SADD', KEYS[2], ARGV[1])
return 1
`)

	// KEYS[1] is the identity index, KEYS[i+1] the hash of the i-th
	// (identity, channel) pair in ARGV.
	redisPruneScript = redis.NewScript(`
local removed = 0
for i = 2, #KEYS do
  local id = ARGV[(i - 2) * 2 + 1]
  local ch = ARGV[(i - 2) * 2 + 2]
  removed = removed + redis.call('HDEL', KEYS[i], ch, ch .. ':created', ch .. ':updated')
  if redis.call('HLEN', KEYS[i]) == 0 then
    redis.call('SREM', KEYS[1], id)
  end
end
return removed
`)
)

// Redis is a push.Registry stored in Redis.
type Redis struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// RedisOption configures a Redis registry.
type RedisOption func(*Redis)

// WithRedisPrefix sets the key prefix. Defaults to "push".
func WithRedisPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		prefix: defaultRedisPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) hashKey(identity string) string {
	return r.prefix + ":sub:" + identity
}

func (r *Redis) indexKey() string {
	return r.prefix + ":identities"
}

func (r *Redis) Upsert(ctx context.Context, identity string, channel push.Channel, cred push.Credential) error {
	identity, cred, err := push.ValidateRegistration(identity, channel, cred)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}

	err = redisUpsertScript.Run(ctx, r.client,
		[]string{r.hashKey(identity), r.indexKey()},
		identity, string(channel), raw, strconv.FormatInt(r.now().UnixNano(), 10),
	).Err()
	if err != nil {
		return storeError("upsert", err)
	}
	return nil
}

func (r *Redis) Resolve(ctx context.Context, target string) ([]push.Subscription, error) {
	target = strings.TrimSpace(target)
	identities := []string{target}
	if target == "" {
		ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
		if err != nil {
			return nil, storeError("resolve", err)
		}
		slices.Sort(ids)
		identities = ids
	}
	if len(identities) == 0 {
		return []push.Subscription{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(identities))
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range identities {
			cmds[i] = p.HGetAll(ctx, r.hashKey(id))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, storeError("resolve", err)
	}

	subs := []push.Subscription{}
	for i, id := range identities {
		fields, err := cmds[i].Result()
		if err != nil {
			return nil, storeError("resolve", err)
		}
		subs = append(subs, parseRedisHash(id, fields)...)
	}
	return subs, nil
}

// parseRedisHash never fails. An undecodable credential comes back empty so
// the transport rejects it as permanent and the dispatcher prunes it.
func parseRedisHash(identity string, fields map[string]string) []push.Subscription {
	var subs []push.Subscription
	for _, ch := range push.Channels() {
		raw, ok := fields[string(ch)]
		if !ok {
			continue
		}
		var cred push.Credential
		if err := json.Unmarshal([]byte(raw), &cred); err != nil {
			cred = push.Credential{}
		}
		subs = append(subs, push.Subscription{
			Identity:   identity,
			Channel:    ch,
			Credential: cred,
			CreatedAt:  parseNanos(fields[string(ch)+":created"]),
			UpdatedAt:  parseNanos(fields[string(ch)+":updated"]),
		})
	}
	return subs
}

func parseNanos(s string) time.Time {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func (r *Redis) Remove(ctx context.Context, identity string, channel push.Channel) error {
	return r.prune(ctx, "remove", []push.Key{{Identity: strings.TrimSpace(identity), Channel: channel}})
}

func (r *Redis) PruneInvalid(ctx context.Context, keys []push.Key) error {
	if len(keys) == 0 {
		return nil
	}
	return r.prune(ctx, "prune", keys)
}

func (r *Redis) prune(ctx context.Context, op string, keys []push.Key) error {
	redisKeys := make([]string, 0, len(keys)+1)
	args := make([]any, 0, len(keys)*2)
	redisKeys = append(redisKeys, r.indexKey())
	for _, k := range keys {
		redisKeys = append(redisKeys, r.hashKey(k.Identity))
		args = append(args, k.Identity, string(k.Channel))
	}

	if err := redisPruneScript.Run(ctx, r.client, redisKeys, args...).Err(); err != nil {
		return storeError(op, err)
	}
	return nil
}

// Healthcheck pings Redis.
func (r *Redis) Healthcheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return storeError("ping", err)
	}
	return nil
}
