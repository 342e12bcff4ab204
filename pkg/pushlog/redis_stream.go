package pushlog

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/pushkit/pkg/push"
)

const (
	DefaultStream = "push:log"
	DefaultMaxLen = 10_000
)

// RedisStream records dispatches into a Redis stream.
type RedisStream struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

// RedisStreamOption configures a RedisStream.
type RedisStreamOption func(*RedisStream)

func WithStream(name string) RedisStreamOption {
	return func(s *RedisStream) {
		if name != "" {
			s.stream = name
		}
	}
}

// WithMaxLen caps the number of retained entries.
func WithMaxLen(n int64) RedisStreamOption {
	return func(s *RedisStream) {
		if n > 0 {
			s.maxLen = n
		}
	}
}

func NewRedisStream(client redis.UniversalClient, opts ...RedisStreamOption) *RedisStream {
	s := &RedisStream{
		client: client,
		stream: DefaultStream,
		maxLen: DefaultMaxLen,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStream) Record(ctx context.Context, entry push.LogEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode log entry: %w", err)
	}

	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Values: []any{
			"dispatch_id", entry.DispatchID,
			"targeted", strconv.Itoa(entry.Result.TotalTargeted),
			"succeeded", strconv.Itoa(entry.Result.Succeeded),
			"failed_transient", strconv.Itoa(entry.Result.FailedTransient),
			"failed_permanent", strconv.Itoa(entry.Result.FailedPermanent),
			"entry", raw,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (s *RedisStream) Recent(ctx context.Context, n int64) ([]push.LogEntry, error) {
	msgs, err := s.client.XRevRangeN(ctx, s.stream, "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("xrevrange %s: %w", s.stream, err)
	}

	entries := make([]push.LogEntry, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values["entry"].(string)
		if !ok {
			continue
		}
		var entry push.LogEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("decode stream entry %s: %w", msg.ID, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
