package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dmitrymomot/pushkit/pkg/logger"
)

// NotificationLog is an append-only, best-effort record of dispatches.
// A failing log never changes a DispatchResult.
type NotificationLog interface {
	Record(ctx context.Context, entry LogEntry) error
}

// LogEntry describes one Send call and every delivery attempt it made.
type LogEntry struct {
	DispatchID string            `json:"dispatch_id"`
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	Target     string            `json:"target,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
	Result     DispatchResult    `json:"result"`
	Attempts   []AttemptRecord   `json:"attempts"`
	StartedAt  time.Time         `json:"started_at"`
	Duration   time.Duration     `json:"duration"`
}

// AttemptRecord is the outcome for one subscription. Endpoint holds only the
// push service origin, never the full capability URL.
type AttemptRecord struct {
	Identity string        `json:"identity"`
	Channel  Channel       `json:"channel"`
	Endpoint string        `json:"endpoint,omitempty"`
	Status   string        `json:"status"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration"`
}

func newAttemptRecord(sub Subscription, a attempt) AttemptRecord {
	rec := AttemptRecord{
		Identity: sub.Identity,
		Channel:  sub.Channel,
		Status:   a.outcome.Status.String(),
		Reason:   a.outcome.Reason,
		Duration: a.took,
	}
	if sub.Channel == ChannelWeb {
		rec.Endpoint = logger.RedactEndpoint(sub.Credential.Endpoint)
	}
	return rec
}

// MemoryLog keeps entries in memory, newest last.
// Suitable for development and testing.
type MemoryLog struct {
	mu      sync.RWMutex
	entries []LogEntry
	limit   int
}

// NewMemoryLog creates a log that retains at most limit entries. A
// non-positive limit keeps everything.
func NewMemoryLog(limit int) *MemoryLog {
	return &MemoryLog{limit: limit}
}

func (l *MemoryLog) Record(ctx context.Context, entry LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, entry)
	if l.limit > 0 && len(l.entries) > l.limit {
		l.entries = slices.Delete(l.entries, 0, len(l.entries)-l.limit)
	}
	return nil
}

// Entries returns a copy of the retained entries.
func (l *MemoryLog) Entries() []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.entries)
}

// MultiLog fans an entry out to several sinks. Every sink is attempted;
// failures are logged and returned joined.
type MultiLog struct {
	sinks  []NotificationLog
	logger *slog.Logger
}

// MultiLogOption configures a MultiLog.
type MultiLogOption func(*MultiLog)

// WithMultiLogLogger sets the logger for the MultiLog.
func WithMultiLogLogger(l *slog.Logger) MultiLogOption {
	return func(m *MultiLog) {
		m.logger = l
	}
}

func NewMultiLog(sinks []NotificationLog, opts ...MultiLogOption) *MultiLog {
	m := &MultiLog{
		sinks:  sinks,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MultiLog) Record(ctx context.Context, entry LogEntry) error {
	var errs []error
	for i, sink := range m.sinks {
		if err := sink.Record(ctx, entry); err != nil {
			m.logger.LogAttrs(ctx, slog.LevelWarn, "notification log sink failed",
				logger.DispatchID(entry.DispatchID),
				slog.Int("sink_index", i),
				logger.Error(err),
			)
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
