package push

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/pushkit/pkg/logger"
)

const (
	tracerName = "github.com/dmitrymomot/pushkit/pkg/push"

	DefaultDeliverTimeout = 10 * time.Second
	DefaultPruneTimeout   = 5 * time.Second
	DefaultMaxConcurrency = 256
)

// Dispatcher fans one notification out to every matching subscription,
// prunes dead credentials and reports exact counts.
type Dispatcher struct {
	registry   Registry
	transports map[Channel]Transport
	log        NotificationLog
	observer   Observer
	logger     *slog.Logger
	tracer     trace.Tracer
	newID      func() string
	now        func() time.Time

	deliverTimeout time.Duration
	pruneTimeout   time.Duration
	maxConcurrency int
}

// NewDispatcher creates a Dispatcher over registry. Channels without a
// transport fail permanently as unconfigured.
func NewDispatcher(registry Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:       registry,
		transports:     make(map[Channel]Transport, 2),
		observer:       noopObserver{},
		logger:         slog.Default(),
		tracer:         otel.GetTracerProvider().Tracer(tracerName),
		newID:          newDispatchID,
		now:            time.Now,
		deliverTimeout: DefaultDeliverTimeout,
		pruneTimeout:   DefaultPruneTimeout,
		maxConcurrency: DefaultMaxConcurrency,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// attempt is one delivery result as collected by its task.
type attempt struct {
	outcome Outcome
	took    time.Duration
}

// Send delivers req to every subscription of req.Target, or to all
// subscriptions when Target is empty.
//
// Invalid requests fail with ErrValidation before any side effect. A registry
// failure during resolution is returned as an error. Per-recipient failures
// never surface as errors; they are only counted. When ctx is cancelled the
// in-flight deliveries are abandoned and counted as transient, completed
// permanent failures are still pruned, and the partial result is returned
// together with ctx.Err().
func (d *Dispatcher) Send(ctx context.Context, req NotificationRequest) (DispatchResult, error) {
	if err := req.Validate(); err != nil {
		return DispatchResult{}, err
	}
	target := strings.TrimSpace(req.Target)
	dispatchID := d.newID()
	start := d.now()

	ctx, span := d.tracer.Start(ctx, "push.Send", trace.WithAttributes(
		attribute.String("push.dispatch_id", dispatchID),
		attribute.Bool("push.broadcast", req.Broadcast()),
	))
	defer span.End()

	log := d.logger.With(logger.DispatchID(dispatchID))

	subs, err := d.registry.Resolve(ctx, target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve failed")
		log.ErrorContext(ctx, "failed to resolve subscriptions", logger.Identity(target), logger.Error(err))
		return DispatchResult{}, fmt.Errorf("%w: resolve: %w", ErrRegistryUnavailable, err)
	}
	if len(subs) == 0 {
		log.DebugContext(ctx, "no subscriptions for target", logger.Identity(target))
		return DispatchResult{}, nil
	}

	payload := newPayload(dispatchID, req)
	attempts := d.deliverAll(ctx, subs, payload)
	result, dead := fold(subs, attempts)

	d.prune(ctx, log, dead)

	took := d.now().Sub(start)
	d.observer.ObserveDispatch(result, took)
	d.record(ctx, log, req, dispatchID, start, took, subs, attempts, result)

	span.SetAttributes(
		attribute.Int("push.targeted", result.TotalTargeted),
		attribute.Int("push.succeeded", result.Succeeded),
		attribute.Int("push.failed_transient", result.FailedTransient),
		attribute.Int("push.failed_permanent", result.FailedPermanent),
	)
	log.InfoContext(ctx, "dispatch finished",
		logger.Identity(target),
		logger.Count("targeted", result.TotalTargeted),
		logger.Count("succeeded", result.Succeeded),
		logger.Count("failed_transient", result.FailedTransient),
		logger.Count("failed_permanent", result.FailedPermanent),
		logger.Duration(took),
	)

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "dispatch cancelled")
		return result, err
	}
	return result, nil
}

// deliverAll runs one task per subscription and returns the attempts in
// subscription order. Tasks never return errors, so one failing recipient
// cannot cancel its siblings.
func (d *Dispatcher) deliverAll(ctx context.Context, subs []Subscription, payload Payload) []attempt {
	attempts := make([]attempt, len(subs))

	var g errgroup.Group
	g.SetLimit(d.maxConcurrency)
	for i, sub := range subs {
		if err := ctx.Err(); err != nil {
			attempts[i] = attempt{outcome: TransientFailure("abandoned before delivery: %v", err)}
			continue
		}
		g.Go(func() error {
			attempts[i] = d.invoke(ctx, sub, payload)
			return nil
		})
	}
	_ = g.Wait()

	return attempts
}

// invoke performs one delivery bounded by the per-call timeout. The transport
// runs in its own goroutine so a transport that ignores its context is
// abandoned rather than waited on.
func (d *Dispatcher) invoke(ctx context.Context, sub Subscription, payload Payload) attempt {
	start := d.now()
	ctx, span := d.tracer.Start(ctx, "push.Deliver", trace.WithAttributes(
		attribute.String("push.channel", string(sub.Channel)),
	))
	defer span.End()

	outcome := d.call(ctx, sub, payload)
	took := d.now().Sub(start)

	span.SetAttributes(attribute.String("push.outcome", outcome.Status.String()))
	if outcome.Status != StatusDelivered {
		span.SetStatus(codes.Error, outcome.Reason)
	}
	d.observer.ObserveDelivery(sub.Channel, outcome.Status, took)
	if outcome.Status != StatusDelivered {
		d.logger.LogAttrs(ctx, slog.LevelDebug, "delivery failed",
			logger.DispatchID(payload.DispatchID),
			logger.Identity(sub.Identity),
			logger.Channel(sub.Channel),
			logger.Outcome(outcome.Status.String(), outcome.Reason),
		)
	}
	return attempt{outcome: outcome, took: took}
}

func (d *Dispatcher) call(ctx context.Context, sub Subscription, payload Payload) Outcome {
	transport, ok := d.transports[sub.Channel]
	if !ok {
		return PermanentFailure("%s: channel unconfigured", sub.Channel)
	}

	callCtx, cancel := context.WithTimeout(ctx, d.deliverTimeout)
	defer cancel()

	done := make(chan Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- PermanentFailure("transport panic: %v", r)
			}
		}()
		done <- transport.Deliver(callCtx, sub.Credential, payload)
	}()

	select {
	case outcome := <-done:
		return outcome
	case <-callCtx.Done():
		select {
		case outcome := <-done:
			return outcome
		default:
		}
		if err := ctx.Err(); err != nil {
			return TransientFailure("abandoned: %v", err)
		}
		return TransientFailure("deliver timed out after %s", d.deliverTimeout)
	}
}

// fold reduces the collected attempts on a single goroutine. Unknown
// statuses count as transient so every subscription contributes exactly once.
func fold(subs []Subscription, attempts []attempt) (DispatchResult, []Key) {
	result := DispatchResult{TotalTargeted: len(subs)}
	var dead []Key
	for i, a := range attempts {
		switch a.outcome.Status {
		case StatusDelivered:
			result.Succeeded++
		case StatusPermanent:
			result.FailedPermanent++
			dead = append(dead, subs[i].Key())
		default:
			result.FailedTransient++
		}
	}
	return result, dead
}

// prune removes dead subscriptions once per dispatch. It runs detached from
// the caller's cancellation so completed permanent determinations are kept.
func (d *Dispatcher) prune(ctx context.Context, log *slog.Logger, keys []Key) {
	if len(keys) == 0 {
		return
	}
	keys = DedupKeys(keys)

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.pruneTimeout)
	defer cancel()

	err := d.registry.PruneInvalid(pctx, keys)
	d.observer.ObservePrune(len(keys), err)
	if err != nil {
		log.ErrorContext(ctx, "failed to prune dead subscriptions",
			logger.Count("keys", len(keys)),
			logger.Error(err),
		)
		return
	}
	log.InfoContext(ctx, "pruned dead subscriptions", logger.Count("keys", len(keys)))
}

func (d *Dispatcher) record(
	ctx context.Context,
	log *slog.Logger,
	req NotificationRequest,
	dispatchID string,
	start time.Time,
	took time.Duration,
	subs []Subscription,
	attempts []attempt,
	result DispatchResult,
) {
	if d.log == nil {
		return
	}

	records := make([]AttemptRecord, len(subs))
	for i, sub := range subs {
		records[i] = newAttemptRecord(sub, attempts[i])
	}

	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.pruneTimeout)
	defer cancel()

	err := d.log.Record(lctx, LogEntry{
		DispatchID: dispatchID,
		Title:      req.Title,
		Body:       req.Body,
		Target:     strings.TrimSpace(req.Target),
		Data:       req.Data,
		Result:     result,
		Attempts:   records,
		StartedAt:  start.UTC(),
		Duration:   took,
	})
	if err != nil {
		log.WarnContext(ctx, "failed to record notification log entry", logger.Error(err))
	}
}
