package push

import (
	"log/slog"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTransport registers the transport for channel, replacing any previous one.
func WithTransport(channel Channel, t Transport) Option {
	return func(d *Dispatcher) {
		if t != nil {
			d.transports[channel] = t
		}
	}
}

// WithNotificationLog enables best-effort logging of every dispatch.
func WithNotificationLog(l NotificationLog) Option {
	return func(d *Dispatcher) {
		d.log = l
	}
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) {
		if o != nil {
			d.observer = o
		}
	}
}

// WithDispatcherLogger sets the logger for the Dispatcher.
func WithDispatcherLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithDeliverTimeout bounds every single Transport.Deliver call.
func WithDeliverTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.deliverTimeout = timeout
		}
	}
}

// WithPruneTimeout bounds PruneInvalid and the notification log write, which
// both run detached from the caller's context.
func WithPruneTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.pruneTimeout = timeout
		}
	}
}

// WithMaxConcurrency caps in-flight deliveries per Send call.
func WithMaxConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxConcurrency = n
		}
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider for dispatch spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(d *Dispatcher) {
		if tp != nil {
			d.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithIDGenerator overrides dispatch ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(d *Dispatcher) {
		if fn != nil {
			d.newID = fn
		}
	}
}

func newDispatchID() string {
	return uuid.NewString()
}

// WebPushOption configures a WebPushTransport.
type WebPushOption func(*WebPushTransport)

// WithWebPushHTTPClient sets the client used to reach push services.
func WithWebPushHTTPClient(c webpush.HTTPClient) WebPushOption {
	return func(t *WebPushTransport) {
		if c != nil {
			t.httpClient = c
		}
	}
}

// WithWebPushLogger sets the logger for the WebPushTransport.
func WithWebPushLogger(l *slog.Logger) WebPushOption {
	return func(t *WebPushTransport) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithWebPushCircuitBreaker configures the per push-service breakers.
func WithWebPushCircuitBreaker(failureThreshold, successThreshold int, recoveryTimeout time.Duration) WebPushOption {
	return func(t *WebPushTransport) {
		t.breakers = newCircuitSet(func() *CircuitBreaker {
			return NewCircuitBreaker(failureThreshold, successThreshold, recoveryTimeout)
		})
	}
}

// FCMOption configures an FCMTransport.
type FCMOption func(*FCMTransport)

// WithFCMLogger sets the logger for the FCMTransport.
func WithFCMLogger(l *slog.Logger) FCMOption {
	return func(t *FCMTransport) {
		if l != nil {
			t.logger = l
		}
	}
}
