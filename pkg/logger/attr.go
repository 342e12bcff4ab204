package logger

import (
	"log/slog"
	"net/url"
	"strconv"
	"time"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Identity records the subscription owner under the key "identity".
func Identity(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("identity", id)
}

// Channel records the delivery channel under the key "channel".
func Channel[T ~string](ch T) slog.Attr {
	return slog.String("channel", string(ch))
}

// DispatchID records the dispatch identifier under the key "dispatch_id".
func DispatchID(id string) slog.Attr {
	return slog.String("dispatch_id", id)
}

// Outcome records a delivery outcome and its reason.
func Outcome(status, reason string) slog.Attr {
	if reason == "" {
		return slog.String("outcome", status)
	}
	return Group("outcome", slog.String("status", status), slog.String("reason", reason))
}

// Endpoint records only the scheme and host of a push endpoint. The path of a
// Web-Push endpoint is a bearer capability for the device and never logged.
func Endpoint(endpoint string) slog.Attr {
	return slog.String("endpoint", RedactEndpoint(endpoint))
}

// RedactEndpoint reduces a URL to scheme://host, or "unknown" when it does not parse.
func RedactEndpoint(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Scheme + "://" + u.Host
}

// Count records an integer under the given key.
func Count(key string, n int) slog.Attr {
	return slog.Int(key, n)
}

// RequestID records the request identifier under the key "request_id".
func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}

// Duration records a duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}
