package push

import (
	"context"
	"crypto/ecdh"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"github.com/dmitrymomot/pushkit/pkg/logger"
	"github.com/dmitrymomot/pushkit/pkg/validator"
)

const (
	// maxWebPushPayload keeps the plaintext inside a single 4096 byte
	// aes128gcm record after padding and headers.
	maxWebPushPayload = 3800

	p256PublicKeyLen = 65
	webPushAuthLen   = 16
	vapidPrivKeyLen  = 32
)

// WebPushConfig holds the process-wide VAPID identity.
type WebPushConfig struct {
	VAPIDPublicKey  string        `env:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string        `env:"VAPID_PRIVATE_KEY"`
	Subject         string        `env:"VAPID_EMAIL"`
	TTL             time.Duration `env:"WEBPUSH_TTL" envDefault:"24h"`
	Urgency         string        `env:"WEBPUSH_URGENCY" envDefault:"high"`
	Topic           string        `env:"WEBPUSH_TOPIC"`
}

// Enabled reports whether the web channel has the credentials it needs.
func (c WebPushConfig) Enabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != "" && c.Subject != ""
}

// subscriber returns the JWT "sub" claim value webpush-go expects. The library
// prefixes anything that is not an https URL with "mailto:" itself.
func (c WebPushConfig) subscriber() string {
	s := strings.TrimSpace(c.Subject)
	if len(s) >= 7 && strings.EqualFold(s[:7], "mailto:") {
		return s[7:]
	}
	return s
}

// WebPushTransport delivers payloads to browser push services using VAPID
// and aes128gcm content encoding.
type WebPushTransport struct {
	cfg        WebPushConfig
	httpClient webpush.HTTPClient
	breakers   *circuitSet
	logger     *slog.Logger
}

// NewWebPushTransport validates the VAPID configuration and returns a ready
// transport. It fails with ErrChannelUnconfigured when credentials are absent.
func NewWebPushTransport(cfg WebPushConfig, opts ...WebPushOption) (*WebPushTransport, error) {
	if !cfg.Enabled() {
		return nil, ErrChannelUnconfigured
	}
	if b, err := validator.DecodeBase64Key(cfg.VAPIDPublicKey); err != nil || len(b) != p256PublicKeyLen {
		return nil, fmt.Errorf("%w: vapid public key must be a base64 encoded %d byte P-256 point", ErrInvalidConfig, p256PublicKeyLen)
	}
	if b, err := validator.DecodeBase64Key(cfg.VAPIDPrivateKey); err != nil || len(b) != vapidPrivKeyLen {
		return nil, fmt.Errorf("%w: vapid private key must be a base64 encoded %d byte scalar", ErrInvalidConfig, vapidPrivKeyLen)
	}
	if _, err := parseUrgency(cfg.Urgency); err != nil {
		return nil, err
	}

	t := &WebPushTransport{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
	t.breakers = newCircuitSet(func() *CircuitBreaker { return NewCircuitBreaker(0, 0, 0) })

	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// PublicKey returns the VAPID application server key clients subscribe with.
func (t *WebPushTransport) PublicKey() string {
	return t.cfg.VAPIDPublicKey
}

func (t *WebPushTransport) Deliver(ctx context.Context, cred Credential, payload Payload) Outcome {
	endpoint, err := checkWebCredential(cred)
	if err != nil {
		return PermanentFailure("%v", err)
	}

	msg, err := payload.JSON()
	if err != nil {
		return TransientFailure("encode payload: %v", err)
	}
	if len(msg) > maxWebPushPayload {
		return TransientFailure("payload of %d bytes exceeds %d", len(msg), maxWebPushPayload)
	}

	cb := t.breakers.get(endpoint.Host)
	if !cb.Allow() {
		return TransientFailure("circuit open for %s", endpoint.Host)
	}

	urgency, _ := parseUrgency(t.cfg.Urgency)
	resp, err := webpush.SendNotificationWithContext(ctx, msg, &webpush.Subscription{
		Endpoint: cred.Endpoint,
		Keys: webpush.Keys{
			P256dh: cred.P256dh,
			Auth:   cred.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      t.httpClient,
		Subscriber:      t.cfg.subscriber(),
		VAPIDPublicKey:  t.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: t.cfg.VAPIDPrivateKey,
		TTL:             int(t.cfg.TTL / time.Second),
		Urgency:         urgency,
		Topic:           t.cfg.Topic,
	})
	if err != nil {
		outcome := classifyWebPushError(err)
		if isNetworkError(err) && !isContextError(err) {
			cb.RecordFailure()
		}
		t.logger.LogAttrs(ctx, slog.LevelDebug, "web push request failed",
			logger.Endpoint(cred.Endpoint),
			logger.Outcome(outcome.Status.String(), outcome.Reason),
		)
		return outcome
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	// Any response proves the host is reachable. Statuses describe a single
	// subscription and never trip the breaker shared by the whole host.
	cb.RecordSuccess()
	return classifyWebPushStatus(resp.StatusCode)
}

// checkWebCredential catches credentials that could never be delivered
// before any network traffic happens.
func checkWebCredential(cred Credential) (*url.URL, error) {
	u, err := parseWebCredential(cred)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedCredential, err)
	}
	return u, nil
}

func parseWebCredential(cred Credential) (*url.URL, error) {
	u, err := url.Parse(cred.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("endpoint: %w", err)
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return nil, errors.New("endpoint must be an absolute http(s) URL")
	}

	pub, err := validator.DecodeBase64Key(cred.P256dh)
	if err != nil {
		return nil, fmt.Errorf("p256dh: %w", err)
	}
	if len(pub) != p256PublicKeyLen {
		return nil, fmt.Errorf("p256dh: want %d bytes, got %d", p256PublicKeyLen, len(pub))
	}
	if _, err := ecdh.P256().NewPublicKey(pub); err != nil {
		return nil, fmt.Errorf("p256dh: %w", err)
	}

	auth, err := validator.DecodeBase64Key(cred.Auth)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	if len(auth) != webPushAuthLen {
		return nil, fmt.Errorf("auth: want %d bytes, got %d", webPushAuthLen, len(auth))
	}
	return u, nil
}

// classifyWebPushStatus maps a push service response to an Outcome. Only
// 404 and 410 prove the subscription is gone; other client errors usually
// point at our own configuration and must not prune the registry.
func classifyWebPushStatus(code int) Outcome {
	switch {
	case code >= 200 && code < 300:
		return Delivered()
	case code == http.StatusNotFound || code == http.StatusGone:
		return PermanentFailure("push service responded %d", code)
	case code >= 500:
		return TransientFailure("push service responded %d", code)
	case code == http.StatusRequestTimeout || code == http.StatusTooEarly || code == http.StatusTooManyRequests:
		return TransientFailure("push service responded %d", code)
	default:
		return TransientFailure("push service rejected request with %d", code)
	}
}

// classifyWebPushError maps a webpush-go error. Transport level failures are
// retry-worthy; anything raised while encrypting or signing means the stored
// credential cannot be used.
func classifyWebPushError(err error) Outcome {
	if isContextError(err) {
		return TransientFailure("request aborted: %v", err)
	}
	if isNetworkError(err) {
		return TransientFailure("network: %v", err)
	}
	return PermanentFailure("encrypt or sign: %v", err)
}

func isContextError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// isNetworkError reports connection level failures. A custom HTTPClient may
// return a bare net.Error instead of wrapping it in *url.Error.
func isNetworkError(err error) bool {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr)
}

func parseUrgency(s string) (webpush.Urgency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "high":
		return webpush.UrgencyHigh, nil
	case "normal":
		return webpush.UrgencyNormal, nil
	case "low":
		return webpush.UrgencyLow, nil
	case "very-low":
		return webpush.UrgencyVeryLow, nil
	default:
		return "", fmt.Errorf("%w: unknown web push urgency %q", ErrInvalidConfig, s)
	}
}

// GenerateVAPIDKeys creates a new VAPID key pair encoded as unpadded URL-safe base64.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", fmt.Errorf("generate vapid keys: %w", err)
	}
	return publicKey, privateKey, nil
}
