package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/errorutils"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/dmitrymomot/pushkit/pkg/logger"
)

// maxFCMPayload is the documented FCM limit for notification plus data.
const maxFCMPayload = 4096

// FCMConfig holds the Firebase service-account credentials. Either the JSON
// itself or a path to it may be supplied.
type FCMConfig struct {
	CredentialsJSON string `env:"FIREBASE_CREDENTIALS"`
	CredentialsFile string `env:"FIREBASE_CREDENTIALS_FILE"`
	ProjectID       string `env:"FIREBASE_PROJECT_ID"`
}

func (c FCMConfig) Enabled() bool {
	return c.CredentialsJSON != "" || c.CredentialsFile != ""
}

// FCMSender is the subset of *messaging.Client the transport depends on.
type FCMSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMTransport delivers payloads to Android and iOS devices through Firebase
// Cloud Messaging.
type FCMTransport struct {
	sender FCMSender
	logger *slog.Logger
}

// NewFCMTransport initializes a Firebase app from cfg. It fails with
// ErrChannelUnconfigured when no credentials are configured.
func NewFCMTransport(ctx context.Context, cfg FCMConfig, opts ...FCMOption) (*FCMTransport, error) {
	if !cfg.Enabled() {
		return nil, ErrChannelUnconfigured
	}

	var clientOpt option.ClientOption
	if cfg.CredentialsJSON != "" {
		clientOpt = option.WithCredentialsJSON([]byte(cfg.CredentialsJSON))
	} else {
		clientOpt = option.WithCredentialsFile(cfg.CredentialsFile)
	}

	var appCfg *firebase.Config
	if cfg.ProjectID != "" {
		appCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, appCfg, clientOpt)
	if err != nil {
		return nil, fmt.Errorf("%w: firebase app: %w", ErrInvalidConfig, err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: firebase messaging: %w", ErrInvalidConfig, err)
	}
	return NewFCMTransportWithSender(client, opts...), nil
}

// NewFCMTransportWithSender wraps an existing sender, typically a
// *messaging.Client shared with other components or a fake in tests.
func NewFCMTransportWithSender(sender FCMSender, opts ...FCMOption) *FCMTransport {
	t := &FCMTransport{
		sender: sender,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *FCMTransport) Deliver(ctx context.Context, cred Credential, payload Payload) Outcome {
	token := strings.TrimSpace(cred.Token)
	if token == "" {
		return PermanentFailure("%v: empty fcm token", ErrMalformedCredential)
	}

	msg, err := buildFCMMessage(token, payload)
	if err != nil {
		return TransientFailure("build message: %v", err)
	}

	if _, err := t.sender.Send(ctx, msg); err != nil {
		outcome := classifyFCMError(err)
		t.logger.LogAttrs(ctx, slog.LevelDebug, "fcm send failed",
			logger.Outcome(outcome.Status.String(), outcome.Reason),
		)
		return outcome
	}
	return Delivered()
}

// reservedFCMKey reports data keys FCM rejects with INVALID_ARGUMENT. Sending
// them would be misread as a dead token.
func reservedFCMKey(k string) bool {
	switch k {
	case "from", "notification", "message_type", "collapse_key":
		return true
	}
	return strings.HasPrefix(k, "google.") || strings.HasPrefix(k, "gcm.")
}

func buildFCMMessage(token string, payload Payload) (*messaging.Message, error) {
	data := make(map[string]string, len(payload.Data)+1)
	size := len(payload.Title) + len(payload.Body)
	for k, v := range payload.Data {
		if reservedFCMKey(k) {
			return nil, fmt.Errorf("data key %q is reserved", k)
		}
		size += len(k) + len(v)
	}
	if size > maxFCMPayload {
		return nil, fmt.Errorf("payload of %d bytes exceeds %d", size, maxFCMPayload)
	}
	maps.Copy(data, payload.Data)
	if _, taken := data["dispatch_id"]; !taken && payload.DispatchID != "" {
		data["dispatch_id"] = payload.DispatchID
	}

	return &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: payload.Title,
			Body:  payload.Body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default"},
			},
		},
	}, nil
}

// classifyFCMError maps a Firebase error to an Outcome. Only errors that prove
// the token can never be delivered to are permanent.
func classifyFCMError(err error) Outcome {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return TransientFailure("request aborted: %v", err)
	case messaging.IsUnregistered(err):
		return PermanentFailure("token unregistered")
	case messaging.IsSenderIDMismatch(err):
		return PermanentFailure("sender id mismatch")
	case errorutils.IsInvalidArgument(err):
		return PermanentFailure("invalid token: %v", err)
	case messaging.IsQuotaExceeded(err):
		return TransientFailure("quota exceeded")
	case messaging.IsUnavailable(err):
		return TransientFailure("fcm unavailable")
	case messaging.IsInternal(err):
		return TransientFailure("fcm internal error")
	case messaging.IsThirdPartyAuthError(err):
		return TransientFailure("apns or web push auth rejected: %v", err)
	default:
		return TransientFailure("fcm: %v", err)
	}
}
