package push_test

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pushkit/pkg/push"
)

// validWebCredential returns a credential with a real P-256 public key and
// auth secret so it survives encryption.
func validWebCredential(t testing.TB, endpoint string) push.Credential {
	t.Helper()

	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)

	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)

	return push.Credential{
		Endpoint: endpoint,
		P256dh:   base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		Auth:     base64.RawURLEncoding.EncodeToString(auth),
	}
}

// MockRegistry for testing registry failure paths.
type MockRegistry struct {
	mock.Mock
}

func (m *MockRegistry) Upsert(ctx context.Context, identity string, channel push.Channel, cred push.Credential) error {
	args := m.Called(ctx, identity, channel, cred)
	return args.Error(0)
}

func (m *MockRegistry) Resolve(ctx context.Context, target string) ([]push.Subscription, error) {
	args := m.Called(ctx, target)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]push.Subscription), args.Error(1)
}

func (m *MockRegistry) Remove(ctx context.Context, identity string, channel push.Channel) error {
	args := m.Called(ctx, identity, channel)
	return args.Error(0)
}

func (m *MockRegistry) PruneInvalid(ctx context.Context, keys []push.Key) error {
	args := m.Called(ctx, keys)
	return args.Error(0)
}

// MockTransport records calls and returns a scripted outcome.
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Deliver(ctx context.Context, cred push.Credential, payload push.Payload) push.Outcome {
	args := m.Called(ctx, cred, payload)
	return args.Get(0).(push.Outcome)
}

// MockLog for testing notification log failures.
type MockLog struct {
	mock.Mock
}

func (m *MockLog) Record(ctx context.Context, entry push.LogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// outcomeByToken is an FCM stand-in scripted by token value.
func outcomeByToken(outcomes map[string]push.Outcome) push.TransportFunc {
	return func(_ context.Context, cred push.Credential, _ push.Payload) push.Outcome {
		if o, ok := outcomes[cred.Token]; ok {
			return o
		}
		return push.Delivered()
	}
}

func alwaysDelivered() push.TransportFunc {
	return func(context.Context, push.Credential, push.Payload) push.Outcome {
		return push.Delivered()
	}
}
