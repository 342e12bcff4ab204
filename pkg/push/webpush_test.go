package push_test

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pushkit/pkg/logger"
	"github.com/dmitrymomot/pushkit/pkg/push"
)

func testWebPushConfig(t *testing.T) push.WebPushConfig {
	t.Helper()

	pub, priv, err := push.GenerateVAPIDKeys()
	require.NoError(t, err)
	return push.WebPushConfig{
		VAPIDPublicKey:  pub,
		VAPIDPrivateKey: priv,
		Subject:         "mailto:ops@villa.example",
		TTL:             time.Hour,
		Urgency:         "high",
	}
}

func newWebPushServer(t *testing.T, status int, hits *atomic.Int64, check func(*http.Request)) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if check != nil {
			check(r)
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewWebPushTransport(t *testing.T) {
	t.Parallel()

	t.Run("missing credentials", func(t *testing.T) {
		t.Parallel()
		_, err := push.NewWebPushTransport(push.WebPushConfig{})
		assert.ErrorIs(t, err, push.ErrChannelUnconfigured)
	})

	t.Run("bad private key", func(t *testing.T) {
		t.Parallel()
		cfg := testWebPushConfig(t)
		cfg.VAPIDPrivateKey = "short"
		_, err := push.NewWebPushTransport(cfg)
		assert.ErrorIs(t, err, push.ErrInvalidConfig)
	})

	t.Run("bad urgency", func(t *testing.T) {
		t.Parallel()
		cfg := testWebPushConfig(t)
		cfg.Urgency = "asap"
		_, err := push.NewWebPushTransport(cfg)
		assert.ErrorIs(t, err, push.ErrInvalidConfig)
	})

	t.Run("exposes public key", func(t *testing.T) {
		t.Parallel()
		cfg := testWebPushConfig(t)
		tr, err := push.NewWebPushTransport(cfg)
		require.NoError(t, err)
		assert.Equal(t, cfg.VAPIDPublicKey, tr.PublicKey())
	})
}

func TestWebPushTransport_Deliver_StatusClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   push.Status
	}{
		{status: http.StatusCreated, want: push.StatusDelivered},
		{status: http.StatusOK, want: push.StatusDelivered},
		{status: http.StatusGone, want: push.StatusPermanent},
		{status: http.StatusNotFound, want: push.StatusPermanent},
		{status: http.StatusInternalServerError, want: push.StatusTransient},
		{status: http.StatusServiceUnavailable, want: push.StatusTransient},
		{status: http.StatusTooManyRequests, want: push.StatusTransient},
		{status: http.StatusForbidden, want: push.StatusTransient},
		{status: http.StatusRequestEntityTooLarge, want: push.StatusTransient},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()

			var hits atomic.Int64
			srv := newWebPushServer(t, tt.status, &hits, nil)

			tr, err := push.NewWebPushTransport(testWebPushConfig(t),
				push.WithWebPushHTTPClient(srv.Client()),
				push.WithWebPushLogger(logger.Discard()),
			)
			require.NoError(t, err)

			out := tr.Deliver(context.Background(), validWebCredential(t, srv.URL+"/push/abc"), push.Payload{
				DispatchID: "d1", Title: "T", Body: "B",
			})
			assert.Equal(t, tt.want, out.Status, out.Reason)
			assert.Equal(t, int64(1), hits.Load())
		})
	}
}

func TestWebPushTransport_Deliver_SignsAndEncrypts(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := newWebPushServer(t, http.StatusCreated, &hits, func(r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "aes128gcm", r.Header.Get("Content-Encoding"))
		assert.Equal(t, "3600", r.Header.Get("TTL"))
		assert.Equal(t, "high", r.Header.Get("Urgency"))
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "vapid t="))
	})

	tr, err := push.NewWebPushTransport(testWebPushConfig(t), push.WithWebPushHTTPClient(srv.Client()))
	require.NoError(t, err)

	out := tr.Deliver(context.Background(), validWebCredential(t, srv.URL+"/push/abc"), push.Payload{Title: "T", Body: "B"})
	assert.Equal(t, push.StatusDelivered, out.Status, out.Reason)
}

func TestWebPushTransport_Deliver_MalformedCredential(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := newWebPushServer(t, http.StatusCreated, &hits, nil)

	tr, err := push.NewWebPushTransport(testWebPushConfig(t), push.WithWebPushHTTPClient(srv.Client()))
	require.NoError(t, err)

	valid := validWebCredential(t, srv.URL+"/push/abc")

	tests := map[string]push.Credential{
		"undecodable p256dh": {Endpoint: valid.Endpoint, P256dh: "%%%", Auth: valid.Auth},
		"short p256dh":       {Endpoint: valid.Endpoint, P256dh: "BAAA", Auth: valid.Auth},
		"short auth":         {Endpoint: valid.Endpoint, P256dh: valid.P256dh, Auth: "AAAA"},
		"relative endpoint":  {Endpoint: "/push/abc", P256dh: valid.P256dh, Auth: valid.Auth},
		"point not on curve": {
			Endpoint: valid.Endpoint,
			P256dh:   base64.RawURLEncoding.EncodeToString(append([]byte{0x04}, make([]byte, 64)...)),
			Auth:     valid.Auth,
		},
	}

	for name, cred := range tests {
		t.Run(name, func(t *testing.T) {
			out := tr.Deliver(context.Background(), cred, push.Payload{Title: "T", Body: "B"})
			assert.Equal(t, push.StatusPermanent, out.Status)
			assert.Contains(t, out.Reason, "malformed credential")
		})
	}
	assert.Zero(t, hits.Load(), "malformed credentials must never reach the push service")
}

func TestWebPushTransport_Deliver_NetworkErrorIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL + "/push/abc"
	srv.Close()

	tr, err := push.NewWebPushTransport(testWebPushConfig(t))
	require.NoError(t, err)

	out := tr.Deliver(context.Background(), validWebCredential(t, endpoint), push.Payload{Title: "T", Body: "B"})
	assert.Equal(t, push.StatusTransient, out.Status, out.Reason)
}

func TestWebPushTransport_Deliver_OversizedPayloadIsTransient(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := newWebPushServer(t, http.StatusCreated, &hits, nil)

	tr, err := push.NewWebPushTransport(testWebPushConfig(t), push.WithWebPushHTTPClient(srv.Client()))
	require.NoError(t, err)

	out := tr.Deliver(context.Background(), validWebCredential(t, srv.URL+"/p"), push.Payload{
		Title: "T",
		Body:  strings.Repeat("x", 5000),
	})
	assert.Equal(t, push.StatusTransient, out.Status)
	assert.Zero(t, hits.Load())
}

// httpClientFunc adapts a function to webpush.HTTPClient.
type httpClientFunc func(*http.Request) (*http.Response, error)

func (f httpClientFunc) Do(r *http.Request) (*http.Response, error) { return f(r) }

func TestWebPushTransport_Deliver_CircuitOpensOnNetworkErrors(t *testing.T) {
	t.Parallel()

	var downHits atomic.Int64
	client := httpClientFunc(func(r *http.Request) (*http.Response, error) {
		if r.URL.Host == "down.push.example" {
			downHits.Add(1)
			return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
		}
		return http.DefaultClient.Do(r)
	})

	var goodHits atomic.Int64
	good := newWebPushServer(t, http.StatusCreated, &goodHits, nil)

	tr, err := push.NewWebPushTransport(testWebPushConfig(t),
		push.WithWebPushHTTPClient(client),
		push.WithWebPushCircuitBreaker(2, 1, time.Minute),
		push.WithWebPushLogger(logger.Discard()),
	)
	require.NoError(t, err)

	ctx := context.Background()
	for range 4 {
		out := tr.Deliver(ctx, validWebCredential(t, "https://down.push.example/p"), push.Payload{Title: "T", Body: "B"})
		assert.Equal(t, push.StatusTransient, out.Status, "a dial failure must never prune the subscription")
	}
	assert.Equal(t, int64(2), downHits.Load(), "breaker must stop calling an unreachable host")

	out := tr.Deliver(ctx, validWebCredential(t, good.URL+"/p"), push.Payload{Title: "T", Body: "B"})
	assert.Equal(t, push.StatusDelivered, out.Status, out.Reason)
	assert.Equal(t, int64(1), goodHits.Load())
}

func TestWebPushTransport_Deliver_StatusesDoNotTripCircuit(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := newWebPushServer(t, http.StatusServiceUnavailable, &hits, nil)

	tr, err := push.NewWebPushTransport(testWebPushConfig(t),
		push.WithWebPushCircuitBreaker(2, 1, time.Minute),
		push.WithWebPushLogger(logger.Discard()),
	)
	require.NoError(t, err)

	for range 5 {
		out := tr.Deliver(context.Background(), validWebCredential(t, srv.URL+"/p"), push.Payload{Title: "T", Body: "B"})
		assert.Equal(t, push.StatusTransient, out.Status)
		assert.NotContains(t, out.Reason, "circuit open")
	}
	assert.Equal(t, int64(5), hits.Load())
}

func TestDispatcher_Send_FailingSubscriptionsShareHostWithHealthyOne(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if strings.HasPrefix(r.URL.Path, "/bad") {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(srv.Close)

	tr, err := push.NewWebPushTransport(testWebPushConfig(t), push.WithWebPushLogger(logger.Discard()))
	require.NoError(t, err)

	reg := push.NewMemoryRegistry()
	ctx := context.Background()
	for i := range 5 {
		require.NoError(t, reg.Upsert(ctx, fmt.Sprintf("a-bad-%d", i), push.ChannelWeb,
			validWebCredential(t, fmt.Sprintf("%s/bad%d", srv.URL, i))))
	}
	require.NoError(t, reg.Upsert(ctx, "z-good", push.ChannelWeb, validWebCredential(t, srv.URL+"/good")))

	d := push.NewDispatcher(reg,
		push.WithDispatcherLogger(logger.Discard()),
		push.WithMaxConcurrency(1),
		push.WithTransport(push.ChannelWeb, tr),
	)

	res, err := d.Send(ctx, push.NotificationRequest{Title: "T", Body: "B"})
	require.NoError(t, err)
	assert.Equal(t, push.DispatchResult{TotalTargeted: 6, Succeeded: 1, FailedTransient: 5}, res)
	assert.Equal(t, int64(6), hits.Load())
	assert.Equal(t, 6, reg.Len(), "transient failures keep their subscriptions")
}

