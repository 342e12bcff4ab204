package push_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pushkit/pkg/logger"
	"github.com/dmitrymomot/pushkit/pkg/push"
)

func newTestDispatcher(reg push.Registry, opts ...push.Option) *push.Dispatcher {
	opts = append([]push.Option{push.WithDispatcherLogger(logger.Discard())}, opts...)
	return push.NewDispatcher(reg, opts...)
}

func seedU1(t *testing.T, reg push.Registry) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, reg.Upsert(ctx, "u1", push.ChannelWeb, validWebCredential(t, "https://push.example/u1")))
	require.NoError(t, reg.Upsert(ctx, "u1", push.ChannelFCM, push.Credential{Token: "tok-u1"}))
}

func assertResultSums(t *testing.T, r push.DispatchResult) {
	t.Helper()
	assert.Equal(t, r.TotalTargeted, r.Succeeded+r.FailedTransient+r.FailedPermanent)
}

func TestDispatcher_Send_AllDelivered(t *testing.T) {
	t.Parallel()

	reg := push.NewMemoryRegistry()
	seedU1(t, reg)

	d := newTestDispatcher(reg,
		push.WithTransport(push.ChannelWeb, alwaysDelivered()),
		push.WithTransport(push.ChannelFCM, alwaysDelivered()),
	)

	res, err := d.Send(context.Background(), push.NotificationRequest{Title: "T", Body: "B", Target: "u1"})
	require.NoError(t, err)
	assert.Equal(t, push.DispatchResult{TotalTargeted: 2, Succeeded: 2}, res)
}

func TestDispatcher_Send_PrunesUnregisteredToken(t *testing.T) {
	t.Parallel()

	reg := push.NewMemoryRegistry()
	seedU1(t, reg)

	d := newTestDispatcher(reg,
		push.WithTransport(push.ChannelWeb, alwaysDelivered()),
		push.WithTransport(push.ChannelFCM, outcomeByToken(map[string]push.Outcome{
			"tok-u1": push.PermanentFailure("token unregistered"),
		})),
	)

	res, err := d.Send(context.Background(), push.NotificationRequest{Title: "T", Body: "B", Target: "u1"})
	require.NoError(t, err)
	assert.Equal(t, push.DispatchResult{TotalTargeted: 2, Succeeded: 1, FailedPermanent: 1}, res)

	subs, err := reg.Resolve(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, push.ChannelWeb, subs[0].Channel)
}

func TestDispatcher_Send_TransientLeavesRegistry(t *testing.T) {
	t.Parallel()

	reg := push.NewMemoryRegistry()
	seedU1(t, reg)

	d := newTestDispatcher(reg,
		push.WithTransport(push.ChannelWeb, func() push.TransportFunc {
			return func(context.Context, push.Credential, push.Payload) push.Outcome {
				return push.TransientFailure("push service responded 503")
			}
		}()),
		push.WithTransport(push.ChannelFCM, outcomeByToken(map[string]push.Outcome{
			"tok-u1": push.TransientFailure("quota exceeded"),
		})),
	)

	res, err := d.Send(context.Background(), push.NotificationRequest{Title: "T", Body: "B"})
	require.NoError(t, err)
	assert.Equal(t, push.DispatchResult{TotalTargeted: 2, FailedTransient: 2}, res)
	assert.Equal(t, 2, reg.Len())
}

func TestDispatcher_Send_ValidationHasNoSideEffects(t *testing.T) {
	t.Parallel()

	reg := &MockRegistry{}
	transport := &MockTransport{}
	d := newTestDispatcher(reg, push.WithTransport(push.ChannelFCM, transport))

	tests := []push.NotificationRequest{
		{Title: "", Body: "B"},
		{Title: "T", Body: "  "},
		{},
	}
	for _, req := range tests {
		res, err := d.Send(context.Background(), req)
		require.Error(t, err)
		assert.True(t, push.IsValidationError(err))
		assert.Equal(t, push.DispatchResult{}, res)
	}

	reg.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
	reg.AssertNotCalled(t, "PruneInvalid", mock.Anything, mock.Anything)
	transport.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatcher_Send_EmptyTarget(t *testing.T) {
	t.Parallel()

	reg := push.NewMemoryRegistry()
	transport := &MockTransport{}
	d := newTestDispatcher(reg, push.WithTransport(push.ChannelFCM, transport))

	res, err := d.Send(context.Background(), push.NotificationRequest{Title: "T", Body: "B", Target: "nobody"})
	require.NoError(t, err)
	assert.Equal(t, push.DispatchResult{}, res)
	transport.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything, mock.Anything)
}

func TestNotificationRequest_Broadcast(t *testing.T) {
	t.Parallel()

	assert.True(t, push.NotificationRequest{}.Broadcast())
	assert.True(t, push.NotificationRequest{Target: "  "}.Broadcast())
	assert.False(t, push.NotificationRequest{Target: "u1"}.Broadcast())
}

func TestDispatcher_Send_ResolveFailure(t *testing.T) {
	t.Parallel()

	reg := &MockRegistry{}
	reg.On("Resolve", mock.Anything, "u1").Return(nil, errors.New("connection refused"))

	d := newTestDispatcher(reg)
	res, err := d.Send(context.Background(), push.NotificationRequest{Title: "T", Body: "B", Target: "u1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, push.ErrRegistryUnavailable)
	assert.False(t, push.IsValidationError(err))
	assert.Equal(t, push.DispatchResult{}, res)
	reg.AssertNotCalled(t, "PruneInvalid", mock.Anything, mock.Anything)
}

func TestDispatcher_Send_PruneFailureIsNotSurfaced(t *testing.T) {
	t.Parallel()

	subs := []push.Subscription{
		{Identity: "u1", Channel: push.ChannelFCM, Credential: push.Credential{Token: "dead"}},
		{Identity: "u2", Channel: push.ChannelFCM, Credential: push.Credential{Token: "alive"}},
	}
	reg := &MockRegistry{}
	reg.On("Resolve", mock.Anything, "").Return(subs, nil)
	reg.On("PruneInvalid", mock.Anything, []push.Key{{Identity: "u1", Channel: push.ChannelFCM}}).
		Return(errors.New("registry down")).Once()

	d := newTestDispatcher(reg, push.WithTransport(push.ChannelFCM, outcomeByToken(map[string]push.Outcome{
		"dead": push.PermanentFailure("token unregistered"),
	})))

	res, err := d.Send(context.Background(), push.NotificationRequest{Title: "T", Body: "B"})
	require.NoError(t, err)
	assert.Equal(t, push.DispatchResult{TotalTargeted: 2, Succeeded: 1, FailedPermanent: 1}, res)
	reg.AssertExpectations(t)
}

func TestDispatcher_Send_PruneCalledOnceWithAllDeadKeys(t *testing.T) {
	t.Parallel()

	var subs []push.Subscription
	for i := range 6 {
		subs = append(subs, push.Subscription{
			Identity:   fmt.Sprintf("u%d", i),
			Channel:    push.ChannelFCM,
			Credential: push.Credential{Token: fmt.Sprintf("t%d", i)},
		})
	}

	reg := &MockRegistry{}
	reg.On("Resolve", mock.Anything, "").Return(subs, nil)
	reg.On("PruneInvalid", mock.Anything, mock.MatchedBy(func(keys []push.Key) bool {
		return assert.ElementsMatch(t, []push.Key{
			{Identity: "u1", Channel: push.ChannelFCM},
			{Identity: "u3", Channel: push.ChannelFCM},
			{Identity: "u5", Channel: push.ChannelFCM},
		}, keys)
	})).Return(nil).Once()

	d := newTestDispatcher(reg, push.WithTransport(push.ChannelFCM, outcomeByToken(map[string]push.Outcome{
		"t1": push.PermanentFailure("gone"),
		"t3": push.PermanentFailure("gone"),
		"t5": push.PermanentFailure("gone"),
	})))

	res, err := d.Send(context.Background(), push.NotificationRequest{Title: "T", Body: "B"})
	require.NoError(t, err)
	assert.Equal(t, push.DispatchResult{TotalTargeted: 6, Succeeded: 3, FailedPermanent: 3}, res)
	reg.AssertNumberOfCalls(t, "PruneInvalid", 1)
}

func TestDispatcher_Send_UnconfiguredChannel(t *testing.T) {
	t.Parallel()

	t.Run("missing transport", func(t *testing.T) {
		t.Parallel()

		reg := push.NewMemoryRegistry()
		seedU1(t, reg)
		d := newTestDispatcher(reg, push.WithTransport(push.ChannelWeb, alwaysDelivered()))

		res, err := d.Send(context.Background(), push.NotificationRequest{Title: "T", Body: "B", Target: "u1"})
		require.NoError(t, err)
		assert.Equal(t, push.DispatchResult{TotalTargeted: 2, Succeeded: 1, FailedPermanent: 1}, res)
	})

	t.Run("unconfigured transport", func(t *testing.T) {
		t.Parallel()

		reg := push.NewMemoryRegistry()
		seedU1(t, reg)
		d := newTestDispatcher(reg,
			push.WithTransport(push.ChannelWeb, push.UnconfiguredTransport{Channel: push.ChannelWeb}),
			push.WithTransport(push.ChannelFCM, alwaysDelivered()),
		)

		res, err := d.Send(context.Background(), push.NotificationRequest{Title: "T", Body: "B", Target: "u1"})
		require.NoError(t, err)
		assert.Equal(t, push.DispatchResult{TotalTargeted: 2, Succeeded: 1, FailedPermanent: 1}, res)
	})
}

func TestDispatcher_Send_PanicIsIsolated(t *testing.T) {
	t.Parallel()

	reg := push.NewMemoryRegistry()
	ctx := context.Background()
	require.NoError(t, reg.Upsert(ctx, "boom", push.ChannelFCM, push.Credential{Token: "boom"}))
	require.NoError(t, reg.Upsert(ctx, "ok", push.ChannelFCM, push.Credential{Token: "ok"}))

	d := newTestDispatcher(reg, push.WithTransport(push.ChannelFCM, push.TransportFunc(
		func(_ context.Context, cred push.Credential, _ push.Payload) push.Outcome {
			if cred.Token == "boom" {
				panic("nil map write")
			}
			return push.Delivered()
		},
	)))

	res, err := d.Send(ctx, push.NotificationRequest{Title: "T", Body: "B"})
	require.NoError(t, err)
	assert.Equal(t, push.DispatchResult{TotalTargeted: 2, Succeeded: 1, FailedPermanent: 1}, res)
}

func TestDispatcher_Send_TimeoutIsTransient(t *testing.T) {
	t.Parallel()

	reg := push.NewMemoryRegistry()
	seedU1(t, reg)

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	d := newTestDispatcher(reg,
		push.WithDeliverTimeout(50*time.Millisecond),
		// Ignores its context on purpose.
		push.WithTransport(push.ChannelWeb, push.TransportFunc(func(context.Context, push.Credential, push.Payload) push.Outcome {
			<-release
			return push.Delivered()
		})),
		push.WithTransport(push.ChannelFCM, alwaysDelivered()),
	)

	start := time.Now()
	res, err := d.Send(context.Background(), push.NotificationRequest{Title: "T", Body: "B", Target: "u1"})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, push.DispatchResult{TotalTargeted: 2, Succeeded: 1, FailedTransient: 1}, res)
	assert.Equal(t, 2, reg.Len())
}

func TestDispatcher_Send_BroadcastWithSlowEndpoint(t *testing.T) {
	t.Parallel()

	const (
		total   = 500
		timeout = 200 * time.Millisecond
	)

	reg := push.NewMemoryRegistry()
	ctx := context.Background()
	for i := range total {
		require.NoError(t, reg.Upsert(ctx, fmt.Sprintf("user-%03d", i), push.ChannelFCM,
			push.Credential{Token: fmt.Sprintf("tok-%03d", i)}))
	}

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	var calls atomic.Int64
	d := newTestDispatcher(reg,
		push.WithDeliverTimeout(timeout),
		push.WithTransport(push.ChannelFCM, push.TransportFunc(
			func(ctx context.Context, cred push.Credential, _ push.Payload) push.Outcome {
				calls.Add(1)
				if cred.Token == "tok-250" {
					<-release
					return push.Delivered()
				}
				time.Sleep(time.Millisecond)
				return push.Delivered()
			},
		)),
	)

	start := time.Now()
	res, err := d.Send(ctx, push.NotificationRequest{Title: "T", Body: "B"})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, push.DispatchResult{TotalTargeted: total, Succeeded: total - 1, FailedTransient: 1}, res)
	assert.Equal(t, int64(total), calls.Load())
	assert.Less(t, elapsed, 5*timeout, "slow endpoint must not serialize the broadcast")
}

func TestDispatcher_Send_ExactCountsUnderConcurrency(t *testing.T) {
	t.Parallel()

	reg := push.NewMemoryRegistry()
	ctx := context.Background()
	outcomes := make(map[string]push.Outcome)
	want := push.DispatchResult{}
	for i := range 300 {
		token := fmt.Sprintf("tok-%d", i)
		require.NoError(t, reg.Upsert(ctx, fmt.Sprintf("u%d", i), push.ChannelFCM, push.Credential{Token: token}))
		want.TotalTargeted++
		switch i % 3 {
		case 0:
			want.Succeeded++
		case 1:
			outcomes[token] = push.TransientFailure("unavailable")
			want.FailedTransient++
		case 2:
			outcomes[token] = push.PermanentFailure("unregistered")
			want.FailedPermanent++
		}
	}

	d := newTestDispatcher(reg,
		push.WithMaxConcurrency(16),
		push.WithTransport(push.ChannelFCM, outcomeByToken(outcomes)),
	)

	res, err := d.Send(ctx, push.NotificationRequest{Title: "T", Body: "B"})
	require.NoError(t, err)
	assert.Equal(t, want, res)
	assertResultSums(t, res)
	assert.Equal(t, want.TotalTargeted-want.FailedPermanent, reg.Len())
}

func TestDispatcher_Send_CancellationKeepsCompletedPermanents(t *testing.T) {
	t.Parallel()

	reg := push.NewMemoryRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, reg.Upsert(ctx, "dead", push.ChannelFCM, push.Credential{Token: "dead"}))
	require.NoError(t, reg.Upsert(ctx, "slow", push.ChannelFCM, push.Credential{Token: "slow"}))

	deadDone := make(chan struct{})
	d := newTestDispatcher(reg,
		push.WithDeliverTimeout(5*time.Second),
		push.WithTransport(push.ChannelFCM, push.TransportFunc(
			func(callCtx context.Context, cred push.Credential, _ push.Payload) push.Outcome {
				if cred.Token == "dead" {
					defer close(deadDone)
					return push.PermanentFailure("token unregistered")
				}
				<-deadDone
				cancel()
				<-callCtx.Done()
				return push.TransientFailure("aborted")
			},
		)),
	)

	res, err := d.Send(ctx, push.NotificationRequest{Title: "T", Body: "B"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, push.DispatchResult{TotalTargeted: 2, FailedTransient: 1, FailedPermanent: 1}, res)

	subs, err := reg.Resolve(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "slow", subs[0].Identity)
}

func TestDispatcher_Send_PayloadCarriesDispatchIDAndData(t *testing.T) {
	t.Parallel()

	reg := push.NewMemoryRegistry()
	require.NoError(t, reg.Upsert(context.Background(), "u1", push.ChannelFCM, push.Credential{Token: "t"}))

	transport := &MockTransport{}
	transport.On("Deliver", mock.Anything, push.Credential{Token: "t"}, push.Payload{
		DispatchID: "dispatch-1",
		Title:      "T",
		Body:       "B",
		Data:       map[string]string{"booking": "42"},
	}).Return(push.Delivered()).Once()

	d := newTestDispatcher(reg,
		push.WithIDGenerator(func() string { return "dispatch-1" }),
		push.WithTransport(push.ChannelFCM, transport),
	)

	res, err := d.Send(context.Background(), push.NotificationRequest{
		Title: "T", Body: "B", Target: "u1", Data: map[string]string{"booking": "42"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	transport.AssertExpectations(t)
}

func TestDispatcher_Send_NotificationLog(t *testing.T) {
	t.Parallel()

	t.Run("records attempts with redacted endpoints", func(t *testing.T) {
		t.Parallel()

		reg := push.NewMemoryRegistry()
		seedU1(t, reg)
		log := push.NewMemoryLog(0)

		d := newTestDispatcher(reg,
			push.WithNotificationLog(log),
			push.WithTransport(push.ChannelWeb, alwaysDelivered()),
			push.WithTransport(push.ChannelFCM, outcomeByToken(map[string]push.Outcome{
				"tok-u1": push.TransientFailure("quota exceeded"),
			})),
		)

		res, err := d.Send(context.Background(), push.NotificationRequest{Title: "T", Body: "B", Target: "u1"})
		require.NoError(t, err)

		entries := log.Entries()
		require.Len(t, entries, 1)
		entry := entries[0]
		assert.Equal(t, res, entry.Result)
		assert.Equal(t, "u1", entry.Target)
		require.Len(t, entry.Attempts, 2)

		for _, a := range entry.Attempts {
			switch a.Channel {
			case push.ChannelWeb:
				assert.Equal(t, "delivered", a.Status)
				assert.Equal(t, "https://push.example", a.Endpoint)
			case push.ChannelFCM:
				assert.Equal(t, "transient", a.Status)
				assert.Equal(t, "quota exceeded", a.Reason)
				assert.Empty(t, a.Endpoint)
			}
		}
	})

	t.Run("log failure does not change result", func(t *testing.T) {
		t.Parallel()

		reg := push.NewMemoryRegistry()
		seedU1(t, reg)
		log := &MockLog{}
		log.On("Record", mock.Anything, mock.Anything).Return(errors.New("mongo down")).Once()

		d := newTestDispatcher(reg,
			push.WithNotificationLog(log),
			push.WithTransport(push.ChannelWeb, alwaysDelivered()),
			push.WithTransport(push.ChannelFCM, alwaysDelivered()),
		)

		res, err := d.Send(context.Background(), push.NotificationRequest{Title: "T", Body: "B", Target: "u1"})
		require.NoError(t, err)
		assert.Equal(t, push.DispatchResult{TotalTargeted: 2, Succeeded: 2}, res)
		log.AssertExpectations(t)
	})
}

func TestDispatcher_Send_ConcurrentSendsShareRegistry(t *testing.T) {
	t.Parallel()

	reg := push.NewMemoryRegistry()
	ctx := context.Background()
	for i := range 20 {
		require.NoError(t, reg.Upsert(ctx, fmt.Sprintf("u%d", i), push.ChannelFCM, push.Credential{Token: "dead"}))
	}

	d := newTestDispatcher(reg, push.WithTransport(push.ChannelFCM, outcomeByToken(map[string]push.Outcome{
		"dead": push.PermanentFailure("unregistered"),
	})))

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := d.Send(ctx, push.NotificationRequest{Title: "T", Body: "B"})
			assert.NoError(t, err)
			assertResultSums(t, res)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, reg.Len())
}
