package pushstore_test

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pushkit/pkg/push"
)

func webCredential(t *testing.T, endpoint string) push.Credential {
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

// testRegistry runs the behaviour every push.Registry implementation shares.
func testRegistry(t *testing.T, newRegistry func(t *testing.T) push.Registry) {
	t.Run("upsert replaces credential for the same key", func(t *testing.T) {
		reg := newRegistry(t)
		ctx := context.Background()

		require.NoError(t, reg.Upsert(ctx, "u1", push.ChannelFCM, push.Credential{Token: "old"}))
		first, err := reg.Resolve(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, first, 1)

		require.NoError(t, reg.Upsert(ctx, "u1", push.ChannelFCM, push.Credential{Token: "new"}))
		subs, err := reg.Resolve(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Equal(t, "new", subs[0].Credential.Token)
		assert.Equal(t, push.ChannelFCM, subs[0].Channel)
		assert.True(t, first[0].CreatedAt.Equal(subs[0].CreatedAt), "created_at must survive upsert")
	})

	t.Run("web and fcm coexist for one identity", func(t *testing.T) {
		reg := newRegistry(t)
		ctx := context.Background()
		web := webCredential(t, "https://updates.push.services.mozilla.com/wpush/v2/abc")

		require.NoError(t, reg.Upsert(ctx, "u1", push.ChannelWeb, web))
		require.NoError(t, reg.Upsert(ctx, "u1", push.ChannelFCM, push.Credential{Token: "tok"}))
		require.NoError(t, reg.Upsert(ctx, "u2", push.ChannelFCM, push.Credential{Token: "tok2"}))

		subs, err := reg.Resolve(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, subs, 2)

		byChannel := map[push.Channel]push.Subscription{}
		for _, s := range subs {
			byChannel[s.Channel] = s
		}
		assert.Equal(t, web, byChannel[push.ChannelWeb].Credential)
		assert.Equal(t, "tok", byChannel[push.ChannelFCM].Credential.Token)

		all, err := reg.Resolve(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("invalid input is rejected without side effects", func(t *testing.T) {
		reg := newRegistry(t)
		ctx := context.Background()

		err := reg.Upsert(ctx, " ", push.ChannelFCM, push.Credential{Token: "tok"})
		assert.True(t, push.IsValidationError(err))
		err = reg.Upsert(ctx, "u1", push.Channel("sms"), push.Credential{Token: "tok"})
		assert.True(t, push.IsValidationError(err))
		err = reg.Upsert(ctx, "u1", push.ChannelWeb, push.Credential{Endpoint: "https://push.example"})
		assert.True(t, push.IsValidationError(err))

		all, err := reg.Resolve(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("unknown target resolves empty", func(t *testing.T) {
		reg := newRegistry(t)
		subs, err := reg.Resolve(context.Background(), "ghost")
		require.NoError(t, err)
		assert.Empty(t, subs)
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		reg := newRegistry(t)
		ctx := context.Background()

		require.NoError(t, reg.Upsert(ctx, "u1", push.ChannelFCM, push.Credential{Token: "tok"}))
		require.NoError(t, reg.Remove(ctx, "u1", push.ChannelFCM))
		require.NoError(t, reg.Remove(ctx, "u1", push.ChannelFCM))
		require.NoError(t, reg.Remove(ctx, "never", push.ChannelWeb))

		subs, err := reg.Resolve(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, subs)
	})

	t.Run("prune deletes only listed keys", func(t *testing.T) {
		reg := newRegistry(t)
		ctx := context.Background()

		require.NoError(t, reg.Upsert(ctx, "u1", push.ChannelFCM, push.Credential{Token: "a"}))
		require.NoError(t, reg.Upsert(ctx, "u1", push.ChannelWeb, webCredential(t, "https://push.example/1")))
		require.NoError(t, reg.Upsert(ctx, "u2", push.ChannelFCM, push.Credential{Token: "b"}))

		require.NoError(t, reg.PruneInvalid(ctx, []push.Key{
			{Identity: "u1", Channel: push.ChannelFCM},
			{Identity: "u2", Channel: push.ChannelFCM},
			{Identity: "u3", Channel: push.ChannelWeb},
		}))
		require.NoError(t, reg.PruneInvalid(ctx, nil))

		subs, err := reg.Resolve(ctx, "")
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Equal(t, push.Key{Identity: "u1", Channel: push.ChannelWeb}, subs[0].Key())
	})

	t.Run("concurrent prunes of the same keys", func(t *testing.T) {
		reg := newRegistry(t)
		ctx := context.Background()

		var keys []push.Key
		for i := range 20 {
			id := fmt.Sprintf("u%02d", i)
			require.NoError(t, reg.Upsert(ctx, id, push.ChannelFCM, push.Credential{Token: id}))
			keys = append(keys, push.Key{Identity: id, Channel: push.ChannelFCM})
		}

		var wg sync.WaitGroup
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, reg.PruneInvalid(ctx, keys))
			}()
		}
		wg.Wait()

		subs, err := reg.Resolve(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, subs)
	})

	t.Run("drives a dispatch end to end", func(t *testing.T) {
		reg := newRegistry(t)
		ctx := context.Background()

		require.NoError(t, reg.Upsert(ctx, "u1", push.ChannelWeb, webCredential(t, "https://push.example/u1")))
		require.NoError(t, reg.Upsert(ctx, "u1", push.ChannelFCM, push.Credential{Token: "dead"}))

		d := push.NewDispatcher(reg,
			push.WithTransport(push.ChannelWeb, push.TransportFunc(func(context.Context, push.Credential, push.Payload) push.Outcome {
				return push.Delivered()
			})),
			push.WithTransport(push.ChannelFCM, push.TransportFunc(func(context.Context, push.Credential, push.Payload) push.Outcome {
				return push.PermanentFailure("token unregistered")
			})),
		)

		res, err := d.Send(ctx, push.NotificationRequest{Title: "T", Body: "B", Target: "u1"})
		require.NoError(t, err)
		assert.Equal(t, push.DispatchResult{TotalTargeted: 2, Succeeded: 1, FailedPermanent: 1}, res)

		subs, err := reg.Resolve(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Equal(t, push.ChannelWeb, subs[0].Channel)
	})
}
