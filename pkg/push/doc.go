// Package push delivers one logical notification to every device an identity
// has registered, across browser Web-Push subscriptions and FCM device tokens.
//
// # Architecture
//
//   - Registry: durable (identity, channel) to credential store
//   - Transport: delivers one payload to one credential and classifies the result
//   - Dispatcher: resolves targets, fans out concurrently, prunes dead credentials
//   - NotificationLog: optional best-effort record of each dispatch
//
// # Basic Usage
//
//	registry := push.NewMemoryRegistry()
//	web, err := push.NewWebPushTransport(cfg.WebPush)
//	if err != nil {
//	    return err
//	}
//
//	dispatcher := push.NewDispatcher(registry,
//	    push.WithTransport(push.ChannelWeb, web),
//	    push.WithDeliverTimeout(10*time.Second),
//	)
//
//	result, err := dispatcher.Send(ctx, push.NotificationRequest{
//	    Title:  "Check-in",
//	    Body:   "Guests arrive at Villa 3 in one hour",
//	    Target: "housekeeping-7",
//	})
//
// # Outcomes
//
// Every delivery resolves to exactly one Outcome. Delivered counts as success.
// TransientFailure leaves the registry untouched. PermanentFailure means the
// credential is dead; the dispatcher removes all such subscriptions in one
// PruneInvalid batch after the fan-out completes.
//
// A channel without a transport, or with UnconfiguredTransport, fails every
// recipient permanently instead of failing the whole dispatch.
//
// # Concurrency
//
// Each Send runs one task per subscription, bounded by WithMaxConcurrency.
// Every call is limited by WithDeliverTimeout even when a transport ignores its
// context, so one slow push service delays a broadcast by at most that timeout.
// Counts are folded on a single goroutine after all tasks join.
package push
