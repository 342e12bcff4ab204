package push

import "context"

// Transport delivers one payload to one credential. Implementations never
// panic across this boundary and report every failure as an Outcome.
type Transport interface {
	Deliver(ctx context.Context, cred Credential, payload Payload) Outcome
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, cred Credential, payload Payload) Outcome

func (f TransportFunc) Deliver(ctx context.Context, cred Credential, payload Payload) Outcome {
	return f(ctx, cred, payload)
}

// UnconfiguredTransport stands in for a channel whose process-wide credentials
// are missing. Every delivery fails permanently so dead-ended subscriptions
// surface in results instead of crashing the process.
type UnconfiguredTransport struct {
	Channel Channel
}

func (t UnconfiguredTransport) Deliver(context.Context, Credential, Payload) Outcome {
	return PermanentFailure("%s: channel unconfigured", t.Channel)
}
