package push

import (
	"encoding/json"
	"maps"
	"strings"

	"github.com/dmitrymomot/pushkit/pkg/validator"
)

// NotificationRequest is the input to Dispatcher.Send. An empty Target broadcasts
// to every registered subscription.
type NotificationRequest struct {
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Target string            `json:"target,omitempty"`
	Data   map[string]string `json:"data,omitempty"`
}

func (r NotificationRequest) Validate() error {
	return validationError(validator.Apply(
		validator.RequiredString("title", r.Title),
		validator.RequiredString("body", r.Body),
	))
}

// Broadcast reports whether the request targets every subscription.
func (r NotificationRequest) Broadcast() bool {
	return strings.TrimSpace(r.Target) == ""
}

// Payload is what a transport delivers. Data is passed through unmodified.
type Payload struct {
	DispatchID string            `json:"dispatch_id"`
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	Data       map[string]string `json:"data,omitempty"`
}

func newPayload(dispatchID string, req NotificationRequest) Payload {
	return Payload{
		DispatchID: dispatchID,
		Title:      req.Title,
		Body:       req.Body,
		Data:       maps.Clone(req.Data),
	}
}

// JSON encodes the payload the way the service worker of the web app reads it.
func (p Payload) JSON() ([]byte, error) {
	return json.Marshal(p)
}

// DispatchResult summarizes one Send call.
// Succeeded + FailedTransient + FailedPermanent always equals TotalTargeted.
type DispatchResult struct {
	TotalTargeted   int `json:"totalTargeted"`
	Succeeded       int `json:"succeeded"`
	FailedTransient int `json:"failedTransient"`
	FailedPermanent int `json:"failedPermanent"`
}
