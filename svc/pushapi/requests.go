package pushapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrymomot/pushkit/pkg/push"
	"github.com/dmitrymomot/pushkit/pkg/validator"
)

// webSubscription is the PushSubscription.toJSON() shape browsers produce.
type webSubscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

func (s webSubscription) credential() push.Credential {
	return push.Credential{Endpoint: s.Endpoint, P256dh: s.Keys.P256dh, Auth: s.Keys.Auth}
}

type registerRequest struct {
	Identity     string           `json:"identity"`
	Username     string           `json:"username"`
	Channel      string           `json:"channel"`
	Platform     string           `json:"platform"`
	Credential   *push.Credential `json:"credential"`
	Token        string           `json:"token"`
	Subscription *webSubscription `json:"subscription"`
}

func (r registerRequest) identity() string {
	return firstNonEmpty(r.Identity, r.Username)
}

// resolve returns the channel and credential. Web clients that only know
// "token" send the serialized subscription in it.
func (r registerRequest) resolve() (push.Channel, push.Credential, error) {
	channel, err := parseChannel(firstNonEmpty(r.Channel, r.Platform))
	if err != nil {
		return "", push.Credential{}, err
	}

	switch {
	case r.Credential != nil:
		return channel, *r.Credential, nil
	case r.Subscription != nil:
		return channel, r.Subscription.credential(), nil
	case channel == push.ChannelWeb && strings.HasPrefix(strings.TrimSpace(r.Token), "{"):
		var sub webSubscription
		if err := json.Unmarshal([]byte(r.Token), &sub); err != nil {
			return "", push.Credential{}, errors.Join(push.ErrValidation, validator.ValidationErrors{
				{Field: "token", Message: "must be a serialized push subscription"},
			})
		}
		return channel, sub.credential(), nil
	case channel == push.ChannelWeb:
		return channel, push.Credential{Endpoint: r.Token}, nil
	default:
		return channel, push.Credential{Token: r.Token}, nil
	}
}

type unregisterRequest struct {
	Identity string `json:"identity"`
	Username string `json:"username"`
	Channel  string `json:"channel"`
	Platform string `json:"platform"`
}

func (r unregisterRequest) resolve() (string, push.Channel, error) {
	identity := firstNonEmpty(r.Identity, r.Username)
	if err := validator.Apply(validator.RequiredString("identity", identity)); err != nil {
		return "", "", errors.Join(push.ErrValidation, err)
	}
	channel, err := parseChannel(firstNonEmpty(r.Channel, r.Platform))
	if err != nil {
		return "", "", err
	}
	return identity, channel, nil
}

type sendRequest struct {
	Title    string         `json:"title"`
	Body     string         `json:"body"`
	Target   string         `json:"target"`
	Username string         `json:"username"`
	Data     map[string]any `json:"data"`
}

// notification converts the body into a dispatcher request. Push services
// accept string data only, so other JSON values are sent in their encoded form.
func (r sendRequest) notification() (push.NotificationRequest, error) {
	var data map[string]string
	if len(r.Data) > 0 {
		data = make(map[string]string, len(r.Data))
		for k, v := range r.Data {
			switch val := v.(type) {
			case string:
				data[k] = val
			case nil:
				data[k] = ""
			default:
				raw, err := json.Marshal(val)
				if err != nil {
					return push.NotificationRequest{}, fmt.Errorf("%w: data.%s: %w", ErrInvalidBody, k, err)
				}
				data[k] = string(raw)
			}
		}
	}
	return push.NotificationRequest{
		Title:  r.Title,
		Body:   r.Body,
		Target: firstNonEmpty(r.Target, r.Username),
		Data:   data,
	}, nil
}

type vapidKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func parseChannel(raw string) (push.Channel, error) {
	if err := validator.Apply(validator.RequiredString("channel", raw)); err != nil {
		return "", errors.Join(push.ErrValidation, err)
	}
	return push.ParseChannel(raw)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
