package push

import (
	"strings"
	"time"

	"github.com/dmitrymomot/pushkit/pkg/validator"
)

const maxIdentityLen = 255

// Credential holds the channel specific delivery credentials. Web
// subscriptions use Endpoint, P256dh and Auth; FCM registrations use Token.
type Credential struct {
	Endpoint string `json:"endpoint,omitempty"`
	P256dh   string `json:"p256dh,omitempty"`
	Auth     string `json:"auth,omitempty"`
	Token    string `json:"token,omitempty"`
}

// Normalize trims whitespace and drops the fields that do not belong to channel.
func (c Credential) Normalize(channel Channel) Credential {
	switch channel {
	case ChannelWeb:
		return Credential{
			Endpoint: strings.TrimSpace(c.Endpoint),
			P256dh:   strings.TrimSpace(c.P256dh),
			Auth:     strings.TrimSpace(c.Auth),
		}
	case ChannelFCM:
		return Credential{Token: strings.TrimSpace(c.Token)}
	default:
		return c
	}
}

// Validate checks the credential shape for channel.
func (c Credential) Validate(channel Channel) error {
	var rules []validator.Rule
	switch channel {
	case ChannelWeb:
		rules = []validator.Rule{
			validator.RequiredString("endpoint", c.Endpoint),
			validator.ValidURLWithScheme("endpoint", c.Endpoint, []string{"https", "http"}),
			validator.RequiredString("p256dh", c.P256dh),
			validator.RequiredString("auth", c.Auth),
		}
	case ChannelFCM:
		rules = []validator.Rule{
			validator.RequiredString("token", c.Token),
		}
	default:
		rules = []validator.Rule{
			validator.OneOfString("channel", string(channel), []string{string(ChannelWeb), string(ChannelFCM)}),
		}
	}
	return validator.Apply(rules...)
}

// Key identifies a subscription. At most one subscription exists per key.
type Key struct {
	Identity string  `json:"identity"`
	Channel  Channel `json:"channel"`
}

// Subscription is one device's ability to receive pushes.
type Subscription struct {
	Identity   string     `json:"identity"`
	Channel    Channel    `json:"channel"`
	Credential Credential `json:"credential"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (s Subscription) Key() Key {
	return Key{Identity: s.Identity, Channel: s.Channel}
}

// ValidateRegistration validates an Upsert call and returns the normalized
// identity and credential. Registry implementations call it before touching
// storage so that every backend rejects the same input.
func ValidateRegistration(identity string, channel Channel, cred Credential) (string, Credential, error) {
	identity = strings.TrimSpace(identity)
	cred = cred.Normalize(channel)

	err := validator.Apply(
		validator.RequiredString("identity", identity),
		validator.MaxLenString("identity", identity, maxIdentityLen),
	)
	verrs := validator.ExtractValidationErrors(err)
	if cerr := validator.ExtractValidationErrors(cred.Validate(channel)); cerr != nil {
		verrs = append(verrs, cerr...)
	}
	if !verrs.IsEmpty() {
		return "", Credential{}, validationError(verrs)
	}
	return identity, cred, nil
}
