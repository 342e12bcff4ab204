package push

import (
	"fmt"
	"strings"
)

// Channel identifies a delivery protocol family.
type Channel string

const (
	// ChannelWeb is a browser Web-Push subscription (VAPID + aes128gcm).
	ChannelWeb Channel = "web"
	// ChannelFCM is a Firebase Cloud Messaging device token.
	ChannelFCM Channel = "fcm"
)

// Channels returns every supported channel.
func Channels() []Channel {
	return []Channel{ChannelWeb, ChannelFCM}
}

func (c Channel) Valid() bool {
	switch c {
	case ChannelWeb, ChannelFCM:
		return true
	default:
		return false
	}
}

func (c Channel) String() string {
	return string(c)
}

// ParseChannel normalizes a client supplied channel name. Mobile clients
// report their platform rather than the channel, so "android" and "ios" map
// to ChannelFCM and "webpush"/"pwa" map to ChannelWeb.
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "web", "webpush", "web-push", "pwa":
		return ChannelWeb, nil
	case "fcm", "android", "ios":
		return ChannelFCM, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, s)
	}
}
