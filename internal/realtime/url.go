package realtime

import (
	"fmt"
	"net/url"
	"strings"
)

// Channel selects which broadcast group the socket joins.
type Channel string

const (
	ChannelBar    Channel = "bar"
	ChannelWaiter Channel = "waiter"
	ChannelAdmin  Channel = "admin"
	ChannelCassa  Channel = "cassa"
)

// Channels lists every channel the backend serves.
var Channels = []Channel{ChannelBar, ChannelWaiter, ChannelAdmin, ChannelCassa}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	for _, known := range Channels {
		if c == known {
			return true
		}
	}
	return false
}

// SocketURL derives the push endpoint from the REST base URL:
// http becomes ws, https becomes wss, and the path gains /ws.
func SocketURL(baseURL string, ch Channel, token string) (string, error) {
	if !ch.Valid() {
		return "", fmt.Errorf("unknown channel %q", ch)
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("base url %q: unsupported scheme %q", baseURL, u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	q := url.Values{}
	q.Set("channel", string(ch))
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
