package transport

import (
	"fmt"
	"net/url"
	"strings"
)

// Endpoint derives the stream URL for a mission from the agent server's base
// URL: http becomes ws, https becomes wss, and "/ws/<id>" is appended.
func Endpoint(base, missionID string) (string, error) {
	if missionID == "" {
		return "", fmt.Errorf("endpoint: empty mission id")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("endpoint: parse %q: %w", base, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("endpoint: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("endpoint: missing host in %q", base)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/" + missionID
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
