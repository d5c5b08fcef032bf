package detection

import (
	"fmt"
	"net/url"
	"strings"
)

// SessionURL builds ws(s)://host/ws/camera/<sessionID>[?token=...] from the
// detection service base URL. http and https bases are mapped to ws and wss.
func SessionURL(base, sessionID, token string) (string, error) {
	if strings.TrimSpace(sessionID) == "" || strings.ContainsAny(sessionID, "/?#") {
		return "", ErrInvalidSession
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse detection base url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("detection base url: unsupported scheme %q", u.Scheme)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/camera/" + sessionID

	q := url.Values{}
	if token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}
