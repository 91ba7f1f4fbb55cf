package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateSeedURL trims raw and checks that it is an absolute http(s) URL.
func ValidateSeedURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", InvalidInputf("url is required")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", InvalidInputf("parse url: %v", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Host == "" {
		return "", InvalidInputf("url must be absolute http(s), got %q", trimmed)
	}
	return trimmed, nil
}

// DisplayURL prefixes URLs lacking an http scheme with "http://".
// The stored URL is never rewritten.
func DisplayURL(raw string) string {
	if strings.HasPrefix(raw, "http") {
		return raw
	}
	return fmt.Sprintf("http://%s", raw)
}
