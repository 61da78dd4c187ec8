package utils

import (
	"net/url"
	"strings"
)

// SafeCallbackURL returns raw when it is a same-site relative path or an
// absolute URL on one of the allowed origins.
func SafeCallbackURL(raw string, allowedOrigins []string) (string, bool) {
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	if !u.IsAbs() {
		// "//evil.example" and "/\evil.example" are host-relative in browsers
		if u.Host != "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
			return "", false
		}
		return raw, true
	}

	origin := Origin(u)
	for _, allowed := range allowedOrigins {
		a, err := url.Parse(allowed)
		if err != nil || a.Host == "" {
			continue
		}
		if strings.EqualFold(Origin(a), origin) {
			return raw, true
		}
	}
	return "", false
}

// Origin is scheme://host[:port] of u.
func Origin(u *url.URL) string {
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}
