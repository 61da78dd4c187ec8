// Package broker carries the session token between zones: one shared
// cookie, and a front-door reverse proxy that fans requests out by path.
package broker

import (
	"net/http"
	"strings"
	"time"
)

// CookieBroker reads and writes the session cookie.
type CookieBroker struct {
	Name   string
	Domain string
	Secure bool
	now    func() time.Time
}

// NewCookieBroker creates a CookieBroker
func NewCookieBroker(name, domain string, secure bool) *CookieBroker {
	return &CookieBroker{Name: name, Domain: domain, Secure: secure, now: time.Now}
}

// Set writes token with a lifetime that ends at expiresAt. Re-setting a
// refreshed token with the same expiresAt never extends the session.
func (b *CookieBroker) Set(w http.ResponseWriter, token string, expiresAt time.Time) {
	maxAge := int(expiresAt.Sub(b.now()).Seconds())
	if maxAge <= 0 {
		b.Clear(w)
		return
	}
	http.SetCookie(w, b.cookie(token, maxAge, expiresAt))
}

// Read returns the session token from the cookie, falling back to an
// Authorization: Bearer header.
func (b *CookieBroker) Read(r *http.Request) (string, bool) {
	if c, err := r.Cookie(b.Name); err == nil && c.Value != "" {
		return c.Value, true
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// Clear expires the session cookie.
func (b *CookieBroker) Clear(w http.ResponseWriter) {
	http.SetCookie(w, b.cookie("", -1, time.Unix(0, 0)))
}

func (b *CookieBroker) cookie(value string, maxAge int, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     b.Name,
		Value:    value,
		Path:     "/",
		Domain:   b.Domain,
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   b.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// FlowCookieTTL bounds the OAuth round trip
const FlowCookieTTL = 10 * time.Minute

// SetFlowCookie stores a short-lived value for the OAuth round trip
// (state, callback URL).
func (b *CookieBroker) SetFlowCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  b.now().Add(FlowCookieTTL),
		MaxAge:   int(FlowCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   b.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// TakeFlowCookie returns the named flow cookie and clears it.
func (b *CookieBroker) TakeFlowCookie(w http.ResponseWriter, r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   b.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return c.Value
}
