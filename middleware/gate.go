package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/upb/zoneauth/config"
	"github.com/upb/zoneauth/internal/observability"
	"github.com/upb/zoneauth/services/session"
	"github.com/upb/zoneauth/utils"
	"go.uber.org/zap"
)

// TokenCodec verifies and re-signs session tokens
type TokenCodec interface {
	Sign(claims *session.Claims) (string, error)
	Parse(token string) (*session.Claims, error)
}

// TokenReader finds the session token on a request and (re)writes the cookie
type TokenReader interface {
	Read(r *http.Request) (string, bool)
	Set(w http.ResponseWriter, token string, expiresAt time.Time)
	Clear(w http.ResponseWriter)
}

// Refresher re-derives claims from storage
type Refresher interface {
	Refresh(ctx context.Context, c *session.Claims) *session.Claims
}

// Gate decisions reported to metrics
const (
	DecisionAllow    = "allow"
	DecisionLogin    = "login"
	DecisionRedirect = "redirect"
)

// Gate enforces zone membership. A request passes three checks: the edge
// check on the token as presented, a refresh against storage, and a
// page-entry check on the refreshed role.
type Gate struct {
	codec     TokenCodec
	cookies   TokenReader
	refresher Refresher
	zones     ZoneURLs
	origins   map[config.Zone]string
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewGate creates a Gate
func NewGate(codec TokenCodec, cookies TokenReader, refresher Refresher, zonesCfg config.ZonesConfig, metrics *observability.Metrics, logger *zap.Logger) *Gate {
	return &Gate{
		codec:     codec,
		cookies:   cookies,
		refresher: refresher,
		zones:     NewZoneURLs(zonesCfg),
		origins: map[config.Zone]string{
			config.ZoneFrontDoor: strings.TrimSuffix(zonesCfg.FrontDoorURL, "/"),
			config.ZoneUser:      strings.TrimSuffix(zonesCfg.UserURL, "/"),
			config.ZoneAdmin:     strings.TrimSuffix(zonesCfg.AdminURL, "/"),
		},
		metrics: metrics,
		logger:  logger,
	}
}

// Zones returns the zone URLs the gate redirects to
func (g *Gate) Zones() ZoneURLs { return g.zones }

// Protect chains EdgeCheck, Refresh and PageEntry for zone.
func (g *Gate) Protect(zone config.Zone) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return g.EdgeCheck(zone)(g.Refresh(g.PageEntry(zone)(next)))
	}
}

// EdgeCheck rejects requests without a valid session for zone. Missing,
// malformed, badly signed and expired tokens all go to sign-in; a role
// outside the zone goes to that role's zone.
func (g *Gate) EdgeCheck(zone config.Zone) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := observability.RequestLogger(r.Context(), g.logger)

			claims, ok := g.authenticate(r)
			if !ok {
				g.metrics.Gate(string(zone), DecisionLogin)
				g.toLogin(w, r, zone)
				return
			}

			if !Allows(zone, claims.Role) {
				target := RedirectTarget(claims.Role, g.zones)
				logger.Info("role not allowed in zone",
					zap.String("zone", string(zone)),
					zap.String("role", string(claims.Role)),
					zap.String("redirect", target))
				g.metrics.Gate(string(zone), DecisionRedirect)
				g.redirect(w, r, target, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// Refresh re-derives the claims in context and re-issues the cookie with
// the original expiry.
func (g *Gate) Refresh(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetClaimsFromContext(r.Context())
		if claims == nil {
			next.ServeHTTP(w, r)
			return
		}

		refreshed := g.refresher.Refresh(r.Context(), claims)
		token, err := g.codec.Sign(refreshed)
		if err != nil {
			observability.RequestLogger(r.Context(), g.logger).Error("failed to re-sign session", zap.Error(err))
		} else {
			g.cookies.Set(w, token, refreshed.ExpiresAtTime())
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), refreshed)))
	})
}

// PageEntry re-checks the refreshed role against zone.
func (g *Gate) PageEntry(zone config.Zone) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaimsFromContext(r.Context())
			if claims == nil {
				g.metrics.Gate(string(zone), DecisionLogin)
				g.toLogin(w, r, zone)
				return
			}
			if !Allows(zone, claims.Role) {
				g.metrics.Gate(string(zone), DecisionRedirect)
				g.redirect(w, r, RedirectTarget(claims.Role, g.zones), http.StatusForbidden)
				return
			}
			g.metrics.Gate(string(zone), DecisionAllow)
			next.ServeHTTP(w, r)
		})
	}
}

// Optional attaches refreshed claims when a valid token is present and
// never redirects. Used by front-door pages and GET /auth/session.
func (g *Gate) Optional(next http.Handler) http.Handler {
	refresh := g.Refresh(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := g.authenticate(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		refresh.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func (g *Gate) authenticate(r *http.Request) (*session.Claims, bool) {
	token, ok := g.cookies.Read(r)
	if !ok {
		return nil, false
	}
	claims, err := g.codec.Parse(token)
	if err != nil {
		observability.RequestLogger(r.Context(), g.logger).Debug("session token rejected", zap.Error(err))
		return nil, false
	}
	return claims, true
}

func (g *Gate) toLogin(w http.ResponseWriter, r *http.Request, zone config.Zone) {
	callback := g.origins[zone] + r.URL.RequestURI()
	g.redirect(w, r, g.zones.LoginURL(callback), http.StatusUnauthorized)
}

// redirect sends browsers to target; API clients get a JSON error with
// status instead.
func (g *Gate) redirect(w http.ResponseWriter, r *http.Request, target string, status int) {
	if wantsJSON(r) {
		_ = utils.WriteError(w, status, "session does not grant access to this zone", map[string]interface{}{
			"redirect": target,
		})
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func wantsJSON(r *http.Request) bool {
	if _, ok := BearerToken(r); ok {
		return true
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}

// BearerToken extracts the token from an Authorization: Bearer header.
func BearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
