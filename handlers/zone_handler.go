package handlers

import (
	"net/http"

	"github.com/upb/zoneauth/config"
	"github.com/upb/zoneauth/middleware"
	"github.com/upb/zoneauth/services/session"
	"github.com/upb/zoneauth/utils"
)

// ZonePage is the body of a zone home
type ZonePage struct {
	Zone    config.Zone       `json:"zone"`
	Session *session.Session  `json:"session,omitempty"`
	Links   map[string]string `json:"links"`
}

// ZoneHandler serves the entry pages of a zone
type ZoneHandler struct {
	zone  config.Zone
	zones middleware.ZoneURLs
}

// NewZoneHandler creates a ZoneHandler for zone
func NewZoneHandler(zone config.Zone, zones middleware.ZoneURLs) *ZoneHandler {
	return &ZoneHandler{zone: zone, zones: zones}
}

// HandleLanding is the front door home. Signed-in visitors are sent to
// the zone their role belongs in.
func (h *ZoneHandler) HandleLanding(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims != nil {
		if target := middleware.RedirectTarget(claims.Role, h.zones); target != h.zones.FrontDoor {
			http.Redirect(w, r, target, http.StatusFound)
			return
		}
	}

	_ = utils.WriteOK(w, ZonePage{
		Zone:    h.zone,
		Session: view(claims),
		Links: map[string]string{
			"signIn": h.zones.LoginURL(""),
		},
	})
}

// HandleHome is the home of a protected zone. The gate has already placed
// the refreshed claims in the context.
func (h *ZoneHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		_ = utils.WriteUnauthorized(w, "")
		return
	}
	_ = utils.WriteOK(w, ZonePage{
		Zone:    h.zone,
		Session: view(claims),
		Links: map[string]string{
			"frontDoor": h.zones.FrontDoor,
			"signOut":   h.zones.FrontDoor + "/auth/logout",
		},
	})
}

func view(c *session.Claims) *session.Session {
	if c == nil {
		return nil
	}
	v := c.View()
	return &v
}
