package middleware

import (
	"net/url"
	"strings"

	"github.com/upb/zoneauth/config"
	"github.com/upb/zoneauth/models"
)

// Base paths the zones are mounted under. The front door proxies these
// prefixes without rewriting them.
const (
	UserBasePath   = "/user"
	AdminBasePath  = "/admin"
	TenantBasePath = "/tenant"
)

// zoneRoles lists who may enter each protected zone.
var zoneRoles = map[config.Zone][]models.UserRole{
	config.ZoneUser:  {models.RoleUser},
	config.ZoneAdmin: {models.RoleAdmin, models.RoleSuperAdmin},
}

// Allows reports whether role may enter zone. The front door admits
// everyone, including anonymous visitors.
func Allows(zone config.Zone, role models.UserRole) bool {
	if zone == config.ZoneFrontDoor {
		return true
	}
	for _, r := range zoneRoles[zone] {
		if r.Is(role) {
			return true
		}
	}
	return false
}

// ZoneURLs holds the public entry point of each zone.
type ZoneURLs struct {
	FrontDoor string
	User      string
	Admin     string
}

// NewZoneURLs derives zone home URLs from configured origins.
func NewZoneURLs(cfg config.ZonesConfig) ZoneURLs {
	return ZoneURLs{
		FrontDoor: strings.TrimSuffix(cfg.FrontDoorURL, "/"),
		User:      strings.TrimSuffix(cfg.UserURL, "/") + UserBasePath,
		Admin:     strings.TrimSuffix(cfg.AdminURL, "/") + AdminBasePath,
	}
}

// RedirectTarget is the home of the zone a role belongs in. It depends on
// the role alone.
func RedirectTarget(role models.UserRole, zones ZoneURLs) string {
	switch {
	case role.Is(models.RoleAdmin), role.Is(models.RoleSuperAdmin):
		return zones.Admin
	case role.Is(models.RoleUser):
		return zones.User
	default:
		return zones.FrontDoor
	}
}

// LoginURL is the front-door sign-in entry that returns to callback.
func (z ZoneURLs) LoginURL(callback string) string {
	u := z.FrontDoor + "/auth/login"
	if callback == "" {
		return u
	}
	return u + "?" + url.Values{"callbackUrl": {callback}}.Encode()
}
