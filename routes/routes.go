package routes

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/zoneauth/app"
	"github.com/upb/zoneauth/broker"
	"github.com/upb/zoneauth/config"
	"github.com/upb/zoneauth/handlers"
	"github.com/upb/zoneauth/internal/observability"
	"github.com/upb/zoneauth/middleware"
	"github.com/upb/zoneauth/utils"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const handlerTimeout = 30 * time.Second

// SetupRoutes builds the handler for the zone deps were wired for.
func SetupRoutes(deps *app.Dependencies) (http.Handler, error) {
	var (
		h   http.Handler
		err error
	)

	switch zone := deps.Config.Zones.Active; zone {
	case config.ZoneFrontDoor:
		h = frontDoorRoutes(deps)
	case config.ZoneUser, config.ZoneAdmin:
		h, err = zoneRoutes(deps, zone)
	default:
		err = fmt.Errorf("no routes for zone %q", zone)
	}
	if err != nil {
		return nil, err
	}

	return chi.Chain(
		chimw.RequestID,
		chimw.RealIP,
		observability.RequestLogging(deps.Logger),
		chimw.Recoverer,
	).Handler(otelhttp.NewHandler(h, "zoneauth."+string(deps.Config.Zones.Active))), nil
}

// frontDoorRoutes serves sign-in and the landing page locally and hands
// every zone prefix to its upstream.
func frontDoorRoutes(deps *app.Dependencies) http.Handler {
	local := chi.NewRouter()
	local.Use(chimw.Timeout(handlerTimeout))
	local.Use(corsHandler(deps.Config.Zones))

	mountOps(local, deps)

	landing := handlers.NewZoneHandler(config.ZoneFrontDoor, deps.Gate.Zones())
	local.With(deps.Gate.Optional).Get("/", landing.HandleLanding)

	a := deps.AuthHandler
	local.Route("/auth", func(r chi.Router) {
		r.Get("/login", a.HandleLogin)
		r.Get("/signin", a.HandleLogin)
		r.Get("/callback", a.HandleCallback)
		r.Get("/logout", a.HandleLogout)
		r.Post("/logout", a.HandleLogout)
		r.With(deps.Gate.Optional).Get("/session", a.HandleSession)
		r.Get("/error", a.HandleError)
	})

	local.NotFound(notFound)

	return broker.NewFrontDoor(deps.ZoneRoutes, local, deps.Metrics, deps.Logger)
}

// zoneRoutes serves a protected zone. Sign-in traffic that reaches a zone
// directly is sent back to the front door unchanged.
func zoneRoutes(deps *app.Dependencies, zone config.Zone) (http.Handler, error) {
	frontDoor, err := deps.FrontDoorURL()
	if err != nil {
		return nil, fmt.Errorf("invalid front door url: %w", err)
	}

	r := chi.NewRouter()
	r.Use(corsHandler(deps.Config.Zones))

	r.Handle("/auth/*", broker.AuthPassthrough(frontDoor, deps.Metrics, deps.Logger))

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(handlerTimeout))
		mountOps(r, deps)

		home := handlers.NewZoneHandler(zone, deps.Gate.Zones())
		base := middleware.UserBasePath
		if zone == config.ZoneAdmin {
			base = middleware.AdminBasePath
		}

		r.Route(base, func(r chi.Router) {
			r.Use(deps.Gate.Protect(zone))
			r.Get("/", home.HandleHome)

			if zone == config.ZoneAdmin {
				admin := handlers.NewAdminHandler(deps.UserAdmin, deps.Logger)
				r.Route("/api/users", func(r chi.Router) {
					r.Get("/", admin.GetUser)
					r.Put("/role", admin.SetRole)
					r.Get("/{id}/audit", admin.AuditTrail)
				})
			}

			r.Get("/*", home.HandleHome)
		})
	})
	r.NotFound(notFound)

	return r, nil
}

// mountOps registers health, readiness and metrics endpoints.
func mountOps(r chi.Router, deps *app.Dependencies) {
	health := handlers.NewHealthHandler(deps.DB, deps.Config.Zones.Active, deps.Audit, deps.Logger)
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	if deps.Config.Observability.MetricsEnabled {
		r.Handle("/metrics", deps.Metrics.Handler())
	}
}

// corsHandler admits credentialed requests from the zone origins only.
func corsHandler(zones config.ZonesConfig) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   zones.Origins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteNotFound(w, "endpoint not found")
}
