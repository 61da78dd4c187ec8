package app

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/upb/zoneauth/auth"
	"github.com/upb/zoneauth/broker"
	"github.com/upb/zoneauth/config"
	"github.com/upb/zoneauth/internal/observability"
	"github.com/upb/zoneauth/middleware"
	"github.com/upb/zoneauth/oidc"
	"github.com/upb/zoneauth/repositories"
	"github.com/upb/zoneauth/repositories/postgres"
	"github.com/upb/zoneauth/services"
	"github.com/upb/zoneauth/services/audit"
	"github.com/upb/zoneauth/services/entitlement"
	"github.com/upb/zoneauth/services/identity"
	"github.com/upb/zoneauth/services/session"
	"github.com/upb/zoneauth/services/signin"
	"github.com/upb/zoneauth/services/users"
	"go.uber.org/zap"
)

// Dependencies holds everything one zone process needs. It is the only
// place collaborators are constructed.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	DB      *postgres.DB
	Logger  *zap.Logger
	Metrics *observability.Metrics

	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Users         repositories.UserRepository
	OAuthAccounts repositories.OAuthAccountRepository
	Tenants       repositories.TenantRepository
	AuditLogs     repositories.AuditRepository
	TxManager     repositories.TransactionManager

	// Core
	Audit      *audit.AuditService
	Resolver   *entitlement.Resolver
	Reconciler *identity.Reconciler
	Issuer     *session.Issuer
	Codec      *session.Codec
	Pipeline   *signin.Pipeline
	UserAdmin  *users.Service

	// Edge
	Cookies     *broker.CookieBroker
	Gate        *middleware.Gate
	ZoneRoutes  []broker.Route // front door zone only
	AuthHandler *auth.Handler  // front door zone only

	shutdownTracing observability.ShutdownFunc
}

// NewDependencies connects to the database and wires all dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create repository factory: %w", err)
	}

	deps, err := NewDependenciesWithFactory(ctx, cfg, factory, logger)
	if err != nil {
		_ = factory.Close()
		return nil, err
	}
	return deps, nil
}

// NewDependenciesWithFactory wires dependencies over an open repository
// factory and starts the audit workers.
func NewDependenciesWithFactory(ctx context.Context, cfg *config.Config, factory *postgres.RepositoryFactory, logger *zap.Logger) (*Dependencies, error) {
	d := &Dependencies{
		Config:      cfg,
		Logger:      logger.With(zap.String("zone", string(cfg.Zones.Active))),
		Metrics:     observability.NewMetrics(),
		RepoFactory: factory,
		DB:          factory.GetDB(),
	}

	shutdown, err := observability.SetupTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Observability.TracingEnabled,
		ServiceName: cfg.Observability.ServiceName,
		Zone:        string(cfg.Zones.Active),
		Endpoint:    cfg.Observability.TracingEndpoint,
		Insecure:    cfg.Observability.TracingInsecure,
		SampleRate:  cfg.Observability.TracingSampleRate,
	}, d.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}
	d.shutdownTracing = shutdown

	d.initRepositories()
	if err := d.initCore(); err != nil {
		return nil, err
	}
	if err := d.initEdge(); err != nil {
		_ = d.Audit.Stop(time.Second)
		return nil, err
	}

	d.Logger.Info("all dependencies initialized successfully")
	return d, nil
}

func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()

	d.Users = repos.Users
	d.OAuthAccounts = repos.OAuthAccounts
	d.Tenants = repos.Tenants
	d.AuditLogs = repos.AuditLogs
	d.TxManager = d.RepoFactory.GetTransactionManager()
}

func (d *Dependencies) initCore() error {
	cfg := d.Config

	d.Audit = audit.NewAuditService(d.AuditLogs, d.Logger, audit.Config{
		BufferSize:  cfg.Audit.BufferSize,
		WorkerCount: cfg.Audit.WorkerCount,
	})
	if err := d.Audit.Start(); err != nil {
		return fmt.Errorf("failed to start audit service: %w", err)
	}
	d.Metrics.TrackAuditDrops(func() int64 { return d.Audit.GetStats().Dropped })

	d.Resolver = entitlement.NewResolver(d.Tenants, d.Logger)
	d.Reconciler = identity.NewReconciler(identity.Deps{
		Users:     d.Users,
		Accounts:  d.OAuthAccounts,
		Tenants:   d.Tenants,
		AuditLogs: d.AuditLogs,
		TxManager: d.TxManager,
		Events:    d.Audit,
	}, d.Logger)
	d.Issuer = session.NewIssuer(d.Users, d.Resolver, cfg.Session.Issuer, cfg.Session.MaxAge, d.Logger)
	d.Codec = session.NewCodec(cfg.Session.Secret, cfg.Session.Issuer)
	d.Pipeline = signin.NewPipeline(d.Reconciler, d.Resolver, d.Issuer, d.Audit, d.Metrics, d.Logger)
	d.UserAdmin = users.NewService(d.Users, d.AuditLogs, d.TxManager, d.Logger)
	return nil
}

func (d *Dependencies) initEdge() error {
	cfg := d.Config

	d.Cookies = broker.NewCookieBroker(cfg.Session.CookieName, cfg.Session.CookieDomain, cfg.Session.SecureCookies)
	d.Gate = middleware.NewGate(d.Codec, d.Cookies, d.Pipeline, cfg.Zones, d.Metrics, d.Logger)

	if cfg.Zones.Active != config.ZoneFrontDoor {
		return nil
	}

	routes, err := zoneRoutes(cfg.Zones)
	if err != nil {
		return err
	}
	d.ZoneRoutes = routes

	if cfg.OAuth.ClientID == "" {
		d.Logger.Warn("oauth client not configured, sign-in disabled")
		d.AuthHandler = auth.NewHandler(cfg.OAuth.Provider, nil, nil, d.Pipeline, d.Codec, d.Cookies, cfg.Zones, d.Logger)
		return nil
	}

	verifier := oidc.NewVerifier(oidc.Config{
		Issuer:      cfg.OAuth.Issuer,
		ClientID:    cfg.OAuth.ClientID,
		JWKSURL:     cfg.OAuth.JWKSURL,
		CacheTTL:    time.Hour,
		HTTPTimeout: 10 * time.Second,
	})
	exchanger := services.NewOAuthExchanger(cfg.OAuth)
	d.AuthHandler = auth.NewHandler(cfg.OAuth.Provider, exchanger, verifier, d.Pipeline, d.Codec, d.Cookies, cfg.Zones, d.Logger)
	d.Logger.Info("auth handler initialized", zap.String("provider", cfg.OAuth.Provider))
	return nil
}

// zoneRoutes builds the front-door fan-out table from the zone origins.
func zoneRoutes(zones config.ZonesConfig) ([]broker.Route, error) {
	specs := []struct {
		zone, prefix, origin string
	}{
		{string(config.ZoneUser), middleware.UserBasePath, zones.UserURL},
		{string(config.ZoneAdmin), middleware.AdminBasePath, zones.AdminURL},
		{"tenant", middleware.TenantBasePath, zones.TenantURL},
	}

	routes := make([]broker.Route, 0, len(specs))
	for _, s := range specs {
		if s.origin == "" {
			continue
		}
		route, err := broker.ParseRoute(s.zone, s.prefix, s.origin)
		if err != nil {
			return nil, fmt.Errorf("invalid %s zone url: %w", s.zone, err)
		}
		routes = append(routes, route)
	}
	return routes, nil
}

// FrontDoorURL is the parsed front door origin
func (d *Dependencies) FrontDoorURL() (*url.URL, error) {
	return url.Parse(d.Config.Zones.FrontDoorURL)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// drain audit events before the pool goes away
	if d.Audit != nil {
		timeout := 5 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.Audit.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.shutdownTracing != nil {
		if err := d.shutdownTracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down tracing: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	_ = d.Logger.Sync()

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}
	return nil
}
