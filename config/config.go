package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Zone identifies which deployment this process serves.
type Zone string

const (
	ZoneFrontDoor Zone = "frontdoor"
	ZoneUser      Zone = "user"
	ZoneAdmin     Zone = "admin"
)

// ParseZone accepts the zone names used by ZONE and --zone.
func ParseZone(s string) (Zone, error) {
	switch Zone(strings.ToLower(strings.TrimSpace(s))) {
	case ZoneFrontDoor, "host", "":
		return ZoneFrontDoor, nil
	case ZoneUser:
		return ZoneUser, nil
	case ZoneAdmin:
		return ZoneAdmin, nil
	}
	return "", fmt.Errorf("unknown zone %q (want frontdoor, user or admin)", s)
}

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	OAuth         OAuthConfig
	Session       SessionConfig
	Zones         ZonesConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// OAuthConfig holds the identity provider settings (Google by default).
type OAuthConfig struct {
	Provider     string
	ClientID     string
	ClientSecret string
	RedirectURI  string // defaults to <front door>/auth/callback
	Scopes       []string
	Issuer       string
	JWKSURL      string
	AuthURL      string // empty uses the provider's published endpoint
	TokenURL     string
}

// SessionConfig holds session token and cookie settings
type SessionConfig struct {
	Secret        string
	Issuer        string
	CookieName    string
	CookieDomain  string
	MaxAge        time.Duration
	SecureCookies bool
}

// ZonesConfig holds the public origin of every zone and the zone this
// process serves.
type ZonesConfig struct {
	Active       Zone
	FrontDoorURL string
	UserURL      string
	AdminURL     string
	TenantURL    string // optional
}

// AuditConfig sizes the asynchronous audit writer
type AuditConfig struct {
	BufferSize  int
	WorkerCount int
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	ServiceName       string
	LogLevel          string
	LogFormat         string // json or console
	MetricsEnabled    bool
	TracingEnabled    bool
	TracingEndpoint   string
	TracingInsecure   bool
	TracingSampleRate float64
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: loadDatabaseConfig(),
		Zones:    loadZonesConfig(),
		Audit: AuditConfig{
			BufferSize:  getEnvAsInt("AUDIT_BUFFER_SIZE", 1000),
			WorkerCount: getEnvAsInt("AUDIT_WORKERS", 2),
		},
		Observability: ObservabilityConfig{
			ServiceName:       getEnv("OTEL_SERVICE_NAME", "zoneauth"),
			LogLevel:          getEnv("LOG_LEVEL", "info"),
			LogFormat:         getEnv("LOG_FORMAT", "json"),
			MetricsEnabled:    getEnvAsBool("METRICS_ENABLED", true),
			TracingEnabled:    getEnvAsBool("TRACING_ENABLED", false),
			TracingEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			TracingInsecure:   getEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", false),
			TracingSampleRate: getEnvAsFloat("TRACING_SAMPLE_RATE", 1.0),
		},
	}
	cfg.Server.TLS.Enabled = getEnvAsBool("TLS_ENABLED", false)
	cfg.Server.TLS.CertFile = getEnv("TLS_CERT_FILE", "certs/cert.pem")
	cfg.Server.TLS.KeyFile = getEnv("TLS_KEY_FILE", "certs/key.pem")

	cfg.OAuth = OAuthConfig{
		Provider:     getEnv("OAUTH_PROVIDER", "google"),
		ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		RedirectURI:  getEnv("OAUTH_REDIRECT_URI", strings.TrimRight(cfg.Zones.FrontDoorURL, "/")+"/auth/callback"),
		Scopes:       getEnvAsList("OAUTH_SCOPES", []string{"openid", "email", "profile"}),
		Issuer:       getEnv("OAUTH_ISSUER", "https://accounts.google.com"),
		JWKSURL:      getEnv("OAUTH_JWKS_URL", "https://www.googleapis.com/oauth2/v3/certs"),
		AuthURL:      getEnv("OAUTH_AUTH_URL", ""),
		TokenURL:     getEnv("OAUTH_TOKEN_URL", ""),
	}

	cfg.Session = SessionConfig{
		Secret:        getEnv("SESSION_SECRET", getEnv("NEXTAUTH_SECRET", "")),
		Issuer:        getEnv("SESSION_ISSUER", "zoneauth"),
		CookieName:    getEnv("SESSION_COOKIE_NAME", "zoneauth.session-token"),
		CookieDomain:  getEnv("SESSION_COOKIE_DOMAIN", ""),
		MaxAge:        getEnvAsDuration("SESSION_MAX_AGE", 30*24*time.Hour),
		SecureCookies: getEnvAsBool("SESSION_SECURE_COOKIES", cfg.IsProduction()),
	}
	if cfg.Session.Secret == "" && !cfg.IsProduction() {
		cfg.Session.Secret = "development-only-session-secret-change-me"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Database.ConnectionString == "" && c.Database.Host == "" {
		return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
	}
	if c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.Session.Secret == "" {
		return fmt.Errorf("session secret is required")
	}
	if c.Session.MaxAge <= 0 {
		return fmt.Errorf("session max age must be positive")
	}
	if c.Session.CookieName == "" {
		return fmt.Errorf("session cookie name is required")
	}

	for name, raw := range map[string]string{
		"HOST_URL":      c.Zones.FrontDoorURL,
		"USER_APP_URL":  c.Zones.UserURL,
		"ADMIN_APP_URL": c.Zones.AdminURL,
	} {
		if err := validateOrigin(raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.Zones.TenantURL != "" {
		if err := validateOrigin(c.Zones.TenantURL); err != nil {
			return fmt.Errorf("TENANT_APP_URL: %w", err)
		}
	}

	if c.IsProduction() {
		if len(c.Session.Secret) < 32 {
			return fmt.Errorf("session secret must be at least 32 bytes in production")
		}
		if c.OAuth.ClientID == "" || c.OAuth.ClientSecret == "" {
			return fmt.Errorf("oauth client credentials are required in production")
		}
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// Origins returns every configured zone origin (scheme://host[:port]).
func (z *ZonesConfig) Origins() []string {
	var out []string
	for _, raw := range []string{z.FrontDoorURL, z.UserURL, z.AdminURL, z.TenantURL} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			out = append(out, u.Scheme+"://"+u.Host)
		}
	}
	return out
}

func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "dev"),
		Password:        getEnv("DB_PASSWORD", "dev"),
		Database:        getEnv("DB_NAME", "zoneauth"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

func loadZonesConfig() ZonesConfig {
	zone, err := ParseZone(getEnv("ZONE", string(ZoneFrontDoor)))
	if err != nil {
		zone = ZoneFrontDoor
	}
	return ZonesConfig{
		Active:       zone,
		FrontDoorURL: getEnv("HOST_URL", "http://localhost:3000"),
		UserURL:      getEnv("USER_APP_URL", "http://localhost:3001"),
		AdminURL:     getEnv("ADMIN_APP_URL", "http://localhost:3002"),
		TenantURL:    getEnv("TENANT_APP_URL", ""),
	}
}

func validateOrigin(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url %q must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", raw)
	}
	return nil
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 3000)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 3000
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma or space separated value.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	fields := strings.FieldsFunc(valueStr, func(r rune) bool { return r == ',' || r == ' ' })
	if len(fields) == 0 {
		return defaultValue
	}
	return fields
}
