package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const prodSecret = "0123456789abcdef0123456789abcdef"

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "default configuration",
			envVars: map[string]string{
				"ENVIRONMENT": "development",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "development", cfg.Environment)
				assert.Equal(t, "0.0.0.0", cfg.Server.Host)
				assert.Equal(t, 3000, cfg.Server.Port)
				assert.False(t, cfg.Server.TLS.Enabled)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, ZoneFrontDoor, cfg.Zones.Active)
				assert.Equal(t, "http://localhost:3000", cfg.Zones.FrontDoorURL)
				assert.Equal(t, "http://localhost:3001", cfg.Zones.UserURL)
				assert.Equal(t, "http://localhost:3002", cfg.Zones.AdminURL)
				assert.Empty(t, cfg.Zones.TenantURL)
				assert.Equal(t, 30*24*time.Hour, cfg.Session.MaxAge)
				assert.False(t, cfg.Session.SecureCookies)
				assert.NotEmpty(t, cfg.Session.Secret)
				assert.Equal(t, "http://localhost:3000/auth/callback", cfg.OAuth.RedirectURI)
				assert.Equal(t, []string{"openid", "email", "profile"}, cfg.OAuth.Scopes)
			},
		},
		{
			name: "production configuration",
			envVars: map[string]string{
				"ENVIRONMENT":          "production",
				"SERVER_PORT":          "9000",
				"DB_HOST":              "prod-db.example.com",
				"DB_PORT":              "5433",
				"SESSION_SECRET":       prodSecret,
				"GOOGLE_CLIENT_ID":     "client123",
				"GOOGLE_CLIENT_SECRET": "secret",
				"HOST_URL":             "https://example.com",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.IsProduction())
				assert.False(t, cfg.IsDevelopment())
				assert.Equal(t, 9000, cfg.Server.Port)
				assert.Equal(t, "prod-db.example.com", cfg.Database.Host)
				assert.True(t, cfg.Session.SecureCookies)
				assert.Equal(t, "https://example.com/auth/callback", cfg.OAuth.RedirectURI)
			},
		},
		{
			name: "secure cookies can be forced off in production",
			envVars: map[string]string{
				"ENVIRONMENT":            "production",
				"SESSION_SECRET":         prodSecret,
				"GOOGLE_CLIENT_ID":       "client123",
				"GOOGLE_CLIENT_SECRET":   "secret",
				"SESSION_SECURE_COOKIES": "false",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.False(t, cfg.Session.SecureCookies)
			},
		},
		{
			name: "zone and urls from environment",
			envVars: map[string]string{
				"ZONE":           "admin",
				"USER_APP_URL":   "https://user.example.com",
				"ADMIN_APP_URL":  "https://admin.example.com",
				"TENANT_APP_URL": "https://tenant.example.com",
				"OAUTH_SCOPES":   "openid,email",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, ZoneAdmin, cfg.Zones.Active)
				assert.Equal(t, "https://admin.example.com", cfg.Zones.AdminURL)
				assert.Equal(t, "https://tenant.example.com", cfg.Zones.TenantURL)
				assert.Equal(t, []string{"openid", "email"}, cfg.OAuth.Scopes)
			},
		},
		{
			name: "custom timeouts and pool settings",
			envVars: map[string]string{
				"SERVER_READ_TIMEOUT":  "60s",
				"SERVER_WRITE_TIMEOUT": "90s",
				"DB_MAX_OPEN_CONNS":    "50",
				"DB_MAX_IDLE_CONNS":    "10",
				"SESSION_MAX_AGE":      "24h",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, 90*time.Second, cfg.Server.WriteTimeout)
				assert.Equal(t, 50, cfg.Database.MaxOpenConns)
				assert.Equal(t, 10, cfg.Database.MaxIdleConns)
				assert.Equal(t, 24*time.Hour, cfg.Session.MaxAge)
			},
		},
		{
			name: "observability configuration",
			envVars: map[string]string{
				"LOG_LEVEL":                   "debug",
				"LOG_FORMAT":                  "console",
				"METRICS_ENABLED":             "false",
				"TRACING_ENABLED":             "true",
				"OTEL_EXPORTER_OTLP_ENDPOINT": "otel-collector:4317",
				"OTEL_EXPORTER_OTLP_INSECURE": "true",
				"TRACING_SAMPLE_RATE":         "0.5",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Observability.LogLevel)
				assert.Equal(t, "console", cfg.Observability.LogFormat)
				assert.False(t, cfg.Observability.MetricsEnabled)
				assert.True(t, cfg.Observability.TracingEnabled)
				assert.Equal(t, "otel-collector:4317", cfg.Observability.TracingEndpoint)
				assert.True(t, cfg.Observability.TracingInsecure)
				assert.Equal(t, 0.5, cfg.Observability.TracingSampleRate)
			},
		},
		{
			name: "PORT env var takes precedence over SERVER_PORT",
			envVars: map[string]string{
				"PORT":        "9443",
				"SERVER_PORT": "9000",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9443, cfg.Server.Port)
			},
		},
		{
			name: "invalid zone url",
			envVars: map[string]string{
				"USER_APP_URL": "ftp://user.example.com",
			},
			wantErr: true,
		},
		{
			name: "production without session secret",
			envVars: map[string]string{
				"ENVIRONMENT":          "production",
				"GOOGLE_CLIENT_ID":     "client123",
				"GOOGLE_CLIENT_SECRET": "secret",
			},
			wantErr: true,
		},
		{
			name: "production with short session secret",
			envVars: map[string]string{
				"ENVIRONMENT":          "production",
				"SESSION_SECRET":       "short",
				"GOOGLE_CLIENT_ID":     "client123",
				"GOOGLE_CLIENT_SECRET": "secret",
			},
			wantErr: true,
		},
		{
			name: "production without oauth credentials",
			envVars: map[string]string{
				"ENVIRONMENT":    "production",
				"SESSION_SECRET": prodSecret,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			cfg, err := New(context.Background())

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func validConfig() *Config {
	return &Config{
		Environment: "development",
		Database: DatabaseConfig{
			Host:     "localhost",
			User:     "user",
			Database: "db",
		},
		Session: SessionConfig{
			Secret:     "secret",
			CookieName: "session",
			MaxAge:     time.Hour,
		},
		Zones: ZonesConfig{
			FrontDoorURL: "http://localhost:3000",
			UserURL:      "http://localhost:3001",
			AdminURL:     "http://localhost:3002",
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid development config",
			mutate: func(*Config) {},
		},
		{
			name:    "missing database host",
			mutate:  func(c *Config) { c.Database.Host = "" },
			wantErr: true,
			errMsg:  "database configuration required",
		},
		{
			name:    "missing database user",
			mutate:  func(c *Config) { c.Database.User = "" },
			wantErr: true,
			errMsg:  "database user is required",
		},
		{
			name:    "missing session secret",
			mutate:  func(c *Config) { c.Session.Secret = "" },
			wantErr: true,
			errMsg:  "session secret is required",
		},
		{
			name:    "zero max age",
			mutate:  func(c *Config) { c.Session.MaxAge = 0 },
			wantErr: true,
			errMsg:  "max age",
		},
		{
			name:    "admin url without host",
			mutate:  func(c *Config) { c.Zones.AdminURL = "http://" },
			wantErr: true,
			errMsg:  "ADMIN_APP_URL",
		},
		{
			name:    "bad optional tenant url",
			mutate:  func(c *Config) { c.Zones.TenantURL = "tenant" },
			wantErr: true,
			errMsg:  "TENANT_APP_URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr {
				assert.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseZone(t *testing.T) {
	tests := []struct {
		in      string
		want    Zone
		wantErr bool
	}{
		{"", ZoneFrontDoor, false},
		{"host", ZoneFrontDoor, false},
		{"FrontDoor", ZoneFrontDoor, false},
		{"user", ZoneUser, false},
		{" ADMIN ", ZoneAdmin, false},
		{"tenant", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseZone(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestZonesConfig_Origins(t *testing.T) {
	z := ZonesConfig{
		FrontDoorURL: "https://example.com/",
		UserURL:      "https://user.example.com/app",
		AdminURL:     "http://localhost:3002",
	}
	assert.Equal(t, []string{
		"https://example.com",
		"https://user.example.com",
		"http://localhost:3002",
	}, z.Origins())
}

func TestGetEnvAsList(t *testing.T) {
	os.Clearenv()
	assert.Equal(t, []string{"a"}, getEnvAsList("TEST_LIST", []string{"a"}))
	os.Setenv("TEST_LIST", "openid, email profile")
	assert.Equal(t, []string{"openid", "email", "profile"}, getEnvAsList("TEST_LIST", nil))
}

func TestConfig_IsProduction(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		want        bool
	}{
		{"production", "production", true},
		{"prod", "prod", true},
		{"development", "development", false},
		{"dev", "dev", false},
		{"staging", "staging", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Environment: tt.environment}
			assert.Equal(t, tt.want, cfg.IsProduction())
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		want        bool
	}{
		{"development", "development", true},
		{"dev", "dev", true},
		{"production", "production", false},
		{"staging", "staging", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Environment: tt.environment}
			assert.Equal(t, tt.want, cfg.IsDevelopment())
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "testuser",
		Password: "testpass",
		Database: "testdb",
		SSLMode:  "disable",
	}

	expected := "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable"
	assert.Equal(t, expected, cfg.DSN())
}

func TestServerConfig_Address(t *testing.T) {
	cfg := ServerConfig{
		Host: "0.0.0.0",
		Port: 3000,
	}

	assert.Equal(t, "0.0.0.0:3000", cfg.Address())
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		value        string
		defaultValue int
		want         int
	}{
		{"valid int", "TEST_INT", "42", 10, 42},
		{"empty value", "TEST_INT", "", 10, 10},
		{"invalid int", "TEST_INT", "not-a-number", 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				os.Setenv(tt.key, tt.value)
			}
			got := getEnvAsInt(tt.key, tt.defaultValue)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetEnvAsBool(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		value        string
		defaultValue bool
		want         bool
	}{
		{"true", "TEST_BOOL", "true", false, true},
		{"false", "TEST_BOOL", "false", true, false},
		{"empty value", "TEST_BOOL", "", true, true},
		{"invalid bool", "TEST_BOOL", "not-a-bool", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				os.Setenv(tt.key, tt.value)
			}
			got := getEnvAsBool(tt.key, tt.defaultValue)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetEnvAsFloat(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		value        string
		defaultValue float64
		want         float64
	}{
		{"valid float", "TEST_FLOAT", "3.14", 1.0, 3.14},
		{"empty value", "TEST_FLOAT", "", 1.0, 1.0},
		{"invalid float", "TEST_FLOAT", "not-a-number", 1.0, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				os.Setenv(tt.key, tt.value)
			}
			got := getEnvAsFloat(tt.key, tt.defaultValue)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		value        string
		defaultValue time.Duration
		want         time.Duration
	}{
		{"valid duration", "TEST_DURATION", "30s", 10 * time.Second, 30 * time.Second},
		{"empty value", "TEST_DURATION", "", 10 * time.Second, 10 * time.Second},
		{"invalid duration", "TEST_DURATION", "not-a-duration", 10 * time.Second, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				os.Setenv(tt.key, tt.value)
			}
			got := getEnvAsDuration(tt.key, tt.defaultValue)
			assert.Equal(t, tt.want, got)
		})
	}
}
