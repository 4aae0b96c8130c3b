package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSecret = "0123456789abcdef0123456789abcdef"

// TestGetEnvBool tests the getEnvBool helper function
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		defaultValue bool
		envValue     string
		want         bool
	}{
		{name: "returns true for 'true'", envValue: "true", want: true},
		{name: "returns true for '1'", envValue: "1", want: true},
		{name: "returns false for 'false'", defaultValue: true, envValue: "false", want: false},
		{name: "returns default when not set", defaultValue: true, want: true},
		{name: "returns true for 'TRUE' (case insensitive)", envValue: "TRUE", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.envValue)

			got := getEnvBool("TEST_BOOL", tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvNumbers(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "forty-two")
	t.Setenv("TEST_DURATION", "90s")
	t.Setenv("TEST_BAD_DURATION", "soon")

	assert.Equal(t, 42, getEnvInt("TEST_INT", 1))
	assert.Equal(t, 1, getEnvInt("TEST_BAD_INT", 1))
	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 1))
	assert.Equal(t, 90*time.Second, getEnvDuration("TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, getEnvDuration("TEST_BAD_DURATION", time.Second))
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("TEST_LIST", " a, ,b ,c,")
	assert.Equal(t, []string{"a", "b", "c"}, getEnvList("TEST_LIST"))
	assert.Empty(t, getEnvList("TEST_LIST_NOT_SET"))
}

func TestLoadServerConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		got := loadServerConfig()
		assert.Equal(t, ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
			HealthPort:      "9090",
		}, got)
		assert.Equal(t, "0.0.0.0:8080", got.Addr())
		assert.Equal(t, "0.0.0.0:9090", got.HealthAddr())
	})

	t.Run("custom values", func(t *testing.T) {
		t.Setenv("FAMILY_HOST", "localhost")
		t.Setenv("FAMILY_PORT", "3000")
		t.Setenv("FAMILY_READ_TIMEOUT", "30s")
		t.Setenv("FAMILY_SHUTDOWN_TIMEOUT", "5s")
		t.Setenv("FAMILY_CORS_ORIGINS", "https://a.example.com,https://b.example.com")

		got := loadServerConfig()
		assert.Equal(t, "localhost", got.Host)
		assert.Equal(t, "3000", got.Port)
		assert.Equal(t, 30*time.Second, got.ReadTimeout)
		assert.Equal(t, 5*time.Second, got.ShutdownTimeout)
		assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, got.CORSOrigins)
	})
}

func TestLoadAuthConfig(t *testing.T) {
	hash := strings.Repeat("ab", 32)

	t.Run("service tokens", func(t *testing.T) {
		t.Setenv("FAMILY_SERVICE_TOKENS", strings.ToUpper(hash)+":svc-reports")
		cfg, err := loadAuthConfig()
		require.NoError(t, err)
		assert.Equal(t, map[string]string{hash: "svc-reports"}, cfg.ServiceTokens)
		assert.Equal(t, "familyaccess", cfg.JWTIssuer)
		assert.Equal(t, 30*time.Second, cfg.JWTLeeway)
		assert.Equal(t, 4096, cfg.CacheSize)
		assert.Equal(t, time.Minute, cfg.CacheTTL)
	})

	for _, entry := range []string{hash, hash + ":", "abc:svc", strings.Repeat("zz", 32) + ":svc"} {
		t.Run("rejects "+entry, func(t *testing.T) {
			t.Setenv("FAMILY_SERVICE_TOKENS", entry)
			_, err := loadAuthConfig()
			assert.Error(t, err)
		})
	}
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080", HealthPort: "9090"},
		Store:  StoreConfig{Driver: "memory"},
		Auth:   AuthConfig{JWTSecret: validSecret},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerWindow: 10,
			Window:            time.Minute,
		},
		Members:       MembersConfig{ConflictRetries: 3},
		Observability: ObservabilityConfig{LogLevel: "info", LogFormat: "json"},
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing port", mutate: func(c *Config) { c.Server.Port = "" }, wantErr: "server port is required"},
		{name: "same ports", mutate: func(c *Config) { c.Server.HealthPort = "8080" }, wantErr: "must be different"},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "sqlite" }, wantErr: "invalid store driver"},
		{name: "postgres without url", mutate: func(c *Config) { c.Store.Driver = "postgres" }, wantErr: "postgres URL is required"},
		{
			name: "postgres",
			mutate: func(c *Config) {
				c.Store = StoreConfig{Driver: "postgres", PostgresURL: "postgres://localhost/familyaccess", PostgresMaxConns: 5}
			},
		},
		{name: "short secret", mutate: func(c *Config) { c.Auth.JWTSecret = "short" }, wantErr: "JWT secret"},
		{name: "auth cache without ttl", mutate: func(c *Config) { c.Auth.CacheSize = 10 }, wantErr: "auth cache TTL"},
		{name: "zero rate", mutate: func(c *Config) { c.RateLimit.RequestsPerWindow = 0 }, wantErr: "rate limit requests"},
		{
			name: "zero rate with limiting disabled",
			mutate: func(c *Config) {
				c.RateLimit.Enabled = false
				c.RateLimit.RequestsPerWindow = 0
			},
		},
		{name: "negative retries", mutate: func(c *Config) { c.Members.ConflictRetries = -1 }, wantErr: "conflict retries"},
		{name: "bad log level", mutate: func(c *Config) { c.Observability.LogLevel = "loud" }, wantErr: "invalid log level"},
		{name: "bad log format", mutate: func(c *Config) { c.Observability.LogFormat = "xml" }, wantErr: "invalid log format"},
		{
			name: "otel without endpoint",
			mutate: func(c *Config) {
				c.Observability.OTelEnabled = true
				c.Observability.OTelServiceName = "familyaccess"
			},
			wantErr: "OpenTelemetry endpoint",
		},
		{
			name: "otel sample ratio above one",
			mutate: func(c *Config) {
				c.Observability.OTelEnabled = true
				c.Observability.OTelEndpoint = "localhost:4317"
				c.Observability.OTelServiceName = "familyaccess"
				c.Observability.OTelSampleRatio = 1.5
			},
			wantErr: "sample ratio",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("missing secret", func(t *testing.T) {
		t.Setenv("FAMILY_JWT_SECRET", "")
		_, err := LoadConfig()
		assert.Error(t, err)
	})

	t.Run("defaults", func(t *testing.T) {
		t.Setenv("FAMILY_JWT_SECRET", validSecret)
		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, "memory", cfg.Store.Driver)
		assert.Equal(t, 3, cfg.Members.ConflictRetries)
		assert.True(t, cfg.RateLimit.Enabled)
		assert.Equal(t, 300, cfg.RateLimit.RequestsPerWindow)
		assert.True(t, cfg.RateLimit.FailOpen)
		assert.Empty(t, cfg.RateLimit.RedisURL)
		assert.Equal(t, "json", cfg.Observability.LogFormat)
	})
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(file, []byte(
		"FAMILY_JWT_SECRET="+validSecret+"\nFAMILY_PORT=8181\nFAMILY_RATE_LIMIT_BURST=7\n"), 0o600))

	// Registered so t restores them after godotenv sets them
	t.Setenv("FAMILY_JWT_SECRET", "")
	t.Setenv("FAMILY_RATE_LIMIT_BURST", "")
	os.Unsetenv("FAMILY_JWT_SECRET")
	os.Unsetenv("FAMILY_RATE_LIMIT_BURST")
	t.Setenv("FAMILY_PORT", "8282")

	cfg, err := Load(file, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "8282", cfg.Server.Port, "environment wins over the file")
	assert.Equal(t, 7, cfg.RateLimit.Burst)
	assert.Equal(t, validSecret, cfg.Auth.JWTSecret)
}
