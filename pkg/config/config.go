package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Store configuration
	Store StoreConfig

	// Caller authentication
	Auth AuthConfig

	// Per caller rate limiting
	RateLimit RateLimitConfig

	// Membership mutations
	Members MembersConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	CORSOrigins     []string

	// Health/metrics server (separate port for k8s health checks)
	HealthPort string
}

// StoreConfig selects and configures the membership store
type StoreConfig struct {
	Driver              string // "memory" or "postgres"
	PostgresURL         string
	PostgresMaxConns    int
	PostgresIdleConns   int
	PostgresConnMaxLife time.Duration
	AutoMigrate         bool
}

// AuthConfig configures bearer token verification
type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	JWTLeeway   time.Duration

	// ServiceTokens maps a sha256 token hash to the user id it acts as
	ServiceTokens map[string]string

	// Verified credentials are cached; a size of 0 disables the cache
	CacheSize int
	CacheTTL  time.Duration
}

// RateLimitConfig configures the request boundary rate limit
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerWindow int
	Window            time.Duration
	Burst             int
	FailOpen          bool

	// Redis is used when RedisURL is set; otherwise limits are per process
	RedisURL      string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int
}

// MembersConfig tunes the mutation service
type MembersConfig struct {
	ConflictRetries int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel  string
	LogFormat string

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// Load reads the given .env files, if present, and then loads configuration
// from the environment. Variables already set in the environment win over
// the files.
func Load(envFiles ...string) (*Config, error) {
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return LoadConfig()
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	auth, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		Server:        loadServerConfig(),
		Store:         loadStoreConfig(),
		Auth:          auth,
		RateLimit:     loadRateLimitConfig(),
		Members:       MembersConfig{ConflictRetries: getEnvInt("FAMILY_CONFLICT_RETRIES", 3)},
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("FAMILY_HOST", "0.0.0.0"),
		Port:            getEnv("FAMILY_PORT", "8080"),
		ReadTimeout:     getEnvDuration("FAMILY_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("FAMILY_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("FAMILY_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("FAMILY_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("FAMILY_MAX_BODY_BYTES", 1<<20),
		CORSOrigins:     getEnvList("FAMILY_CORS_ORIGINS"),
		HealthPort:      getEnv("FAMILY_HEALTH_PORT", "9090"),
	}
}

// loadStoreConfig loads store configuration from environment
func loadStoreConfig() StoreConfig {
	return StoreConfig{
		Driver:              strings.ToLower(getEnv("FAMILY_STORE_DRIVER", "memory")),
		PostgresURL:         getEnv("FAMILY_POSTGRES_URL", ""),
		PostgresMaxConns:    getEnvInt("FAMILY_POSTGRES_MAX_CONNS", 25),
		PostgresIdleConns:   getEnvInt("FAMILY_POSTGRES_IDLE_CONNS", 5),
		PostgresConnMaxLife: getEnvDuration("FAMILY_POSTGRES_CONN_MAX_LIFETIME", 5*time.Minute),
		AutoMigrate:         getEnvBool("FAMILY_AUTO_MIGRATE", true),
	}
}

// loadAuthConfig loads authentication settings. FAMILY_SERVICE_TOKENS is a
// comma separated list of <sha256-hex>:<user id> pairs.
func loadAuthConfig() (AuthConfig, error) {
	cfg := AuthConfig{
		JWTSecret:     getEnv("FAMILY_JWT_SECRET", ""),
		JWTIssuer:     getEnv("FAMILY_JWT_ISSUER", "familyaccess"),
		JWTAudience:   getEnv("FAMILY_JWT_AUDIENCE", ""),
		JWTLeeway:     getEnvDuration("FAMILY_JWT_LEEWAY", 30*time.Second),
		ServiceTokens: map[string]string{},
		CacheSize:     getEnvInt("FAMILY_AUTH_CACHE_SIZE", 4096),
		CacheTTL:      getEnvDuration("FAMILY_AUTH_CACHE_TTL", time.Minute),
	}
	for _, entry := range getEnvList("FAMILY_SERVICE_TOKENS") {
		hash, userID, ok := strings.Cut(entry, ":")
		if !ok || userID == "" {
			return cfg, fmt.Errorf("invalid service token entry %q: want <hash>:<user id>", entry)
		}
		if decoded, err := hex.DecodeString(hash); err != nil || len(decoded) != 32 {
			return cfg, fmt.Errorf("invalid service token hash for %s: want 64 hex characters", userID)
		}
		cfg.ServiceTokens[strings.ToLower(hash)] = userID
	}
	return cfg, nil
}

// loadRateLimitConfig loads rate limit configuration from environment
func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:           getEnvBool("FAMILY_RATE_LIMIT_ENABLED", true),
		RequestsPerWindow: getEnvInt("FAMILY_RATE_LIMIT_REQUESTS", 300),
		Window:            getEnvDuration("FAMILY_RATE_LIMIT_WINDOW", time.Minute),
		Burst:             getEnvInt("FAMILY_RATE_LIMIT_BURST", 30),
		FailOpen:          getEnvBool("FAMILY_RATE_LIMIT_FAIL_OPEN", true),
		RedisURL:          getEnv("FAMILY_REDIS_URL", ""),
		RedisPassword:     getEnv("FAMILY_REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("FAMILY_REDIS_DB", 0),
		RedisPoolSize:     getEnvInt("FAMILY_REDIS_POOL_SIZE", 10),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           strings.ToLower(getEnv("FAMILY_LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("FAMILY_LOG_FORMAT", "json")),
		MetricsEnabled:     getEnvBool("FAMILY_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("FAMILY_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("FAMILY_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("FAMILY_OTEL_SERVICE_NAME", "familyaccess"),
		OTelServiceVersion: getEnv("FAMILY_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("FAMILY_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("FAMILY_OTEL_SAMPLE_RATIO", 1),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for the postgres store")
		}
		if c.Store.PostgresMaxConns <= 0 {
			return fmt.Errorf("postgres max connections must be positive")
		}
	default:
		return fmt.Errorf("invalid store driver: %s (must be memory or postgres)", c.Store.Driver)
	}

	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 bytes")
	}
	if c.Auth.JWTLeeway < 0 {
		return fmt.Errorf("JWT leeway must not be negative")
	}
	if c.Auth.CacheSize > 0 && c.Auth.CacheTTL <= 0 {
		return fmt.Errorf("auth cache TTL must be positive when the cache is enabled")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerWindow <= 0 {
			return fmt.Errorf("rate limit requests must be positive")
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit window must be positive")
		}
		if c.RateLimit.Burst < 0 {
			return fmt.Errorf("rate limit burst must not be negative")
		}
	}

	if c.Members.ConflictRetries < 0 {
		return fmt.Errorf("conflict retries must not be negative")
	}

	switch c.Observability.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Observability.LogLevel)
	}
	switch c.Observability.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Observability.LogFormat)
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if c.Observability.OTelSampleRatio < 0 || c.Observability.OTelSampleRatio > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1")
		}
	}

	return nil
}

// Addr returns the API listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// HealthAddr returns the health/metrics listen address
func (s ServerConfig) HealthAddr() string {
	return s.Host + ":" + s.HealthPort
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty entries
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
