// Package config loads service configuration from FAMILY_* environment
// variables, optionally seeded from .env files.
//
// Server:
//
//	FAMILY_HOST="0.0.0.0"
//	FAMILY_PORT="8080"
//	FAMILY_HEALTH_PORT="9090"
//	FAMILY_CORS_ORIGINS="https://app.example.com"
//
// Store:
//
//	FAMILY_STORE_DRIVER="postgres"  # memory, postgres
//	FAMILY_POSTGRES_URL="postgres://localhost/familyaccess?sslmode=disable"
//	FAMILY_AUTO_MIGRATE="true"
//
// Authentication:
//
//	FAMILY_JWT_SECRET="..."  # at least 32 bytes
//	FAMILY_JWT_ISSUER="familyaccess"
//	FAMILY_SERVICE_TOKENS="<sha256 hex>:svc-reports"
//
// Rate limiting:
//
//	FAMILY_RATE_LIMIT_REQUESTS="300"
//	FAMILY_RATE_LIMIT_WINDOW="1m"
//	FAMILY_RATE_LIMIT_BURST="30"
//	FAMILY_REDIS_URL="redis://localhost:6379"  # shared limits across replicas
//
// Observability:
//
//	FAMILY_LOG_LEVEL="info"  # debug, info, warn, error
//	FAMILY_LOG_FORMAT="json"
//	FAMILY_OTEL_ENABLED="true"
//	FAMILY_OTEL_ENDPOINT="otel-collector:4317"
//
// Usage:
//
//	cfg, err := config.Load(".env")
//	if err != nil {
//		log.Fatal(err)
//	}
package config
