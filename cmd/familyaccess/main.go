// Command familyaccess serves the family access control API.
//
//	familyaccess              run the API and health servers
//	familyaccess token -user  mint a service token for FAMILY_SERVICE_TOKENS
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/weightlossprojectionlab/familyaccess/pkg/api"
	"github.com/weightlossprojectionlab/familyaccess/pkg/audit"
	"github.com/weightlossprojectionlab/familyaccess/pkg/auth"
	"github.com/weightlossprojectionlab/familyaccess/pkg/authz"
	"github.com/weightlossprojectionlab/familyaccess/pkg/config"
	"github.com/weightlossprojectionlab/familyaccess/pkg/members"
	"github.com/weightlossprojectionlab/familyaccess/pkg/middleware"
	"github.com/weightlossprojectionlab/familyaccess/pkg/observability"
	"github.com/weightlossprojectionlab/familyaccess/pkg/store"
	"github.com/weightlossprojectionlab/familyaccess/pkg/store/postgres"
)

var version = "dev"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := runToken(os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "token: %v\n", err)
			os.Exit(2)
		}
		return
	}

	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("familyaccess exited with error")
	}
	logger.Info("familyaccess stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	shutdown.Register("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	st, events, auditLogger, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		runShutdown(shutdown, logger)
		return err
	}
	shutdown.Register("store", func(context.Context) error { return st.Close() })
	shutdown.Register("audit", func(context.Context) error { return auditLogger.Close() })

	limiter, redisClient, err := buildLimiter(ctx, cfg.RateLimit, logger)
	if err != nil {
		runShutdown(shutdown, logger)
		return err
	}
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}

	authenticator, err := buildAuthenticator(cfg.Auth)
	if err != nil {
		runShutdown(shutdown, logger)
		return err
	}

	engine := authz.NewEngine(st, logger, metrics)
	svc := members.NewService(st, engine, logger, members.Options{
		Audit:           auditLogger,
		Metrics:         metrics,
		ConflictRetries: cfg.Members.ConflictRetries,
	})

	server := api.NewServer(api.Deps{
		Members: svc,
		Engine:  engine,
		Boundary: &middleware.Boundary{
			Authenticator: authenticator,
			Limiter:       limiter,
			FailOpen:      cfg.RateLimit.FailOpen,
			Checker:       engine,
			Audit:         auditLogger,
			Metrics:       metrics,
			Logger:        logger,
		},
		Events:       events,
		Metrics:      metrics,
		Logger:       logger,
		CORSOrigins:  cfg.Server.CORSOrigins,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})

	apiServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      otelhttp.NewHandler(server, "familyaccess"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthRouter := mux.NewRouter()
	var limiterHealth observability.Pinger
	if dl, ok := limiter.(*middleware.DistributedRateLimiter); ok {
		limiterHealth = observability.PingFunc(dl.HealthCheck)
	}
	observability.RegisterHealthRoutes(healthRouter, observability.NewHealthChecker(st, limiterHealth, version))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthRouter, registry)
	}
	healthServer := &http.Server{
		Addr:        cfg.Server.HealthAddr(),
		Handler:     healthRouter,
		ReadTimeout: 5 * time.Second,
	}

	// Listeners stop before their dependencies are closed
	shutdown.Register("health server", healthServer.Shutdown)
	shutdown.Register("api server", apiServer.Shutdown)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("API server listening")
		return serve(apiServer)
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("Health server listening")
		return serve(healthServer)
	})
	if rl, ok := limiter.(*middleware.RateLimiter); ok {
		rl.StartCleanup(gctx)
	}
	g.Go(func() error {
		defer observability.RecoverPanic(logger, "shutdown")
		<-gctx.Done()
		logger.Info("Shutting down")
		return shutdown.Shutdown(context.Background())
	})

	return g.Wait()
}

func serve(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", srv.Addr, err)
	}
	return nil
}

func runShutdown(shutdown *observability.ShutdownManager, logger logrus.FieldLogger) {
	if err := shutdown.Shutdown(context.Background()); err != nil {
		logger.WithError(err).Warn("Cleanup after failed startup")
	}
}

// openStore returns the store together with the audit sink and, when the
// backend can list them, the audit reader.
func openStore(ctx context.Context, cfg config.StoreConfig, logger logrus.FieldLogger) (store.Store, api.EventLister, audit.Logger, error) {
	trail := audit.NewLogrusLogger(logger)

	switch cfg.Driver {
	case "postgres":
		pg, err := postgres.Open(ctx, cfg.PostgresURL, postgres.PoolConfig{
			MaxOpenConns:    cfg.PostgresMaxConns,
			MaxIdleConns:    cfg.PostgresIdleConns,
			ConnMaxLifetime: cfg.PostgresConnMaxLife,
		}, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		if cfg.AutoMigrate {
			if err := postgres.RunMigrations(ctx, pg.DB(), logger); err != nil {
				pg.Close()
				return nil, nil, nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		events, err := postgres.NewAuditLogger(pg.DB())
		if err != nil {
			pg.Close()
			return nil, nil, nil, fmt.Errorf("failed to create audit logger: %w", err)
		}
		logger.Info("Using postgres store")
		return pg, events, audit.NewMultiLogger(events, trail), nil
	default:
		events := audit.NewMemoryLogger()
		logger.Warn("Using in-memory store; data is lost on restart")
		return store.NewMemoryStore(), events, audit.NewMultiLogger(events, trail), nil
	}
}

// buildLimiter returns nil when rate limiting is disabled
func buildLimiter(ctx context.Context, cfg config.RateLimitConfig, logger logrus.FieldLogger) (middleware.Limiter, *redis.Client, error) {
	if !cfg.Enabled {
		logger.Warn("Rate limiting is disabled")
		return nil, nil, nil
	}
	limits := &middleware.RateLimitConfig{
		RequestsPerWindow: cfg.RequestsPerWindow,
		WindowDuration:    cfg.Window,
		BurstSize:         cfg.Burst,
	}
	if cfg.RedisURL == "" {
		return middleware.NewRateLimiter(limits), nil, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	if cfg.RedisDB != 0 {
		opts.DB = cfg.RedisDB
	}
	opts.PoolSize = cfg.RedisPoolSize

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		if !cfg.FailOpen {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.WithError(err).Warn("Redis unreachable at startup; requests are admitted until it recovers")
	}
	logger.WithField("addr", opts.Addr).Info("Using redis rate limiter")
	return middleware.NewDistributedRateLimiter(client, limits, ""), client, nil
}

func buildAuthenticator(cfg config.AuthConfig) (auth.Authenticator, error) {
	verifier := auth.NewJWTVerifier(auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Leeway:   cfg.JWTLeeway,
	})
	var tokens *auth.ServiceTokens
	if len(cfg.ServiceTokens) > 0 {
		tokens = auth.NewServiceTokens()
		for hash, userID := range cfg.ServiceTokens {
			if err := tokens.Register(hash, auth.Identity{UserID: userID}); err != nil {
				return nil, fmt.Errorf("failed to register service token for %s: %w", userID, err)
			}
		}
	}
	return auth.NewCachedAuthenticator(auth.Chain(tokens, verifier), cfg.CacheSize, cfg.CacheTTL), nil
}
