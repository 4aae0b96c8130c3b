// Package observability provides logrus logging setup, Prometheus metrics,
// OpenTelemetry tracing, health checks and shutdown coordination.
//
// # Logging
//
//	logger, err := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	observability.FromContext(ctx, logger).Info("member updated")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
//	metrics.RecordDecision("editVitals", false, "capability_denied", elapsed)
//
// All Record* helpers accept a nil *Metrics.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(store, observability.PingFunc(limiter.HealthCheck), version)
//	observability.RegisterHealthRoutes(router, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "familyaccess",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
package observability
