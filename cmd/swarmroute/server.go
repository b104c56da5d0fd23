package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/quorvia/swarmroute"
	"github.com/quorvia/swarmroute/api/handlers"
	"github.com/quorvia/swarmroute/config"
	"github.com/quorvia/swarmroute/internal/metrics"
	"github.com/quorvia/swarmroute/internal/server"
	"github.com/quorvia/swarmroute/internal/telemetry"
)

// Server assembles the routing core, the operational HTTP API, and the
// metrics listener, and tears them down in reverse order.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	providers *telemetry.Providers
	collector *metrics.Collector
	core      *swarmroute.Core

	httpManager    *server.Manager
	metricsManager *server.Manager

	healthHandler *handlers.HealthHandler
	swarmHandler  *handlers.SwarmHandler

	rateLimiterCancel context.CancelFunc
}

// NewServer creates a server. providers may be nil when telemetry init
// failed; shutdown tolerates it.
func NewServer(cfg *config.Config, logger *zap.Logger, providers *telemetry.Providers) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		providers: providers,
	}
}

// Start brings up the core and both listeners.
func (s *Server) Start() error {
	s.collector = metrics.NewCollector("swarmroute", s.logger)

	core, err := swarmroute.New(s.cfg,
		swarmroute.WithLogger(s.logger),
		swarmroute.WithCollector(s.collector),
	)
	if err != nil {
		return fmt.Errorf("failed to build routing core: %w", err)
	}
	s.core = core

	s.initHandlers()

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("auth_enabled", s.cfg.Server.EnableAuth),
	)

	return nil
}

// initHandlers builds the HTTP handlers and wires readiness checks to
// the core's backing stores.
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewPingCheck("decision_store", s.core.Decisions().Ping))
	if audit := s.core.Audit(); audit != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("audit_db", audit.Ping))
	}

	s.swarmHandler = handlers.NewSwarmHandler(s.core, s.logger)
}

func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("POST /api/v1/agents", s.swarmHandler.HandleRegisterAgent)
	mux.HandleFunc("GET /api/v1/agents", s.swarmHandler.HandleListAgents)
	mux.HandleFunc("GET /api/v1/agents/{id}", s.swarmHandler.HandleGetAgent)
	mux.HandleFunc("DELETE /api/v1/agents/{id}", s.swarmHandler.HandleUnregisterAgent)
	mux.HandleFunc("PATCH /api/v1/agents/{id}/workload", s.swarmHandler.HandleUpdateWorkload)
	mux.HandleFunc("POST /api/v1/agents/{id}/heartbeat", s.swarmHandler.HandleHeartbeat)

	mux.HandleFunc("POST /api/v1/delegate", s.swarmHandler.HandleDelegate)
	mux.HandleFunc("GET /api/v1/trust/rankings", s.swarmHandler.HandleTrustRankings)
	mux.HandleFunc("GET /api/v1/trust/{id}", s.swarmHandler.HandleTrustScore)
	mux.HandleFunc("GET /api/v1/risk/assessment", s.swarmHandler.HandleRiskAssessment)
	mux.HandleFunc("GET /api/v1/delegation/config", s.swarmHandler.HandleGetDelegationConfig)
	mux.HandleFunc("PUT /api/v1/delegation/config", s.swarmHandler.HandleUpdateDelegationConfig)
	mux.HandleFunc("GET /api/v1/decisions", s.swarmHandler.HandleRecentDecisions)
	mux.HandleFunc("GET /api/v1/delegations", s.swarmHandler.HandleRecentDelegations)
	mux.HandleFunc("GET /api/v1/delegations/stats", s.swarmHandler.HandleDelegationStats)

	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.AllowedOrigin),
		MetricsMiddleware(s.collector),
		OTelTracing(),
		RateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
	}
	if s.cfg.Server.EnableAuth {
		// Tenant limiting needs the tenant claim, so it sits inside auth.
		middlewares = append(middlewares,
			BearerAuth(s.cfg.Server.AuthSecret, skipAuthPaths, s.logger),
			TenantRateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
		)
	}
	handler := Chain(mux, middlewares...)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	if s.cfg.Server.TLSCertFile != "" {
		if err := s.httpManager.StartTLS(s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile); err != nil {
			return err
		}
	} else if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started",
		zap.Int("port", s.cfg.Server.HTTPPort),
		zap.Bool("tls", s.cfg.Server.TLSCertFile != ""))
	return nil
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// WaitForShutdown blocks until a shutdown signal arrives, then tears
// everything down.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown stops the listeners, closes the routing core, and flushes
// telemetry, in that order.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")

	ctx := context.Background()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}

	if s.core != nil {
		if err := s.core.Close(); err != nil {
			s.logger.Error("routing core shutdown error", zap.Error(err))
		}
	}

	if s.providers != nil {
		flushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := s.providers.Shutdown(flushCtx); err != nil {
			s.logger.Error("telemetry shutdown error", zap.Error(err))
		}
		cancel()
	}

	s.logger.Info("graceful shutdown completed")
}
