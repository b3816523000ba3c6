package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/frostline/repofreeze/internal/config"
	"github.com/frostline/repofreeze/internal/handlers"
	"github.com/frostline/repofreeze/internal/health"
	"github.com/frostline/repofreeze/internal/metrics"
	"github.com/frostline/repofreeze/internal/middleware"
)

// Server manages the three HTTP servers (API, Probe, Metrics).
type Server struct {
	cfg           *config.Config
	logger        *zap.Logger
	metrics       *metrics.Metrics
	health        *health.Manager
	api           *handlers.FreezeHandlers
	apiServer     *http.Server
	probeServer   *http.Server
	metricsServer *http.Server
	startTime     time.Time
	shutdownChan  chan struct{}
	shutdownOnce  sync.Once
}

// New creates a new Server instance. The freeze handlers carry the command
// surface; the metrics instance is shared with every component that records
// into the service registry.
func New(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics, api *handlers.FreezeHandlers) (*Server, error) {
	s := &Server{
		cfg:          cfg,
		logger:       logger,
		metrics:      m,
		api:          api,
		startTime:    time.Now(),
		shutdownChan: make(chan struct{}),
	}

	s.health = health.NewManager(logger, cfg.HealthCheckCacheDuration, cfg.HealthCheckTimeout)
	s.health.RegisterChecker(health.NewConfigChecker(logger))
	s.health.RegisterChecker(health.NewServerChecker(logger))
	s.health.RegisterChecker(health.NewReadinessChecker(logger))

	if err := s.setupServers(); err != nil {
		return nil, err
	}

	return s, nil
}

// Metrics returns the service metrics so other components can record into
// the same registry.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// RegisterChecker adds a health checker beyond the built-in ones, such as
// database or storage connectivity checks.
func (s *Server) RegisterChecker(checker health.Checker) {
	s.health.RegisterChecker(checker)
}

// setupServers configures the three HTTP servers.
func (s *Server) setupServers() error {
	apiRouter := s.setupAPIRouter()
	s.apiServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.APIHost, s.cfg.APIPort),
		Handler:      apiRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if s.cfg.TLSEnabled {
		s.apiServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	probeRouter := s.setupProbeRouter()
	s.probeServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.ProbeHost, s.cfg.ProbePort),
		Handler:      probeRouter,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	metricsRouter := s.setupMetricsRouter()
	s.metricsServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.MetricsHost, s.cfg.MetricsPort),
		Handler:      metricsRouter,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	return nil
}

// setupAPIRouter creates the API server router with middleware.
func (s *Server) setupAPIRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.LoggingMiddleware(s.logger, "api"))
	r.Use(middleware.RecovererMiddleware(s.logger))
	r.Use(middleware.MetricsMiddleware(s.metrics, s.logger))

	setupAPIRoutes(r, s.api, s.logger)

	return r
}

// setupProbeRouter creates the probe server router.
func (s *Server) setupProbeRouter() *chi.Mux {
	r := chi.NewRouter()

	setupProbeRoutes(r, s.health, s.logger)

	return r
}

// setupMetricsRouter creates the metrics server router.
func (s *Server) setupMetricsRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))

	return r
}

// Start starts all three HTTP servers.
func (s *Server) Start() error {
	errChan := make(chan error, 3)

	go func() {
		s.logger.Info("Starting API server", zap.String("addr", s.apiServer.Addr))

		var err error
		if s.cfg.TLSEnabled {
			err = s.apiServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			err = s.apiServer.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	go func() {
		s.logger.Info("Starting probe server", zap.String("addr", s.probeServer.Addr))

		if err := s.probeServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("probe server error: %w", err)
		}
	}()

	go func() {
		s.logger.Info("Starting metrics server", zap.String("addr", s.metricsServer.Addr))

		if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	// Catch immediate bind failures before reporting success
	select {
	case err := <-errChan:
		return err
	case <-time.After(100 * time.Millisecond):
	}

	s.health.SetServersRunning(true)
	go s.updateRuntimeMetrics()

	return nil
}

// updateRuntimeMetrics updates uptime and runtime metrics periodically.
func (s *Server) updateRuntimeMetrics() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.metrics.AppUptimeSeconds.Add(1)
			s.metrics.UpdateRuntimeMetrics()
		case <-s.shutdownChan:
			return
		}
	}
}

// Shutdown gracefully shuts down all servers. The probe server goes last so
// readiness keeps answering while the API drains.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down servers gracefully")

	s.health.SetShuttingDown(true)
	s.shutdownOnce.Do(func() { close(s.shutdownChan) })

	var g errgroup.Group

	g.Go(func() error {
		s.logger.Info("Shutting down API server")
		if err := s.apiServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("API server shutdown error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		s.logger.Info("Shutting down metrics server")
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("metrics server shutdown error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		s.logger.Info("Shutting down probe server")
		if err := s.probeServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("probe server shutdown error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	s.logger.Info("All servers shut down successfully")
	return nil
}

// WaitForServers waits for all servers to be ready.
func (s *Server) WaitForServers(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if s.checkServer(s.apiServer.Addr) &&
			s.checkServer(s.probeServer.Addr) &&
			s.checkServer(s.metricsServer.Addr) {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	return fmt.Errorf("servers did not become ready within %s", timeout)
}

// checkServer checks if a server is listening on the given address.
func (s *Server) checkServer(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
