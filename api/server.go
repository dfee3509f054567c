package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"incidentreg/config"
	"incidentreg/core/attachments"
	"incidentreg/core/incidents"
	"incidentreg/core/ownership"
	"incidentreg/core/rbac"
	"incidentreg/core/regions"
	"incidentreg/core/store"
	"incidentreg/core/utils"
)

// BackgroundWorker is started alongside the HTTP listener and stopped after
// it has drained.
type BackgroundWorker interface {
	StartWithContext(ctx context.Context) error
	StopWithContext(ctx context.Context) error
}

type ServerDeps struct {
	DB           *store.DB
	Audits       store.AuditStore
	Authorizer   *rbac.Authorizer
	Registry     *attachments.Registry
	Owners       *ownership.Resolver
	RegionsSvc   *regions.Service
	IncidentsSvc *incidents.Service
}

type Server struct {
	cfg          *config.AppConfig
	logger       *utils.Logger
	db           *store.DB
	audits       store.AuditStore
	authz        *rbac.Authorizer
	registry     *attachments.Registry
	owners       *ownership.Resolver
	regionsSvc   *regions.Service
	incidentsSvc *incidents.Service
	router       chi.Router
	httpServer   *http.Server
}

func NewServer(cfg *config.AppConfig, deps ServerDeps, logger *utils.Logger) *Server {
	s := &Server{
		cfg:          cfg,
		logger:       logger,
		db:           deps.DB,
		audits:       deps.Audits,
		authz:        deps.Authorizer,
		registry:     deps.Registry,
		owners:       deps.Owners,
		regionsSvc:   deps.RegionsSvc,
		incidentsSvc: deps.IncidentsSvc,
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.recoverMiddleware)
	r.Use(s.requestIDMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(s.loggingMiddleware)

	h := s.newRouteHandlers()
	r.MethodFunc("GET", "/healthz", s.healthz)
	r.Method("GET", "/metrics", promhttp.Handler())
	s.registerPublicRoutes(r, h)
	r.Route("/admin", func(adminRouter chi.Router) {
		adminRouter.Use(s.securityHeadersMiddleware)
		s.registerAdminRoutes(adminRouter, h)
	})
	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if s.db == nil || s.db.PingContext(ctx) != nil {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// ListenAndServe blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.cfg.HTTP.ReadTimeout,
		WriteTimeout:      s.cfg.HTTP.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("listening on %s", s.cfg.ListenAddr)
		errCh <- s.httpServer.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Printf("http server stopped")
	return nil
}
