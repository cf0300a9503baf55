package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/vbonduro/famshop/internal/access"
	"github.com/vbonduro/famshop/internal/auth"
	"github.com/vbonduro/famshop/internal/metrics"
	"github.com/vbonduro/famshop/internal/plugin"
	"github.com/vbonduro/famshop/internal/service"
)

// Deps are the collaborators the HTTP layer needs. Metrics and Limiter may
// be nil.
type Deps struct {
	Items        *service.ItemService
	Lists        *service.ListService
	Authorizer   *service.Authorizer
	Resolver     *auth.Resolver
	Capabilities access.Capabilities
	Plugin       *plugin.Plugin
	Metrics      *metrics.Collector
	Limiter      *RateLimiter
	Logger       *slog.Logger
}

type Server struct {
	items    *service.ItemService
	lists    *service.ListService
	authz    *service.Authorizer
	resolver *auth.Resolver
	caps     access.Capabilities
	plugin   *plugin.Plugin
	metrics  *metrics.Collector
	limiter  *RateLimiter
	mux      *http.ServeMux
	logger   *slog.Logger
}

func NewServer(d Deps) *Server {
	s := &Server{
		items:    d.Items,
		lists:    d.Lists,
		authz:    d.Authorizer,
		resolver: d.Resolver,
		caps:     d.Capabilities,
		plugin:   d.Plugin,
		metrics:  d.Metrics,
		limiter:  d.Limiter,
		mux:      http.NewServeMux(),
		logger:   d.Logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}

	s.mux.HandleFunc("POST /api/families/{familyId}/shopping", s.familyRoute(s.handleCreateItem))
	s.mux.HandleFunc("GET /api/families/{familyId}/shopping", s.familyRoute(s.handleListItems))
	s.mux.HandleFunc("PUT /api/families/{familyId}/shopping/{itemId}", s.familyRoute(s.handleUpdateItem))
	s.mux.HandleFunc("DELETE /api/families/{familyId}/shopping/{itemId}", s.familyRoute(s.handleDeleteItem))
	s.mux.HandleFunc("GET /api/families/{familyId}/shopping/lists", s.familyRoute(s.handleListNames))
	s.mux.HandleFunc("GET /api/families/{familyId}/shopping/suggestions", s.familyRoute(s.handleSuggestions))

	s.mux.HandleFunc("GET /api/shopping/lists", s.pluginRoute(s.handleGetLists))
	s.mux.HandleFunc("POST /api/shopping/lists", s.pluginRoute(s.handlePostList))
	s.mux.HandleFunc("GET /api/shopping/lists/{id}", s.pluginRoute(s.handleGetList))
	s.mux.HandleFunc("PUT /api/shopping/lists/{id}", s.pluginRoute(s.handlePutList))
	s.mux.HandleFunc("DELETE /api/shopping/lists/{id}", s.pluginRoute(s.handleDeleteList))

	s.mux.HandleFunc("GET /api/shopping/items", s.pluginRoute(s.handleGetItems))
	s.mux.HandleFunc("POST /api/shopping/items", s.pluginRoute(s.handlePostItem))
	s.mux.HandleFunc("GET /api/shopping/items/{id}", s.pluginRoute(s.handleGetItem))
	s.mux.HandleFunc("PUT /api/shopping/items/{id}", s.pluginRoute(s.handlePutItem))
	s.mux.HandleFunc("DELETE /api/shopping/items/{id}", s.pluginRoute(s.handleDeleteItemByID))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.plugin.Health(r.Context())
	status := http.StatusOK
	if !h.Healthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h, s.logger)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestLogger(s.logger, s.metrics, securityHeaders(s.mux)).ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests for up to ten seconds.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.logger.Info("starting server", "addr", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
