// Package server is the HTTP surface of the console: the mount draft
// workflow, the backend catalog, the mount journal and the LDAP and Transform
// item forms, plus /metrics and health endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/dc-tec/openbao-console/internal/catalog"
	"github.com/dc-tec/openbao-console/internal/journal"
	"github.com/dc-tec/openbao-console/internal/metrics"
	"github.com/dc-tec/openbao-console/internal/openbao"
	"github.com/dc-tec/openbao-console/internal/session"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
	maxBodyBytes      = 1 << 20
)

// Options configures a Server.
type Options struct {
	// Catalog defaults to catalog.Default().
	Catalog    *catalog.Catalog
	Enterprise bool
	// Journal is optional; without it /v1/journal is empty.
	Journal *journal.Journal
	// Health backs /readyz. Optional.
	Health openbao.HealthChecker
	Logger logr.Logger
}

// Server serves the console API.
type Server struct {
	store      *session.Store
	api        openbao.API
	catalog    *catalog.Catalog
	enterprise bool
	journal    *journal.Journal
	health     openbao.HealthChecker
	logger     logr.Logger
	router     *mux.Router
}

// New builds the router. api is used for catalog filtering and the engine
// item endpoints; drafts use the workflows the store creates.
func New(store *session.Store, api openbao.API, opts Options) *Server {
	cat := opts.Catalog
	if cat == nil {
		cat = catalog.Default()
	}
	s := &Server{
		store:      store,
		api:        api,
		catalog:    cat,
		enterprise: opts.Enterprise,
		journal:    opts.Journal,
		health:     opts.Health,
		logger:     opts.Logger,
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.instrument)

	r.Methods(http.MethodGet).Path("/healthz").HandlerFunc(s.handleHealthz)
	r.Methods(http.MethodGet).Path("/readyz").HandlerFunc(s.handleReadyz)
	r.Methods(http.MethodGet).Path("/metrics").Handler(promhttp.HandlerFor(ctrlmetrics.Registry, promhttp.HandlerOpts{}))

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Methods(http.MethodGet).Path("/catalog/{category}").HandlerFunc(s.handleCatalog)

	v1.Methods(http.MethodPost).Path("/drafts").HandlerFunc(s.handleCreateDraft)
	v1.Methods(http.MethodGet).Path("/drafts").HandlerFunc(s.handleListDrafts)
	v1.Methods(http.MethodGet).Path("/drafts/{id}").HandlerFunc(s.handleGetDraft)
	v1.Methods(http.MethodDelete).Path("/drafts/{id}").HandlerFunc(s.handleDeleteDraft)
	v1.Methods(http.MethodGet).Path("/drafts/{id}/types").HandlerFunc(s.handleDraftTypes)
	v1.Methods(http.MethodPost).Path("/drafts/{id}/type").HandlerFunc(s.handleSelectType)
	v1.Methods(http.MethodPost).Path("/drafts/{id}/path").HandlerFunc(s.handleEditPath)
	v1.Methods(http.MethodPost).Path("/drafts/{id}/description").HandlerFunc(s.handleSetDescription)
	v1.Methods(http.MethodPost).Path("/drafts/{id}/back").HandlerFunc(s.handleGoBack)
	v1.Methods(http.MethodPost).Path("/drafts/{id}/config").HandlerFunc(s.handleSetValues(valuesConfig))
	v1.Methods(http.MethodPost).Path("/drafts/{id}/options").HandlerFunc(s.handleSetValues(valuesOptions))
	v1.Methods(http.MethodPost).Path("/drafts/{id}/kv-config").HandlerFunc(s.handleSetValues(valuesKVConfig))
	v1.Methods(http.MethodPost).Path("/drafts/{id}/submit").HandlerFunc(s.handleSubmit)

	v1.Methods(http.MethodGet).Path("/journal").HandlerFunc(s.handleJournal)

	v1.Methods(http.MethodPost).Path("/ldap/{backend}/roles").HandlerFunc(s.handleCreateLDAPRole)
	v1.Methods(http.MethodGet).Path("/ldap/{backend}/roles/{type}/{name}").HandlerFunc(s.handleGetLDAPRole)
	v1.Methods(http.MethodPut).Path("/ldap/{backend}/roles/{type}/{name}").HandlerFunc(s.handleUpdateLDAPRole)

	v1.Methods(http.MethodGet).Path("/transform/{backend}/{itemType}/{name:.+}").HandlerFunc(s.handleGetTransformItem)
	v1.Methods(http.MethodPut).Path("/transform/{backend}/{itemType}/{name:.+}").HandlerFunc(s.handlePutTransformItem)
	v1.Methods(http.MethodDelete).Path("/transform/{backend}/{itemType}/{name:.+}").HandlerFunc(s.handleDeleteTransformItem)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("no such endpoint"))
	})
	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument logs every request and counts it by route template.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		r.Body = http.MaxBytesReader(rec, r.Body, maxBodyBytes)
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		metrics.RecordHTTPRequest(route, r.Method, rec.status)
		s.logger.V(1).Info("Served request",
			"method", r.Method,
			"route", route,
			"status", rec.status,
			"duration", time.Since(start).String(),
		)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	healthy, err := s.health.IsHealthy(r.Context())
	if err != nil || !healthy {
		if err == nil {
			err = errors.New("openbao is not ready")
		}
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Serving console API", "address", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
