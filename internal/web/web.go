// Package web serves the todo list HTTP API.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/juju/clock"
	"github.com/juju/collections/set"
	"github.com/juju/loggo/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Joseda-hg/todoapi/internal/store"
)

var logger = loggo.GetLogger("todoapi.web")

type Server struct {
	store    store.Store
	clock    clock.Clock
	registry *prometheus.Registry
	metrics  *metrics
	origins  set.Strings
}

type Option func(*Server)

// WithClock sets the clock used to stamp created and updated dates.
func WithClock(clk clock.Clock) Option {
	return func(s *Server) {
		s.clock = clk
	}
}

// WithRegistry sets the registry request metrics are registered on and
// served from.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = registry
	}
}

// WithOrigins sets the CORS allow-list. "*" allows every origin.
func WithOrigins(origins []string) Option {
	return func(s *Server) {
		s.origins = set.NewStrings(origins...)
	}
}

func NewServer(store store.Store, opts ...Option) (*Server, error) {
	s := &Server{
		store:   store,
		clock:   clock.WallClock,
		origins: set.NewStrings(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	m, err := newMetrics(s.registry)
	if err != nil {
		return nil, err
	}
	s.metrics = m
	return s, nil
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})
	r.Use(s.instrument)

	r.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.HandleFunc("/lists", s.listListsHandler).Methods(http.MethodGet)
	r.HandleFunc("/lists", s.createListHandler).Methods(http.MethodPost)
	r.HandleFunc("/lists/{listId}", s.getListHandler).Methods(http.MethodGet)
	r.HandleFunc("/lists/{listId}", s.updateListHandler).Methods(http.MethodPut)
	r.HandleFunc("/lists/{listId}", s.deleteListHandler).Methods(http.MethodDelete)

	r.HandleFunc("/lists/{listId}/items", s.listItemsHandler).Methods(http.MethodGet)
	r.HandleFunc("/lists/{listId}/items", s.createItemHandler).Methods(http.MethodPost)
	r.HandleFunc("/lists/{listId}/items/state/{state}", s.listItemsByStateHandler).Methods(http.MethodGet)
	r.HandleFunc("/lists/{listId}/items/state/{state}", s.setItemsStateHandler).Methods(http.MethodPut)
	r.HandleFunc("/lists/{listId}/items/{itemId}", s.getItemHandler).Methods(http.MethodGet)
	r.HandleFunc("/lists/{listId}/items/{itemId}", s.updateItemHandler).Methods(http.MethodPut)
	r.HandleFunc("/lists/{listId}/items/{itemId}", s.deleteItemHandler).Methods(http.MethodDelete)

	return withRequestID(s.logAccess(s.cors(r)))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		logger.Warningf("health check failed: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) now() time.Time {
	return s.clock.Now().UTC()
}
