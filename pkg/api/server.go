// Package api exposes the game engine over HTTP: session management, event
// recording, live match control, and persistence.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/haakonros/lappeleken/pkg/entitle"
	"github.com/haakonros/lappeleken/pkg/footballdata"
	"github.com/haakonros/lappeleken/pkg/game"
	"github.com/haakonros/lappeleken/pkg/ingest"
	"github.com/haakonros/lappeleken/pkg/metrics"
	"github.com/haakonros/lappeleken/pkg/monitor"
	"github.com/haakonros/lappeleken/pkg/store"
	"github.com/haakonros/lappeleken/pkg/streaming"
)

// Server wires the engine components behind an HTTP API.
type Server struct {
	log      *logrus.Entry
	manager  *game.Manager
	store    *store.Store
	gate     *entitle.Gate
	monitors *monitor.Manager
	source   footballdata.Source
	hub      *streaming.Hub
	metrics  *metrics.GameMetrics

	pollInterval time.Duration

	// One feed ingestor per session, living as long as the session does.
	// Its dedup memory must survive live mode stop/start cycles.
	ingestMu  sync.Mutex
	ingestors map[uuid.UUID]*ingest.Ingestor

	httpServer *http.Server
}

// Config carries the server dependencies.
type Config struct {
	Addr         string
	Logger       *logrus.Logger
	Manager      *game.Manager
	Store        *store.Store
	Gate         *entitle.Gate
	Monitors     *monitor.Manager
	Source       footballdata.Source
	Hub          *streaming.Hub
	Metrics      *metrics.GameMetrics
	PollInterval time.Duration
}

// NewServer creates the HTTP server. It does not start listening.
func NewServer(cfg Config) *Server {
	s := &Server{
		log:          cfg.Logger.WithField("component", "api"),
		manager:      cfg.Manager,
		store:        cfg.Store,
		gate:         cfg.Gate,
		monitors:     cfg.Monitors,
		source:       cfg.Source,
		hub:          cfg.Hub,
		metrics:      cfg.Metrics,
		pollInterval: cfg.PollInterval,
		ingestors:    make(map[uuid.UUID]*ingest.Ingestor),
	}

	r := mux.NewRouter()
	if s.metrics != nil {
		r.Use(s.latencyMiddleware)
	}
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/entitlement", s.handleEntitlement).Methods(http.MethodGet)

	r.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	r.HandleFunc("/sessions", s.handleListSessions).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", s.handleEndSession).Methods(http.MethodDelete)
	r.HandleFunc("/sessions/{id}/reset", s.handleResetSession).Methods(http.MethodPost)

	r.HandleFunc("/sessions/{id}/participants", s.handleAddParticipant).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/players", s.handleAddPlayer).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/bets", s.handleAddBet).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/assign", s.handleAssign).Methods(http.MethodPost)

	r.HandleFunc("/sessions/{id}/events", s.handleRecordEvent).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/events", s.handleListEvents).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}/undo", s.handleUndo).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/recalculate", s.handleRecalculate).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/substitutions", s.handleSubstitute).Methods(http.MethodPost)

	r.HandleFunc("/sessions/{id}/save", s.handleSave).Methods(http.MethodPost)
	r.HandleFunc("/saves", s.handleListSaves).Methods(http.MethodGet)
	r.HandleFunc("/saves/{id}/restore", s.handleRestore).Methods(http.MethodPost)
	r.HandleFunc("/saves/{id}", s.handleDeleteSave).Methods(http.MethodDelete)

	r.HandleFunc("/sessions/{id}/live/start", s.handleLiveStart).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/live/stop", s.handleLiveStop).Methods(http.MethodPost)

	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	}
	if s.hub != nil {
		r.HandleFunc("/ws", s.hub.ServeWS)
	}

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(r)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler returns the routed handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe blocks serving HTTP until Shutdown.
func (s *Server) ListenAndServe() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("http server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// latencyMiddleware observes per-route request latency. The route template
// is used as the label so session ids do not explode the cardinality.
func (s *Server) latencyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.metrics.RecordRequest(r.Method, route, time.Since(start).Seconds())
	})
}

// --- Response helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
