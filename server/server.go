// Package server exposes the CardAssist HTTP API: the /chat conversation
// endpoint, knowledge base management, document passthrough and the usual
// health and metrics surfaces.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog"

	"github.com/cardassist/cardassist/agent"
	"github.com/cardassist/cardassist/core"
	"github.com/cardassist/cardassist/docstore"
	"github.com/cardassist/cardassist/engine"
	"github.com/cardassist/cardassist/logging"
	"github.com/cardassist/cardassist/metrics"
	"github.com/cardassist/cardassist/rag"
)

// Options configures a Server.
type Options struct {
	// AgentName is the engine-registered root agent. Defaults to the
	// support orchestrator.
	AgentName string

	// ServiceName labels HTTP access logs.
	ServiceName string

	// Sessions is used to seed client-provided context before invoking the
	// agent. Should be the same store the engine runs on.
	Sessions core.SessionStore

	// Knowledge serves /rag/* and the quote fallback. Optional.
	Knowledge *rag.Manager

	// Documents serves /documents/*. Optional.
	Documents docstore.Store

	// Metrics instruments requests and chat turns. Optional.
	Metrics *metrics.Collector

	// QuoteThreshold is the minimum retrieval score for attaching a policy
	// quote when the orchestrator produced none.
	QuoteThreshold float64

	// RequestTimeout bounds each request, chat turns included.
	RequestTimeout time.Duration

	// AllowedOrigins configures CORS. Defaults to "*".
	AllowedOrigins []string

	Logger logging.Logger
}

// Server is the HTTP front end over the agent engine.
type Server struct {
	engine *engine.Engine
	opts   Options
	logger logging.Logger
	router chi.Router
}

// New builds the server and its routes.
func New(eng *engine.Engine, optFns ...func(o *Options)) *Server {
	opts := Options{
		AgentName:      agent.OrchestratorName,
		ServiceName:    "cardassist",
		QuoteThreshold: 0.55,
		RequestTimeout: 60 * time.Second,
		AllowedOrigins: []string{"*"},
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{
		engine: eng,
		opts:   opts,
		logger: opts.Logger,
	}
	s.router = s.routes()
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Session-Id"},
	}))

	httpLogger := httplog.NewLogger(s.opts.ServiceName, httplog.Options{
		JSON:    true,
		Concise: true,
	})
	r.Use(httplog.RequestLogger(httpLogger))

	instrument := func(route string) func(http.Handler) http.Handler {
		if s.opts.Metrics == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return s.opts.Metrics.Middleware(route)
	}

	r.With(instrument("/chat")).Post("/chat", s.handleChat)
	r.With(instrument("/rag/stats")).Get("/rag/stats", s.handleRagStats)
	r.With(instrument("/rag/index")).Post("/rag/index", s.handleRagIndex)
	r.With(instrument("/documents")).Get("/documents/*", s.handleDocument)

	r.Get("/healthz", s.handleHealth)
	if s.opts.Metrics != nil {
		r.Handle("/metrics", s.opts.Metrics.Handler())
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRagStats(w http.ResponseWriter, r *http.Request) {
	if s.opts.Knowledge == nil {
		writeError(w, http.StatusNotFound, "knowledge base not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Knowledge.Stats(r.Context()))
}

func (s *Server) handleRagIndex(w http.ResponseWriter, r *http.Request) {
	if s.opts.Knowledge == nil {
		writeError(w, http.StatusNotFound, "knowledge base not configured")
		return
	}

	var req struct {
		Reindex bool `json:"reindex"`
	}
	// Empty body means an incremental sync.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var err error
	if req.Reindex {
		err = s.opts.Knowledge.Reindex(r.Context())
	} else {
		err = s.opts.Knowledge.Sync(r.Context())
	}
	if err != nil {
		s.logger.Error("knowledge base indexing failed", "error", err)
		writeError(w, http.StatusBadGateway, "indexing failed")
		return
	}

	writeJSON(w, http.StatusOK, s.opts.Knowledge.Stats(r.Context()))
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	if s.opts.Documents == nil {
		writeError(w, http.StatusNotFound, "document store not configured")
		return
	}

	name := chi.URLParam(r, "*")
	if name == "" {
		writeError(w, http.StatusBadRequest, "document name is required")
		return
	}

	data, doc, err := s.opts.Documents.Get(r.Context(), name)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		s.logger.Error("document fetch failed", "name", name, "error", err)
		writeError(w, http.StatusBadGateway, "document fetch failed")
		return
	}

	w.Header().Set("Content-Type", doc.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
