package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/artharvest/internal/metrics"
	"github.com/JakeFAU/artharvest/internal/recommend"
	"github.com/JakeFAU/artharvest/internal/tags"
)

// DefaultResults is used when a recommend request omits n.
const DefaultResults = 10

// Config controls request limits.
type Config struct {
	// MaxResults caps n on recommend requests.
	MaxResults int
	// Timeout bounds each request.
	Timeout time.Duration
}

// Server serves recommendations from an in-memory index.
type Server struct {
	router chi.Router
	index  *recommend.Index
	tags   *tags.Table
	cfg    Config
	logger *zap.Logger
}

type recommendResponse struct {
	Query   string            `json:"query"`
	Results []recommend.Match `json:"results"`
}

type segmentResponse struct {
	Query     string   `json:"query"`
	Tags      []string `json:"tags"`
	Canonical string   `json:"canonical"`
}

// NewServer constructs a Server with middleware and routes. tagTable may be
// nil, in which case the tag routes answer 503.
func NewServer(index *recommend.Index, tagTable *tags.Table, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 50
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	s := &Server{
		index:  index,
		tags:   tagTable,
		cfg:    cfg,
		logger: logger.Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.Timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/recommend", s.recommend)
		r.Get("/tags/segment", s.segment)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.index == nil || s.index.Len() == 0 {
		s.writeError(w, http.StatusServiceUnavailable, "index is empty")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "documents": s.index.Len()})
}

func (s *Server) recommend(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		s.writeError(w, http.StatusServiceUnavailable, "index is not loaded")
		return
	}
	q := r.URL.Query()
	n := DefaultResults
	if raw := strings.TrimSpace(q.Get("n")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = parsed
	}
	if n > s.cfg.MaxResults {
		n = s.cfg.MaxResults
	}
	query := q.Get("q")
	results := s.index.Recommend(query, n)
	if results == nil {
		results = []recommend.Match{}
	}
	s.writeJSON(w, http.StatusOK, recommendResponse{Query: query, Results: results})
}

func (s *Server) segment(w http.ResponseWriter, r *http.Request) {
	if s.tags == nil {
		s.writeError(w, http.StatusServiceUnavailable, "tag table is not loaded")
		return
	}
	query := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
	if query == "" {
		s.writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	s.writeJSON(w, http.StatusOK, segmentResponse{
		Query:     query,
		Tags:      tags.Segment(query, s.tags),
		Canonical: tags.GreedySplit(query, s.tags),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
