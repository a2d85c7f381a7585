package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/blackmichael/curated-feeds/internal/config"
	"github.com/blackmichael/curated-feeds/internal/domain"
	"github.com/blackmichael/curated-feeds/internal/errmodel"
)

// FeedService assembles feed pages.
type FeedService interface {
	GetFeed(ctx context.Context, q domain.FeedQuery) (*domain.FeedPage, error)
}

// Pinger reports backing store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP server that serves feed endpoints.
type Server struct {
	cfg         *config.Config
	feedService FeedService
	health      Pinger
	logger      *slog.Logger
	httpServer  *http.Server
}

// NewServer creates a new HTTP server with the given feed service. health
// may be nil.
func NewServer(cfg *config.Config, feedService FeedService, health Pinger, logger *slog.Logger) *Server {
	s := &Server{
		cfg:         cfg,
		feedService: feedService,
		health:      health,
		logger:      logger,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the instrumented request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/feed", s.handleFeed)
	mux.HandleFunc("GET /api/feed.rss", s.handleFeedRSS)
	mux.HandleFunc("GET /health", s.handleHealth)

	return otelhttp.NewHandler(withLogging(s.logger, mux), "http.server",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	page, q, ok := s.getFeed(w, r)
	if !ok {
		return
	}
	s.logger.Info("feed request",
		"feed_type", q.FeedType,
		"sort", q.SortMode,
		"items_returned", len(page.Items),
		"has_next", page.Next.Cursor != nil,
	)
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleFeedRSS(w http.ResponseWriter, r *http.Request) {
	page, q, ok := s.getFeed(w, r)
	if !ok {
		return
	}
	body, err := renderRSS(s.cfg.Hostname, q, page, time.Now())
	if err != nil {
		s.logger.Error("failed to render rss", "error", err)
		errmodel.WriteHTTP(w, r, errmodel.System("render_failed", "failed to render feed", err))
		return
	}
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// getFeed parses the request and fetches the page, writing the error
// response itself when it fails.
func (s *Server) getFeed(w http.ResponseWriter, r *http.Request) (*domain.FeedPage, domain.FeedQuery, bool) {
	q, err := parseFeedQuery(r.URL.Query())
	if err != nil {
		s.logger.Warn("invalid feed request", "query", r.URL.RawQuery, "error", err)
		errmodel.WriteHTTP(w, r, err)
		return nil, q, false
	}

	page, err := s.feedService.GetFeed(r.Context(), q)
	if err != nil {
		s.logger.Error("failed to get feed",
			"feed_type", q.FeedType,
			"sort", q.SortMode,
			"cursor", q.Cursor,
			"error", err,
		)
		errmodel.WriteHTTP(w, r, err)
		return nil, q, false
	}
	return page, q, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
