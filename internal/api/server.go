package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/busybox42/replyaddr/internal/metrics"
	"github.com/busybox42/replyaddr/internal/rewrite"
)

// maxBodyBytes bounds request bodies; envelope addresses are short
const maxBodyBytes = 64 * 1024

// Config represents API server configuration
type Config struct {
	ListenAddr     string
	APIKeyHashes   []string
	RateLimit      RateLimitConfig
	MetricsEnabled bool
	MetricsPath    string
	Version        string
}

// Server serves the reply and bounce address API
type Server struct {
	config      *Config
	service     *rewrite.Service
	logger      *slog.Logger
	metrics     *metrics.Metrics
	gatherer    prometheus.Gatherer
	rateLimiter *RateLimitMiddleware
	auth        *AuthMiddleware
	handler     http.Handler
	startedAt   time.Time

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// NewServer creates a new API server. gatherer backs the metrics endpoint
// and may be nil when metrics are disabled.
func NewServer(config *Config, svc *rewrite.Service, logger *slog.Logger, m *metrics.Metrics, gatherer prometheus.Gatherer) (*Server, error) {
	if svc == nil {
		return nil, errors.New("api: rewrite service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.ListenAddr == "" {
		config.ListenAddr = "127.0.0.1:8025"
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	if config.MetricsEnabled && gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		config:      config,
		service:     svc,
		logger:      logger.With("component", "api"),
		metrics:     m,
		gatherer:    gatherer,
		rateLimiter: NewRateLimitMiddleware(config.RateLimit),
		auth:        NewAuthMiddleware(config.APIKeyHashes),
		startedAt:   time.Now(),
	}
	s.handler = s.routes()
	return s, nil
}

// routes builds the router
func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(s.logger, s.metrics))
	r.Use(s.rateLimiter.Limit)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.config.MetricsEnabled {
		r.Handle(s.config.MetricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.auth.RequireAuth)
	api.HandleFunc("/reply/encode", s.handleReplyEncode).Methods(http.MethodPost)
	api.HandleFunc("/reply/decode", s.handleReplyDecode).Methods(http.MethodPost)
	api.HandleFunc("/bounce/encode", s.handleBounceEncode).Methods(http.MethodPost)
	api.HandleFunc("/bounce/decode", s.handleBounceDecode).Methods(http.MethodPost)
	api.HandleFunc("/logging/level", s.HandleGetLogLevel).Methods(http.MethodGet)
	api.HandleFunc("/logging/level", s.HandleSetLogLevel).Methods(http.MethodPost, http.MethodPut)

	return r
}

// Handler returns the HTTP handler with all middleware applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the bound listen address once Start is listening
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start serves the API until ctx is cancelled or the server fails
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("api: listen on %s: %w", s.config.ListenAddr, err)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.mu.Lock()
	s.httpServer = srv
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("starting API server",
		"listen_addr", ln.Addr().String(),
		"auth_enabled", s.auth.Enabled(),
		"metrics_enabled", s.config.MetricsEnabled)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	s.rateLimiter.Stop()

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	s.logger.Info("stopping API server")
	return srv.Shutdown(ctx)
}

// writeJSON writes v as a JSON response
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) // Best effort
}

// writeError writes an error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decodeBody reads a JSON request body into v
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
