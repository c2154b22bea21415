// Package httpapi exposes the read-only JSON surface over the signal
// engines, plus health and prometheus endpoints.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/marketscope/derivscope/internal/adapters"
	"github.com/marketscope/derivscope/internal/alerts"
	"github.com/marketscope/derivscope/internal/arb"
	"github.com/marketscope/derivscope/internal/derivs"
	"github.com/marketscope/derivscope/internal/regime"
	"github.com/marketscope/derivscope/internal/rotation"
	"github.com/marketscope/derivscope/internal/squeeze"
	"github.com/marketscope/derivscope/internal/timeseries"
)

type requestIDKey struct{}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// DefaultServerConfig binds to localhost only.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "127.0.0.1",
		Port:         8080,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Deps wires the engines the handlers read from. Registry may be nil to
// disable the /metrics endpoint.
type Deps struct {
	Regime    *regime.Engine
	Rotation  *rotation.Engine
	Scanner   *squeeze.Scanner
	Pressure  *derivs.PressureCalculator
	Arb       *arb.Calculator
	Alerts    *alerts.Manager
	Exchanges []adapters.Exchange
	Cache     *timeseries.Cache
	Registry  *prometheus.Registry
}

// Server is the read-only HTTP server.
type Server struct {
	router  *mux.Router
	server  *http.Server
	deps    Deps
	started time.Time
}

// NewServer creates the server and wires its routes.
func NewServer(config ServerConfig, deps Deps) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		deps:    deps,
		started: time.Now(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if s.deps.Registry != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Registry,
			promhttp.HandlerOpts{})).Methods("GET")
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(jsonContentTypeMiddleware)
	api.HandleFunc("/regime", s.handleRegime).Methods("GET")
	api.HandleFunc("/rotation", s.handleRotation).Methods("GET")
	api.HandleFunc("/squeeze/{symbol}", s.handleSqueeze).Methods("GET")
	api.HandleFunc("/pressure/{symbol}", s.handlePressure).Methods("GET")
	api.HandleFunc("/arbitrage/{symbol}", s.handleArbitrage).Methods("GET")
	api.HandleFunc("/alerts", s.handleAlerts).Methods("GET")

	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// symbolFromRequest normalizes the {symbol} path variable to the uppercase
// venue-neutral form adapters expect.
func symbolFromRequest(r *http.Request) string {
	return strings.ToUpper(mux.Vars(r)["symbol"])
}

// Start blocks serving requests until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("http server shutting down")
	return s.server.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}
