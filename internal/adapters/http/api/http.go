// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/okian/pulse/internal/adapters/http/swagger"
	"github.com/okian/pulse/internal/domain/ratelimit"
	"github.com/okian/pulse/internal/domain/types"
)

// StreamControl drives the producer.
type StreamControl interface {
	StartProducer(ctx context.Context) error
	StopProducer(ctx context.Context) error
	SetRate(ctx context.Context, rate int) error
	StreamStats() types.StreamStats
}

// Admission decides whether a client may make a gated request.
type Admission interface {
	Consume(ctx context.Context, key string) ratelimit.Decision
	Now() time.Time
	Stats() types.LimiterStats
}

// Dependencies bundles what the handlers need from the service.
type Dependencies interface {
	StreamControl
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	producerHandler *ProducerHandler
	limiterHandler  *LimiterHandler
	admission       Admission
	stream          http.Handler
}

// NewServer creates a new API server with all handlers. stream serves the
// websocket endpoint.
func NewServer(deps Dependencies, admission Admission, stream http.Handler) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(deps),
		producerHandler: NewProducerHandler(deps),
		limiterHandler:  NewLimiterHandler(admission),
		admission:       admission,
		stream:          stream,
	}
}

// Router returns the complete route tree.
func (s *Server) Router(_ context.Context) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	swagger.Mount(r)

	gate := RateLimit(s.admission)
	r.Route("/api", func(api chi.Router) {
		api.Use(gate)
		api.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "api_stats"))
		api.Get("/limiter", MetricsMiddleware(s.limiterHandler.HandleLimiter, "api_limiter"))
		api.Post("/producer/start", MetricsMiddleware(s.producerHandler.HandleStart, "producer_start"))
		api.Post("/producer/stop", MetricsMiddleware(s.producerHandler.HandleStop, "producer_stop"))
		api.Put("/producer/rate", MetricsMiddleware(s.producerHandler.HandleSetRate, "producer_rate"))
	})
	if s.stream != nil {
		r.With(gate).Get("/ws", s.stream.ServeHTTP)
	}
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type rateLimitedResponse struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	Reset             string `json:"reset"`
	RetryAfterSeconds int64  `json:"retryAfterSeconds"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
