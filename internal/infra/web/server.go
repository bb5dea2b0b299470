package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"recurring-billing/internal/usecase"
)

// TriggerLimiter throttles manual billing-cycle triggers per caller.
type TriggerLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type Options struct {
	RequestTimeout time.Duration
	TriggerLimit   int // 0 disables throttling
	TriggerWindow  time.Duration
}

type Server struct {
	billing usecase.BillingUseCase
	limiter TriggerLimiter
	opts    Options
	log     *zerolog.Logger
}

// NewServer builds the HTTP adapter; limiter may be nil.
func NewServer(billing usecase.BillingUseCase, limiter TriggerLimiter, opts Options, logger *zerolog.Logger) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if opts.TriggerWindow <= 0 {
		opts.TriggerWindow = time.Minute
	}
	l := logger.With().Str("component", "HTTPServer").Logger()
	return &Server{billing: billing, limiter: limiter, opts: opts, log: &l}
}

// Router returns the full route tree, including /health and /metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(TraceID)
	r.Use(RequestLog(s.log))
	r.Use(Recover(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Timeout(s.opts.RequestTimeout))

		r.Route("/billing", func(r chi.Router) {
			r.Post("/cycles", s.startCycle)
			r.Get("/jobs/{jobID}", s.getJob)
			r.Post("/jobs/{jobID}/cancel", s.cancelJob)
		})
		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", s.createSubscription)
			r.Post("/{subscriptionID}/cancel", s.cancelSubscription)
		})
	})
	return r
}
