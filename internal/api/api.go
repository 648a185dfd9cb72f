package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/df-mc/atomic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/haveachin/minestat/internal/config"
	"github.com/haveachin/minestat/internal/exporter"
	"github.com/haveachin/minestat/pkg/minestat"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Prober queries a single server on behalf of an API client.
type Prober interface {
	Query(ctx context.Context, address string, port int) (minestat.Result, error)
}

// probeSettings is everything /v1/probe depends on that can change on reload.
type probeSettings struct {
	prober    Prober
	allowlist []string
	rateLimit float64
	burst     int
	limiters  *clientLimiters
}

type Server struct {
	Config   config.APIConfig
	Logger   *zap.Logger
	Exporter *exporter.Exporter

	registry *prometheus.Registry
	probe    *atomic.Value[probeSettings]
}

func New(cfg config.APIConfig, e *exporter.Exporter, p Prober, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	reg := prometheus.NewRegistry()
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}

	if e != nil {
		if err := reg.Register(e); err != nil {
			return nil, err
		}
	}

	return &Server{
		Config:   cfg,
		Logger:   logger,
		Exporter: e,
		registry: reg,
		probe:    atomic.NewValue(newProbeSettings(cfg, p, nil)),
	}, nil
}

func newProbeSettings(cfg config.APIConfig, p Prober, prev *probeSettings) probeSettings {
	ps := probeSettings{
		prober:    p,
		allowlist: cfg.ProbeAllowlist,
		rateLimit: cfg.ProbeRateLimit,
		burst:     cfg.ProbeBurst,
	}

	// Clients keep their remaining budget if the limits did not change.
	if prev != nil && prev.rateLimit == ps.rateLimit && prev.burst == ps.burst {
		ps.limiters = prev.limiters
	} else {
		ps.limiters = newClientLimiters(rate.Limit(ps.rateLimit), ps.burst)
	}
	return ps
}

// Reload swaps the prober, the allowlist and the rate limits used by
// /v1/probe. Bind, trustProxy and CORS settings only apply at startup.
func (s *Server) Reload(cfg config.APIConfig, p Prober) {
	prev := s.probe.Load()
	s.probe.Store(newProbeSettings(cfg, p, &prev))
}

// ListenAndServe serves the API until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := http.Server{
		Handler:           s.Handler(),
		Addr:              s.Config.Bind,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.ListenAndServe()
	}()

	s.Logger.Info("started api server",
		zap.String("bind", s.Config.Bind),
	)

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	if s.Config.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.Config.AllowedOrigins,
		AllowedMethods:   s.Config.AllowedMethods,
		AllowedHeaders:   s.Config.AllowedHeaders,
		AllowCredentials: false,
	}))

	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		ErrorLog: zap.NewStdLog(s.Logger),
	}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/targets", getTargetsHandler(s.Exporter))
		r.With(s.rateLimit).
			Get("/probe", getProbeHandler(s.probe, s.Logger))
	})
	return r
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.probe.Load().limiters.allow(remoteIP(r)) {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
