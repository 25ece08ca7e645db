// Package server exposes fitting, Fourier analysis and prediction over a
// small JSON HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"xrr-analyzer/internal/jobs"
	"xrr-analyzer/internal/layer"
	"xrr-analyzer/internal/predict"
	"xrr-analyzer/internal/version"
)

// Options configures a Server.
type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	// Wavelength is used when a request does not name one.
	Wavelength float64
	// Template is the starting stack when neither the request nor the
	// predictor supplies one.
	Template layer.Stack
	// MaxDepth limits the Fourier spectrum returned to clients.
	MaxDepth float64
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
}

// Server owns the HTTP handlers.
type Server struct {
	runner    *jobs.Runner
	predictor predict.Predictor
	opts      Options
	log       zerolog.Logger
}

// New creates a Server. predictor may be nil.
func New(runner *jobs.Runner, predictor predict.Predictor, opts Options) *Server {
	if opts.Template.IsEmpty() {
		opts.Template = layer.Default()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 16 << 20
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 300
	}
	return &Server{
		runner:    runner,
		predictor: predictor,
		opts:      opts,
		log:       opts.Logger.With().Str("component", "server").Logger(),
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/fits", s.handleSubmitFit)
	mux.HandleFunc("GET /v1/fits/{id}", s.handleGetFit)
	mux.HandleFunc("POST /v1/fourier", s.handleFourier)
	mux.HandleFunc("POST /v1/predict", s.handlePredict)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return s.logRequests(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.opts.ReadTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.opts.Addr).Str("version", version.String()).Msg("listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := s.runner.Close(shutdownCtx); err != nil {
		s.log.Warn().Err(err).Msg("jobs still running at shutdown")
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
