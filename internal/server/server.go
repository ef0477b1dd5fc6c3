// SPDX-License-Identifier: MIT

// Package server exposes the analysis pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"beatsketch/internal/analysis"
	"beatsketch/internal/audio"
	applog "beatsketch/internal/log"
	"beatsketch/internal/metrics"

	"github.com/didip/tollbooth"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// Options configures a Server. Zero values select the defaults noted on
// each field.
type Options struct {
	MaxBytes          int64               // Upload limit; 0 means audio.DefaultMaxBytes.
	AllowedMIMETypes  []string            // Upload content types; nil means audio.AllowedMIMETypes.
	RequestsPerSecond float64             // Analyze requests per client per second; 0 disables limiting.
	Burst             int                 // Requests allowed above the steady rate.
	Progress          http.Handler        // Mounted at /v1/progress when set (a websocket hub).
	Metrics           *metrics.Metrics    // Response counters.
	Gatherer          prometheus.Gatherer // Served at /metrics; nil means the default registry.
	Fetcher           *audio.Fetcher      // URL downloads; nil means a default Fetcher.
}

// Server routes HTTP requests to a shared Analyzer.
type Server struct {
	analyzer *analysis.Analyzer
	fetcher  *audio.Fetcher
	opts     Options
	router   *mux.Router
	handler  http.Handler
}

// New builds the router. Analyze requests share a and are serialized by it.
func New(a *analysis.Analyzer, opts Options) *Server {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = audio.DefaultMaxBytes
	}
	if len(opts.AllowedMIMETypes) == 0 {
		opts.AllowedMIMETypes = audio.AllowedMIMETypes
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = &audio.Fetcher{MaxBytes: opts.MaxBytes}
	}

	s := &Server{
		analyzer: a,
		fetcher:  fetcher,
		opts:     opts,
		router:   mux.NewRouter(),
	}

	analyzeUpload := s.limit(s.route("analyze", s.analyzeUpload))
	analyzeURL := s.limit(s.route("analyze_url", s.analyzeURL))

	s.router.Handle("/v1/analyze", analyzeUpload).Methods(http.MethodPost)
	s.router.Handle("/v1/analyze/url", analyzeURL).Methods(http.MethodPost)
	if opts.Progress != nil {
		s.router.Handle("/v1/progress", opts.Progress).Methods(http.MethodGet)
	}
	s.router.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	s.router.Handle("/healthz", s.route("healthz", s.healthz)).Methods(http.MethodGet, http.MethodHead)

	s.router.NotFoundHandler = s.route("not_found", func(*http.Request) any { return NotFoundError() })
	s.router.MethodNotAllowedHandler = s.route("method_not_allowed", func(*http.Request) any { return MethodNotAllowed() })

	s.handler = s.router
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		applog.WithField("address", addr).Infof("Server: Listening at http://%s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	applog.Infof("Server: Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// limit applies the per-client token bucket to h.
func (s *Server) limit(h http.Handler) http.Handler {
	if s.opts.RequestsPerSecond <= 0 {
		return h
	}
	lmt := tollbooth.NewLimiter(s.opts.RequestsPerSecond, nil)
	lmt.SetIPLookups([]string{"X-Forwarded-For", "X-Real-IP", "RemoteAddr"})
	lmt.SetTokenBucketExpirationTTL(time.Hour)
	lmt.SetBurst(max(1, s.opts.Burst))

	b, _ := json.Marshal(RateLimitReached())
	lmt.SetMessage(string(b))
	lmt.SetMessageContentType("application/json")
	lmt.SetOnLimitReached(func(w http.ResponseWriter, r *http.Request) {
		s.opts.Metrics.ObserveResponse("rate_limited", r.Method, http.StatusTooManyRequests)
		applog.WithField("remote", r.RemoteAddr).Warnf("Server: Rate limit reached for %s", r.URL.Path)
	})
	return tollbooth.LimitHandler(lmt, h)
}

type handlerFn func(r *http.Request) any

// routeHandler writes whatever its function returns as JSON. An
// *ErrorResponse carries its own status code.
type routeHandler struct {
	action  string
	fn      handlerFn
	metrics *metrics.Metrics
}

func (s *Server) route(action string, fn handlerFn) http.Handler {
	return routeHandler{action: action, fn: fn, metrics: s.opts.Metrics}
}

func (h routeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := applog.Logger().WithFields(logrus.Fields{
		"action": h.action,
		"method": r.Method,
		"remote": r.RemoteAddr,
	})
	start := time.Now()

	res := h.fn(r)
	status := http.StatusOK
	if errRes, ok := res.(*ErrorResponse); ok {
		status = errRes.status
		log.WithField("errcode", errRes.Code).Warnf("Server: %s", errRes.Message)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		if err := json.NewEncoder(w).Encode(res); err != nil {
			log.Errorf("Server: Error writing response: %v", err)
		}
	}

	h.metrics.ObserveResponse(h.action, r.Method, status)
	log.WithField("status", status).Debugf("Server: Replied in %s", time.Since(start))
}
