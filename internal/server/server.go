// Package server hosts the HTTP surface: the dashboard routes plus health,
// metrics and access logging.
package server

import (
	"context"
	"errors"
	"expvar"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	healthEndpoint  = "/healthz"
	metricsEndpoint = "/metrics"
	expvarEndpoint  = "/debug/vars"
)

// Options configures Serve.
type Options struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	Logger            *slog.Logger
}

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// Registerer receives the HTTP request collectors; nil skips them.
	Registerer prometheus.Registerer
	// Expvar mounts /debug/vars.
	Expvar bool
	Logger *slog.Logger
}

// NewRouter wraps app with health, metrics, request instrumentation and
// access logging.
func NewRouter(app http.Handler, opts RouterOptions) (http.Handler, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var handler http.Handler = app
	if opts.Registerer != nil {
		requests := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wellbore",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by status code and method.",
		}, []string{"code", "method"})
		duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wellbore",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by status code and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"code", "method"})
		for _, c := range []prometheus.Collector{requests, duration} {
			if err := opts.Registerer.Register(c); err != nil {
				return nil, err
			}
		}
		handler = promhttp.InstrumentHandlerDuration(duration, promhttp.InstrumentHandlerCounter(requests, handler))
	}

	mux := http.NewServeMux()
	mux.Handle("/", handler)
	mux.HandleFunc(healthEndpoint, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if opts.Gatherer != nil {
		mux.Handle(metricsEndpoint, promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	if opts.Expvar {
		mux.Handle(expvarEndpoint, expvar.Handler())
	}
	return loggingMiddleware(logger, mux), nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.LogAttrs(r.Context(), slog.LevelInfo, "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("elapsed", time.Since(started)),
			slog.String("remote_addr", r.RemoteAddr),
		)
		if r.ContentLength > 0 {
			logger.Debug("request content length", "content_length", r.ContentLength)
		}
	})
}

// Serve runs handler until ctx is cancelled, then shuts down gracefully.
// ready, when non-nil, receives the bound address once listening.
func Serve(ctx context.Context, handler http.Handler, opts Options, ready func(net.Addr)) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	httpServer := &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
	}
	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return err
	}
	if ready != nil {
		ready(ln.Addr())
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting", "listen_addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Warn("Context cancelled, initiating graceful shutdown")
	case err, ok := <-serverErr:
		if ok {
			logger.Error("HTTP server error", "err", err)
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "err", err)
		return err
	}
	<-serverErr
	logger.Info("HTTP server shutdown complete")
	return nil
}
