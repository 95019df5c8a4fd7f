// internal/server/server.go
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// CheckFunc проверяет готовность зависимостей (например, доступность базы)
type CheckFunc func(ctx context.Context) error

// Server – служебный HTTP-сервер с /healthz и /metrics
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New собирает сервер. Метрики HTTP регистрируются в reg, /metrics отдает gatherer.
func New(addr string, reg prometheus.Registerer, gatherer prometheus.Gatherer, check CheckFunc, logger *zap.Logger) *Server {
	m := &httpMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "block_indexer_http_requests_total", Help: "HTTP requests"},
			[]string{"method", "path", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "block_indexer_http_request_duration_seconds", Help: "Request latency", Buckets: prometheus.DefBuckets},
			[]string{"method", "path"},
		),
	}
	reg.MustRegister(m.requests, m.duration)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handleHealthz(check))
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           m.instrument(mux),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.Named("server"),
	}
}

// Handler возвращает корневой обработчик
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run обслуживает запросы до отмены ctx, затем корректно останавливает сервер
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Ops server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Ops server shutdown", zap.Error(err))
		return err
	}
	s.logger.Info("Ops server stopped")
	return nil
}

func handleHealthz(check CheckFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		if check != nil {
			if err := check(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(err.Error()))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// instrument оборачивает обработчики для метрик Prometheus
func (m *httpMetrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		m.requests.WithLabelValues(r.Method, r.URL.Path, statusLabel(ww.status)).Inc()
		m.duration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

// responseWriter запоминает код ответа для метки status
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "unknown"
	}
}
