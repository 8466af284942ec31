package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/muzbazar/internal/health"
)

// RouterConfig — зависимости HTTP-сервера.
type RouterConfig struct {
	API     *Handler
	Health  *health.Handler
	Metrics http.Handler
	// RateLimit — запросов в минуту на IP для /api/v1; 0 отключает лимит.
	RateLimit      int
	RequestTimeout time.Duration
	Logger         *log.Entry
}

// NewRouter собирает HTTP-обработчик: служебные эндпоинты и /api/v1.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New().WithField("component", "http")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}
	r.Get("/livez", health.LivenessHandler)
	if cfg.Health != nil {
		r.Method(http.MethodGet, "/healthz", cfg.Health)
		r.Get("/readyz", cfg.Health.ReadinessHandler)
	}

	if cfg.API != nil {
		r.Route("/api/v1", func(api chi.Router) {
			if cfg.RequestTimeout > 0 {
				api.Use(middleware.Timeout(cfg.RequestTimeout))
			}
			if cfg.RateLimit > 0 {
				api.Use(httprate.Limit(cfg.RateLimit, time.Minute,
					httprate.WithKeyFuncs(httprate.KeyByIP),
					httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
						writeProblem(w, Problem{Type: "rate-limit", Status: http.StatusTooManyRequests, Detail: "too many requests"})
					}),
				))
			}
			cfg.API.MountRoutes(api)
		})
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeProblem(w, Problem{Type: "not-found", Status: http.StatusNotFound, Detail: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeProblem(w, Problem{Status: http.StatusMethodNotAllowed})
	})

	return r
}

func requestLogger(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			entry := logger.WithFields(log.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(started).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			})
			if ww.Status() >= http.StatusInternalServerError {
				entry.Warn("http request")
				return
			}
			entry.Debug("http request")
		})
	}
}
