package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"proctorcap/internal/auth"
)

type RouterOptions struct {
	APIKey         string
	AllowedOrigins []string
	Log            zerolog.Logger
}

// NewRouter mounts the control API. /health and /metrics are open; every
// /v1 route requires the API key when one is configured.
func NewRouter(captureAPI *CaptureAPI, imageAPI *ImageAPI, opts RouterOptions) http.Handler {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(opts.Log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.APIKeyMiddleware(&auth.Config{APIKey: opts.APIKey, Log: opts.Log}))

		r.Route("/capture/{kind}", func(r chi.Router) {
			r.Post("/start", captureAPI.HandleStart)
			r.Post("/stop", captureAPI.HandleStop)
			r.Post("/cleanup", captureAPI.HandleCleanup)
			r.Get("/status", captureAPI.HandleStatus)
		})

		r.Route("/images", func(r chi.Router) {
			r.Post("/", imageAPI.HandleUpload)
			r.Post("/snapshot", imageAPI.HandleSnapshot)
			r.Post("/periodic/start", imageAPI.HandleStartPeriodic)
			r.Post("/periodic/stop", imageAPI.HandleStopPeriodic)
			r.Post("/cleanup", imageAPI.HandleCleanup)
			r.Get("/status", imageAPI.HandleStatus)
		})
	})

	return r
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Str("request_id", middleware.GetReqID(r.Context())).
				Dur("elapsed", time.Since(start)).
				Msg("request")
		})
	}
}
