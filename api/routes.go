package api

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"previewarr/handlers"
)

// requestIDMiddleware tags every request so pipeline log lines can be
// correlated across services.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs each API request with its duration.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("[api] %s %s (%s)", r.Method, r.URL.Path, time.Since(start).Round(time.Millisecond))
	})
}

// RegisterRoutes attaches all API endpoints to the router.
func RegisterRoutes(r *mux.Router, preview *handlers.PreviewHandler) {
	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.Use(requestIDMiddleware)
	apiRouter.Use(loggingMiddleware)

	// Live resolution fans out to several upstreams per miss, so it is
	// the one endpoint worth throttling.
	resolveLimiter := NewIPRateLimiter(rate.Every(time.Second), 10)

	apiRouter.HandleFunc("/preview/stats", preview.GetStats).Methods(http.MethodGet)
	apiRouter.HandleFunc("/preview/{mediaKind}/{externalId}",
		RateLimitHandlerFunc(resolveLimiter, preview.GetPreview)).Methods(http.MethodGet)
}
