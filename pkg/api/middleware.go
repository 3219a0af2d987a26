package api

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/sahithikokkula/streamsketch/pkg/logger"
	"github.com/sahithikokkula/streamsketch/pkg/metrics"
)

const RequestIDHeader = "X-Request-ID"

// RequestID propagates the caller's X-Request-ID, or assigns a new one, to the
// response and the request's logger context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}

// Instrument records the request duration under the matched route template.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		timer := metrics.NewTimer(route)
		defer timer.ObserveDuration()
		next.ServeHTTP(w, r)
	})
}

// Recover turns a handler panic into a 500 response.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				logger.WithContext(r.Context()).Error("handler panicked",
					zap.String("path", r.URL.Path),
					zap.String("panic", fmt.Sprint(p)),
					zap.Stack("stack"))
				writeJSON(w, http.StatusInternalServerError, JSON{"error": "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
