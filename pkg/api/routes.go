package api

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sahithikokkula/streamsketch/pkg/registry"
)

type JSON map[string]any

// RegisterRoutes mounts the stream API on r. db backs the ingest endpoint and
// may be nil, in which case ingest answers 503.
func RegisterRoutes(r *mux.Router, reg *registry.Registry, db *sql.DB) {
	h := &Handler{reg: reg, db: db}
	r.Use(RequestID, Instrument, Recover)

	// Core endpoints
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/kinds", h.ListKinds).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Stream endpoints
	r.HandleFunc("/streams", h.ListStreams).Methods(http.MethodGet)
	r.HandleFunc("/streams", h.CreateStream).Methods(http.MethodPost)
	r.HandleFunc("/streams/{name}", h.GetStream).Methods(http.MethodGet)
	r.HandleFunc("/streams/{name}", h.DeleteStream).Methods(http.MethodDelete)
	r.HandleFunc("/streams/{name}/observe", h.Observe).Methods(http.MethodPost)
	r.HandleFunc("/streams/{name}/query", h.Query).Methods(http.MethodGet)
	r.HandleFunc("/streams/{name}/ingest", h.Ingest).Methods(http.MethodPost)
}

type Handler struct {
	reg *registry.Registry
	db  *sql.DB
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
