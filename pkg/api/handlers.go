package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/sahithikokkula/streamsketch/pkg/logger"
	"github.com/sahithikokkula/streamsketch/pkg/registry"
	"github.com/sahithikokkula/streamsketch/pkg/sketches"
	"github.com/sahithikokkula/streamsketch/pkg/storage"
)

const (
	maxBodyBytes     = 8 << 20
	defaultBatchSize = 1000
	ingestTimeout    = 120 * time.Second
)

// statusOf maps an error to its HTTP status.
func statusOf(err error) int {
	switch errors.Cause(err) {
	case registry.ErrNotFound:
		return http.StatusNotFound
	case registry.ErrExists:
		return http.StatusConflict
	case registry.ErrBadValue, storage.ErrBadInput:
		return http.StatusBadRequest
	}
	if sketches.IsFault(err, sketches.FaultConfig) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		logger.WithContext(r.Context()).Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, JSON{"error": err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, JSON{"error": "invalid json"})
		return false
	}
	return true
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, JSON{"status": "ok", "streams": h.reg.Len()})
}

func (h *Handler) ListKinds(w http.ResponseWriter, r *http.Request) {
	kinds := make(map[sketches.SketchType]registry.Params)
	for _, k := range registry.Kinds() {
		kinds[k], _ = registry.Defaults(k)
	}
	writeJSON(w, http.StatusOK, JSON{"kinds": kinds})
}

func (h *Handler) ListStreams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, JSON{"streams": h.reg.List()})
}

func (h *Handler) CreateStream(w http.ResponseWriter, r *http.Request) {
	var spec registry.Spec
	if !decode(w, r, &spec) {
		return
	}
	info, err := h.reg.Create(r.Context(), spec)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (h *Handler) GetStream(w http.ResponseWriter, r *http.Request) {
	info, err := h.reg.Get(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *Handler) DeleteStream(w http.ResponseWriter, r *http.Request) {
	if err := h.reg.Delete(r.Context(), mux.Vars(r)["name"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type ObserveRequest struct {
	Values []any `json:"values"`
}

func (h *Handler) Observe(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var req ObserveRequest
	if !decode(w, r, &req) {
		return
	}
	observed, err := h.reg.Observe(r.Context(), name, req.Values)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, JSON{"stream": name, "accepted": len(req.Values), "observed": observed})
}

// Query answers GET /streams/{name}/query. The optional value parameter is
// passed as a string; numeric kinds parse it.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var arg any
	if q := r.URL.Query(); q.Has("value") {
		arg = q.Get("value")
	}
	res, err := h.reg.Query(r.Context(), name, arg)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, JSON{"stream": name, "result": res})
}

type IngestRequest struct {
	Table     string  `json:"table"`
	Column    string  `json:"column"`
	Fraction  float64 `json:"fraction"`   // 0 or 1 scans every row
	BatchSize int     `json:"batch_size"` // values per Observe call
}

// Ingest reads a column of the sqlite database into the stream in batches.
// Batches applied before a failing one stay applied.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if h.db == nil {
		writeJSON(w, http.StatusServiceUnavailable, JSON{"error": "no database configured"})
		return
	}
	var req IngestRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Table == "" || req.Column == "" {
		writeJSON(w, http.StatusBadRequest, JSON{"error": "table and column required"})
		return
	}
	if req.BatchSize <= 0 {
		req.BatchSize = defaultBatchSize
	}
	info, err := h.reg.Get(name)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(logger.WithStream(r.Context(), name), ingestTimeout)
	defer cancel()

	start := time.Now()
	observed := info.Observed
	batch := make([]any, 0, req.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := h.reg.Observe(ctx, name, batch)
		if err != nil {
			return err
		}
		observed = n
		batch = batch[:0]
		return nil
	}

	scanned, err := storage.ScanColumn(ctx, h.db, req.Table, req.Column, req.Fraction, func(v any) error {
		batch = append(batch, v)
		if len(batch) == req.BatchSize {
			return flush()
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	if err != nil {
		writeError(w, r, errors.Wrapf(err, "ingest %s.%s", req.Table, req.Column))
		return
	}

	logger.WithContext(ctx).Info("column ingested",
		zap.String("table", req.Table),
		zap.String("column", req.Column),
		zap.Int64("rows", scanned),
		zap.Duration("took", time.Since(start)))
	writeJSON(w, http.StatusOK, JSON{
		"stream":   name,
		"ingested": scanned,
		"observed": observed,
		"meta": JSON{
			"fraction":          req.Fraction,
			"execution_time_ms": time.Since(start).Milliseconds(),
		},
	})
}
