package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahithikokkula/streamsketch/pkg/registry"
	"github.com/sahithikokkula/streamsketch/pkg/storage"
)

type testServer struct {
	router *mux.Router
	reg    *registry.Registry
	db     *sql.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	db, err := storage.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.ExecContext(ctx, `CREATE TABLE events (id INTEGER PRIMARY KEY, account TEXT, latency_ms REAL)`)
	require.NoError(t, err)
	for i := 0; i < 250; i++ {
		_, err := db.ExecContext(ctx, `INSERT INTO events(account, latency_ms) VALUES(?, ?)`, []string{"a", "b", "c"}[i%3], float64(i))
		require.NoError(t, err)
	}

	reg := registry.New(storage.Meta{DB: db})
	r := mux.NewRouter()
	RegisterRoutes(r, reg, db)
	return &testServer{router: r, reg: reg, db: db}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec, body := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestRequestIDPropagates(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
}

func TestKinds(t *testing.T) {
	s := newTestServer(t)
	rec, body := s.do(t, http.MethodGet, "/kinds", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	kinds := body["kinds"].(map[string]any)
	assert.Len(t, kinds, 11)
	assert.Equal(t, 12.0, kinds["hll"].(map[string]any)["precision"])
}

func TestStreamLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodPost, "/streams", JSON{"name": "visitors", "kind": "hll", "params": JSON{"precision": 10}})
	require.Equal(t, http.StatusCreated, rec.Code, body)
	assert.Equal(t, "visitors", body["name"])
	assert.Equal(t, "1.0 KiB", body["approx_size"])

	rec, _ = s.do(t, http.MethodPost, "/streams", JSON{"name": "visitors", "kind": "hll"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, body = s.do(t, http.MethodPost, "/streams/visitors/observe", JSON{"values": []any{"a", "b", "a", 7}})
	require.Equal(t, http.StatusOK, rec.Code, body)
	assert.Equal(t, 4.0, body["observed"])

	rec, body = s.do(t, http.MethodGet, "/streams/visitors/query", nil)
	require.Equal(t, http.StatusOK, rec.Code, body)
	result := body["result"].(map[string]any)
	assert.Equal(t, 3.0, result["estimate"])
	assert.Equal(t, "hll", result["sketch_type"])

	rec, body = s.do(t, http.MethodGet, "/streams", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["streams"], 1)

	rec, body = s.do(t, http.MethodGet, "/streams/visitors", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4.0, body["observed"])

	rec, _ = s.do(t, http.MethodDelete, "/streams/visitors", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec, _ = s.do(t, http.MethodGet, "/streams/visitors", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = s.do(t, http.MethodDelete, "/streams/visitors", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateStream_BadRequests(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/streams", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for _, body := range []JSON{
		{"name": "x", "kind": "tdigest"},
		{"name": "no spaces", "kind": "exact"},
		{"name": "x", "kind": "hll", "params": JSON{"precision": 30}},
		{"name": "x", "kind": "kll", "params": JSON{"capacity": 15}},
		{"name": "x", "kind": "bloom", "params": JSON{"bytes": 1 << 62}},
		{"name": "x", "kind": "count_min", "params": JSON{"buckets": 1 << 40, "rows": 1 << 20}},
		{"name": "x", "kind": "kll", "params": JSON{"stages": 1 << 20, "capacity": 1 << 20}},
	} {
		rec, _ := s.do(t, http.MethodPost, "/streams", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Zero(t, s.reg.Len())
}

func TestQuery(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/streams", JSON{"name": "seen", "kind": "bloom"})
	s.do(t, http.MethodPost, "/streams", JSON{"name": "latency", "kind": "quantile"})
	s.do(t, http.MethodPost, "/streams/seen/observe", JSON{"values": []any{"alice", 42}})
	s.do(t, http.MethodPost, "/streams/latency/observe", JSON{"values": []any{1, 2, 3, 4.5}})

	rec, body := s.do(t, http.MethodGet, "/streams/seen/query?value=alice", nil)
	require.Equal(t, http.StatusOK, rec.Code, body)
	assert.Equal(t, true, body["result"].(map[string]any)["estimate"])

	rec, body = s.do(t, http.MethodGet, "/streams/seen/query?value=42", nil)
	require.Equal(t, http.StatusOK, rec.Code, body)
	assert.Equal(t, true, body["result"].(map[string]any)["estimate"])

	rec, _ = s.do(t, http.MethodGet, "/streams/seen/query", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = s.do(t, http.MethodGet, "/streams/latency/query?value=3", nil)
	require.Equal(t, http.StatusOK, rec.Code, body)
	assert.Equal(t, 2.0, body["result"].(map[string]any)["estimate"])

	rec, _ = s.do(t, http.MethodGet, "/streams/latency/query?value=slow", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/streams/missing/query", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestObserve_Errors(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/streams", JSON{"name": "latency", "kind": "kll"})

	rec, _ := s.do(t, http.MethodPost, "/streams/latency/observe", JSON{"values": []any{1, "slow"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = s.do(t, http.MethodPost, "/streams/latency/observe", JSON{"values": []any{nil}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = s.do(t, http.MethodPost, "/streams/missing/observe", JSON{"values": []any{1}})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	info, err := s.reg.Get("latency")
	require.NoError(t, err)
	assert.Zero(t, info.Observed)
}

func TestIngest(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/streams", JSON{"name": "accounts", "kind": "misra_gries", "params": JSON{"k": 3}})
	s.do(t, http.MethodPost, "/streams", JSON{"name": "latency", "kind": "kll"})

	rec, body := s.do(t, http.MethodPost, "/streams/accounts/ingest", JSON{"table": "events", "column": "account", "batch_size": 100})
	require.Equal(t, http.StatusOK, rec.Code, body)
	assert.Equal(t, 250.0, body["ingested"])
	assert.Equal(t, 250.0, body["observed"])

	rec, body = s.do(t, http.MethodGet, "/streams/accounts/query?value=a", nil)
	require.Equal(t, http.StatusOK, rec.Code, body)
	assert.Equal(t, 84.0, body["result"].(map[string]any)["estimate"])

	rec, body = s.do(t, http.MethodPost, "/streams/latency/ingest", JSON{"table": "events", "column": "latency_ms"})
	require.Equal(t, http.StatusOK, rec.Code, body)
	rec, body = s.do(t, http.MethodGet, "/streams/latency/query?value=1000", nil)
	require.Equal(t, http.StatusOK, rec.Code, body)
	assert.Equal(t, 250.0, body["result"].(map[string]any)["estimate"])

	rec, body = s.do(t, http.MethodPost, "/streams/latency/ingest", JSON{"table": "events", "column": "latency_ms", "fraction": 0.5})
	require.Equal(t, http.StatusOK, rec.Code, body)
	assert.Less(t, body["ingested"].(float64), 250.0)
}

func TestNumericSpellingsShareKeys(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_, err := s.db.ExecContext(ctx, `CREATE TABLE readings (v REAL)`)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `INSERT INTO readings(v) VALUES(7.0)`)
	require.NoError(t, err)

	s.do(t, http.MethodPost, "/streams", JSON{"name": "freq", "kind": "count_min"})
	s.do(t, http.MethodPost, "/streams", JSON{"name": "seen", "kind": "bloom"})

	rec, body := s.do(t, http.MethodPost, "/streams/freq/ingest", JSON{"table": "readings", "column": "v"})
	require.Equal(t, http.StatusOK, rec.Code, body)
	rec, body = s.do(t, http.MethodPost, "/streams/freq/observe", json.RawMessage(`{"values":[7.0]}`))
	require.Equal(t, http.StatusOK, rec.Code, body)
	rec, body = s.do(t, http.MethodPost, "/streams/seen/observe", json.RawMessage(`{"values":[42.0, 1e3]}`))
	require.Equal(t, http.StatusOK, rec.Code, body)

	for _, q := range []string{"7", "7.0", "7e0"} {
		rec, body = s.do(t, http.MethodGet, "/streams/freq/query?value="+q, nil)
		require.Equal(t, http.StatusOK, rec.Code, body)
		assert.Equal(t, 2.0, body["result"].(map[string]any)["estimate"], q)
	}
	for _, q := range []string{"42", "1000", "1e3"} {
		rec, body = s.do(t, http.MethodGet, "/streams/seen/query?value="+q, nil)
		require.Equal(t, http.StatusOK, rec.Code, body)
		assert.Equal(t, true, body["result"].(map[string]any)["estimate"], q)
	}
}

func TestIngest_Errors(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/streams", JSON{"name": "latency", "kind": "kll"})

	cases := []struct {
		path string
		body JSON
		code int
	}{
		{"/streams/latency/ingest", JSON{"table": "events"}, http.StatusBadRequest},
		{"/streams/latency/ingest", JSON{"table": "events; --", "column": "id"}, http.StatusBadRequest},
		{"/streams/latency/ingest", JSON{"table": "events", "column": "id", "fraction": 3}, http.StatusBadRequest},
		{"/streams/latency/ingest", JSON{"table": "events", "column": "account"}, http.StatusBadRequest},
		{"/streams/latency/ingest", JSON{"table": "nope", "column": "id"}, http.StatusInternalServerError},
		{"/streams/missing/ingest", JSON{"table": "events", "column": "id"}, http.StatusNotFound},
	}
	for _, tc := range cases {
		rec, _ := s.do(t, http.MethodPost, tc.path, tc.body)
		assert.Equal(t, tc.code, rec.Code, tc.body)
	}

	r := mux.NewRouter()
	RegisterRoutes(r, s.reg, nil)
	req := httptest.NewRequest(http.MethodPost, "/streams/latency/ingest", bytes.NewBufferString(`{"table":"events","column":"id"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecover(t *testing.T) {
	h := Recover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal error")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodGet, "/health", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `sketchd_request_duration_seconds_count{route="/health"}`)
}
