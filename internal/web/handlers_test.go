package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/salawat/internal/counter"
	"github.com/hpungsan/salawat/internal/metrics"
)

// storeTotals reads straight from a store.
type storeTotals struct{ store counter.Store }

func (s storeTotals) CurrentTotal(ctx context.Context) (int64, error) { return s.store.Read(ctx) }

func setupTest(t *testing.T) (http.Handler, *counter.FileStore) {
	t.Helper()
	store, err := counter.OpenFile(filepath.Join(t.TempDir(), "counter.json"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.Observed(0)
	srv := NewServer(storeTotals{store}, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), "127.0.0.1:0")
	return srv.Handler, store
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleTotal(t *testing.T) {
	h, store := setupTest(t)
	_, err := store.Apply(context.Background(), 1234567)
	require.NoError(t, err)

	rec := get(t, h, "/total")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	var body TotalResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, TotalResponse{Total: 1234567, Display: "1,234,567"}, body)
}

func TestHandleHealth(t *testing.T) {
	h, store := setupTest(t)

	rec := get(t, h, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	require.NoError(t, os.WriteFile(store.Path(), []byte("not json"), 0600))

	rec = get(t, h, "/healthz")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body struct {
		Error struct {
			Code   string `json:"code"`
			Status int    `json:"status"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "CORRUPT_STATE", body.Error.Code)

	rec = get(t, h, "/total")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleTotal_PersistenceFailureHidesPath(t *testing.T) {
	h, store := setupTest(t)
	// A directory where the record should be makes every read fail with the path in the cause.
	require.NoError(t, os.Remove(store.Path()))
	require.NoError(t, os.Mkdir(store.Path(), 0700))

	rec := get(t, h, "/total")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "PERSISTENCE_FAILURE")
	require.NotContains(t, rec.Body.String(), store.Path())
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := setupTest(t)

	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "salawat_total 0")
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := setupTest(t)

	req := httptest.NewRequest(http.MethodPost, "/total", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	store, err := counter.OpenFile(filepath.Join(t.TempDir(), "counter.json"))
	require.NoError(t, err)
	defer store.Close()
	srv := NewServer(storeTotals{store}, nil, addr)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, srv, nil) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://%s/total", addr))
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
