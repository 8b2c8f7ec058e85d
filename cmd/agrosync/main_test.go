package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmlink/agrosync/internal/models"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func newBackend(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var actions atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /listings", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]models.Listing{{ID: "l1", CropName: "Rice", Location: "Kebbi", Unit: "bag"}})
	})
	mux.HandleFunc("GET /orders", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]models.Order{{ID: "o1", Status: models.OrderStatusPaymentVerified}})
	})
	mux.HandleFunc("POST /orders/o1/mark_ready", func(w http.ResponseWriter, r *http.Request) {
		actions.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &actions
}

func TestVersion(t *testing.T) {
	assert.NotEmpty(t, Version)
	t.Chdir(t.TempDir())
	out, err := run(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, Version)
}

func TestOfflineRoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	srv, actions := newBackend(t)
	t.Setenv("AGROSYNC_REMOTE_BASE_URL", srv.URL)
	t.Setenv("AGROSYNC_LOG_LEVEL", "ERROR")
	dataDir := "--data-dir=" + dir

	out, err := run(t, dataDir, "prefetch")
	require.NoError(t, err)
	assert.Contains(t, out, "Cached 1 listings and 1 orders")

	out, err = run(t, dataDir, "--offline", "order", "update", "o1", "mark_ready")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved, will sync when online")

	out, err = run(t, dataDir, "order", "o1")
	require.NoError(t, err)
	assert.Contains(t, out, "ready_for_pickup (pending sync)")

	out, err = run(t, dataDir, "queue", "list", "order_update")
	require.NoError(t, err)
	assert.Contains(t, out, "o1")
	assert.Contains(t, out, "pending")

	out, err = run(t, dataDir, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "Synced 1 of 1 changes")
	assert.Equal(t, int32(1), actions.Load())

	out, err = run(t, dataDir, "order", "o1")
	require.NoError(t, err)
	assert.Contains(t, out, "ready_for_pickup")
	assert.NotContains(t, out, "pending sync")

	out, err = run(t, dataDir, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Pending: 0")

	out, err = run(t, dataDir, "listings", "--crop", "rice")
	require.NoError(t, err)
	assert.Contains(t, out, "Rice")
	assert.Contains(t, out, "synced")
}

func TestSyncOffline(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("AGROSYNC_LOG_LEVEL", "ERROR")

	_, err := run(t, "--data-dir", dir, "sync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SYNC_OFFLINE")
}

func TestQueueRetryArgs(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("AGROSYNC_LOG_LEVEL", "ERROR")

	_, err := run(t, "--data-dir", dir, "queue", "retry")
	assert.Error(t, err)

	out, err := run(t, "--data-dir", dir, "queue", "retry", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "Requeued 0 mutations")

	_, err = run(t, "--data-dir", dir, "queue", "list", "bogus")
	assert.Error(t, err)
}
