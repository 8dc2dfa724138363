package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civitas-chicago/civitas/internal/address"
	"github.com/civitas-chicago/civitas/internal/resolve"
	"github.com/civitas-chicago/civitas/internal/store"
)

func testServer(t *testing.T) (*Server, *store.Memory) {
	t.Helper()
	ctx := context.Background()
	m := store.NewMemory()
	std := address.NewStandardizer()

	locSK, err := m.UpsertLocation(ctx,
		std.Parse(address.Input{RawAddress: "123 N Main St, Chicago IL 60601"}), 41.8838, -87.6278)
	require.NoError(t, err)
	_, err = m.UpsertParcel(ctx, "14081200180000", locSK)
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	res := resolve.New(m, std, 0)
	return NewServer(":0", m, res, log), m
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHandleResolveByAddress(t *testing.T) {
	s, _ := testServer(t)

	w := get(t, s, "/api/resolve?address=123+N+Main+St,+Chicago+IL+60601")
	require.Equal(t, http.StatusOK, w.Code)

	var res resolve.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.Resolved)
	assert.Equal(t, resolve.MatchExactAddress, res.MatchConfidence)
	assert.Equal(t, "14081200180000", res.ParcelID)
}

func TestHandleResolveByPIN(t *testing.T) {
	s, _ := testServer(t)

	w := get(t, s, "/api/resolve?pin=14-08-120-018-0000")
	require.Equal(t, http.StatusOK, w.Code)

	var res resolve.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, resolve.MatchExactPIN, res.MatchConfidence)
}

func TestHandleResolveNoMatch(t *testing.T) {
	s, _ := testServer(t)

	w := get(t, s, "/api/resolve?address=999+W+Nowhere+Ave")
	require.Equal(t, http.StatusOK, w.Code)

	var res resolve.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.False(t, res.Resolved)
	assert.Equal(t, resolve.MatchNone, res.MatchConfidence)
	assert.NotEmpty(t, res.Warning)
}

func TestHandleResolveRequiresParameter(t *testing.T) {
	s, _ := testServer(t)

	w := get(t, s, "/api/resolve")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleBatches(t *testing.T) {
	s, m := testServer(t)

	ctx := context.Background()
	id, err := m.CreateBatch(ctx, "building_violations", "data/violations.csv")
	require.NoError(t, err)
	require.NoError(t, m.FinishBatch(ctx, id, store.BatchComplete, 42))

	w := get(t, s, "/api/batches")
	require.Equal(t, http.StatusOK, w.Code)

	var out []BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "building_violations", out[0].SourceDataset)
	assert.Equal(t, "complete", out[0].Status)
	assert.Equal(t, 42, out[0].RowsLoaded)
	assert.NotEmpty(t, out[0].CompletedAt)
}

func TestHandleHealth(t *testing.T) {
	s, _ := testServer(t)

	w := get(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
}
