package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/civitas-chicago/civitas/internal/resolve"
)

// BatchResponse is one ingestion batch in the provenance listing.
type BatchResponse struct {
	BatchID       int64  `json:"batch_id"`
	SourceDataset string `json:"source_dataset"`
	FilePath      string `json:"file_path,omitempty"`
	Status        string `json:"status"`
	RowsLoaded    int    `json:"rows_loaded"`
	StartedAt     string `json:"started_at"`
	CompletedAt   string `json:"completed_at,omitempty"`
}

// handleResolve answers GET /api/resolve?address=&pin=&lat=&lon=. At least
// one of address or pin is required; lat/lon enable the geospatial
// fallback.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	q := resolve.Query{
		Address: r.URL.Query().Get("address"),
		PIN:     r.URL.Query().Get("pin"),
	}
	if q.Address == "" && q.PIN == "" {
		writeError(w, http.StatusBadRequest, "address or pin parameter required")
		return
	}
	q.Lat, _ = strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	q.Lon, _ = strconv.ParseFloat(r.URL.Query().Get("lon"), 64)

	res, err := s.resolver.Resolve(r.Context(), q)
	if err != nil {
		s.log.Error("resolve failed", "error", err)
		writeError(w, http.StatusInternalServerError, "resolution failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleBatches answers GET /api/batches with every ingestion batch, most
// recent first.
func (s *Server) handleBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := s.store.ListBatches(r.Context())
	if err != nil {
		s.log.Error("list batches failed", "error", err)
		writeError(w, http.StatusInternalServerError, "listing failed")
		return
	}

	out := make([]BatchResponse, 0, len(batches))
	for _, b := range batches {
		resp := BatchResponse{
			BatchID:       b.BatchID,
			SourceDataset: b.SourceDataset,
			FilePath:      b.FilePath,
			Status:        string(b.Status),
			RowsLoaded:    b.RowsLoaded,
			StartedAt:     b.StartedAt.Format(time.RFC3339),
		}
		if !b.CompletedAt.IsZero() {
			resp.CompletedAt = b.CompletedAt.Format(time.RFC3339)
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.ListBatches(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
