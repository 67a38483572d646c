package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

const (
	defaultSnapshotLimit = 10
	maxSnapshotLimit     = 1000
)

// SnapshotLister reads saved stats snapshots, newest first.
type SnapshotLister interface {
	ListSnapshots(ctx context.Context, limit int) ([]AggregatedStats, error)
}

// Handler serves /api/v1/analytics/stats and, when a SnapshotLister is
// configured, /api/v1/analytics/snapshots.
type Handler struct {
	agg       *Aggregator
	snapshots SnapshotLister
	logger    *slog.Logger
}

func NewHandler(agg *Aggregator, snapshots SnapshotLister) *Handler {
	return &Handler{agg: agg, snapshots: snapshots, logger: slog.Default().With("component", "analytics-handler")}
}

func (h *Handler) Stats(w http.ResponseWriter, _ *http.Request) {
	h.respond(w, http.StatusOK, h.agg.Stats())
}

// Snapshots answers ?limit=N, 1..1000, default 10.
func (h *Handler) Snapshots(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		h.fail(w, http.StatusServiceUnavailable, "snapshots are disabled")
		return
	}
	limit, ok := snapshotLimit(r.URL.Query().Get("limit"))
	if !ok {
		h.fail(w, http.StatusBadRequest, "limit must be between 1 and 1000")
		return
	}
	snaps, err := h.snapshots.ListSnapshots(r.Context(), limit)
	if err != nil {
		h.logger.Error("listing snapshots", "error", err)
		h.fail(w, http.StatusInternalServerError, "listing snapshots failed")
		return
	}
	if snaps == nil {
		snaps = []AggregatedStats{}
	}
	h.respond(w, http.StatusOK, snaps)
}

func snapshotLimit(v string) (int, bool) {
	if v == "" {
		return defaultSnapshotLimit, true
	}
	n, err := strconv.Atoi(v)
	return n, err == nil && n >= 1 && n <= maxSnapshotLimit
}

func (h *Handler) fail(w http.ResponseWriter, status int, msg string) {
	h.respond(w, status, map[string]string{"error": msg})
}

func (h *Handler) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("writing analytics response", "error", err)
	}
}
