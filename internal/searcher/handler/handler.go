// Package handler serves the search API over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/matcher"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/source"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/middleware"
)

// SearchExecutor runs queries against a pinned index.
type SearchExecutor interface {
	ExecuteOn(ctx context.Context, idx *index.Index, req executor.Request) (*executor.Response, error)
	Objects(ctx context.Context, query string, limit int) ([]matcher.ObjectMatch, error)
}

// Reloader replaces the live index.
type Reloader interface {
	Reload(ctx context.Context) (source.ReloadResult, error)
}

// Announcer tells peer replicas to reload.
type Announcer interface {
	Announce(ctx context.Context) error
}

type Handler struct {
	executor  SearchExecutor
	holder    *index.Holder
	cache     *cache.QueryCache
	collector *analytics.Collector
	reloader  Reloader
	announcer Announcer
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

type Option func(*Handler)

func WithCache(c *cache.QueryCache) Option {
	return func(h *Handler) { h.cache = c }
}

func WithCollector(c *analytics.Collector) Option {
	return func(h *Handler) { h.collector = c }
}

// WithReloader enables POST /api/v1/index/reload. A non-nil announcer also
// asks the other replicas to reload after a local reload succeeds.
func WithReloader(r Reloader, announcer Announcer) Option {
	return func(h *Handler) {
		h.reloader = r
		h.announcer = announcer
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

func New(exec SearchExecutor, holder *index.Holder, opts ...Option) *Handler {
	h := &Handler{
		executor: exec,
		holder:   holder,
		logger:   slog.Default().With("component", "search-handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the search API on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/objects", h.Objects)
	mux.HandleFunc("GET /api/v1/index", h.IndexStats)
	mux.HandleFunc("POST /api/v1/index/reload", h.Reload)
	mux.HandleFunc("GET /api/v1/cache", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

// Search answers GET /api/v1/search?q=...&limit=N&doc=name&docs=a,b.
// doc may repeat; docs takes a comma-separated list. Numeric values are
// document ids.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	req, err := parseSearchRequest(r)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	// Pin one index for the whole request so the cache key and the results
	// always agree on the version.
	idx := h.holder.Load()
	if idx == nil {
		h.writeErr(w, apperrors.ErrIndexNotLoaded)
		return
	}

	var resp *executor.Response
	cacheHit := false
	compute := func() (*executor.Response, error) {
		return h.executor.ExecuteOn(ctx, idx, req)
	}
	if h.cache != nil {
		resp, cacheHit, err = h.cache.GetOrCompute(ctx, idx.Version(), req, compute)
	} else {
		resp, err = compute()
	}
	if err != nil {
		log.Warn("search failed", "query", req.Query, "error", err)
		h.writeErr(w, err)
		return
	}

	latency := time.Since(start)
	if cacheHit && h.metrics != nil {
		h.metrics.SearchLatency.WithLabelValues("hit").Observe(latency.Seconds())
	}
	log.Info("search completed",
		"query", req.Query,
		"total_hits", resp.TotalHits,
		"returned", len(resp.Results),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	if h.collector != nil {
		h.collector.TrackSearch(searchEvent(resp, cacheHit, latency, middleware.GetRequestID(ctx)))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func searchEvent(resp *executor.Response, cacheHit bool, latency time.Duration, requestID string) analytics.SearchEvent {
	eventType := analytics.EventSearch
	if resp.TotalHits == 0 {
		eventType = analytics.EventZeroResult
	}
	objectHits := 0
	for _, res := range resp.Results {
		if res.Kind == ranker.KindObject {
			objectHits++
		}
	}
	return analytics.SearchEvent{
		Type:         eventType,
		Query:        resp.Query,
		Terms:        resp.Terms,
		TotalHits:    resp.TotalHits,
		Returned:     len(resp.Results),
		ObjectHits:   objectHits,
		LatencyMs:    latency.Milliseconds(),
		CacheHit:     cacheHit,
		IndexVersion: resp.IndexVersion,
		Timestamp:    time.Now().UTC(),
		RequestID:    requestID,
	}
}

func parseSearchRequest(r *http.Request) (executor.Request, error) {
	q := r.URL.Query()
	req := executor.Request{Query: q.Get("q")}
	if strings.TrimSpace(req.Query) == "" {
		return req, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'q' is required")
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		return req, err
	}
	req.Limit = limit

	docs := q["doc"]
	if v := q.Get("docs"); v != "" {
		docs = append(docs, strings.Split(v, ",")...)
	}
	for _, d := range docs {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if id, err := strconv.Atoi(d); err == nil {
			req.Filter = append(req.Filter, id)
		} else {
			req.FilterNames = append(req.FilterNames, d)
		}
	}
	return req, nil
}

func parseLimit(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer")
	}
	return n, nil
}

// Objects answers GET /api/v1/objects?q=...&limit=N with the API objects
// whose name contains q.
func (h *Handler) Objects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		h.writeErr(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'q' is required"))
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	matches, err := h.executor.Objects(r.Context(), q, limit)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"query":   q,
		"objects": matches,
	})
}

// IndexStats describes the live index.
func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	idx := h.holder.Load()
	if idx == nil {
		h.writeErr(w, apperrors.ErrIndexNotLoaded)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"stats":    idx.Stats(),
		"loadedAt": idx.LoadedAt().UTC().Format(time.RFC3339),
	})
}

// Reload fetches the index from its source now. On failure the previous
// index keeps serving and the error is reported.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if h.reloader == nil {
		h.writeError(w, http.StatusServiceUnavailable, "reload is disabled")
		return
	}
	ctx := r.Context()
	res, err := h.reloader.Reload(ctx)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	if res.Changed && h.announcer != nil {
		if err := h.announcer.Announce(ctx); err != nil {
			logger.FromContext(ctx).Warn("reload announce failed", "error", err)
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"version":   res.Version,
		"previous":  res.Previous,
		"changed":   res.Changed,
		"documents": res.Documents,
		"objects":   res.Objects,
		"latencyMs": res.Latency.Milliseconds(),
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	stats := h.cache.Stats()
	hits := stats.LocalHits + stats.RemoteHits
	total := hits + stats.Misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"stats":    stats,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusServiceUnavailable, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// writeErr maps err to its HTTP status. Internal errors are not echoed.
func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		msg = appErr.Message
	case status == http.StatusInternalServerError:
		h.logger.Error("request failed", "error", err)
		msg = "internal error"
	}
	h.writeError(w, status, msg)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
