package analytics

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

// maxLatencySamples bounds the latency window used for percentiles.
const maxLatencySamples = 10000

// topLimit is how many entries each ranked list in AggregatedStats holds.
const topLimit = 10

type AggregatedStats struct {
	TotalSearches     int64        `json:"total_searches"`
	CacheHits         int64        `json:"cache_hits"`
	CacheMisses       int64        `json:"cache_misses"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	ObjectHitSearches int64        `json:"object_hit_searches"`
	Reloads           int64        `json:"reloads"`
	FailedReloads     int64        `json:"failed_reloads"`
	IndexVersion      string       `json:"index_version,omitempty"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      int64        `json:"p50_latency_ms"`
	P95LatencyMs      int64        `json:"p95_latency_ms"`
	P99LatencyMs      int64        `json:"p99_latency_ms"`
	TopQueries        []QueryCount `json:"top_queries"`
	TopTerms          []QueryCount `json:"top_terms"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// latencyWindow keeps the most recent samples, overwriting the oldest once
// full.
type latencyWindow struct {
	samples []int64
	next    int
}

func (w *latencyWindow) add(ms int64) {
	if len(w.samples) < maxLatencySamples {
		w.samples = append(w.samples, ms)
		return
	}
	w.samples[w.next] = ms
	w.next = (w.next + 1) % maxLatencySamples
}

func (w *latencyWindow) summarize(stats *AggregatedStats) {
	if len(w.samples) == 0 {
		return
	}
	sorted := slices.Clone(w.samples)
	slices.Sort(sorted)
	var sum int64
	for _, v := range sorted {
		sum += v
	}
	stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
	stats.P50LatencyMs = percentile(sorted, 50)
	stats.P95LatencyMs = percentile(sorted, 95)
	stats.P99LatencyMs = percentile(sorted, 99)
}

// EventSource feeds consumed events to the aggregator until ctx ends.
type EventSource interface {
	Run(ctx context.Context) error
}

// Aggregator folds search and reload events into running totals. It is fed
// either by an EventSource or directly through RecordSearch and
// RecordReload.
type Aggregator struct {
	mu     sync.RWMutex
	totals AggregatedStats
	window latencyWindow
	// Queries are counted case- and space-normalized.
	queries     map[string]int64
	terms       map[string]int64
	zeroResults map[string]int64
	started     time.Time

	source EventSource
	logger *slog.Logger
}

func NewAggregator(source EventSource) *Aggregator {
	return &Aggregator{
		queries:     make(map[string]int64),
		terms:       make(map[string]int64),
		zeroResults: make(map[string]int64),
		started:     time.Now(),
		source:      source,
		logger:      slog.Default().With("component", "analytics-aggregator"),
	}
}

// WithConsumer sets the source Start reads from. Call it before Start.
func (a *Aggregator) WithConsumer(source EventSource) *Aggregator {
	a.source = source
	return a
}

// Start consumes events until ctx is cancelled. Without a source it only
// waits, since events then arrive through the Record methods.
func (a *Aggregator) Start(ctx context.Context) error {
	if a.source == nil {
		<-ctx.Done()
		return nil
	}
	a.logger.Info("consuming analytics events")
	return a.source.Run(ctx)
}

// HandleEvent decodes a consumed message by its type header and records it.
// Messages that fail to decode are dropped with an error log.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		switch EventType(msg.Type) {
		case EventIndexReload:
			if ev, err := kafka.DecodeJSON[ReloadEvent](msg.Value); err != nil {
				agg.logger.Error("dropping reload event", "error", err)
			} else {
				agg.RecordReload(ev)
			}
		case EventSearch, EventZeroResult, "":
			if ev, err := kafka.DecodeJSON[SearchEvent](msg.Value); err != nil {
				agg.logger.Error("dropping search event", "error", err)
			} else {
				agg.RecordSearch(ev)
			}
		default:
			agg.logger.Debug("unknown analytics event type", "type", msg.Type)
		}
		return nil
	}
}

func (a *Aggregator) RecordSearch(ev SearchEvent) {
	query := strings.ToLower(strings.TrimSpace(ev.Query))

	a.mu.Lock()
	defer a.mu.Unlock()
	t := &a.totals
	t.TotalSearches++
	if ev.CacheHit {
		t.CacheHits++
	} else {
		t.CacheMisses++
	}
	if ev.ObjectHits > 0 {
		t.ObjectHitSearches++
	}
	if ev.TotalHits == 0 {
		t.ZeroResultCount++
		a.zeroResults[query]++
	}
	a.queries[query]++
	for _, term := range ev.Terms {
		a.terms[term]++
	}
	a.window.add(ev.LatencyMs)
}

func (a *Aggregator) RecordReload(ev ReloadEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totals.Reloads++
	if !ev.Succeeded {
		a.totals.FailedReloads++
		return
	}
	a.totals.IndexVersion = ev.Version
}

// Stats returns a consistent copy of the running totals.
func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := a.totals
	a.window.summarize(&stats)
	stats.TopQueries = topN(a.queries, topLimit)
	stats.TopTerms = topN(a.terms, topLimit)
	stats.ZeroResultQueries = topN(a.zeroResults, topLimit)
	if minutes := time.Since(a.started).Minutes(); minutes > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / minutes
	}
	return stats
}

// percentile uses the nearest-rank method on an ascending slice.
func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := (pct*len(sorted) + 99) / 100
	return sorted[max(rank-1, 0)]
}

// topN returns the n largest counts, ties broken alphabetically.
func topN(counts map[string]int64, n int) []QueryCount {
	out := make([]QueryCount, 0, len(counts))
	for q, c := range counts {
		out = append(out, QueryCount{Query: q, Count: c})
	}
	slices.SortFunc(out, func(x, y QueryCount) int {
		if c := cmp.Compare(y.Count, x.Count); c != 0 {
			return c
		}
		return strings.Compare(x.Query, y.Query)
	})
	return out[:min(n, len(out))]
}
