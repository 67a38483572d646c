package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

type recordingPublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (p *recordingPublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]kafka.Event, len(events))
	copy(cp, events)
	p.batches = append(p.batches, cp)
	return p.err
}

func (p *recordingPublisher) events() []kafka.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []kafka.Event
	for _, b := range p.batches {
		out = append(out, b...)
	}
	return out
}

func TestCollector_FlushesOnBatchSize(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, 100, 2, time.Hour)
	c.Start(context.Background())

	c.TrackSearch(SearchEvent{Type: EventSearch, Query: "camera"})
	c.TrackSearch(SearchEvent{Type: EventSearch, Query: "stage"})

	require.Eventually(t, func() bool { return len(pub.events()) == 2 }, time.Second, 5*time.Millisecond)
	c.Close()

	events := pub.events()
	assert.Equal(t, "camera", events[0].Key)
	assert.Equal(t, string(EventSearch), events[0].Type)
}

func TestCollector_CloseFlushesPending(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, 100, 50, time.Hour)
	c.Start(context.Background())

	c.TrackReload(ReloadEvent{Source: "file:searchindex.js", Succeeded: true})
	c.Close()

	events := pub.events()
	require.Len(t, events, 1)
	assert.Equal(t, string(EventIndexReload), events[0].Type)
	assert.Equal(t, "file:searchindex.js", events[0].Key)
}

func TestCollector_CancelDrains(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, 100, 50, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)

	c.TrackSearch(SearchEvent{Query: "a"})
	c.TrackSearch(SearchEvent{Query: "b"})
	cancel()
	<-c.done

	assert.Len(t, pub.events(), 2)
}

func TestCollector_DropsWhenFull(t *testing.T) {
	m := metrics.New(nil)
	c := NewCollector(&recordingPublisher{}, 1, 10, time.Hour).WithMetrics(m)

	c.TrackSearch(SearchEvent{Query: "a"})
	c.TrackSearch(SearchEvent{Query: "b"})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalyticsDropped))
}

func TestCollector_TrackAfterCloseDrops(t *testing.T) {
	m := metrics.New(nil)
	c := NewCollector(&recordingPublisher{}, 10, 10, time.Hour).WithMetrics(m)
	c.Start(context.Background())
	c.Close()
	c.Close()

	c.TrackSearch(SearchEvent{Query: "late"})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalyticsDropped))
}

func TestCollector_PublishErrorDoesNotStop(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	c := NewCollector(pub, 100, 1, time.Hour)
	c.Start(context.Background())

	c.TrackSearch(SearchEvent{Query: "a"})
	c.TrackSearch(SearchEvent{Query: "b"})
	require.Eventually(t, func() bool { return len(pub.events()) == 2 }, time.Second, 5*time.Millisecond)
	c.Close()
}

func TestAggregator_Stats(t *testing.T) {
	agg := NewAggregator(nil)
	for i := 1; i <= 100; i++ {
		agg.RecordSearch(SearchEvent{Query: "camera", TotalHits: 3, LatencyMs: int64(i), CacheHit: i%2 == 0})
	}
	agg.RecordSearch(SearchEvent{Query: "Nothing ", TotalHits: 0, LatencyMs: 1})
	agg.RecordSearch(SearchEvent{Query: "nothing", TotalHits: 0, LatencyMs: 1})
	agg.RecordSearch(SearchEvent{Query: "Gf.Camera", Terms: []string{"gf", "camera"}, TotalHits: 2, ObjectHits: 1, LatencyMs: 1})

	stats := agg.Stats()
	assert.Equal(t, int64(103), stats.TotalSearches)
	assert.Equal(t, int64(50), stats.CacheHits)
	assert.Equal(t, int64(53), stats.CacheMisses)
	assert.Equal(t, int64(2), stats.ZeroResultCount)
	assert.Equal(t, int64(1), stats.ObjectHitSearches)
	require.NotEmpty(t, stats.TopQueries)
	assert.Equal(t, QueryCount{Query: "camera", Count: 100}, stats.TopQueries[0])
	assert.Equal(t, []QueryCount{{Query: "nothing", Count: 2}}, stats.ZeroResultQueries)
	assert.Equal(t, []QueryCount{{Query: "camera", Count: 1}, {Query: "gf", Count: 1}}, stats.TopTerms)
	assert.GreaterOrEqual(t, stats.P99LatencyMs, stats.P95LatencyMs)
	assert.GreaterOrEqual(t, stats.P95LatencyMs, stats.P50LatencyMs)
}

func TestAggregator_LatencyWindowBounded(t *testing.T) {
	agg := NewAggregator(nil)
	for i := 0; i < maxLatencySamples+500; i++ {
		agg.RecordSearch(SearchEvent{Query: "q", TotalHits: 1, LatencyMs: 5})
	}
	assert.Len(t, agg.window.samples, maxLatencySamples)
	assert.Equal(t, int64(5), agg.Stats().P50LatencyMs)
}

func TestAggregator_Reloads(t *testing.T) {
	agg := NewAggregator(nil)
	agg.RecordReload(ReloadEvent{Succeeded: true, Version: "abc"})
	agg.RecordReload(ReloadEvent{Succeeded: false, Error: "malformed index"})

	stats := agg.Stats()
	assert.Equal(t, int64(2), stats.Reloads)
	assert.Equal(t, int64(1), stats.FailedReloads)
	assert.Equal(t, "abc", stats.IndexVersion)
}

func TestHandleEvent(t *testing.T) {
	agg := NewAggregator(nil)
	handle := HandleEvent(agg)
	ctx := context.Background()

	search, _ := json.Marshal(SearchEvent{Type: EventSearch, Query: "camera", TotalHits: 1})
	reload, _ := json.Marshal(ReloadEvent{Type: EventIndexReload, Succeeded: true, Version: "v2"})

	require.NoError(t, handle(ctx, kafka.Message{Type: string(EventSearch), Value: search}))
	require.NoError(t, handle(ctx, kafka.Message{Value: search}))
	require.NoError(t, handle(ctx, kafka.Message{Type: string(EventIndexReload), Value: reload}))
	require.NoError(t, handle(ctx, kafka.Message{Type: string(EventSearch), Value: []byte("garbage")}))
	require.NoError(t, handle(ctx, kafka.Message{Type: "unknown", Value: search}))

	stats := agg.Stats()
	assert.Equal(t, int64(2), stats.TotalSearches)
	assert.Equal(t, "v2", stats.IndexVersion)
}

func TestLocalPublisher(t *testing.T) {
	agg := NewAggregator(nil)
	c := NewCollector(NewLocalPublisher(agg), 16, 16, time.Hour)
	c.Start(context.Background())
	c.TrackSearch(SearchEvent{Type: EventSearch, Query: "camera", TotalHits: 1})
	c.TrackReload(ReloadEvent{Type: EventIndexReload, Succeeded: true, Version: "v3"})
	c.Close()

	stats := agg.Stats()
	assert.Equal(t, int64(1), stats.TotalSearches)
	assert.Equal(t, int64(1), stats.Reloads)
	assert.Equal(t, "v3", stats.IndexVersion)
}

type fakeSnapshots struct {
	snaps []AggregatedStats
	err   error
	limit int
}

func (f *fakeSnapshots) ListSnapshots(_ context.Context, limit int) ([]AggregatedStats, error) {
	f.limit = limit
	return f.snaps, f.err
}

func TestHandler(t *testing.T) {
	agg := NewAggregator(nil)
	agg.RecordSearch(SearchEvent{Query: "camera", TotalHits: 1})

	h := NewHandler(agg, nil)
	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var stats AggregatedStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, int64(1), stats.TotalSearches)

	rec = httptest.NewRecorder()
	h.Snapshots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/snapshots", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	snaps := &fakeSnapshots{snaps: []AggregatedStats{{TotalSearches: 7}}}
	h = NewHandler(agg, snaps)
	rec = httptest.NewRecorder()
	h.Snapshots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/snapshots?limit=3", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, snaps.limit)
	assert.Contains(t, rec.Body.String(), `"total_searches":7`)

	rec = httptest.NewRecorder()
	h.Snapshots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/snapshots?limit=0", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPercentile_NearestRank(t *testing.T) {
	sorted := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, int64(5), percentile(sorted, 50))
	assert.Equal(t, int64(10), percentile(sorted, 95))
	assert.Equal(t, int64(1), percentile(sorted, 1))
	assert.Equal(t, int64(0), percentile(nil, 50))
}
