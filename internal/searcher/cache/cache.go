package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
)

const keyPrefix = "docsearch:search:"

const (
	TierLocal  = "lru"
	TierRemote = "redis"
)

// Remote is the shared cache tier. *pkgredis.Client satisfies it.
type Remote interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// QueryCache caches search responses in a process-local LRU in front of an
// optional Redis tier. Keys include the index version, so a reload never
// serves results computed against the previous index. Cached responses are
// shared between callers and must not be modified.
type QueryCache struct {
	local      *lru.Cache[string, *executor.Response]
	remote     Remote
	ttl        time.Duration
	group      singleflight.Group
	metrics    *metrics.Metrics
	logger     *slog.Logger
	localHits  atomic.Int64
	remoteHits atomic.Int64
	misses     atomic.Int64
}

type Option func(*QueryCache)

// WithRemote adds the shared tier with the given entry TTL.
func WithRemote(r Remote, ttl time.Duration) Option {
	return func(c *QueryCache) {
		c.remote = r
		c.ttl = ttl
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *QueryCache) { c.metrics = m }
}

// New creates a cache holding up to size responses locally.
func New(size int, opts ...Option) (*QueryCache, error) {
	if size <= 0 {
		size = 1
	}
	local, err := lru.New[string, *executor.Response](size)
	if err != nil {
		return nil, fmt.Errorf("creating lru cache: %w", err)
	}
	c := &QueryCache{
		local:  local,
		logger: slog.Default().With("component", "query-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get looks the request up in the local tier, then the remote tier. A remote
// hit is copied into the local tier.
func (c *QueryCache) Get(ctx context.Context, version string, req executor.Request) (*executor.Response, bool) {
	key := BuildKey(version, req)
	if resp, ok := c.local.Get(key); ok {
		c.hit(TierLocal)
		return resp, true
	}
	if c.remote != nil {
		if resp, ok := c.getRemote(ctx, key); ok {
			c.local.Add(key, resp)
			c.hit(TierRemote)
			return resp, true
		}
	}
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
	return nil, false
}

func (c *QueryCache) getRemote(ctx context.Context, key string) (*executor.Response, bool) {
	data, err := c.remote.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var resp executor.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return &resp, true
}

// Set stores resp in both tiers. Remote failures are logged, not returned.
func (c *QueryCache) Set(ctx context.Context, version string, req executor.Request, resp *executor.Response) {
	key := BuildKey(version, req)
	c.local.Add(key, resp)
	if c.remote == nil {
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.remote.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached response or runs computeFn once per key,
// however many callers ask concurrently.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	version string,
	req executor.Request,
	computeFn func() (*executor.Response, error),
) (*executor.Response, bool, error) {
	if resp, ok := c.Get(ctx, version, req); ok {
		return resp, true, nil
	}
	key := BuildKey(version, req)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if resp, ok := c.local.Get(key); ok {
			return resp, nil
		}
		resp, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, version, req, resp)
		return resp, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.Response), false, nil
}

// Invalidate empties both tiers.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	c.local.Purge()
	if c.remote == nil {
		c.logger.Info("cache invalidate", "tier", TierLocal)
		return nil
	}
	deleted, err := c.remote.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("%w: invalidating cache: %v", apperrors.ErrCacheUnavailable, err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

type Stats struct {
	LocalHits    int64 `json:"localHits"`
	RemoteHits   int64 `json:"remoteHits"`
	Misses       int64 `json:"misses"`
	LocalEntries int   `json:"localEntries"`
	Remote       bool  `json:"remote"`
}

func (c *QueryCache) Stats() Stats {
	return Stats{
		LocalHits:    c.localHits.Load(),
		RemoteHits:   c.remoteHits.Load(),
		Misses:       c.misses.Load(),
		LocalEntries: c.local.Len(),
		Remote:       c.remote != nil,
	}
}

func (c *QueryCache) hit(tier string) {
	if tier == TierLocal {
		c.localHits.Add(1)
	} else {
		c.remoteHits.Add(1)
	}
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(tier).Inc()
	}
}

// BuildKey derives the cache key for req against an index version. Queries
// that parse to the same plan share a key, as do filters that differ only in
// order.
func BuildKey(version string, req executor.Request) string {
	var b strings.Builder
	b.WriteString(version)
	b.WriteString("|")
	b.WriteString(parser.Canonical(req.Query))
	b.WriteString("|limit=")
	b.WriteString(strconv.Itoa(req.Limit))
	if len(req.Filter) > 0 {
		ids := append([]int(nil), req.Filter...)
		sort.Ints(ids)
		b.WriteString("|ids=")
		for i, id := range ids {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Itoa(id))
		}
	}
	if len(req.FilterNames) > 0 {
		names := append([]string(nil), req.FilterNames...)
		sort.Strings(names)
		b.WriteString("|docs=")
		b.WriteString(strings.Join(names, ","))
	}
	hash := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
