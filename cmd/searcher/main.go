package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/source"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "index_source", cfg.Index.Source)

	if err := run(cfg); err != nil {
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Port); err != nil {
				slog.Error("metrics server failed", "error", err)
			}
		}()
	}

	var db *postgres.Client
	if cfg.Postgres.Enabled {
		var err error
		db, err = postgres.New(cfg.Postgres)
		if err != nil {
			if cfg.Index.Source == config.SourcePostgres {
				return fmt.Errorf("postgres index source: %w", err)
			}
			slog.Warn("postgres unavailable, analytics snapshots disabled", "error", err)
		} else {
			defer db.Close()
		}
	}

	src, err := newSource(ctx, cfg, db)
	if err != nil {
		return err
	}

	holder := index.NewHolder(nil)
	loaderOpts := []source.LoaderOption{
		source.WithRetry(resilience.RetryConfig{MaxAttempts: cfg.Index.MaxAttempts}),
		source.WithFetchTimeout(cfg.Index.FetchTimeout),
		source.WithReloadInterval(cfg.Index.ReloadInterval),
		source.WithMetrics(m),
	}
	if cfg.Index.StrictTitles {
		loaderOpts = append(loaderOpts, source.WithIndexOptions(index.WithStrictTitles()))
	}
	loader := source.NewLoader(src, holder, loaderOpts...)

	// Analytics: Kafka when enabled, otherwise events go straight to the
	// in-process aggregator.
	var (
		agg       *analytics.Aggregator
		publisher analytics.Publisher
	)
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		agg = analytics.NewAggregator(nil)
		agg.WithConsumer(kafka.NewConsumer(cfg.Kafka, analytics.HandleEvent(agg)))
		publisher = producer
		slog.Info("analytics via kafka", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)
	} else {
		agg = analytics.NewAggregator(nil)
		publisher = analytics.NewLocalPublisher(agg)
	}
	collector := analytics.NewCollector(publisher, cfg.Kafka.BufferSize, cfg.Kafka.BatchSize, cfg.Kafka.FlushInterval).WithMetrics(m)
	collector.Start(ctx)
	defer collector.Close()

	loader.OnReload(func(res source.ReloadResult) {
		event := analytics.ReloadEvent{
			Type:      analytics.EventIndexReload,
			Source:    res.Source,
			Version:   res.Version,
			Documents: res.Documents,
			Objects:   res.Objects,
			Succeeded: res.Err == nil,
			LatencyMs: res.Latency.Milliseconds(),
			Timestamp: time.Now().UTC(),
		}
		if res.Err != nil {
			event.Error = res.Err.Error()
		}
		collector.TrackReload(event)
	})

	if _, err := loader.Reload(ctx); err != nil {
		slog.Warn("initial index load failed, serving 503 until a reload succeeds", "error", err)
	}

	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, shared cache and reload fan-out disabled", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	var queryCache *cache.QueryCache
	if cfg.Cache.Enabled {
		opts := []cache.Option{cache.WithMetrics(m)}
		if redisClient != nil {
			cb := resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{
				OnStateChange: func(name string, to resilience.State) {
					m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
				},
			})
			opts = append(opts, cache.WithRemote(cache.GuardRemote(redisClient, cb), cfg.Redis.CacheTTL))
		}
		queryCache, err = cache.New(cfg.Cache.LRUSize, opts...)
		if err != nil {
			return fmt.Errorf("creating query cache: %w", err)
		}
		slog.Info("search cache enabled", "lru_size", cfg.Cache.LRUSize, "redis", redisClient != nil)
	}

	var bus *source.ReloadBus
	if redisClient != nil && cfg.Redis.ReloadChannel != "" {
		bus = source.NewReloadBus(redisClient, cfg.Redis.ReloadChannel, instanceID(), loader)
	}

	tok := tokenizer.New(
		tokenizer.WithMinLength(cfg.Search.MinTermLength),
		tokenizer.WithStemming(cfg.Search.Stemming),
	)
	exec := executor.New(holder,
		executor.WithTokenizer(tok),
		executor.WithWeights(weightsFrom(cfg.Search.Weights)),
		executor.WithLimits(cfg.Search.DefaultLimit, cfg.Search.MaxResults),
		executor.WithMetrics(m),
	)

	hopts := []handler.Option{handler.WithCollector(collector), handler.WithMetrics(m)}
	if queryCache != nil {
		hopts = append(hopts, handler.WithCache(queryCache))
	}
	var announcer handler.Announcer
	if bus != nil {
		announcer = bus
	}
	hopts = append(hopts, handler.WithReloader(loader, announcer))
	h := handler.New(exec, holder, hopts...)

	var snapshots analytics.SnapshotLister
	var store *aggregator.Store
	if db != nil && cfg.Postgres.SnapshotInterval > 0 {
		store = aggregator.NewStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			slog.Warn("analytics snapshot schema unavailable, snapshots disabled", "error", err)
			store = nil
		} else {
			snapshots = store
		}
	}
	analyticsH := analytics.NewHandler(agg, snapshots)

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		idx := holder.Load()
		if idx == nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: "index not loaded"}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("version %s, %d documents", idx.Version(), idx.DocumentCount()),
		}
	})
	if redisClient != nil {
		checker.Register("redis", health.PingCheck(redisClient.Ping, true))
	}
	if db != nil {
		checker.Register("postgres", health.PingCheck(db.Ping, cfg.Index.Source != config.SourcePostgres))
	}

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /api/v1/analytics/stats", analyticsH.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", analyticsH.Snapshots)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	var limiter *middleware.ClientLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewClientLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		chain = middleware.RateLimit(limiter, m)(chain)
	}
	chain = middleware.Metrics(m)(chain)
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("search service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if cfg.Index.Watch {
		g.Go(func() error { return loader.Watch(gctx) })
	}
	if bus != nil {
		g.Go(func() error {
			if err := bus.Listen(gctx); err != nil {
				slog.Warn("reload fan-out stopped", "error", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		if err := agg.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("analytics aggregator error", "error", err)
		}
		return nil
	})
	if store != nil {
		g.Go(func() error { return store.Run(gctx, agg, cfg.Postgres.SnapshotInterval) })
	}
	if limiter != nil {
		g.Go(func() error {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					limiter.Prune(time.Now().Add(-10 * time.Minute))
				}
			}
		})
	}

	return g.Wait()
}

func newSource(ctx context.Context, cfg *config.Config, db *postgres.Client) (source.Source, error) {
	switch cfg.Index.Source {
	case config.SourceHTTP:
		return source.NewHTTPSource(cfg.Index.URL, &http.Client{Timeout: cfg.Index.FetchTimeout}), nil
	case config.SourcePostgres:
		src := source.NewPostgresSource(db, cfg.Index.Name)
		if err := src.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return src, nil
	default:
		return &source.FileSource{Path: cfg.Index.Path}, nil
	}
}

func weightsFrom(w config.WeightsConfig) ranker.Weights {
	return ranker.Weights{
		Title:         w.Title,
		Body:          w.Body,
		ObjectBase:    w.ObjectBase,
		ObjectExact:   w.ObjectExact,
		ObjectPartial: w.ObjectPartial,
		TypeBoost:     w.TypeBoost,
	}
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
