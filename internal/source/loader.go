package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/tracing"
)

const (
	defaultFetchTimeout   = 30 * time.Second
	defaultReloadInterval = time.Minute
	watchDebounce         = 200 * time.Millisecond
)

// ReloadResult describes one reload attempt.
type ReloadResult struct {
	Source    string
	Version   string
	Previous  string
	Changed   bool
	Documents int
	Objects   int
	Latency   time.Duration
	Err       error
}

// Loader fetches an index from a Source, parses it and publishes it in a
// Holder. A failed reload leaves the previously published index in place.
type Loader struct {
	src            Source
	holder         *index.Holder
	indexOpts      []index.Option
	retry          resilience.RetryConfig
	fetchTimeout   time.Duration
	reloadInterval time.Duration
	metrics        *metrics.Metrics
	logger         *slog.Logger

	mu        sync.Mutex
	listeners []func(ReloadResult)
}

type LoaderOption func(*Loader)

func WithIndexOptions(opts ...index.Option) LoaderOption {
	return func(l *Loader) { l.indexOpts = append(l.indexOpts, opts...) }
}

func WithRetry(cfg resilience.RetryConfig) LoaderOption {
	return func(l *Loader) { l.retry = cfg }
}

func WithFetchTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) { l.fetchTimeout = d }
}

// WithReloadInterval sets the polling period Watch uses for sources that
// cannot be watched on the filesystem.
func WithReloadInterval(d time.Duration) LoaderOption {
	return func(l *Loader) { l.reloadInterval = d }
}

func WithMetrics(m *metrics.Metrics) LoaderOption {
	return func(l *Loader) { l.metrics = m }
}

func NewLoader(src Source, holder *index.Holder, opts ...LoaderOption) *Loader {
	l := &Loader{
		src:            src,
		holder:         holder,
		fetchTimeout:   defaultFetchTimeout,
		reloadInterval: defaultReloadInterval,
		logger:         slog.Default().With("component", "index-loader", "source", src.Name()),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// OnReload registers fn to be called after every reload attempt.
func (l *Loader) OnReload(fn func(ReloadResult)) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// Reload fetches and parses the index and, if its version differs from the
// published one, swaps it in. Reloads are serialized.
func (l *Loader) Reload(ctx context.Context) (ReloadResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := time.Now()
	ctx, span := tracing.Start(ctx, "index.reload")
	defer func() {
		span.End()
		span.Log(l.logger)
	}()
	res := ReloadResult{Source: l.src.Name()}
	if cur := l.holder.Load(); cur != nil {
		res.Previous = cur.Version()
	}

	idx, err := l.fetchAndParse(ctx)
	res.Latency = time.Since(start)

	switch {
	case errors.Is(err, ErrNotModified):
		res.Version = res.Previous
		l.observe("unchanged")
		l.logger.Debug("index not modified")
		l.notify(res)
		return res, nil
	case err != nil:
		res.Err = err
		l.observe("error")
		l.logger.Error("index reload failed, keeping current index",
			"error", err,
			"current_version", res.Previous,
		)
		if h, ok := l.src.(*HTTPSource); ok && apperrors.IsMalformed(err) {
			h.Forget()
		}
		l.notify(res)
		return res, err
	}

	res.Version = idx.Version()
	res.Documents = idx.DocumentCount()
	res.Objects = idx.ObjectCount()
	if res.Version == res.Previous {
		l.observe("unchanged")
		l.logger.Debug("index unchanged", "version", res.Version)
		l.notify(res)
		return res, nil
	}

	l.holder.Swap(idx)
	res.Changed = true
	l.observe("success")
	if l.metrics != nil {
		l.metrics.IndexDocuments.Set(float64(idx.DocumentCount()))
		l.metrics.IndexTerms.Set(float64(idx.TermCount()))
		l.metrics.IndexObjects.Set(float64(idx.ObjectCount()))
		l.metrics.IndexLoadedAt.Set(float64(idx.LoadedAt().Unix()))
	}
	stats := idx.Stats()
	l.logger.Info("index loaded",
		"version", res.Version,
		"previous_version", res.Previous,
		"documents", stats.Documents,
		"terms", stats.Terms,
		"objects", stats.Objects,
		"title_mismatches", stats.TitleMismatches,
		"latency_ms", res.Latency.Milliseconds(),
	)
	l.notify(res)
	return res, nil
}

func (l *Loader) fetchAndParse(ctx context.Context) (*index.Index, error) {
	var idx *index.Index
	err := resilience.Retry(ctx, "index-fetch", l.retry, func() error {
		var data []byte
		fetchCtx, fetchSpan := tracing.Start(ctx, "fetch")
		err := resilience.WithTimeout(fetchCtx, l.fetchTimeout, "index-fetch", func(ctx context.Context) error {
			var err error
			data, err = l.src.Fetch(ctx)
			return err
		})
		fetchSpan.SetAttr("bytes", len(data))
		fetchSpan.End()
		if errors.Is(err, ErrNotModified) {
			return resilience.Permanent(err)
		}
		if err != nil {
			if !errors.Is(err, apperrors.ErrSourceUnavailable) {
				err = fmt.Errorf("%w: %v", apperrors.ErrSourceUnavailable, err)
			}
			return err
		}
		_, parseSpan := tracing.Start(ctx, "parse")
		parsed, err := index.Parse(data, l.indexOpts...)
		parseSpan.End()
		if err != nil {
			return resilience.Permanent(err)
		}
		idx = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return idx, nil
}

func (l *Loader) observe(status string) {
	if l.metrics != nil {
		l.metrics.IndexReloadsTotal.WithLabelValues(status).Inc()
	}
}

// notify runs with l.mu held.
func (l *Loader) notify(res ReloadResult) {
	for _, fn := range l.listeners {
		fn(res)
	}
}

// Watch reloads the index whenever its source changes until ctx is done.
// A FileSource is watched with fsnotify; other sources are polled.
func (l *Loader) Watch(ctx context.Context) error {
	if fs, ok := l.src.(*FileSource); ok {
		return l.watchFile(ctx, fs.Path)
	}
	return l.poll(ctx)
}

func (l *Loader) poll(ctx context.Context) error {
	ticker := time.NewTicker(l.reloadInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_, _ = l.Reload(ctx)
		}
	}
}

// watchFile watches the parent directory so that editors and deploy tools
// which replace the file by rename are still seen.
func (l *Loader) watchFile(ctx context.Context, path string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	l.logger.Info("watching index file", "path", abs)

	// Fires once per burst of events.
	debounce := time.NewTimer(watchDebounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounce.Reset(watchDebounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn("file watcher error", "error", err)
		case <-debounce.C:
			_, _ = l.Reload(ctx)
		}
	}
}
