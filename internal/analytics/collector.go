package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

// Publisher sends a batch of events. *kafka.Producer and LocalPublisher
// satisfy it.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// drainTimeout bounds the final publish after shutdown.
const drainTimeout = 5 * time.Second

// Collector takes events off the request path. Tracking never blocks: events
// go into a bounded buffer and are dropped when it is full. A background loop
// publishes them in batches of batchSize or every flushInterval.
type Collector struct {
	publisher     Publisher
	queue         chan kafka.Event
	batchSize     int
	flushInterval time.Duration
	metrics       *metrics.Metrics
	logger        *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewCollector applies defaults for non-positive sizes: a 10000 event
// buffer, batches of 100 and a 2s flush interval.
func NewCollector(publisher Publisher, bufferSize, batchSize int, flushInterval time.Duration) *Collector {
	return &Collector{
		publisher:     publisher,
		queue:         make(chan kafka.Event, cmpOr(bufferSize, 10000)),
		batchSize:     cmpOr(batchSize, 100),
		flushInterval: cmpOr(flushInterval, 2*time.Second),
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

func cmpOr[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

// WithMetrics counts dropped events.
func (c *Collector) WithMetrics(m *metrics.Metrics) *Collector {
	c.metrics = m
	return c
}

// Start launches the publish loop. It stops when ctx is cancelled or Close
// is called, publishing whatever is still buffered first.
func (c *Collector) Start(ctx context.Context) {
	c.logger.Info("collecting analytics", "buffer", cap(c.queue), "batch", c.batchSize, "flush_every", c.flushInterval)
	go c.run(ctx)
}

func (c *Collector) TrackSearch(ev SearchEvent) {
	c.enqueue(kafka.Event{Key: ev.Query, Type: string(ev.Type), Value: ev})
}

func (c *Collector) TrackReload(ev ReloadEvent) {
	c.enqueue(kafka.Event{Key: ev.Source, Type: string(EventIndexReload), Value: ev})
}

func (c *Collector) enqueue(ev kafka.Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.closed {
		select {
		case c.queue <- ev:
			return
		default:
		}
	}
	if c.metrics != nil {
		c.metrics.AnalyticsDropped.Inc()
	}
	c.logger.Warn("analytics event dropped", "type", ev.Type)
}

// Close stops intake and waits for the final publish. It must follow Start.
// Events tracked after Close are dropped.
func (c *Collector) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.queue)
	}
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	pending := make([]kafka.Event, 0, c.batchSize)
	publish := func(ctx context.Context) {
		if len(pending) == 0 {
			return
		}
		if err := c.publisher.PublishBatch(ctx, pending); err != nil {
			c.logger.Error("publishing analytics batch", "events", len(pending), "error", err)
		}
		pending = pending[:0]
	}

	for {
		select {
		case ev, ok := <-c.queue:
			if !ok {
				c.final(publish)
				return
			}
			if pending = append(pending, ev); len(pending) >= c.batchSize {
				publish(ctx)
			}
		case <-ticker.C:
			publish(ctx)
		case <-ctx.Done():
			for drained := false; !drained; {
				select {
				case ev, ok := <-c.queue:
					if ok {
						pending = append(pending, ev)
						continue
					}
					drained = true
				default:
					drained = true
				}
			}
			c.final(publish)
			return
		}
	}
}

func (c *Collector) final(publish func(context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	publish(ctx)
}
