package analytics

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

// LocalPublisher hands batches straight to an Aggregator in the same
// process. It stands in for Kafka when the broker is disabled.
type LocalPublisher struct {
	agg *Aggregator
}

func NewLocalPublisher(agg *Aggregator) *LocalPublisher {
	return &LocalPublisher{agg: agg}
}

func (p *LocalPublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	for _, e := range events {
		switch v := e.Value.(type) {
		case SearchEvent:
			p.agg.RecordSearch(v)
		case ReloadEvent:
			p.agg.RecordReload(v)
		}
	}
	return nil
}
