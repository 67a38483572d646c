package source

import (
	"context"
	"fmt"
	"log/slog"
)

// PubSub is the slice of the Redis client the reload fan-out needs.
type PubSub interface {
	Publish(ctx context.Context, channel, message string) error
	Subscribe(ctx context.Context, channel string) (<-chan string, error)
}

// ReloadBus tells every replica sharing a channel to reload its index. Each
// message carries the sender's instance id, so a replica ignores its own
// announcements.
type ReloadBus struct {
	ps         PubSub
	channel    string
	instanceID string
	loader     *Loader
	logger     *slog.Logger
}

func NewReloadBus(ps PubSub, channel, instanceID string, loader *Loader) *ReloadBus {
	return &ReloadBus{
		ps:         ps,
		channel:    channel,
		instanceID: instanceID,
		loader:     loader,
		logger:     slog.Default().With("component", "reload-bus", "channel", channel),
	}
}

// Announce asks the other replicas to reload.
func (b *ReloadBus) Announce(ctx context.Context) error {
	if err := b.ps.Publish(ctx, b.channel, b.instanceID); err != nil {
		return fmt.Errorf("announcing reload: %w", err)
	}
	return nil
}

// Listen reloads the index for every announcement from another replica
// until ctx is done or the subscription ends.
func (b *ReloadBus) Listen(ctx context.Context) error {
	msgs, err := b.ps.Subscribe(ctx, b.channel)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", b.channel, err)
	}
	b.logger.Info("listening for reload announcements")
	for {
		select {
		case <-ctx.Done():
			return nil
		case from, ok := <-msgs:
			if !ok {
				return nil
			}
			if from == b.instanceID {
				continue
			}
			b.logger.Info("reload requested by peer", "peer", from)
			_, _ = b.loader.Reload(ctx)
		}
	}
}
