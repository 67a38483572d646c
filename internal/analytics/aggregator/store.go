// Package aggregator persists snapshots of aggregated search analytics to
// PostgreSQL so trends survive restarts.
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS analytics_snapshots (
    id             BIGSERIAL PRIMARY KEY,
    index_version  TEXT        NOT NULL DEFAULT '',
    total_searches BIGINT      NOT NULL DEFAULT 0,
    data           JSONB       NOT NULL,
    captured_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE INDEX IF NOT EXISTS analytics_snapshots_captured_at ON analytics_snapshots (captured_at DESC)`,
}

type Store struct {
	db     *postgres.Client
	logger *slog.Logger

	// lastSaved is the event count of the last snapshot Run wrote.
	lastSaved int64
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:        db,
		logger:    slog.Default().With("component", "analytics-store"),
		lastSaved: -1,
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.db.Migrate(ctx, migrations...); err != nil {
		return fmt.Errorf("analytics snapshots schema: %w", err)
	}
	return nil
}

func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO analytics_snapshots (index_version, total_searches, data, captured_at) VALUES ($1, $2, $3, $4)`,
		stats.IndexVersion, stats.TotalSearches, data, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}
	s.logger.Debug("snapshot saved", "total_searches", stats.TotalSearches, "index_version", stats.IndexVersion)
	return nil
}

// LatestSnapshot returns nil, nil before the first snapshot is saved.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.AggregatedStats, error) {
	snaps, err := s.ListSnapshots(ctx, 1)
	if err != nil || len(snaps) == 0 {
		return nil, err
	}
	return &snaps[0], nil
}

// ListSnapshots returns up to limit snapshots, newest first. Rows that no
// longer decode are skipped.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]analytics.AggregatedStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data FROM analytics_snapshots ORDER BY captured_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	snaps := make([]analytics.AggregatedStats, 0, limit)
	for rows.Next() {
		var (
			id   int64
			data []byte
			st   analytics.AggregatedStats
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		if err := json.Unmarshal(data, &st); err != nil {
			s.logger.Warn("undecodable snapshot", "id", id, "error", err)
			continue
		}
		snaps = append(snaps, st)
	}
	return snaps, rows.Err()
}

// Run snapshots agg every interval until ctx ends, then writes a final
// snapshot. Ticks with no new events since the last write are skipped. A
// non-positive interval disables snapshots.
func (s *Store) Run(ctx context.Context, agg *analytics.Aggregator, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	s.logger.Info("snapshotting analytics", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.saveIfChanged(ctx, agg.Stats())
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			s.saveIfChanged(final, agg.Stats())
			cancel()
			return nil
		}
	}
}

func (s *Store) saveIfChanged(ctx context.Context, stats analytics.AggregatedStats) {
	events := stats.TotalSearches + stats.Reloads
	if events == s.lastSaved {
		return
	}
	if err := s.SaveSnapshot(ctx, stats); err != nil {
		s.logger.Error("snapshot failed", "error", err)
		return
	}
	s.lastSaved = events
}
