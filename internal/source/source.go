// Package source fetches serialized search indexes from where they are
// published and keeps the live index current.
package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
)

// ErrNotModified is returned by a Source whose data has not changed since
// the last successful Fetch.
var ErrNotModified = errors.New("index not modified")

// maxIndexBytes bounds how much a remote source may send.
const maxIndexBytes = 256 << 20

// Source yields the bytes of a serialized index.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	Name() string
}

// FileSource reads an index file from local disk.
type FileSource struct {
	Path string
}

func (s *FileSource) Name() string { return "file:" + s.Path }

func (s *FileSource) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSourceUnavailable, err)
	}
	return data, nil
}

// HTTPSource downloads an index over HTTP. It sends the ETag of the last
// successful response so an unchanged index costs a 304.
type HTTPSource struct {
	URL    string
	Client *http.Client

	mu   sync.Mutex
	etag string
}

func NewHTTPSource(url string, client *http.Client) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{URL: url, Client: client}
}

func (s *HTTPSource) Name() string { return "http:" + s.URL }

func (s *HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", s.URL, err)
	}
	s.mu.Lock()
	if s.etag != "" {
		req.Header.Set("If-None-Match", s.etag)
	}
	s.mu.Unlock()

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return nil, ErrNotModified
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: GET %s returned %s", apperrors.ErrSourceUnavailable, s.URL, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxIndexBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", apperrors.ErrSourceUnavailable, s.URL, err)
	}
	if len(data) > maxIndexBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", apperrors.ErrSourceUnavailable, s.URL, maxIndexBytes)
	}
	s.mu.Lock()
	s.etag = resp.Header.Get("ETag")
	s.mu.Unlock()
	return data, nil
}

// Forget drops the remembered ETag so the next Fetch downloads the index
// even if it has not changed. Used when a fetched body failed to load.
func (s *HTTPSource) Forget() {
	s.mu.Lock()
	s.etag = ""
	s.mu.Unlock()
}

const postgresSchema = `CREATE TABLE IF NOT EXISTS search_indexes (
    name       TEXT        NOT NULL,
    version    BIGINT      NOT NULL,
    payload    BYTEA       NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (name, version)
)`

// PostgresSource reads the newest stored version of a named index from the
// search_indexes table.
type PostgresSource struct {
	db        *postgres.Client
	indexName string
}

func NewPostgresSource(db *postgres.Client, indexName string) *PostgresSource {
	return &PostgresSource{db: db, indexName: indexName}
}

func (s *PostgresSource) Name() string { return "postgres:" + s.indexName }

// EnsureSchema creates the search_indexes table when it does not exist.
func (s *PostgresSource) EnsureSchema(ctx context.Context) error {
	if err := s.db.Migrate(ctx, postgresSchema); err != nil {
		return fmt.Errorf("creating search_indexes: %w", err)
	}
	return nil
}

func (s *PostgresSource) Fetch(ctx context.Context) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM search_indexes WHERE name = $1 ORDER BY version DESC LIMIT 1`,
		s.indexName,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no stored index named %q", apperrors.ErrSourceUnavailable, s.indexName)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: querying index %q: %v", apperrors.ErrSourceUnavailable, s.indexName, err)
	}
	return payload, nil
}

// Store saves payload as the next version of the named index and returns
// that version. Concurrent stores of the same name are serialized with an
// advisory lock.
func (s *PostgresSource) Store(ctx context.Context, payload []byte) (int64, error) {
	var version int64
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, s.indexName); err != nil {
			return fmt.Errorf("locking index %q: %w", s.indexName, err)
		}
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version), 0) + 1 FROM search_indexes WHERE name = $1`,
			s.indexName,
		).Scan(&version); err != nil {
			return fmt.Errorf("next version of %q: %w", s.indexName, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO search_indexes (name, version, payload) VALUES ($1, $2, $3)`,
			s.indexName, version, payload,
		); err != nil {
			if postgres.IsUniqueViolation(err) {
				return fmt.Errorf("index %q version %d already stored: %w", s.indexName, version, err)
			}
			return fmt.Errorf("storing index %q: %w", s.indexName, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}
