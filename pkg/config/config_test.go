package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, SourceFile, cfg.Index.Source)
	assert.Equal(t, 3, cfg.Search.MinTermLength)
	assert.Equal(t, 10, cfg.Search.Weights.Title)
	assert.Equal(t, 1, cfg.Search.Weights.Body)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9001
index:
  source: http
  url: https://docs.example.com/searchindex.js
  reloadInterval: 30s
search:
  defaultLimit: 5
  maxResults: 50
  weights:
    title: 20
    typeBoost:
      class: 3
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, SourceHTTP, cfg.Index.Source)
	assert.Equal(t, 30*time.Second, cfg.Index.ReloadInterval)
	assert.Equal(t, 5, cfg.Search.DefaultLimit)
	assert.Equal(t, 20, cfg.Search.Weights.Title)
	assert.Equal(t, 1, cfg.Search.Weights.Body, "unset weight keeps its default")
	assert.Equal(t, 3, cfg.Search.Weights.TypeBoost["class"])
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DS_SERVER_PORT", "7000")
	t.Setenv("DS_INDEX_PATH", "/srv/docs/searchindex.js")
	t.Setenv("DS_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("DS_SEARCH_STEMMING", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "/srv/docs/searchindex.js", cfg.Index.Path)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Search.Stemming)
}

func TestLoad_PostgresSourceEnablesPostgres(t *testing.T) {
	t.Setenv("DS_INDEX_SOURCE", SourcePostgres)
	t.Setenv("DS_INDEX_NAME", "usd-docs")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Postgres.Enabled)
	assert.Equal(t, "usd-docs", cfg.Index.Name)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown source", func(c *Config) { c.Index.Source = "ftp" }, "unknown index source"},
		{"http without url", func(c *Config) { c.Index.Source = SourceHTTP; c.Index.URL = "" }, "index.url"},
		{"file without path", func(c *Config) { c.Index.Path = "" }, "index.path"},
		{"zero default limit", func(c *Config) { c.Search.DefaultLimit = 0 }, "defaultLimit"},
		{"max below default", func(c *Config) { c.Search.MaxResults = 1 }, "maxResults"},
		{"zero min term length", func(c *Config) { c.Search.MinTermLength = 0 }, "minTermLength"},
		{"rate limit without rate", func(c *Config) { c.RateLimit.RequestsPerSecond = 0 }, "requestsPerSecond"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	dsn := Default().Postgres.DSN()
	assert.Equal(t, "host=localhost port=5432 user=docsearch password=localdev dbname=docsearch sslmode=disable", dsn)
}
