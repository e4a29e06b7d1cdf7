package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	return dir
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 4, cfg.Import.Workers)
}

func TestLoad_File(t *testing.T) {
	t.Setenv("TEST_NEO4J_SECRET", "s3cret")
	dir := writeConfig(t, "netgraph.yaml", `
store:
  backend: neo4j
neo4j:
  uri: neo4j://graph:7687
  password: ${TEST_NEO4J_SECRET}
  connectionTimeout: 5s
log:
  level: debug
  format: json
metrics:
  addr: 127.0.0.1:9090
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "neo4j", cfg.Store.Backend)
	assert.Equal(t, "neo4j://graph:7687", cfg.Neo4j.URI)
	assert.Equal(t, "s3cret", cfg.Neo4j.Password)
	assert.Equal(t, "neo4j", cfg.Neo4j.Username, "unset fields keep defaults")
	assert.Equal(t, 5*time.Second, cfg.Neo4j.ConnectionTimeout)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "127.0.0.1:9090", cfg.Metrics.Addr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := writeConfig(t, "netgraph.yml", "store:\n  backend: memory\n")
	t.Setenv("NETGRAPH_STORE_BACKEND", "kuzu")
	t.Setenv("NETGRAPH_KUZU_PATH", "/var/lib/netgraph/db")
	t.Setenv("NETGRAPH_LOG_LEVEL", "WARN")
	t.Setenv("NETGRAPH_IMPORT_WORKERS", "8")
	t.Setenv("NETGRAPH_TRACING_STDOUT", "true")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "kuzu", cfg.Store.Backend)
	assert.Equal(t, "/var/lib/netgraph/db", cfg.Kuzu.Path)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 8, cfg.Import.Workers)
	assert.True(t, cfg.Tracing.Stdout)
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("NETGRAPH_IMPORT_WORKERS", "many")
	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NETGRAPH_IMPORT_WORKERS")
}

func TestLoad_BadYAML(t *testing.T) {
	dir := writeConfig(t, "netgraph.yml", "store: [unclosed\n")
	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse netgraph.yml")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown backend", func(c *Config) { c.Store.Backend = "sqlite" }, "store.backend must be one of"},
		{"neo4j needs uri", func(c *Config) { c.Store.Backend = "neo4j"; c.Neo4j.URI = "" }, "neo4j.uri is required"},
		{"memory ignores uri", func(c *Config) { c.Neo4j.URI = "" }, ""},
		{"kuzu needs path", func(c *Config) { c.Store.Backend = "kuzu"; c.Kuzu.Path = "" }, "kuzu.path is required"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level must be one of"},
		{"bad metrics addr", func(c *Config) { c.Metrics.Addr = "nine-thousand" }, "metrics.addr must be host:port"},
		{"too many workers", func(c *Config) { c.Import.Workers = 1000 }, "import.workers failed validation 'lte'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
