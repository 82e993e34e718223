package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig("", envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, "bolt://localhost:7687", cfg.Neo4j.URL)
	assert.Equal(t, "ws://localhost:8182/gremlin", cfg.Gremlin.URL)
	assert.Equal(t, "http://localhost:8081/schemajson", cfg.SchemaAPI.URL)
	assert.Equal(t, "g", cfg.Gremlin.TraversalSource)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
}

func TestLoadConfig_Layering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
neo4j:
  url: bolt://file-host:7687
  database: graph
gremlin:
  url: ws://file-host:8182/gremlin
  traversal_source: g2
schema_api:
  url: http://file-host:8081/schemajson
connect_timeout: 3s
`), 0o600))

	cfg, err := loadConfig(path, envMap(map[string]string{
		"GREMLIN_URL":         "wss://env-host:8182/gremlin",
		"NEO4J_PASSWORD":      "from-env",
		"PUPPYGRAPH_USER":     "admin",
		"PUPPYGRAPH_PASSWORD": "  ",
	}))
	require.NoError(t, err)
	assert.Equal(t, "bolt://file-host:7687", cfg.Neo4j.URL)
	assert.Equal(t, "graph", cfg.Neo4j.Database)
	assert.Equal(t, "from-env", cfg.Neo4j.Password)
	assert.Equal(t, "puppygraph", cfg.Neo4j.Username, "unset keys keep defaults")
	assert.Equal(t, "wss://env-host:8182/gremlin", cfg.Gremlin.URL)
	assert.Equal(t, "g2", cfg.Gremlin.TraversalSource)
	assert.Equal(t, "admin", cfg.SchemaAPI.Username)
	assert.Equal(t, "puppygraph123", cfg.SchemaAPI.Password, "blank env values are ignored")
	assert.Equal(t, 3*time.Second, cfg.ConnectTimeout)

	overrides{gremlinURL: "ws://flag-host/gremlin", connectTimeout: time.Second}.apply(cfg)
	assert.Equal(t, "ws://flag-host/gremlin", cfg.Gremlin.URL)
	assert.Equal(t, time.Second, cfg.ConnectTimeout)
	assert.Equal(t, "bolt://file-host:7687", cfg.Neo4j.URL)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"), envMap(nil))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("neo4j: [unclosed"), 0o600))
	_, err = loadConfig(bad, envMap(nil))
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	lvl, err := parseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
	_, err = parseLevel("loud")
	assert.Error(t, err)
}

func TestValidateTransport(t *testing.T) {
	assert.NoError(t, validateTransport("stdio"))
	assert.NoError(t, validateTransport("sse"))
	err := validateTransport("http")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transport: http")
}
