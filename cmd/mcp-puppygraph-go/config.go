package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ZanzyTHEbar/mcp-puppygraph-go/internal/database"
)

// loadConfig layers the configuration: defaults, then the optional YAML
// file, then environment variables. Flags are applied by the caller.
func loadConfig(path string, getenv func(string) string) (*database.Config, error) {
	cfg := database.DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	applyEnv(cfg, getenv)
	return cfg, nil
}

func applyEnv(cfg *database.Config, getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Neo4j.URL, "NEO4J_URI")
	set(&cfg.Neo4j.Username, "NEO4J_USER")
	set(&cfg.Neo4j.Password, "NEO4J_PASSWORD")
	set(&cfg.Neo4j.Database, "NEO4J_DATABASE")
	set(&cfg.Gremlin.URL, "GREMLIN_URL")
	set(&cfg.Gremlin.Username, "GREMLIN_USER")
	set(&cfg.Gremlin.Password, "GREMLIN_PASSWORD")
	set(&cfg.Gremlin.TraversalSource, "GREMLIN_TRAVERSAL_SOURCE")
	set(&cfg.SchemaAPI.URL, "PUPPYGRAPH_SCHEMA_URL")
	set(&cfg.SchemaAPI.Username, "PUPPYGRAPH_USER")
	set(&cfg.SchemaAPI.Password, "PUPPYGRAPH_PASSWORD")
	if v := getenv("PUPPYGRAPH_CONNECT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ConnectTimeout = d
		}
	}
}

// overrides holds the flag values that take precedence over file and env.
type overrides struct {
	neo4jURI       string
	neo4jDatabase  string
	gremlinURL     string
	gremlinSource  string
	schemaURL      string
	connectTimeout time.Duration
}

func (o overrides) apply(cfg *database.Config) {
	if o.neo4jURI != "" {
		cfg.Neo4j.URL = o.neo4jURI
	}
	if o.neo4jDatabase != "" {
		cfg.Neo4j.Database = o.neo4jDatabase
	}
	if o.gremlinURL != "" {
		cfg.Gremlin.URL = o.gremlinURL
	}
	if o.gremlinSource != "" {
		cfg.Gremlin.TraversalSource = o.gremlinSource
	}
	if o.schemaURL != "" {
		cfg.SchemaAPI.URL = o.schemaURL
	}
	if o.connectTimeout > 0 {
		cfg.ConnectTimeout = o.connectTimeout
	}
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return lvl, nil
}

func validateTransport(s string) error {
	switch s {
	case "stdio", "sse":
		return nil
	}
	return fmt.Errorf("unknown transport: %s (expected: stdio or sse)", s)
}
