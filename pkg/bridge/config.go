package bridge

import (
	"log/slog"
	"time"

	"github.com/ZanzyTHEbar/mcp-puppygraph-go/internal/database"
)

// Config exposes a stable wrapper for backend configuration in package mode.
// Empty fields fall back to the local PuppyGraph defaults.
type Config struct {
	Neo4jURL      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string

	GremlinURL             string
	GremlinUser            string
	GremlinPassword        string
	GremlinTraversalSource string

	SchemaURL      string
	SchemaUser     string
	SchemaPassword string

	ConnectTimeout time.Duration
	Logger         *slog.Logger
}

func (c *Config) toInternal() *database.Config {
	cfg := database.DefaultConfig()
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Neo4j.URL, c.Neo4jURL)
	set(&cfg.Neo4j.Username, c.Neo4jUser)
	set(&cfg.Neo4j.Password, c.Neo4jPassword)
	set(&cfg.Neo4j.Database, c.Neo4jDatabase)
	set(&cfg.Gremlin.URL, c.GremlinURL)
	set(&cfg.Gremlin.Username, c.GremlinUser)
	set(&cfg.Gremlin.Password, c.GremlinPassword)
	set(&cfg.Gremlin.TraversalSource, c.GremlinTraversalSource)
	set(&cfg.SchemaAPI.URL, c.SchemaURL)
	set(&cfg.SchemaAPI.Username, c.SchemaUser)
	set(&cfg.SchemaAPI.Password, c.SchemaPassword)
	if c.ConnectTimeout > 0 {
		cfg.ConnectTimeout = c.ConnectTimeout
	}
	cfg.Logger = c.Logger
	return cfg
}
