package database

import (
	"log/slog"
	"time"
)

// Neo4jConfig holds the Bolt (Cypher) backend settings.
type Neo4jConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// Database scopes sessions; empty uses the server default.
	Database string `yaml:"database"`
}

// GremlinConfig holds the Gremlin Server backend settings.
type GremlinConfig struct {
	URL             string `yaml:"url"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	TraversalSource string `yaml:"traversal_source"`
}

// SchemaAPIConfig holds the HTTP schema endpoint settings.
type SchemaAPIConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Config holds the configuration of both backends and the schema endpoint.
// It is plain input: nothing in this package reads the environment.
type Config struct {
	Neo4j     Neo4jConfig     `yaml:"neo4j"`
	Gremlin   GremlinConfig   `yaml:"gremlin"`
	SchemaAPI SchemaAPIConfig `yaml:"schema_api"`
	// ConnectTimeout bounds dialing and handshakes only; queries are not timed out.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	Logger         *slog.Logger  `yaml:"-"`
}

// DefaultConfig returns the settings of a local PuppyGraph instance.
func DefaultConfig() *Config {
	return &Config{
		Neo4j: Neo4jConfig{
			URL:      "bolt://localhost:7687",
			Username: "puppygraph",
			Password: "puppygraph123",
		},
		Gremlin: GremlinConfig{
			URL:             "ws://localhost:8182/gremlin",
			Username:        "puppygraph",
			Password:        "puppygraph123",
			TraversalSource: "g",
		},
		SchemaAPI: SchemaAPIConfig{
			URL:      "http://localhost:8081/schemajson",
			Username: "puppygraph",
			Password: "puppygraph123",
		},
		ConnectTimeout: 10 * time.Second,
	}
}

// Redacted returns a copy with every password masked.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "****"
	}
	c.Neo4j.Password = mask(c.Neo4j.Password)
	c.Gremlin.Password = mask(c.Gremlin.Password)
	c.SchemaAPI.Password = mask(c.SchemaAPI.Password)
	return c
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Config) connectTimeout() time.Duration {
	if c.ConnectTimeout > 0 {
		return c.ConnectTimeout
	}
	return 10 * time.Second
}
