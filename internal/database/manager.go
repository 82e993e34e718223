package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ZanzyTHEbar/mcp-puppygraph-go/internal/apptype"
)

const neo4jSchemaCount = "MATCH (n) RETURN count(n) AS nodeCount"

type connection interface {
	Connect(ctx context.Context) bool
	Close(ctx context.Context) error
	IsConnected() bool
	ConnectionError() string
}

type cypherConn interface {
	connection
	ExecuteQuery(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)
}

type traversalConn interface {
	connection
	ExecuteQuery(ctx context.Context, script string, params map[string]any) ([]any, error)
	SchemaData(ctx context.Context) (*apptype.SchemaResult, error)
}

type schemaFetcher func(ctx context.Context, cfg SchemaAPIConfig) (*apptype.SchemaResult, error)

// DBManager owns both backend connections and the schema endpoint settings.
// Connections are re-established lazily: each request makes at most one
// reconnect attempt per backend, and concurrent attempts are coalesced.
type DBManager struct {
	config Config
	logger *slog.Logger

	neo4j       cypherConn
	gremlin     traversalConn
	fetchSchema schemaFetcher

	reconnects singleflight.Group
}

// NewDBManager creates a manager with both connections disconnected. Call
// Connect to dial eagerly, or let the first request do it.
func NewDBManager(cfg *Config) (*DBManager, error) {
	if cfg == nil {
		return nil, errors.New("database config is required")
	}
	if cfg.Neo4j.URL == "" && cfg.Gremlin.URL == "" {
		return nil, errors.New("at least one of the neo4j or gremlin urls must be set")
	}
	logger := cfg.logger()
	return newDBManager(*cfg,
		NewNeo4jConn(cfg.Neo4j, cfg.connectTimeout(), logger),
		NewGremlinConn(cfg.Gremlin, cfg.connectTimeout(), logger),
		FetchSchema,
	), nil
}

func newDBManager(cfg Config, n cypherConn, g traversalConn, fetch schemaFetcher) *DBManager {
	return &DBManager{
		config:      cfg,
		logger:      cfg.logger(),
		neo4j:       n,
		gremlin:     g,
		fetchSchema: fetch,
	}
}

// ensure returns whether conn is live, making one coalesced reconnect
// attempt if it is not.
func (m *DBManager) ensure(ctx context.Context, backend string, conn connection) bool {
	if conn.IsConnected() {
		return true
	}
	// one caller's cancellation must not fail the others sharing the attempt
	ctx = context.WithoutCancel(ctx)
	v, _, _ := m.reconnects.Do(backend, func() (any, error) {
		return conn.Connect(ctx), nil
	})
	return v.(bool)
}

// Connect attempts both backends concurrently. Failures are recorded on the
// connections and reported through Status.
func (m *DBManager) Connect(ctx context.Context) {
	var g errgroup.Group
	g.Go(func() error {
		m.ensure(ctx, backendNeo4j, m.neo4j)
		return nil
	})
	g.Go(func() error {
		m.ensure(ctx, backendGremlin, m.gremlin)
		return nil
	})
	_ = g.Wait()
}

// RunCypher executes a Cypher query and wraps the records in a QueryResult.
func (m *DBManager) RunCypher(ctx context.Context, query string, params map[string]any) (*apptype.QueryResult, error) {
	if !m.ensure(ctx, backendNeo4j, m.neo4j) {
		return nil, &UnavailableError{Backend: "Neo4j", Cause: m.aggregatedError()}
	}
	start := time.Now()
	rows, err := m.neo4j.ExecuteQuery(ctx, query, params)
	if err != nil {
		return nil, &QueryError{Language: "cypher", Err: err}
	}
	data := make([]any, len(rows))
	for i, row := range rows {
		data[i] = row
	}
	return apptype.NewQueryResult(data, time.Since(start).Milliseconds()), nil
}

// RunGremlin validates and executes a traversal script. Rejected scripts
// never reach the backend.
func (m *DBManager) RunGremlin(ctx context.Context, query string, params map[string]any) (*apptype.QueryResult, error) {
	if err := ValidateTraversal(query, params); err != nil {
		return nil, err
	}
	if !m.ensure(ctx, backendGremlin, m.gremlin) {
		return nil, &UnavailableError{Backend: "Gremlin", Cause: m.aggregatedError()}
	}
	start := time.Now()
	items, err := m.gremlin.ExecuteQuery(ctx, query, params)
	if err != nil {
		return nil, &QueryError{Language: "gremlin", Err: err}
	}
	return apptype.NewQueryResult(items, time.Since(start).Milliseconds()), nil
}

// Schema walks the tiers in order: schema API, Neo4j node count, Gremlin
// structure queries. The first tier that answers wins.
func (m *DBManager) Schema(ctx context.Context) (*apptype.SchemaResult, error) {
	var causes []string

	res, err := m.fetchSchema(ctx, m.config.SchemaAPI)
	if err == nil {
		return res, nil
	}
	m.logger.Debug("schema api tier failed", "error", err)
	causes = append(causes, "schema API: "+err.Error())

	if m.ensure(ctx, backendNeo4j, m.neo4j) {
		rows, err := m.neo4j.ExecuteQuery(ctx, neo4jSchemaCount, nil)
		if err == nil {
			n := nodeCount(rows)
			return &apptype.SchemaResult{
				Summary:   fmt.Sprintf("Graph contains %d nodes", n),
				Source:    apptype.SourceNeo4j,
				Timestamp: time.Now().UTC().Format(time.RFC3339),
				NodeCount: &n,
			}, nil
		}
		m.logger.Debug("neo4j schema tier failed", "error", err)
		causes = append(causes, "Neo4j: "+err.Error())
	}

	if m.ensure(ctx, backendGremlin, m.gremlin) {
		res, err := m.gremlin.SchemaData(ctx)
		if err == nil {
			return res, nil
		}
		m.logger.Debug("gremlin schema tier failed", "error", err)
		causes = append(causes, "Gremlin: "+err.Error())
	}

	msg := strings.Join(causes, "; ")
	if agg := m.aggregatedError(); agg != "" {
		msg = agg + " (" + msg + ")"
	}
	return nil, fmt.Errorf("%w: %s", ErrSchemaUnavailable, msg)
}

func nodeCount(rows []map[string]any) int64 {
	if len(rows) == 0 {
		return 0
	}
	n, _ := rows[0]["nodeCount"].(int64)
	return n
}

// Status projects the current connection state. It never dials.
func (m *DBManager) Status() apptype.ConnectionStatus {
	n, g := m.neo4j.IsConnected(), m.gremlin.IsConnected()
	st := apptype.ConnectionStatus{
		Connected:        n || g,
		Neo4jConnected:   n,
		GremlinConnected: g,
	}
	if agg := m.aggregatedError(); agg != "" {
		st.ConnectionError = &agg
	}
	return st
}

// aggregatedError formats the last errors of both connections.
func (m *DBManager) aggregatedError() string {
	nErr, gErr := m.neo4j.ConnectionError(), m.gremlin.ConnectionError()
	switch {
	case nErr != "" && gErr != "":
		return "Neo4j: " + nErr + " | Gremlin: " + gErr
	case nErr != "":
		return nErr
	default:
		return gErr
	}
}

// Shutdown closes both connections concurrently; one failing does not stop
// the other. The first error is returned.
func (m *DBManager) Shutdown(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error {
		if err := m.neo4j.Close(ctx); err != nil {
			m.logger.Warn("neo4j shutdown failed", "error", err)
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := m.gremlin.Close(ctx); err != nil {
			m.logger.Warn("gremlin shutdown failed", "error", err)
			return err
		}
		return nil
	})
	return g.Wait()
}

// Config returns the configuration with passwords masked.
func (m *DBManager) Config() Config {
	return m.config.Redacted()
}
