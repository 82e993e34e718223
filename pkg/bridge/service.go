// Package bridge is the library-first API for querying PuppyGraph through
// both Cypher (Bolt) and Gremlin without the MCP transport.
package bridge

import (
	"context"

	"github.com/ZanzyTHEbar/mcp-puppygraph-go/internal/apptype"
	"github.com/ZanzyTHEbar/mcp-puppygraph-go/internal/database"
)

// Result types shared with the MCP tools.
type (
	QueryResult      = apptype.QueryResult
	SchemaResult     = apptype.SchemaResult
	ConnectionStatus = apptype.ConnectionStatus
	Node             = apptype.Node
	Relationship     = apptype.Relationship
	PathSegment      = apptype.PathSegment
)

// Errors callers can match with errors.Is.
var (
	ErrNotConnected          = database.ErrNotConnected
	ErrBackendUnavailable    = database.ErrBackendUnavailable
	ErrUnsafeQuery           = database.ErrUnsafeQuery
	ErrUnsupportedQueryShape = database.ErrUnsupportedQueryShape
	ErrSchemaUnavailable     = database.ErrSchemaUnavailable
)

// Service provides a library-first API for graph queries.
type Service struct {
	db *database.DBManager
}

// NewService constructs a Service and attempts both connections once.
// Unreachable backends are not an error; they are retried on first use.
func NewService(ctx context.Context, cfg *Config) (*Service, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	dm, err := database.NewDBManager(cfg.toInternal())
	if err != nil {
		return nil, err
	}
	dm.Connect(ctx)
	return &Service{db: dm}, nil
}

// Close releases both connections.
func (s *Service) Close(ctx context.Context) error { return s.db.Shutdown(ctx) }

// RunCypher executes a Cypher query.
func (s *Service) RunCypher(ctx context.Context, query string, params map[string]any) (*QueryResult, error) {
	return s.db.RunCypher(ctx, query, params)
}

// RunGremlin executes a Gremlin traversal.
func (s *Service) RunGremlin(ctx context.Context, query string, params map[string]any) (*QueryResult, error) {
	return s.db.RunGremlin(ctx, query, params)
}

// Schema returns the graph schema from the first tier that answers.
func (s *Service) Schema(ctx context.Context) (*SchemaResult, error) {
	return s.db.Schema(ctx)
}

// Status reports the current connection state.
func (s *Service) Status() ConnectionStatus { return s.db.Status() }

// ErrorType names the class of an error returned by this package.
func ErrorType(err error) string { return database.ErrorType(err) }
