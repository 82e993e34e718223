package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/ZanzyTHEbar/mcp-puppygraph-go/internal/apptype"
	"github.com/ZanzyTHEbar/mcp-puppygraph-go/internal/database"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu          sync.Mutex
	cypherCalls []string
	cypherRes   *apptype.QueryResult
	cypherErr   error
	gremlinRes  *apptype.QueryResult
	gremlinErr  error
	schema      *apptype.SchemaResult
	schemaErr   error
	status      apptype.ConnectionStatus
	cfg         database.Config
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		cypherRes:  apptype.NewQueryResult(nil, 0),
		gremlinRes: apptype.NewQueryResult(nil, 0),
		cfg:        database.DefaultConfig().Redacted(),
	}
}

func (f *fakeBackend) RunCypher(_ context.Context, query string, _ map[string]any) (*apptype.QueryResult, error) {
	f.mu.Lock()
	f.cypherCalls = append(f.cypherCalls, query)
	f.mu.Unlock()
	return f.cypherRes, f.cypherErr
}

func (f *fakeBackend) RunGremlin(context.Context, string, map[string]any) (*apptype.QueryResult, error) {
	return f.gremlinRes, f.gremlinErr
}

func (f *fakeBackend) Schema(context.Context) (*apptype.SchemaResult, error) {
	return f.schema, f.schemaErr
}

func (f *fakeBackend) Status() apptype.ConnectionStatus { return f.status }

func (f *fakeBackend) Config() database.Config { return f.cfg }

func TestHandleCypherQuery_Success(t *testing.T) {
	backend := newFakeBackend()
	backend.cypherRes = apptype.NewQueryResult([]any{map[string]any{"n": int64(1)}}, 3)
	s := NewMCPServer(backend)

	res, err := s.handleCypherQuery(context.Background(), nil, &mcp.CallToolParamsFor[apptype.CypherQueryArgs]{
		Arguments: apptype.CypherQueryArgs{Query: "  MATCH (n) RETURN n  "},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, 1, res.StructuredContent.Metadata.RowCount)
	assert.Equal(t, int64(3), res.StructuredContent.Metadata.ExecutionTimeMs)
	assert.Equal(t, []string{"MATCH (n) RETURN n"}, backend.cypherCalls)

	var decoded apptype.QueryResult
	text := res.Content[0].(*mcp.TextContent).Text
	require.NoError(t, json.Unmarshal([]byte(text), &decoded))
	assert.Equal(t, 1, decoded.Metadata.RowCount)
}

func TestHandleCypherQuery_BackendUnavailable(t *testing.T) {
	backend := newFakeBackend()
	backend.cypherErr = &database.UnavailableError{Backend: "Neo4j", Cause: "Neo4j: refused | Gremlin: refused"}
	s := NewMCPServer(backend)

	res, err := s.handleCypherQuery(context.Background(), nil, &mcp.CallToolParamsFor[apptype.CypherQueryArgs]{
		Arguments: apptype.CypherQueryArgs{Query: "RETURN 1"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	md := res.StructuredContent.Metadata
	assert.Equal(t, "BackendUnavailable", md.ErrorType)
	assert.Contains(t, md.Error, "Neo4j: refused | Gremlin: refused")
	assert.Equal(t, 0, md.RowCount)
	assert.NotNil(t, res.StructuredContent.Data)
}

func TestHandleQuery_EmptyQueryNeverReachesBackend(t *testing.T) {
	backend := newFakeBackend()
	s := NewMCPServer(backend)

	res, err := s.handleCypherQuery(context.Background(), nil, &mcp.CallToolParamsFor[apptype.CypherQueryArgs]{
		Arguments: apptype.CypherQueryArgs{Query: "   "},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Empty(t, backend.cypherCalls)

	res, err = s.handleGremlinQuery(context.Background(), nil, &mcp.CallToolParamsFor[apptype.GremlinQueryArgs]{})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, errEmptyQuery.Error(), res.StructuredContent.Metadata.Error)
}

func TestHandleGremlinQuery_Classifies(t *testing.T) {
	backend := newFakeBackend()
	backend.gremlinErr = &database.QueryError{Language: "gremlin", Err: errors.New("No such property: x")}
	s := NewMCPServer(backend)

	res, err := s.handleGremlinQuery(context.Background(), nil, &mcp.CallToolParamsFor[apptype.GremlinQueryArgs]{
		Arguments: apptype.GremlinQueryArgs{Query: "g.V().values('x')"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "QueryError", res.StructuredContent.Metadata.ErrorType)
	assert.Contains(t, res.StructuredContent.Metadata.Error, "No such property: x")
}

func TestHandleSchema(t *testing.T) {
	backend := newFakeBackend()
	n := int64(12)
	backend.schema = &apptype.SchemaResult{Source: apptype.SourceNeo4j, NodeCount: &n, Timestamp: "2024-01-01T00:00:00Z"}
	s := NewMCPServer(backend)

	res, err := s.handleSchema(context.Background(), nil, &mcp.CallToolParamsFor[apptype.SchemaArgs]{})
	require.NoError(t, err)
	text := res.Content[0].(*mcp.TextContent).Text
	assert.Contains(t, text, `"nodeCount": 12`)
	assert.Contains(t, text, apptype.SourceNeo4j)

	backend.schemaErr = database.ErrSchemaUnavailable
	_, err = s.handleSchema(context.Background(), nil, &mcp.CallToolParamsFor[apptype.SchemaArgs]{})
	assert.ErrorIs(t, err, database.ErrSchemaUnavailable)
}

func TestHandleStatus(t *testing.T) {
	backend := newFakeBackend()
	msg := "Gremlin: X"
	backend.status = apptype.ConnectionStatus{Connected: true, Neo4jConnected: true, ConnectionError: &msg}
	s := NewMCPServer(backend)

	res, err := s.handleStatus(context.Background(), nil, &mcp.CallToolParamsFor[apptype.StatusArgs]{})
	require.NoError(t, err)
	var st apptype.ConnectionStatus
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].(*mcp.TextContent).Text), &st))
	assert.True(t, st.Connected)
	assert.False(t, st.FallbackMode)
	require.NotNil(t, st.ConnectionError)
	assert.Equal(t, "Gremlin: X", *st.ConnectionError)

	backend.status = apptype.ConnectionStatus{}
	res, err = s.handleStatus(context.Background(), nil, &mcp.CallToolParamsFor[apptype.StatusArgs]{})
	require.NoError(t, err)
	assert.Contains(t, res.Content[0].(*mcp.TextContent).Text, `"connectionError": null`)
}

func TestHandleHealth(t *testing.T) {
	backend := newFakeBackend()
	s := NewMCPServer(backend)

	res, err := s.handleHealth(context.Background(), nil, &mcp.CallToolParamsFor[apptype.HealthArgs]{})
	require.NoError(t, err)
	h := res.StructuredContent
	assert.Equal(t, serverName, h.Name)
	assert.Equal(t, "bolt://localhost:7687", h.Neo4jURL)
	assert.Equal(t, "ws://localhost:8182/gremlin", h.GremlinURL)
	assert.Equal(t, "g", h.TraversalSource)
	assert.NotContains(t, res.Content[0].(*mcp.TextContent).Text, "puppygraph123")
}
