package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/mcp-puppygraph-go/internal/apptype"
	"github.com/ZanzyTHEbar/mcp-puppygraph-go/internal/buildinfo"
	"github.com/ZanzyTHEbar/mcp-puppygraph-go/internal/database"
	"github.com/ZanzyTHEbar/mcp-puppygraph-go/internal/metrics"
	"github.com/modelcontextprotocol/go-sdk/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverName = "mcp-puppygraph-go"

// errEmptyQuery is reported when a query tool is called without a query.
var errEmptyQuery = errors.New("query is required")

// Backend is the query surface the tools are served from. *database.DBManager
// implements it.
type Backend interface {
	RunCypher(ctx context.Context, query string, params map[string]any) (*apptype.QueryResult, error)
	RunGremlin(ctx context.Context, query string, params map[string]any) (*apptype.QueryResult, error)
	Schema(ctx context.Context) (*apptype.SchemaResult, error)
	Status() apptype.ConnectionStatus
	Config() database.Config
}

// MCPServer handles MCP protocol communication
type MCPServer struct {
	server *mcp.Server
	db     Backend
}

// NewMCPServer creates a new MCP server
func NewMCPServer(db Backend) *MCPServer {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: buildinfo.Version,
	}, nil)

	mcpServer := &MCPServer{
		server: server,
		db:     db,
	}

	// initialize metrics from env (no-op if disabled)
	metrics.InitFromEnv()
	mcpServer.setupToolHandlers()
	return mcpServer
}

// setupToolHandlers registers all MCP tools
func (s *MCPServer) setupToolHandlers() {
	cypherInputSchema, err := jsonschema.For[apptype.CypherQueryArgs]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for CypherQueryArgs: %v", err))
	}
	gremlinInputSchema, err := jsonschema.For[apptype.GremlinQueryArgs]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for GremlinQueryArgs: %v", err))
	}
	// Each tool gets its own output schema instance.
	cypherOutputSchema, err := jsonschema.For[apptype.QueryResult]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for QueryResult (cypher): %v", err))
	}
	gremlinOutputSchema, err := jsonschema.For[apptype.QueryResult]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for QueryResult (gremlin): %v", err))
	}
	// Schema and status results carry free-form and nullable fields, so they
	// are returned without an output schema.
	schemaInputSchema, err := jsonschema.For[apptype.SchemaArgs]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for SchemaArgs: %v", err))
	}
	statusInputSchema, err := jsonschema.For[apptype.StatusArgs]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for StatusArgs: %v", err))
	}
	healthInputSchema, err := jsonschema.For[apptype.HealthArgs]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for HealthArgs: %v", err))
	}
	healthOutputSchema, err := jsonschema.For[apptype.HealthResult]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for HealthResult: %v", err))
	}

	cypherAnnotations := mcp.ToolAnnotations{
		Title: "Cypher Query",
	}
	gremlinAnnotations := mcp.ToolAnnotations{
		Title: "Gremlin Query",
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Annotations:  &cypherAnnotations,
		Name:         "puppygraph_cypher_query",
		Title:        "Cypher Query",
		Description:  "Run a Cypher query against PuppyGraph over Bolt. Nodes, relationships and paths are returned as plain JSON.",
		InputSchema:  cypherInputSchema,
		OutputSchema: cypherOutputSchema,
	}, s.handleCypherQuery)

	mcp.AddTool(s.server, &mcp.Tool{
		Annotations:  &gremlinAnnotations,
		Name:         "puppygraph_gremlin_query",
		Title:        "Gremlin Query",
		Description:  "Run a Gremlin traversal against PuppyGraph. The traversal must start with g. and use read-only steps; closures are rejected.",
		InputSchema:  gremlinInputSchema,
		OutputSchema: gremlinOutputSchema,
	}, s.handleGremlinQuery)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "puppygraph_schema",
		Title:       "Graph Schema",
		Description: "Describe the graph schema. Uses the PuppyGraph schema API, falling back to Neo4j counts and then Gremlin label counts.",
		InputSchema: schemaInputSchema,
	}, s.handleSchema)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "puppygraph_connection_status",
		Title:       "Connection Status",
		Description: "Report whether the Neo4j and Gremlin connections are live and the last connection errors.",
		InputSchema: statusInputSchema,
	}, s.handleStatus)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "health_check",
		Title:        "Health Check",
		Description:  "Returns server and configuration information.",
		InputSchema:  healthInputSchema,
		OutputSchema: healthOutputSchema,
	}, s.handleHealth)
}

// queryToolResult renders a query outcome. Failures are reported in-band
// with IsError set so the client sees the backend message and its class.
func queryToolResult(res *apptype.QueryResult, err error) *mcp.CallToolResultFor[apptype.QueryResult] {
	if err != nil {
		failed := apptype.QueryResult{
			Data: []any{},
			Metadata: apptype.QueryMetadata{
				Error:     err.Error(),
				ErrorType: database.ErrorType(err),
			},
		}
		return &mcp.CallToolResultFor[apptype.QueryResult]{
			IsError:           true,
			Content:           []mcp.Content{&mcp.TextContent{Text: jsonText(failed)}},
			StructuredContent: failed,
		}
	}
	return &mcp.CallToolResultFor[apptype.QueryResult]{
		Content:           []mcp.Content{&mcp.TextContent{Text: jsonText(res)}},
		StructuredContent: *res,
	}
}

func jsonText(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("failed to encode result: %v", err)
	}
	return string(b)
}

// handleCypherQuery handles the puppygraph_cypher_query tool call
func (s *MCPServer) handleCypherQuery(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.CypherQueryArgs],
) (*mcp.CallToolResultFor[apptype.QueryResult], error) {
	done := metrics.TimeTool("puppygraph_cypher_query")
	var success bool
	defer func() { done(success) }()
	query := strings.TrimSpace(params.Arguments.Query)
	if query == "" {
		return queryToolResult(nil, errEmptyQuery), nil
	}
	res, err := s.db.RunCypher(ctx, query, params.Arguments.Parameters)
	success = err == nil
	return queryToolResult(res, err), nil
}

// handleGremlinQuery handles the puppygraph_gremlin_query tool call
func (s *MCPServer) handleGremlinQuery(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.GremlinQueryArgs],
) (*mcp.CallToolResultFor[apptype.QueryResult], error) {
	done := metrics.TimeTool("puppygraph_gremlin_query")
	var success bool
	defer func() { done(success) }()
	query := strings.TrimSpace(params.Arguments.Query)
	if query == "" {
		return queryToolResult(nil, errEmptyQuery), nil
	}
	res, err := s.db.RunGremlin(ctx, query, params.Arguments.Parameters)
	success = err == nil
	return queryToolResult(res, err), nil
}

// handleSchema handles the puppygraph_schema tool call
func (s *MCPServer) handleSchema(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.SchemaArgs],
) (*mcp.CallToolResultFor[any], error) {
	done := metrics.TimeTool("puppygraph_schema")
	var success bool
	defer func() { done(success) }()
	res, err := s.db.Schema(ctx)
	if err != nil {
		return nil, fmt.Errorf("schema lookup failed: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[any]{
		Content:           []mcp.Content{&mcp.TextContent{Text: jsonText(res)}},
		StructuredContent: res,
	}, nil
}

// handleStatus handles the puppygraph_connection_status tool call
func (s *MCPServer) handleStatus(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.StatusArgs],
) (*mcp.CallToolResultFor[any], error) {
	done := metrics.TimeTool("puppygraph_connection_status")
	defer func() { done(true) }()
	st := s.db.Status()
	return &mcp.CallToolResultFor[any]{
		Content:           []mcp.Content{&mcp.TextContent{Text: jsonText(st)}},
		StructuredContent: st,
	}, nil
}

// handleHealth returns basic server health information
func (s *MCPServer) handleHealth(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.HealthArgs],
) (*mcp.CallToolResultFor[apptype.HealthResult], error) {
	done := metrics.TimeTool("health_check")
	defer func() { done(true) }()
	cfg := s.db.Config()
	s.reportConnections()
	res := &apptype.HealthResult{
		Name:            serverName,
		Version:         buildinfo.Version,
		Revision:        buildinfo.Revision,
		BuildDate:       buildinfo.BuildDate,
		Neo4jURL:        cfg.Neo4j.URL,
		GremlinURL:      cfg.Gremlin.URL,
		SchemaURL:       cfg.SchemaAPI.URL,
		TraversalSource: cfg.Gremlin.TraversalSource,
	}
	return &mcp.CallToolResultFor[apptype.HealthResult]{
		Content:           []mcp.Content{&mcp.TextContent{Text: "ok"}},
		StructuredContent: *res,
	}, nil
}

// reportConnections publishes the connection gauges.
func (s *MCPServer) reportConnections() {
	st := s.db.Status()
	metrics.Default().SetBackendConnected("neo4j", st.Neo4jConnected)
	metrics.Default().SetBackendConnected("gremlin", st.GremlinConnected)
}

func (s *MCPServer) reportConnectionsEvery(ctx context.Context, d time.Duration) {
	ticker := time.NewTicker(d)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.reportConnections()
			}
		}
	}()
}

// Run starts the MCP server with stdio transport
func (s *MCPServer) Run(ctx context.Context) error {
	s.reportConnectionsEvery(ctx, 5*time.Second)
	transport := mcp.NewStdioTransport()
	return s.server.Run(ctx, transport)
}

// RunSSE starts the MCP server over SSE at the given address and endpoint
func (s *MCPServer) RunSSE(ctx context.Context, addr string, endpoint string) error {
	s.reportConnectionsEvery(ctx, 5*time.Second)
	handler := mcp.NewSSEHandler(func(r *http.Request) *mcp.Server { return s.server })
	mux := http.NewServeMux()
	mux.Handle(endpoint, handler)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 0)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("SSE MCP server listening on %s%s", addr, endpoint)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
