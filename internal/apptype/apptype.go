package apptype

// QueryResult is the uniform envelope returned for Cypher and Gremlin queries.
// When Metadata.Error is empty, Metadata.RowCount == len(Data).
type QueryResult struct {
	Data     []any         `json:"data"`
	Metadata QueryMetadata `json:"metadata"`
}

// QueryMetadata describes how a query ran.
type QueryMetadata struct {
	ExecutionTimeMs int64  `json:"execution_time_ms"`
	RowCount        int    `json:"row_count"`
	Error           string `json:"error,omitempty"`
	ErrorType       string `json:"error_type,omitempty"`
}

// NewQueryResult builds a successful result; nil data becomes an empty list.
func NewQueryResult(data []any, elapsedMs int64) *QueryResult {
	if data == nil {
		data = []any{}
	}
	return &QueryResult{
		Data: data,
		Metadata: QueryMetadata{
			ExecutionTimeMs: elapsedMs,
			RowCount:        len(data),
		},
	}
}

// Node is a normalized property-graph node.
type Node struct {
	ID         int64          `json:"id"`
	ElementID  string         `json:"elementId,omitempty"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
}

// Relationship is a normalized property-graph relationship.
type Relationship struct {
	ID          int64          `json:"id"`
	ElementID   string         `json:"elementId,omitempty"`
	Type        string         `json:"type"`
	StartNodeID int64          `json:"startNodeId"`
	EndNodeID   int64          `json:"endNodeId"`
	Properties  map[string]any `json:"properties"`
}

// PathSegment is one hop of a normalized path.
type PathSegment struct {
	Start        any `json:"start"`
	Relationship any `json:"relationship"`
	End          any `json:"end"`
}

// Schema sources, in tier order.
const (
	SourceSchemaAPI = "Schema API"
	SourceNeo4j     = "Graph Structure Information via Neo4j"
	SourceGremlin   = "Gremlin Database Queries"
)

// SchemaResult describes the graph structure. Schema is set only by the
// Schema API tier; the count fields only by the database tiers.
type SchemaResult struct {
	Summary            string           `json:"summary"`
	Source             string           `json:"source"`
	Schema             any              `json:"schema,omitempty"`
	SchemaEndpoint     string           `json:"schema_endpoint,omitempty"`
	Timestamp          string           `json:"timestamp"`
	NodeCount          *int64           `json:"nodeCount,omitempty"`
	TotalNodes         *int64           `json:"totalNodes,omitempty"`
	TotalRelationships *int64           `json:"totalRelationships,omitempty"`
	NodeLabels         map[string]int64 `json:"nodeLabels,omitempty"`
	RelationshipTypes  map[string]int64 `json:"relationshipTypes,omitempty"`
	GraphType          string           `json:"graphType,omitempty"`
}

// ConnectionStatus is derived from both connections on every request.
type ConnectionStatus struct {
	Connected        bool    `json:"connected"`
	Neo4jConnected   bool    `json:"neo4jConnected"`
	GremlinConnected bool    `json:"gremlinConnected"`
	ConnectionError  *string `json:"connectionError"`
	FallbackMode     bool    `json:"fallbackMode"`
}
