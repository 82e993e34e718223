package apptype

// CypherQueryArgs represents the arguments for the puppygraph_cypher_query tool
type CypherQueryArgs struct {
	Query      string         `json:"query" jsonschema:"The Cypher query to execute."`
	Parameters map[string]any `json:"parameters,omitempty" jsonschema:"Query parameters referenced as $name in the query."`
}

// GremlinQueryArgs represents the arguments for the puppygraph_gremlin_query tool
type GremlinQueryArgs struct {
	Query      string         `json:"query" jsonschema:"The Gremlin traversal to execute. Must start with g."`
	Parameters map[string]any `json:"parameters,omitempty" jsonschema:"Bindings referenced by name in the traversal."`
}

// SchemaArgs represents the (empty) arguments for the puppygraph_schema tool
type SchemaArgs struct{}

// StatusArgs represents the (empty) arguments for the puppygraph_connection_status tool
type StatusArgs struct{}

// Health
type HealthArgs struct{}

type HealthResult struct {
	Name            string `json:"name"`
	Version         string `json:"version"`
	Revision        string `json:"revision"`
	BuildDate       string `json:"buildDate"`
	Neo4jURL        string `json:"neo4jUrl"`
	GremlinURL      string `json:"gremlinUrl"`
	SchemaURL       string `json:"schemaUrl"`
	TraversalSource string `json:"traversalSource"`
}
