package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/ZanzyTHEbar/mcp-puppygraph-go/internal/apptype"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type StepResult struct {
	Name      string `json:"name"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

type Report struct {
	SSEURL     string       `json:"sse_url"`
	StartedAt  time.Time    `json:"started_at"`
	DurationMs int64        `json:"duration_ms"`
	Steps      []StepResult `json:"steps"`
	Passed     bool         `json:"passed"`
}

var expectedTools = []string{
	"puppygraph_cypher_query",
	"puppygraph_gremlin_query",
	"puppygraph_schema",
	"puppygraph_connection_status",
	"health_check",
}

func main() {
	sseURL := flag.String("sse-url", "http://localhost:8080/sse", "SSE endpoint URL")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall timeout")
	skipBackends := flag.Bool("skip-backends", false, "Only run steps that do not need a live PuppyGraph")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := mcp.NewClient(&mcp.Implementation{Name: "integration-tester", Version: "dev"}, nil)
	transport := mcp.NewSSEClientTransport(*sseURL, nil)

	start := time.Now()
	report := Report{SSEURL: *sseURL, StartedAt: start}
	steps := make([]StepResult, 0, 16)

	// Connect
	tConn := time.Now()
	connRes := StepResult{Name: "connect"}
	session, err := client.Connect(ctx, transport)
	if err != nil {
		connRes.Success = false
		connRes.Error = err.Error()
		connRes.ElapsedMs = elapsedMsSince(tConn)
		steps = append(steps, connRes)
		report.Steps = steps
		report.DurationMs = elapsedMsSince(start)
		report.Passed = false
		writeReport(report)
		os.Exit(1)
	}
	defer session.Close()
	connRes.Success = true
	connRes.ElapsedMs = elapsedMsSince(tConn)
	steps = append(steps, connRes)

	// Steps that never touch a backend
	steps = append(steps, runListTools(ctx, session))
	steps = append(steps, runTool(ctx, session, "health_check", "health_check", apptype.HealthArgs{}, false, nil))
	steps = append(steps, runTool(ctx, session, "connection_status", "puppygraph_connection_status", apptype.StatusArgs{}, false, nil))
	steps = append(steps, runTool(ctx, session, "gremlin_rejects_unsafe", "puppygraph_gremlin_query",
		apptype.GremlinQueryArgs{Query: "g.V().count(); System.exit(1)"}, true, expectErrorType("UnsafeQuery")))
	steps = append(steps, runTool(ctx, session, "gremlin_rejects_shape", "puppygraph_gremlin_query",
		apptype.GremlinQueryArgs{Query: "V().count()"}, true, expectErrorType("UnsupportedQueryShape")))

	if !*skipBackends {
		steps = append(steps, runTool(ctx, session, "schema", "puppygraph_schema", apptype.SchemaArgs{}, false, nil))
		steps = append(steps, runTool(ctx, session, "cypher_count", "puppygraph_cypher_query",
			apptype.CypherQueryArgs{Query: "MATCH (n) RETURN count(n) AS c"}, false, expectRows(1)))
		steps = append(steps, runTool(ctx, session, "cypher_params", "puppygraph_cypher_query",
			apptype.CypherQueryArgs{Query: "MATCH (n) RETURN n LIMIT $limit", Parameters: map[string]any{"limit": 1}}, false, nil))
		steps = append(steps, runTool(ctx, session, "gremlin_count", "puppygraph_gremlin_query",
			apptype.GremlinQueryArgs{Query: "g.V().count()"}, false, expectRows(1)))
		steps = append(steps, runTool(ctx, session, "gremlin_group_count", "puppygraph_gremlin_query",
			apptype.GremlinQueryArgs{Query: "g.V().groupCount().by(label)"}, false, nil))
	}

	// finalize report
	report.Steps = steps
	report.DurationMs = elapsedMsSince(start)
	report.Passed = true
	for _, s := range steps {
		if !s.Success {
			report.Passed = false
			break
		}
	}
	writeReport(report)

	if !report.Passed {
		os.Exit(1)
	}
}

func writeReport(report Report) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
}

func runListTools(ctx context.Context, session *mcp.ClientSession) StepResult {
	t0 := time.Now()
	res := StepResult{Name: "list_tools"}
	tools, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		res.Error = err.Error()
	} else {
		have := make(map[string]bool, len(tools.Tools))
		for _, tool := range tools.Tools {
			have[tool.Name] = true
		}
		var missing []string
		for _, name := range expectedTools {
			if !have[name] {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			res.Error = "missing tools: " + strings.Join(missing, ", ")
		} else {
			res.Success = true
		}
	}
	res.ElapsedMs = elapsedMsSince(t0)
	return res
}

// runTool calls a tool and checks its IsError flag against wantError. check,
// when set, inspects the decoded JSON text of the first content block.
func runTool(ctx context.Context, session *mcp.ClientSession, step, tool string, args any, wantError bool, check func(apptype.QueryResult) error) StepResult {
	t0 := time.Now()
	res := StepResult{Name: step}
	defer func() { res.ElapsedMs = elapsedMsSince(t0) }()

	raw, _ := json.Marshal(args)
	out, err := session.CallTool(ctx, &mcp.CallToolParams{Name: tool, Arguments: json.RawMessage(raw)})
	if err != nil {
		res.Error = err.Error()
		res.ElapsedMs = elapsedMsSince(t0)
		return res
	}
	text := firstText(out)
	if out.IsError != wantError {
		res.Error = fmt.Sprintf("isError=%t, want %t: %s", out.IsError, wantError, text)
		res.ElapsedMs = elapsedMsSince(t0)
		return res
	}
	if check != nil {
		var qr apptype.QueryResult
		if err := json.Unmarshal([]byte(text), &qr); err != nil {
			res.Error = fmt.Sprintf("decode result: %v", err)
		} else if err := check(qr); err != nil {
			res.Error = err.Error()
		}
		if res.Error != "" {
			res.ElapsedMs = elapsedMsSince(t0)
			return res
		}
	}
	res.Success = true
	res.ElapsedMs = elapsedMsSince(t0)
	return res
}

func firstText(out *mcp.CallToolResult) string {
	for _, c := range out.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func expectErrorType(want string) func(apptype.QueryResult) error {
	return func(qr apptype.QueryResult) error {
		if qr.Metadata.ErrorType != want {
			return fmt.Errorf("error_type=%q, want %q", qr.Metadata.ErrorType, want)
		}
		return nil
	}
}

func expectRows(want int) func(apptype.QueryResult) error {
	return func(qr apptype.QueryResult) error {
		if qr.Metadata.RowCount != want || len(qr.Data) != want {
			return fmt.Errorf("row_count=%d len(data)=%d, want %d", qr.Metadata.RowCount, len(qr.Data), want)
		}
		return nil
	}
}

// elapsedMsSince returns max(1ms, elapsed) to avoid zero durations on fast steps
func elapsedMsSince(t0 time.Time) int64 {
	d := time.Since(t0) / time.Millisecond
	if d <= 0 {
		return 1
	}
	return int64(d)
}
