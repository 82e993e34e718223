package database

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ZanzyTHEbar/mcp-puppygraph-go/internal/apptype"
	"github.com/ZanzyTHEbar/mcp-puppygraph-go/internal/metrics"
)

const backendSchemaAPI = "schema_api"

var schemaHTTPClient = &http.Client{}

// FetchSchema GETs the schema document from the PuppyGraph HTTP endpoint
// with basic auth and returns the body verbatim under Schema.
func FetchSchema(ctx context.Context, cfg SchemaAPIConfig) (res *apptype.SchemaResult, err error) {
	ctx, span := startSpan(ctx, "schema_api.fetch", attribute.String("url.full", cfg.URL))
	done := metrics.TimeOp(backendSchemaAPI, "fetch")
	defer func() {
		done(err == nil)
		endSpan(span, err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build schema request: %w", err)
	}
	req.SetBasicAuth(cfg.Username, cfg.Password)
	req.Header.Set("Accept", "application/json")

	resp, err := schemaHTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("schema request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var schema any
	if err := json.NewDecoder(resp.Body).Decode(&schema); err != nil {
		return nil, fmt.Errorf("failed to decode schema response: %w", err)
	}
	return &apptype.SchemaResult{
		Summary:        "Schema retrieved from the PuppyGraph schema API",
		Source:         apptype.SourceSchemaAPI,
		Schema:         schema,
		SchemaEndpoint: cfg.URL,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}, nil
}
