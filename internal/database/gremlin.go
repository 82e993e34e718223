package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ZanzyTHEbar/mcp-puppygraph-go/internal/apptype"
	"github.com/ZanzyTHEbar/mcp-puppygraph-go/internal/metrics"
)

const (
	backendGremlin = "gremlin"

	gremlinPing = "g.V().limit(1).count()"
	graphType   = "PuppyGraph SQL-to-Graph Bridge"
)

// GremlinConn submits traversal scripts to a Gremlin Server through the
// TinkerPop driver. It is the only mutator of its client and state.
type GremlinConn struct {
	cfg     GremlinConfig
	timeout time.Duration
	logger  *slog.Logger
	dial    gremlinDialer

	connectMu sync.Mutex
	mu        sync.RWMutex
	client    traversalClient
	connected bool
	lastErr   string
}

// NewGremlinConn returns a disconnected connection.
func NewGremlinConn(cfg GremlinConfig, timeout time.Duration, logger *slog.Logger) *GremlinConn {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TraversalSource == "" {
		cfg.TraversalSource = "g"
	}
	return &GremlinConn{
		cfg:     cfg,
		timeout: timeout,
		logger:  logger.With("backend", backendGremlin),
		dial:    dialGremlin,
	}
}

// Connect dials the server and runs a count query. Failures are recorded,
// not returned.
func (c *GremlinConn) Connect(ctx context.Context) bool {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()
	if c.IsConnected() {
		return true
	}
	if u, err := url.Parse(c.cfg.URL); err == nil && u.Scheme != "ws" && u.Scheme != "wss" {
		c.logger.Warn("gremlin url does not use a websocket scheme", "url", c.cfg.URL)
	}

	ctx, span := startSpan(ctx, "gremlin.connect",
		attribute.String("db.system", backendGremlin),
		attribute.String("server.address", c.cfg.URL))
	done := metrics.TimeOp(backendGremlin, "connect")
	client, err := c.open(ctx)
	done(err == nil)
	endSpan(span, err)

	c.mu.Lock()
	old := c.client
	if err != nil {
		c.client = nil
		c.connected = false
		c.lastErr = err.Error()
	} else {
		c.client = client
		c.connected = true
		c.lastErr = ""
	}
	c.mu.Unlock()
	metrics.Default().SetBackendConnected(backendGremlin, err == nil)

	if old != nil {
		old.Close()
	}
	if err != nil {
		c.logger.Warn("gremlin connection failed", "url", c.cfg.URL, "error", err)
		return false
	}
	c.logger.Info("connected to gremlin server", "url", c.cfg.URL, "traversal_source", c.cfg.TraversalSource)
	return true
}

func (c *GremlinConn) open(ctx context.Context) (traversalClient, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	client, err := c.dial(c.cfg, c.timeout, c.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectFailure, err)
	}
	if _, err := client.Submit(ctx, gremlinPing, nil); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: gremlin ping failed: %v", ErrConnectFailure, err)
	}
	return client, nil
}

// ValidateTraversal applies the shape check, the denylist and the step
// grammar, in that order. It never touches the backend.
func ValidateTraversal(script string, params map[string]any) error {
	trimmed := strings.TrimSpace(script)
	if !strings.HasPrefix(trimmed, "g.") {
		return fmt.Errorf("%w: traversal must start with g.", ErrUnsupportedQueryShape)
	}
	if IsUnsafe(trimmed) {
		return fmt.Errorf("%w: script contains a denied token", ErrUnsafeQuery)
	}
	return checkTraversal(trimmed, params)
}

// ExecuteQuery validates and submits script with params as bindings. Every
// result item is normalized.
func (c *GremlinConn) ExecuteQuery(ctx context.Context, script string, params map[string]any) (items []any, err error) {
	c.mu.RLock()
	client, connected := c.client, c.connected
	c.mu.RUnlock()
	if !connected || client == nil {
		return nil, ErrNotConnected
	}
	if err := ValidateTraversal(script, params); err != nil {
		return nil, err
	}

	ctx, span := startSpan(ctx, "gremlin.query",
		attribute.String("db.system", backendGremlin),
		attribute.String("db.query.text", script))
	done := metrics.TimeOp(backendGremlin, "query")
	defer func() {
		done(err == nil)
		endSpan(span, err)
	}()

	raw, err := c.submit(ctx, client, strings.TrimSpace(script), coerceParams(params))
	if err != nil {
		return nil, err
	}
	items = make([]any, len(raw))
	for i, v := range raw {
		items[i] = Normalize(v)
	}
	span.SetAttributes(attribute.Int("db.response.returned_rows", len(items)))
	return items, nil
}

func (c *GremlinConn) submit(ctx context.Context, client traversalClient, script string, bindings map[string]any) ([]any, error) {
	res, err := client.Submit(ctx, script, bindings)
	if err != nil && errors.Is(err, errGremlinTransport) {
		// the next request reconnects
		c.mu.Lock()
		if c.client == client {
			c.connected = false
			c.lastErr = err.Error()
		}
		c.mu.Unlock()
		metrics.Default().SetBackendConnected(backendGremlin, false)
		c.logger.Warn("gremlin connection lost", "error", err)
	}
	return res, err
}

// SchemaData issues the four structure queries and assembles a schema result.
func (c *GremlinConn) SchemaData(ctx context.Context) (res *apptype.SchemaResult, err error) {
	c.mu.RLock()
	client, connected := c.client, c.connected
	c.mu.RUnlock()
	if !connected || client == nil {
		return nil, ErrNotConnected
	}

	ctx, span := startSpan(ctx, "gremlin.schema", attribute.String("db.system", backendGremlin))
	done := metrics.TimeOp(backendGremlin, "schema")
	defer func() {
		done(err == nil)
		endSpan(span, err)
	}()

	count := func(script string) (int64, error) {
		out, err := c.submit(ctx, client, script, nil)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", script, err)
		}
		if len(out) == 0 {
			return 0, nil
		}
		n, ok := Normalize(out[0]).(int64)
		if !ok {
			return 0, fmt.Errorf("%s: unexpected result %T", script, out[0])
		}
		return n, nil
	}
	groups := func(script string) (map[string]int64, error) {
		out, err := c.submit(ctx, client, script, nil)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", script, err)
		}
		counts := make(map[string]int64)
		for _, item := range out {
			m, ok := Normalize(item).(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s: unexpected result %T", script, item)
			}
			for label, v := range m {
				if n, ok := v.(int64); ok {
					counts[label] = n
				}
			}
		}
		return counts, nil
	}

	vertices, err := count("g.V().count()")
	if err != nil {
		return nil, err
	}
	edges, err := count("g.E().count()")
	if err != nil {
		return nil, err
	}
	vertexLabels, err := groups("g.V().groupCount().by(label)")
	if err != nil {
		return nil, err
	}
	edgeLabels, err := groups("g.E().groupCount().by(label)")
	if err != nil {
		return nil, err
	}

	return &apptype.SchemaResult{
		Summary: fmt.Sprintf("%d vertices across %d labels, %d edges across %d labels",
			vertices, len(vertexLabels), edges, len(edgeLabels)),
		Source:             apptype.SourceGremlin,
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
		TotalNodes:         &vertices,
		TotalRelationships: &edges,
		NodeLabels:         vertexLabels,
		RelationshipTypes:  edgeLabels,
		GraphType:          graphType,
	}, nil
}

// Close releases the client. The driver logs its own close errors, so Close
// always returns nil.
func (c *GremlinConn) Close(context.Context) error {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.connected = false
	c.mu.Unlock()
	metrics.Default().SetBackendConnected(backendGremlin, false)
	if client != nil {
		client.Close()
		c.logger.Debug("gremlin client closed")
	}
	return nil
}

func (c *GremlinConn) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// ConnectionError returns the last recorded connection error, or "".
func (c *GremlinConn) ConnectionError() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}
