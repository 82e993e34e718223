package database

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ZanzyTHEbar/mcp-puppygraph-go/internal/metrics"
)

const backendNeo4j = "neo4j"

// Neo4jConn is the Bolt connection used for Cypher queries. It is the only
// mutator of its driver handle and connection state.
type Neo4jConn struct {
	cfg       Neo4jConfig
	timeout   time.Duration
	logger    *slog.Logger
	newDriver driverFactory

	// connectMu serializes Connect; mu guards the fields below it.
	connectMu sync.Mutex
	mu        sync.RWMutex
	driver    neo4j.DriverWithContext
	connected bool
	lastErr   string
}

// NewNeo4jConn returns a disconnected connection. timeout bounds connection
// establishment only.
func NewNeo4jConn(cfg Neo4jConfig, timeout time.Duration, logger *slog.Logger) *Neo4jConn {
	if logger == nil {
		logger = slog.Default()
	}
	return &Neo4jConn{
		cfg:       cfg,
		timeout:   timeout,
		logger:    logger.With("backend", backendNeo4j),
		newDriver: newBoltDriver,
	}
}

type driverFactory func(cfg Neo4jConfig, timeout time.Duration) (neo4j.DriverWithContext, error)

func newBoltDriver(cfg Neo4jConfig, timeout time.Duration) (neo4j.DriverWithContext, error) {
	return neo4j.NewDriverWithContext(cfg.URL,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
		func(conf *neo4j.Config) {
			if timeout > 0 {
				conf.ConnectionAcquisitionTimeout = timeout
				conf.SocketConnectTimeout = timeout
			}
		})
}

// Connect builds a driver and verifies it. Failures are recorded, not
// returned; a caller that finds the connection already live gets true.
func (c *Neo4jConn) Connect(ctx context.Context) bool {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()
	if c.IsConnected() {
		return true
	}

	ctx, span := startSpan(ctx, "neo4j.connect",
		attribute.String("db.system", backendNeo4j),
		attribute.String("server.address", c.cfg.URL))
	done := metrics.TimeOp(backendNeo4j, "connect")
	driver, err := c.open(ctx)
	done(err == nil)
	endSpan(span, err)

	c.mu.Lock()
	old := c.driver
	if err != nil {
		c.driver = nil
		c.connected = false
		c.lastErr = err.Error()
	} else {
		c.driver = driver
		c.connected = true
		c.lastErr = ""
	}
	c.mu.Unlock()
	metrics.Default().SetBackendConnected(backendNeo4j, err == nil)

	if old != nil {
		if cerr := old.Close(ctx); cerr != nil {
			c.logger.Debug("closing stale driver failed", "error", cerr)
		}
	}
	if err != nil {
		c.logger.Warn("neo4j connection failed", "url", c.cfg.URL, "error", err)
		return false
	}
	c.logger.Info("connected to neo4j", "url", c.cfg.URL)
	return true
}

func (c *Neo4jConn) open(ctx context.Context) (neo4j.DriverWithContext, error) {
	driver, err := c.newDriver(c.cfg, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create neo4j driver: %v", ErrConnectFailure, err)
	}
	if err := verify(ctx, driver, c.cfg.Database); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("%w: %v", ErrConnectFailure, err)
	}
	return driver, nil
}

// Verify runs RETURN 1 on a transient session.
func (c *Neo4jConn) Verify(ctx context.Context) error {
	c.mu.RLock()
	driver := c.driver
	c.mu.RUnlock()
	if driver == nil {
		return ErrNotConnected
	}
	return verify(ctx, driver, c.cfg.Database)
}

func verify(ctx context.Context, driver neo4j.DriverWithContext, database string) error {
	session := driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: database})
	defer func() { _ = session.Close(ctx) }()
	result, err := session.Run(ctx, "RETURN 1", nil)
	if err != nil {
		return fmt.Errorf("failed to verify neo4j connection: %w", err)
	}
	if _, err := result.Consume(ctx); err != nil {
		return fmt.Errorf("failed to verify neo4j connection: %w", err)
	}
	return nil
}

// ExecuteQuery runs query on its own session and returns one map per record
// with every field normalized.
func (c *Neo4jConn) ExecuteQuery(ctx context.Context, query string, params map[string]any) (rows []map[string]any, err error) {
	c.mu.RLock()
	driver, connected := c.driver, c.connected
	c.mu.RUnlock()
	if !connected || driver == nil {
		return nil, ErrNotConnected
	}

	ctx, span := startSpan(ctx, "neo4j.query",
		attribute.String("db.system", backendNeo4j),
		attribute.String("db.query.text", query))
	done := metrics.TimeOp(backendNeo4j, "query")
	defer func() {
		done(err == nil)
		endSpan(span, err)
	}()

	session := driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.cfg.Database})
	defer func() { _ = session.Close(ctx) }()

	result, err := session.Run(ctx, query, coerceParams(params))
	if err != nil {
		c.markBroken(driver, err)
		return nil, err
	}
	records, err := result.Collect(ctx)
	if err != nil {
		c.markBroken(driver, err)
		return nil, err
	}

	rows = make([]map[string]any, 0, len(records))
	for _, rec := range records {
		row := make(map[string]any, len(rec.Keys))
		for i, key := range rec.Keys {
			row[key] = Normalize(rec.Values[i])
		}
		rows = append(rows, row)
	}
	span.SetAttributes(attribute.Int("db.response.returned_rows", len(rows)))
	return rows, nil
}

// markBroken flips the connection to disconnected when the driver reports
// lost connectivity, so the next request reconnects.
func (c *Neo4jConn) markBroken(driver neo4j.DriverWithContext, err error) {
	if !neo4j.IsConnectivityError(err) {
		return
	}
	c.mu.Lock()
	if c.driver == driver {
		c.connected = false
		c.lastErr = err.Error()
	}
	c.mu.Unlock()
	metrics.Default().SetBackendConnected(backendNeo4j, false)
	c.logger.Warn("neo4j connectivity lost", "error", err)
}

// Close releases the driver. Closing a closed connection is a no-op.
func (c *Neo4jConn) Close(ctx context.Context) error {
	c.mu.Lock()
	driver := c.driver
	c.driver = nil
	c.connected = false
	c.mu.Unlock()
	metrics.Default().SetBackendConnected(backendNeo4j, false)
	if driver == nil {
		return nil
	}
	if err := driver.Close(ctx); err != nil {
		return fmt.Errorf("failed to close neo4j driver: %w", err)
	}
	return nil
}

func (c *Neo4jConn) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// ConnectionError returns the last recorded connection error, or "".
func (c *Neo4jConn) ConnectionError() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}
