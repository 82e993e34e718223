package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gremlingo "github.com/apache/tinkerpop/gremlin-go/v3/driver"
)

// traversalClient is the part of the Gremlin driver a GremlinConn uses.
type traversalClient interface {
	Submit(ctx context.Context, script string, bindings map[string]any) ([]any, error)
	Close()
}

type gremlinDialer func(cfg GremlinConfig, timeout time.Duration, logger *slog.Logger) (traversalClient, error)

// errGremlinTransport marks failures of the socket or pool rather than of
// one request.
var errGremlinTransport = errors.New("gremlin transport failure")

// Driver error codes scoped to a single request: E0502 carries a non-success
// server status, E04/E07 are serializer failures and E1201 is an oversized
// request. Anything else means the connection itself is unusable.
var requestScopedCodes = []string{"E0502", "E04", "E07", "E1201"}

func classifyGremlinError(err error) error {
	msg := err.Error()
	for _, code := range requestScopedCodes {
		if strings.HasPrefix(msg, code) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", errGremlinTransport, err)
}

// dialGremlin opens a driver client. The "g" alias on every request maps to
// cfg.TraversalSource.
func dialGremlin(cfg GremlinConfig, timeout time.Duration, logger *slog.Logger) (traversalClient, error) {
	client, err := gremlingo.NewClient(cfg.URL, func(s *gremlingo.ClientSettings) {
		s.TraversalSource = cfg.TraversalSource
		s.Logger = driverLogger{logger}
		s.LogVerbosity = gremlingo.Debug
		if timeout > 0 {
			s.ConnectionTimeout = timeout
		}
		if cfg.Username != "" || cfg.Password != "" {
			s.AuthInfo = gremlingo.BasicAuthInfo(cfg.Username, cfg.Password)
		}
	})
	if err != nil {
		return nil, err
	}
	return &driverClient{client: client}, nil
}

type driverClient struct {
	client *gremlingo.Client
}

type submitOutcome struct {
	items []any
	err   error
}

// Submit sends script with bindings and waits for every batch. When ctx ends
// first the request keeps running server side; its results are discarded.
func (d *driverClient) Submit(ctx context.Context, script string, bindings map[string]any) ([]any, error) {
	done := make(chan submitOutcome, 1)
	go func() {
		opts := new(gremlingo.RequestOptionsBuilder)
		if len(bindings) > 0 {
			opts.SetBindings(bindings)
		}
		rs, err := d.client.SubmitWithOptions(script, opts.Create())
		if err != nil {
			done <- submitOutcome{err: classifyGremlinError(err)}
			return
		}
		results, err := rs.All()
		if err != nil {
			done <- submitOutcome{err: classifyGremlinError(err)}
			return
		}
		items := make([]any, len(results))
		for i, r := range results {
			items[i] = r.GetInterface()
		}
		done <- submitOutcome{items: items}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-done:
		return out.items, out.err
	}
}

func (d *driverClient) Close() { d.client.Close() }

// driverLogger routes driver logs into slog; the handler applies the level.
type driverLogger struct {
	logger *slog.Logger
}

func (l driverLogger) Log(v gremlingo.LogVerbosity, args ...interface{}) {
	l.logger.Log(context.Background(), driverLevel(v), fmt.Sprint(args...))
}

func (l driverLogger) Logf(v gremlingo.LogVerbosity, format string, args ...interface{}) {
	l.logger.Log(context.Background(), driverLevel(v), fmt.Sprintf(format, args...))
}

func driverLevel(v gremlingo.LogVerbosity) slog.Level {
	switch v {
	case gremlingo.Debug:
		return slog.LevelDebug
	case gremlingo.Info:
		// the driver reports every socket open and close at info
		return slog.LevelDebug
	case gremlingo.Warning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
