package database

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/mcp-puppygraph-go/internal/apptype"
)

// fakeState is the connection bookkeeping shared by both fakes.
type fakeState struct {
	mu        sync.Mutex
	connected bool
	lastErr   string

	// connectOK decides the outcome of Connect; connectErr is recorded on failure.
	connectOK  bool
	connectErr string
	gate       chan struct{}

	connects atomic.Int32
	closes   atomic.Int32
	queries  atomic.Int32
	closeErr error
}

// Connect mirrors the real connections: a live connection answers true
// without dialing, so only real attempts are counted.
func (f *fakeState) Connect(context.Context) bool {
	if f.IsConnected() {
		return true
	}
	f.connects.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = f.connectOK
	if f.connectOK {
		f.lastErr = ""
	} else {
		f.lastErr = f.connectErr
	}
	return f.connectOK
}

func (f *fakeState) Close(context.Context) error {
	f.closes.Add(1)
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	return f.closeErr
}

func (f *fakeState) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeState) ConnectionError() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

type fakeCypher struct {
	fakeState
	rows []map[string]any
	err  error
}

func (f *fakeCypher) ExecuteQuery(context.Context, string, map[string]any) ([]map[string]any, error) {
	f.queries.Add(1)
	return f.rows, f.err
}

type fakeTraversal struct {
	fakeState
	items     []any
	err       error
	schema    *apptype.SchemaResult
	schemaErr error
}

func (f *fakeTraversal) ExecuteQuery(context.Context, string, map[string]any) ([]any, error) {
	f.queries.Add(1)
	return f.items, f.err
}

func (f *fakeTraversal) SchemaData(context.Context) (*apptype.SchemaResult, error) {
	f.queries.Add(1)
	return f.schema, f.schemaErr
}

func schemaOK(_ context.Context, cfg SchemaAPIConfig) (*apptype.SchemaResult, error) {
	return &apptype.SchemaResult{Source: apptype.SourceSchemaAPI, Schema: map[string]any{"ok": true}, SchemaEndpoint: cfg.URL}, nil
}

func schemaDown(context.Context, SchemaAPIConfig) (*apptype.SchemaResult, error) {
	return nil, &HTTPError{StatusCode: 503, Status: "503 Service Unavailable"}
}

func newTestManager(n *fakeCypher, g *fakeTraversal, fetch schemaFetcher) *DBManager {
	return newDBManager(*DefaultConfig(), n, g, fetch)
}

func TestRunCypher_RowCountMatchesData(t *testing.T) {
	n := &fakeCypher{fakeState: fakeState{connectOK: true}, rows: []map[string]any{{"n": int64(1)}, {"n": int64(2)}}}
	m := newTestManager(n, &fakeTraversal{}, schemaOK)

	res, err := m.RunCypher(context.Background(), "MATCH (n) RETURN n", nil)
	require.NoError(t, err)
	assert.Equal(t, len(res.Data), res.Metadata.RowCount)
	assert.Equal(t, 2, res.Metadata.RowCount)
	assert.Empty(t, res.Metadata.Error)
	assert.Equal(t, int32(1), n.connects.Load())

	n.rows = nil
	res, err = m.RunCypher(context.Background(), "MATCH (n) RETURN n", nil)
	require.NoError(t, err)
	assert.NotNil(t, res.Data)
	assert.Equal(t, 0, res.Metadata.RowCount)
	assert.Equal(t, int32(1), n.connects.Load(), "live connection is not redialed")
}

func TestRunCypher_NotConnectedCarriesAggregatedError(t *testing.T) {
	n := &fakeCypher{fakeState: fakeState{connectErr: "neo4j refused"}}
	g := &fakeTraversal{fakeState: fakeState{connectErr: "gremlin refused"}}
	m := newTestManager(n, g, schemaOK)
	m.Connect(context.Background())

	_, err := m.RunCypher(context.Background(), "RETURN 1", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotConnected))
	assert.True(t, errors.Is(err, ErrBackendUnavailable))
	assert.Contains(t, err.Error(), "Neo4j: neo4j refused | Gremlin: gremlin refused")
	assert.Equal(t, "BackendUnavailable", ErrorType(err))
	assert.Equal(t, int32(2), n.connects.Load(), "one eager attempt plus one per request")
	assert.Equal(t, int32(0), n.queries.Load())
}

func TestRunCypher_QueryErrorIsLanguageTagged(t *testing.T) {
	backendErr := errors.New("Invalid input 'MATC'")
	n := &fakeCypher{fakeState: fakeState{connectOK: true}, err: backendErr}
	m := newTestManager(n, &fakeTraversal{}, schemaOK)

	_, err := m.RunCypher(context.Background(), "MATC (n)", nil)
	var qerr *QueryError
	require.True(t, errors.As(err, &qerr))
	assert.Equal(t, "cypher", qerr.Language)
	assert.True(t, errors.Is(err, backendErr))
	assert.Contains(t, err.Error(), "Invalid input 'MATC'")
	assert.Equal(t, "QueryError", ErrorType(err))
}

func TestRunGremlin_UnsafeRejectedBeforeBackend(t *testing.T) {
	g := &fakeTraversal{fakeState: fakeState{connectOK: true}}
	m := newTestManager(&fakeCypher{}, g, schemaOK)

	_, err := m.RunGremlin(context.Background(), "g.V().count(); System.exit(1)", nil)
	assert.True(t, errors.Is(err, ErrUnsafeQuery))
	assert.Equal(t, "UnsafeQuery", ErrorType(err))
	assert.Equal(t, int32(0), g.connects.Load())
	assert.Equal(t, int32(0), g.queries.Load())
}

func TestRunGremlin_UnsupportedShape(t *testing.T) {
	g := &fakeTraversal{fakeState: fakeState{connectOK: true}}
	m := newTestManager(&fakeCypher{}, g, schemaOK)

	_, err := m.RunGremlin(context.Background(), "V().count()", nil)
	assert.True(t, errors.Is(err, ErrUnsupportedQueryShape))
	assert.Equal(t, "UnsupportedQueryShape", ErrorType(err))
	assert.Equal(t, int32(0), g.queries.Load())
}

func TestRunGremlin_Success(t *testing.T) {
	g := &fakeTraversal{fakeState: fakeState{connectOK: true}, items: []any{int64(6)}}
	m := newTestManager(&fakeCypher{}, g, schemaOK)

	res, err := m.RunGremlin(context.Background(), "g.V().count()", nil)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(6)}, res.Data)
	assert.Equal(t, 1, res.Metadata.RowCount)
}

func TestBackendsFailIndependently(t *testing.T) {
	n := &fakeCypher{fakeState: fakeState{connectErr: "down"}}
	g := &fakeTraversal{fakeState: fakeState{connectOK: true}, items: []any{"x"}}
	m := newTestManager(n, g, schemaOK)

	_, err := m.RunCypher(context.Background(), "RETURN 1", nil)
	require.Error(t, err)
	res, err := m.RunGremlin(context.Background(), "g.V().values('name')", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Metadata.RowCount)
}

func TestSchema_Tiers(t *testing.T) {
	ctx := context.Background()

	t.Run("schema api", func(t *testing.T) {
		n := &fakeCypher{fakeState: fakeState{connectOK: true}}
		m := newTestManager(n, &fakeTraversal{}, schemaOK)
		res, err := m.Schema(ctx)
		require.NoError(t, err)
		assert.Equal(t, apptype.SourceSchemaAPI, res.Source)
		assert.Equal(t, int32(0), n.connects.Load())
	})

	t.Run("neo4j", func(t *testing.T) {
		n := &fakeCypher{fakeState: fakeState{connectOK: true}, rows: []map[string]any{{"nodeCount": int64(42)}}}
		g := &fakeTraversal{fakeState: fakeState{connectOK: true}}
		m := newTestManager(n, g, schemaDown)
		res, err := m.Schema(ctx)
		require.NoError(t, err)
		assert.Equal(t, apptype.SourceNeo4j, res.Source)
		require.NotNil(t, res.NodeCount)
		assert.Equal(t, int64(42), *res.NodeCount)
		assert.NotEmpty(t, res.Timestamp)
		assert.Equal(t, int32(0), g.queries.Load())
	})

	t.Run("gremlin", func(t *testing.T) {
		n := &fakeCypher{fakeState: fakeState{connectErr: "neo4j down"}}
		g := &fakeTraversal{
			fakeState: fakeState{connectOK: true},
			schema:    &apptype.SchemaResult{Source: apptype.SourceGremlin, GraphType: graphType},
		}
		m := newTestManager(n, g, schemaDown)
		res, err := m.Schema(ctx)
		require.NoError(t, err)
		assert.Equal(t, apptype.SourceGremlin, res.Source)
	})

	t.Run("neo4j query failure falls through", func(t *testing.T) {
		n := &fakeCypher{fakeState: fakeState{connectOK: true}, err: errors.New("boom")}
		g := &fakeTraversal{
			fakeState: fakeState{connectOK: true},
			schema:    &apptype.SchemaResult{Source: apptype.SourceGremlin},
		}
		m := newTestManager(n, g, schemaDown)
		res, err := m.Schema(ctx)
		require.NoError(t, err)
		assert.Equal(t, apptype.SourceGremlin, res.Source)
	})

	t.Run("all down", func(t *testing.T) {
		n := &fakeCypher{fakeState: fakeState{connectErr: "neo4j down"}}
		g := &fakeTraversal{fakeState: fakeState{connectErr: "gremlin down"}}
		m := newTestManager(n, g, schemaDown)
		_, err := m.Schema(ctx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrSchemaUnavailable))
		assert.Equal(t, "SchemaUnavailable", ErrorType(err))
		assert.Contains(t, err.Error(), "Neo4j: neo4j down | Gremlin: gremlin down")
		assert.Contains(t, err.Error(), "503")
	})
}

func TestStatus_Projection(t *testing.T) {
	n := &fakeCypher{fakeState: fakeState{connectOK: true}}
	g := &fakeTraversal{fakeState: fakeState{connectErr: "X"}}
	m := newTestManager(n, g, schemaOK)

	st := m.Status()
	assert.False(t, st.Connected)
	assert.Nil(t, st.ConnectionError)
	assert.Equal(t, int32(0), n.connects.Load()+g.connects.Load(), "status never dials")

	m.Connect(context.Background())
	st = m.Status()
	assert.True(t, st.Connected)
	assert.True(t, st.Neo4jConnected)
	assert.False(t, st.GremlinConnected)
	require.NotNil(t, st.ConnectionError)
	assert.Contains(t, *st.ConnectionError, "X")
	assert.False(t, st.FallbackMode)
}

func TestAggregatedErrorFormats(t *testing.T) {
	n := &fakeCypher{}
	g := &fakeTraversal{}
	m := newTestManager(n, g, schemaOK)

	assert.Equal(t, "", m.aggregatedError())
	n.lastErr = "e1"
	assert.Equal(t, "e1", m.aggregatedError())
	g.lastErr = "e2"
	assert.Equal(t, "Neo4j: e1 | Gremlin: e2", m.aggregatedError())
	n.lastErr = ""
	assert.Equal(t, "e2", m.aggregatedError())
}

func TestReconnectsAreCoalesced(t *testing.T) {
	gate := make(chan struct{})
	n := &fakeCypher{fakeState: fakeState{connectOK: true, gate: gate}}
	m := newTestManager(n, &fakeTraversal{}, schemaOK)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.RunCypher(context.Background(), "RETURN 1", nil)
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool { return n.connects.Load() == 1 }, time.Second, 5*time.Millisecond)
	close(gate)
	wg.Wait()
	assert.Equal(t, int32(1), n.connects.Load())
	assert.Equal(t, int32(8), n.queries.Load())
}

func TestShutdown_ClosesBothAndIsRepeatable(t *testing.T) {
	closeErr := errors.New("close failed")
	n := &fakeCypher{fakeState: fakeState{connectOK: true, closeErr: closeErr}}
	g := &fakeTraversal{fakeState: fakeState{connectOK: true}}
	m := newTestManager(n, g, schemaOK)
	m.Connect(context.Background())

	err := m.Shutdown(context.Background())
	assert.ErrorIs(t, err, closeErr)
	assert.Equal(t, int32(1), g.closes.Load(), "a failing close does not skip the other")
	assert.False(t, m.Status().Connected)

	n.closeErr = nil
	assert.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, n.IsConnected())
	assert.False(t, g.IsConnected())
}

func TestNewDBManager(t *testing.T) {
	_, err := NewDBManager(nil)
	assert.Error(t, err)

	_, err = NewDBManager(&Config{})
	assert.Error(t, err)

	cfg := DefaultConfig()
	m, err := NewDBManager(cfg)
	require.NoError(t, err)
	assert.False(t, m.Status().Connected)
	redacted := m.Config()
	assert.Equal(t, "****", redacted.Neo4j.Password)
	assert.Equal(t, "****", redacted.Gremlin.Password)
	assert.Equal(t, "****", redacted.SchemaAPI.Password)
	assert.Equal(t, "puppygraph123", cfg.Neo4j.Password, "original is untouched")
	assert.NoError(t, m.Shutdown(context.Background()))
}
