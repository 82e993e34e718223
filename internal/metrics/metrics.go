package metrics

import (
	"os"
	"sync"
	"time"
)

// Package metrics provides a minimal instrumentation interface with a no-op
// default and optional Prometheus-backed implementation enabled via env.

// Recorder defines the metrics surface used across the codebase.
type Recorder interface {
	IncBackendOpTotal(backend, op string, success bool)
	ObserveBackendOpSeconds(backend, op string, success bool, seconds float64)
	SetBackendConnected(backend string, connected bool)
	IncToolTotal(tool string, success bool)
	ObserveToolSeconds(tool string, success bool, seconds float64)
}

// noopRecorder implements Recorder with no-ops.
type noopRecorder struct{}

func (n *noopRecorder) IncBackendOpTotal(string, string, bool)                {}
func (n *noopRecorder) ObserveBackendOpSeconds(string, string, bool, float64) {}
func (n *noopRecorder) SetBackendConnected(string, bool)                      {}
func (n *noopRecorder) IncToolTotal(string, bool)                             {}
func (n *noopRecorder) ObserveToolSeconds(string, bool, float64)              {}

var (
	recMu    sync.RWMutex
	recorder Recorder = &noopRecorder{}
	initOnce sync.Once
)

// Default returns the current recorder.
func Default() Recorder {
	recMu.RLock()
	defer recMu.RUnlock()
	return recorder
}

// SetRecorder swaps the global recorder implementation.
func SetRecorder(r Recorder) {
	recMu.Lock()
	defer recMu.Unlock()
	recorder = r
}

// TimeOp is a helper to time backend operations (connect, query, schema queries).
func TimeOp(backend, op string) func(success bool) {
	start := time.Now()
	return func(success bool) {
		dur := time.Since(start).Seconds()
		Default().IncBackendOpTotal(backend, op, success)
		Default().ObserveBackendOpSeconds(backend, op, success, dur)
	}
}

// TimeTool is a helper to time tool handler operations.
func TimeTool(tool string) func(success bool) {
	start := time.Now()
	return func(success bool) {
		dur := time.Since(start).Seconds()
		Default().IncToolTotal(tool, success)
		Default().ObserveToolSeconds(tool, success, dur)
	}
}

// InitFromEnv enables Prometheus exporter if METRICS_PROMETHEUS=true.
// It also starts a small HTTP server on METRICS_ADDR (default :9090)
// with endpoints: /metrics (prom) and /healthz (200 ok).
// Only the first call has an effect.
func InitFromEnv() {
	initOnce.Do(func() {
		if os.Getenv("METRICS_PROMETHEUS") == "" {
			return
		}
		addr := os.Getenv("METRICS_ADDR")
		if addr == "" {
			addr = ":9090"
		}
		// Try to install prometheus recorder; if it fails, keep noop.
		_ = enablePrometheus(addr)
	})
}

// enablePrometheus is provided by build-tagged files.
