//go:build !noprom

package metrics

import (
	"fmt"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

type promRecorder struct {
	backendTotal     *prom.CounterVec
	backendSeconds   *prom.HistogramVec
	backendConnected *prom.GaugeVec
	toolTotal        *prom.CounterVec
	toolSeconds      *prom.HistogramVec
}

func (p *promRecorder) IncBackendOpTotal(backend, op string, success bool) {
	p.backendTotal.WithLabelValues(backend, op, fmt.Sprintf("%t", success)).Inc()
}

func (p *promRecorder) ObserveBackendOpSeconds(backend, op string, success bool, seconds float64) {
	p.backendSeconds.WithLabelValues(backend, op, fmt.Sprintf("%t", success)).Observe(seconds)
}

func (p *promRecorder) SetBackendConnected(backend string, connected bool) {
	v := 0.0
	if connected {
		v = 1
	}
	p.backendConnected.WithLabelValues(backend).Set(v)
}

func (p *promRecorder) IncToolTotal(tool string, success bool) {
	p.toolTotal.WithLabelValues(tool, fmt.Sprintf("%t", success)).Inc()
}

func (p *promRecorder) ObserveToolSeconds(tool string, success bool, seconds float64) {
	p.toolSeconds.WithLabelValues(tool, fmt.Sprintf("%t", success)).Observe(seconds)
}

// newPromRecorder builds the collectors and registers them on registry.
func newPromRecorder(registry *prom.Registry) *promRecorder {
	p := &promRecorder{
		backendTotal: prom.NewCounterVec(prom.CounterOpts{
			Name: "backend_ops_total",
			Help: "Total number of graph backend operations",
		}, []string{"backend", "op", "success"}),
		backendSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Name:    "backend_op_seconds",
			Help:    "Graph backend operation duration in seconds",
			Buckets: prom.DefBuckets,
		}, []string{"backend", "op", "success"}),
		backendConnected: prom.NewGaugeVec(prom.GaugeOpts{
			Name: "backend_connected",
			Help: "1 if the backend connection is live, 0 otherwise",
		}, []string{"backend"}),
		toolTotal: prom.NewCounterVec(prom.CounterOpts{
			Name: "tool_calls_total",
			Help: "Total number of tool handler calls",
		}, []string{"tool", "success"}),
		toolSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Name:    "tool_call_seconds",
			Help:    "Tool handler duration in seconds",
			Buckets: prom.DefBuckets,
		}, []string{"tool", "success"}),
	}
	registry.MustRegister(p.backendTotal, p.backendSeconds, p.backendConnected, p.toolTotal, p.toolSeconds)
	return p
}

func enablePrometheus(addr string) error {
	registry := prom.NewRegistry()
	SetRecorder(newPromRecorder(registry))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	go func() { _ = http.ListenAndServe(addr, mux) }()
	return nil
}
