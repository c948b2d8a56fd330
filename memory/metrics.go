package memory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation label values.
const (
	opAcquire = "acquire"
	opResize  = "resize"
	opRelease = "release"
)

// Metrics tracks backend activity. A nil *Metrics records nothing.
type Metrics struct {
	requests  *prometheus.CounterVec
	failures  *prometheus.CounterVec
	bytes     *prometheus.CounterVec
	committed *prometheus.GaugeVec
	selected  *prometheus.GaugeVec
}

// NewMetrics creates the metrics and registers them with r. A nil r
// creates unregistered metrics.
func NewMetrics(r prometheus.Registerer) *Metrics {
	return &Metrics{
		requests: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Name: "vmalloc_memory_requests_total",
			Help: "Total number of successful backend requests.",
		}, []string{"backend", "op"}),
		failures: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Name: "vmalloc_memory_request_failures_total",
			Help: "Total number of failed backend requests.",
		}, []string{"backend", "op"}),
		bytes: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Name: "vmalloc_memory_acquired_bytes_total",
			Help: "Total bytes of address space obtained from a backend.",
		}, []string{"backend"}),
		committed: promauto.With(r).NewGaugeVec(prometheus.GaugeOpts{
			Name: "vmalloc_memory_committed_bytes",
			Help: "Bytes currently held through a backend.",
		}, []string{"backend"}),
		selected: promauto.With(r).NewGaugeVec(prometheus.GaugeOpts{
			Name: "vmalloc_memory_backend_selected",
			Help: "1 for the backend every request is routed to, 0 otherwise.",
		}, []string{"backend"}),
	}
}

func operation(csize, nsize uintptr) string {
	switch {
	case csize == 0:
		return opAcquire
	case nsize == 0:
		return opRelease
	}
	return opResize
}

func (m *Metrics) observe(b *Backend, csize, nsize uintptr, err error) {
	if m == nil {
		return
	}
	op := operation(csize, nsize)
	if err != nil {
		m.failures.WithLabelValues(b.name, op).Inc()
		return
	}
	m.requests.WithLabelValues(b.name, op).Inc()
	if nsize > csize {
		m.bytes.WithLabelValues(b.name).Add(float64(nsize - csize))
	}
	m.committed.WithLabelValues(b.name).Set(float64(b.Committed()))
}

func (m *Metrics) selectBackend(b *Backend) {
	if m == nil {
		return
	}
	m.selected.WithLabelValues(b.name).Set(1)
}
