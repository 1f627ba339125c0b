// Package metrics exposes the fixed set of internal events every router
// component emits (events received/sent/dropped, template rendering
// errors, stream closures, active endpoints) as Prometheus collectors,
// plus a small HTTP server to scrape them.
package metrics

import (
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	// EventsReceivedTotal counts events a node accepted from upstream
	// (a source's own ingestion, or a transform/sink's input edge).
	EventsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_events_received_total",
			Help: "Total number of events received by a node",
		},
		[]string{"node", "kind"},
	)

	EventsReceivedBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_events_received_bytes_total",
			Help: "Total estimated byte size of events received by a node",
		},
		[]string{"node", "kind"},
	)

	// EventsSentTotal counts events a node forwarded downstream (a
	// transform's Emit, or a sink's successful Send).
	EventsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_events_sent_total",
			Help: "Total number of events sent onward by a node",
		},
		[]string{"node", "kind"},
	)

	EventsSentBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_events_sent_bytes_total",
			Help: "Total estimated byte size of events sent onward by a node",
		},
		[]string{"node", "kind"},
	)

	// EventsDroppedTotal counts events a node discarded rather than
	// forwarding: a full DropNewest edge, a throttle limiter rejection,
	// a failed remap condition treated as false, a decode failure.
	EventsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_events_dropped_total",
			Help: "Total number of events dropped by a node",
		},
		[]string{"node", "reason"},
	)

	// TemplateRenderingErrorsTotal counts a template placeholder that
	// failed to resolve against an event (missing field, wrong type).
	TemplateRenderingErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_template_rendering_errors_total",
			Help: "Total number of template rendering errors",
		},
		[]string{"node", "field"},
	)

	// StreamClosedErrorsTotal counts an unexpected upstream/downstream
	// stream closure (a sink's connection dropping mid-batch, a source's
	// input disappearing).
	StreamClosedErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_stream_closed_errors_total",
			Help: "Total number of unexpected stream closures",
		},
		[]string{"node"},
	)

	// EndpointsActive tracks how many downstream endpoints a sink
	// currently considers live (e.g. brokers in a Kafka producer's
	// metadata, hosts behind a load-balanced HTTP sink).
	EndpointsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "router_endpoints_active",
			Help: "Number of currently active downstream endpoints",
		},
		[]string{"node"},
	)

	// QueueDepth/QueueUtilization mirror a node's input Edge: current
	// length and length/capacity, the topology package's own backpressure
	// signal surfaced for scraping.
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "router_queue_depth",
			Help: "Current number of batches queued on a node's input edge",
		},
		[]string{"node"},
	)

	QueueUtilization = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "router_queue_utilization",
			Help: "Current utilization of a node's input edge (0.0 to 1.0)",
		},
		[]string{"node"},
	)

	QueueDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_queue_dropped_total",
			Help: "Total batches dropped from a DropNewest edge because it was full",
		},
		[]string{"node"},
	)

	// ComponentHealth reports whether a running node's goroutine is
	// alive (1) or has exited/been stopped (0).
	ComponentHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "router_component_health",
			Help: "Health status of a topology node (1 = running, 0 = stopped)",
		},
		[]string{"node", "role"},
	)

	ProcessingStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "router_processing_step_duration_seconds",
			Help:    "Time spent inside one node's run loop per batch/event",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"node", "step"},
	)

	SinkSendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "router_sink_send_duration_seconds",
			Help:    "Time spent in a sink's Send call",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"node"},
	)

	ReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_reloads_total",
			Help: "Total topology reloads by outcome",
		},
		[]string{"outcome"}, // success|aborted
	)

	ThrottleDiscardedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_throttle_discarded_total",
			Help: "Total events discarded by a throttle transform's limiter",
		},
		[]string{"node", "key"},
	)

	// Process-level metrics, the ambient resource picture every
	// long-running daemon exposes regardless of domain.
	MemoryUsage = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "router_memory_usage_bytes",
			Help: "Process memory usage in bytes",
		},
		[]string{"type"},
	)

	Goroutines = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "router_goroutines",
		Help: "Number of goroutines",
	})

	GCRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "router_gc_runs_total",
		Help: "Total number of garbage collection runs",
	})
)

var metricsRegisteredOnce sync.Once

// safeRegister registers collector, swallowing a duplicate-registration
// panic so tests and Reload-driven re-initialization never crash the
// process over a metric that's already live.
func safeRegister(collector prometheus.Collector) {
	defer func() {
		if r := recover(); r != nil {
			_ = r // duplicate collector registration; already live, ignore
		}
	}()
	prometheus.MustRegister(collector)
}

// Server exposes /metrics (Prometheus scrape) and /health (liveness) on
// its own HTTP listener, independent of any admin surface.
type Server struct {
	server *http.Server
	logger *logrus.Logger
}

// NewServer registers every collector above (idempotently) and builds
// a Server bound to addr.
func NewServer(addr string, logger *logrus.Logger) *Server {
	metricsRegisteredOnce.Do(func() {
		safeRegister(EventsReceivedTotal)
		safeRegister(EventsReceivedBytes)
		safeRegister(EventsSentTotal)
		safeRegister(EventsSentBytes)
		safeRegister(EventsDroppedTotal)
		safeRegister(TemplateRenderingErrorsTotal)
		safeRegister(StreamClosedErrorsTotal)
		safeRegister(EndpointsActive)
		safeRegister(QueueDepth)
		safeRegister(QueueUtilization)
		safeRegister(QueueDroppedTotal)
		safeRegister(ComponentHealth)
		safeRegister(ProcessingStepDuration)
		safeRegister(SinkSendDuration)
		safeRegister(ReloadsTotal)
		safeRegister(ThrottleDiscardedTotal)
		safeRegister(MemoryUsage)
		safeRegister(Goroutines)
		safeRegister(GCRuns)
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{Addr: addr, Handler: mux},
		logger: logger,
	}
}

// Start begins serving in the background.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.server.Addr).Info("starting metrics server")
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("metrics server error")
		}
	}()
	return nil
}

// Stop closes the listener.
func (s *Server) Stop() error {
	s.logger.Info("stopping metrics server")
	return s.server.Close()
}

// RecordEventsReceived records one node accepting count events totaling
// byteSize bytes.
func RecordEventsReceived(node, kind string, count int, byteSize int) {
	EventsReceivedTotal.WithLabelValues(node, kind).Add(float64(count))
	EventsReceivedBytes.WithLabelValues(node, kind).Add(float64(byteSize))
}

// RecordEventsSent records one node forwarding count events totaling
// byteSize bytes.
func RecordEventsSent(node, kind string, count int, byteSize int) {
	EventsSentTotal.WithLabelValues(node, kind).Add(float64(count))
	EventsSentBytes.WithLabelValues(node, kind).Add(float64(byteSize))
}

// RecordEventsDropped records count events dropped for reason by node.
func RecordEventsDropped(node, reason string, count int) {
	EventsDroppedTotal.WithLabelValues(node, reason).Add(float64(count))
}

// RecordTemplateRenderingError records a failed template placeholder.
func RecordTemplateRenderingError(node, field string) {
	TemplateRenderingErrorsTotal.WithLabelValues(node, field).Inc()
}

// RecordStreamClosedError records an unexpected stream closure.
func RecordStreamClosedError(node string) {
	StreamClosedErrorsTotal.WithLabelValues(node).Inc()
}

// SetEndpointsActive sets the current live-endpoint count for a sink.
func SetEndpointsActive(node string, count int) {
	EndpointsActive.WithLabelValues(node).Set(float64(count))
}

// SetQueueStats sets a node's current queue depth and (when capacity is
// positive) its utilization, typically scraped straight from its
// pkg/topology.Edge, and adds dropped to the node's drop counter: dropped
// is a delta, not a running total.
func SetQueueStats(node string, length, capacity int, dropped int64) {
	QueueDepth.WithLabelValues(node).Set(float64(length))
	if capacity > 0 {
		QueueUtilization.WithLabelValues(node).Set(float64(length) / float64(capacity))
	}
	QueueDroppedTotal.WithLabelValues(node).Add(float64(dropped))
}

// SetComponentHealth records whether node (of the given role) is
// currently running.
func SetComponentHealth(node, role string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	ComponentHealth.WithLabelValues(node, role).Set(v)
}

// RecordProcessingStepDuration records time spent in one node's step.
func RecordProcessingStepDuration(node, step string, d time.Duration) {
	ProcessingStepDuration.WithLabelValues(node, step).Observe(d.Seconds())
}

// RecordSinkSendDuration records time spent in a sink's Send call.
func RecordSinkSendDuration(node string, d time.Duration) {
	SinkSendDuration.WithLabelValues(node).Observe(d.Seconds())
}

// RecordReload records a topology reload's outcome ("success" or
// "aborted").
func RecordReload(outcome string) {
	ReloadsTotal.WithLabelValues(outcome).Inc()
}

// RecordThrottleDiscarded records a throttle transform dropping an
// event for the given key.
func RecordThrottleDiscarded(node, key string) {
	ThrottleDiscardedTotal.WithLabelValues(node, key).Inc()
}

var (
	gcMu      sync.Mutex
	lastNumGC uint32
)

// UpdateProcessMetrics refreshes the process-level resource gauges and
// adds the GC runs completed since the previous call to GCRuns. Nothing
// in this module calls it; a caller drives it on its own ticker.
func UpdateProcessMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	MemoryUsage.WithLabelValues("heap_alloc").Set(float64(m.HeapAlloc))
	MemoryUsage.WithLabelValues("heap_sys").Set(float64(m.HeapSys))
	MemoryUsage.WithLabelValues("heap_inuse").Set(float64(m.HeapInuse))
	Goroutines.Set(float64(runtime.NumGoroutine()))
	gcMu.Lock()
	GCRuns.Add(float64(m.NumGC - lastNumGC))
	lastNumGC = m.NumGC
	gcMu.Unlock()
}
