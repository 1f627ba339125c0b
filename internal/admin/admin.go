// Package admin exposes the router's introspection HTTP surface:
// liveness/health, the live topology graph, and a /metrics Prometheus
// scrape endpoint. Grounded on the teacher's internal/app/handlers.go
// (gorilla/mux router, a metrics-recording middleware wrapping every
// handler, a /health endpoint aggregating per-component status into one
// document), narrowed from that file's log-capturer-specific endpoint
// set (dispatcher stats, DLQ reprocess, positions validation) down to
// the topology-shaped surface this domain actually has.
package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/ssw/routeflow/internal/metrics"
	"github.com/ssw/routeflow/pkg/topology"
)

// Config configures the admin HTTP surface.
type Config struct {
	Addr string `yaml:"addr"`
}

// Server hosts the admin endpoints over one HTTP listener.
type Server struct {
	server    *http.Server
	logger    *logrus.Logger
	topology  *topology.Topology
	startedAt time.Time
}

// NewServer builds a Server bound to cfg.Addr, introspecting topo.
func NewServer(cfg Config, topo *topology.Topology, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{logger: logger, topology: topo, startedAt: time.Now()}

	router := mux.NewRouter()
	router.Handle("/health", responseTimeMiddleware(http.HandlerFunc(s.healthHandler))).Methods(http.MethodGet)
	router.Handle("/graph", responseTimeMiddleware(http.HandlerFunc(s.graphHandler))).Methods(http.MethodGet)
	router.Handle("/metrics", responseTimeMiddleware(promhttp.Handler())).Methods(http.MethodGet)

	s.server = &http.Server{Addr: cfg.Addr, Handler: router}
	return s
}

// Start begins serving in the background.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.server.Addr).Info("starting admin server")
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("admin server error")
		}
	}()
	return nil
}

// Stop closes the listener.
func (s *Server) Stop() error {
	s.logger.Info("stopping admin server")
	return s.server.Close()
}

func responseTimeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		metrics.RecordProcessingStepDuration("admin", r.URL.Path, time.Since(start))
	})
}

// nodeStatus is one entry in a /graph response.
type nodeStatus struct {
	Name            string   `json:"name"`
	Role            string   `json:"role"`
	Reads           []string `json:"reads,omitempty"`
	QueueDepth      int      `json:"queue_depth,omitempty"`
	QueueCapacity   int      `json:"queue_capacity,omitempty"`
	QueueDropped    int64    `json:"queue_dropped,omitempty"`
	FanoutOutputs   []string `json:"fanout_outputs,omitempty"`
}

func (s *Server) graphHandler(w http.ResponseWriter, r *http.Request) {
	var nodes []nodeStatus
	if s.topology != nil {
		for _, spec := range s.topology.Graph().Nodes() {
			n := nodeStatus{Name: spec.Name, Role: spec.Role.String(), Reads: spec.Reads}
			if edge, ok := s.topology.Edge(spec.Name); ok {
				n.QueueDepth = edge.Len()
				n.QueueCapacity = edge.Cap()
				n.QueueDropped = edge.Dropped()
				metrics.SetQueueStats(spec.Name, edge.Len(), edge.Cap(), 0)
			}
			if fanout, ok := s.topology.Fanout(spec.Name); ok {
				n.FanoutOutputs = fanout.Outputs()
			}
			nodes = append(nodes, n)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"nodes": nodes})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	var nodes []map[string]interface{}

	if s.topology != nil {
		for _, spec := range s.topology.Graph().Nodes() {
			entry := map[string]interface{}{"name": spec.Name, "role": spec.Role.String()}
			if edge, ok := s.topology.Edge(spec.Name); ok && edge.Cap() > 0 {
				utilization := float64(edge.Len()) / float64(edge.Cap())
				entry["queue_utilization"] = utilization
				if utilization > 0.9 {
					status = "critical"
				} else if utilization > 0.7 && status == "healthy" {
					status = "warning"
				}
			}
			nodes = append(nodes, entry)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": status,
		"uptime": time.Since(s.startedAt).String(),
		"nodes":  nodes,
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
