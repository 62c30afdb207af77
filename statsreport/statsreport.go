// Package statsreport exposes a node's current state over HTTP: a JSON
// snapshot at / for simple consumers plus a
// Prometheus /metrics endpoint for long-lived monitoring.
package statsreport

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/syncwave/syncwave/proto"
)

// Snapshot is the JSON-shaped view of a node's current stats, shared by
// sources and receivers. Optional receiver-only fields are nil when this
// snapshot is reported by a source.
type Snapshot struct {
	Role          string   `json:"role"`
	SessionID     uint64   `json:"session_id"`
	UptimeSeconds uint64   `json:"uptime_seconds"`
	PID           uint32   `json:"pid"`
	CPUPermil     uint32   `json:"cpu_permil"`
	RSSBytes      uint64   `json:"rss_bytes"`
	NumThreads    uint32   `json:"num_threads"`
	Status        string   `json:"status,omitempty"`
	AudioLatency  *float64 `json:"audio_latency_sec,omitempty"`
	BufferLength  *float64 `json:"buffer_length_sec,omitempty"`
	NetworkLat    *float64 `json:"network_latency_sec,omitempty"`
	PredictOffset *float64 `json:"predict_offset_sec,omitempty"`
}

// Server holds the latest Snapshot and serves it over HTTP as JSON,
// alongside the registered Prometheus gauges mirroring the same fields.
type Server struct {
	mu       sync.RWMutex
	snapshot Snapshot

	registry *prometheus.Registry
	gauges   map[string]prometheus.Gauge
}

// NewServer returns a Server with its own Prometheus registry.
func NewServer() *Server {
	return &Server{
		registry: prometheus.NewRegistry(),
		gauges:   make(map[string]prometheus.Gauge),
	}
}

// Update replaces the current snapshot and refreshes every Prometheus
// gauge it maps to.
func (s *Server) Update(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snap

	s.setGauge("syncwave_uptime_seconds", float64(snap.UptimeSeconds))
	s.setGauge("syncwave_cpu_permil", float64(snap.CPUPermil))
	s.setGauge("syncwave_rss_bytes", float64(snap.RSSBytes))
	s.setGauge("syncwave_num_threads", float64(snap.NumThreads))
	if snap.AudioLatency != nil {
		s.setGauge("syncwave_audio_latency_seconds", *snap.AudioLatency)
	}
	if snap.BufferLength != nil {
		s.setGauge("syncwave_buffer_length_seconds", *snap.BufferLength)
	}
	if snap.NetworkLat != nil {
		s.setGauge("syncwave_network_latency_seconds", *snap.NetworkLat)
	}
	if snap.PredictOffset != nil {
		s.setGauge("syncwave_predict_offset_seconds", *snap.PredictOffset)
	}
}

// setGauge must be called with s.mu held.
func (s *Server) setGauge(name string, v float64) {
	g, ok := s.gauges[name]
	if !ok {
		g = prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: name})
		if err := s.registry.Register(g); err != nil {
			log.WithError(err).WithField("metric", name).Error("statsreport: failed to register gauge")
			return
		}
		s.gauges[name] = g
	}
	g.Set(v)
}

// ListenAndServe starts the HTTP server, blocking until it exits. It
// serves "/" as the JSON snapshot and "/metrics" as the Prometheus
// exposition.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleJSON)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	log.WithField("addr", addr).Info("statsreport: starting http server")
	return http.ListenAndServe(addr, mux)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	snap := s.snapshot
	s.mu.RUnlock()

	js, err := json.Marshal(snap)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(js); err != nil {
		log.WithError(err).Error("statsreport: failed to write response")
	}
}

// SnapshotFromNode builds the ambient portion of a Snapshot (uptime,
// PID, CPU, RSS, thread count) common to both roles.
func SnapshotFromNode(role string, sessionID uint64, node proto.NodeStats) Snapshot {
	return Snapshot{
		Role:          role,
		SessionID:     sessionID,
		UptimeSeconds: node.UptimeSeconds,
		PID:           node.PID,
		CPUPermil:     node.CPUPermil,
		RSSBytes:      node.RSSBytes,
		NumThreads:    node.NumThreads,
	}
}

// WithReceiverStats fills in the receiver-only optional fields from a
// decoded ReceiverStats, honoring its presence bits.
func WithReceiverStats(snap Snapshot, status string, rs proto.ReceiverStats) Snapshot {
	snap.Status = status
	if rs.HasAudioLatency() {
		v := rs.AudioLatency()
		snap.AudioLatency = &v
	}
	if rs.HasBufferLength() {
		v := rs.BufferLength()
		snap.BufferLength = &v
	}
	if rs.HasNetworkLatency() {
		v := rs.NetworkLatency()
		snap.NetworkLat = &v
	}
	if rs.HasPredictOffset() {
		v := rs.PredictOffset()
		snap.PredictOffset = &v
	}
	return snap
}
