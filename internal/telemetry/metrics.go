package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// NodesTotal tracks how many resource-directory entries exist, by
	// their current interview state.
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "zipgw",
			Name:      "nodes_total",
			Help:      "Number of nodes known to the resource directory, by state",
		},
		[]string{"state"},
	)

	// ProbesCompleted counts resource-directory interviews that reached
	// a terminal state.
	ProbesCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zipgw",
			Name:      "probes_completed_total",
			Help:      "Total number of resource-directory probe interviews completed",
		},
		[]string{"result"},
	)

	// SendPipelineQueueDepth tracks the send pipeline's current queue
	// occupancy, per queue.
	SendPipelineQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "zipgw",
			Name:      "send_pipeline_queue_depth",
			Help:      "Current number of queued send-pipeline entries",
		},
		[]string{"queue"},
	)

	// SendPipelineTxTotal counts completed transmissions by terminal
	// status.
	SendPipelineTxTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zipgw",
			Name:      "send_pipeline_tx_total",
			Help:      "Total number of send pipeline transmissions by terminal status",
		},
		[]string{"status"},
	)

	// NMStateTransitionsTotal counts network management state machine
	// transitions, by the state entered.
	NMStateTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zipgw",
			Name:      "nms_state_transitions_total",
			Help:      "Total number of network management state transitions, by state entered",
		},
		[]string{"state"},
	)

	// Ensure metrics are only registered once.
	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus
// registry. This function is idempotent and can be called multiple
// times safely.
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.Register(NodesTotal)
		prometheus.DefaultRegisterer.Register(ProbesCompleted)
		prometheus.DefaultRegisterer.Register(SendPipelineQueueDepth)
		prometheus.DefaultRegisterer.Register(SendPipelineTxTotal)
		prometheus.DefaultRegisterer.Register(NMStateTransitionsTotal)
	})
}
