package metrics

import (
	"sync"

	"github.com/arloliu/sourcecoord/types"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Collectors are created and registered lazily on first use so constructing a
// collector that is never exercised does not touch the registry.
type PrometheusCollector struct {
	*NopMetrics

	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	// Coordinator metrics
	acquireAttempts   *prometheus.CounterVec
	partitionsCreated *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	leaseLost         *prometheus.CounterVec
	storeOpDuration   *prometheus.HistogramVec

	// Leader metrics
	stateTransitions *prometheus.CounterVec
	leaderTicks      *prometheus.CounterVec
	discoveredUnits  *prometheus.GaugeVec
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer interface (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "sourcecoord" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "sourcecoord"
	}

	return &PrometheusCollector{NopMetrics: NewNop(), reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.acquireAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "coordinator",
			Name:      "acquire_attempts_total",
			Help:      "Partition acquisition attempts by partition type and result (acquired,empty).",
		}, []string{"type", "result"})

		p.partitionsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "coordinator",
			Name:      "partitions_created_total",
			Help:      "Partition create calls by partition type and result (created,exists).",
		}, []string{"type", "result"})

		p.transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "coordinator",
			Name:      "partition_transitions_total",
			Help:      "Partition status transitions by partition type and target status.",
		}, []string{"type", "status"})

		p.leaseLost = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "coordinator",
			Name:      "lease_lost_total",
			Help:      "Conditional updates refused by the store, by partition type.",
		}, []string{"type"})

		p.storeOpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Coordination store operation latency in seconds by operation.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms .. ~2s
		}, []string{"op"})

		p.stateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "leader",
			Name:      "state_transitions_total",
			Help:      "Leader scheduler state transitions.",
		}, []string{"from", "to"})

		p.leaderTicks = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "leader",
			Name:      "ticks_total",
			Help:      "Leader scheduler ticks by result (follower,initialized,refreshed,failed).",
		}, []string{"result"})

		p.discoveredUnits = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "leader",
			Name:      "discovered_units",
			Help:      "Number of units seen by the last topology discovery per stream.",
		}, []string{"stream"})

		p.reg.MustRegister(p.acquireAttempts)
		p.reg.MustRegister(p.partitionsCreated)
		p.reg.MustRegister(p.transitions)
		p.reg.MustRegister(p.leaseLost)
		p.reg.MustRegister(p.storeOpDuration)
		p.reg.MustRegister(p.stateTransitions)
		p.reg.MustRegister(p.leaderTicks)
		p.reg.MustRegister(p.discoveredUnits)
	})
}

// CoordinatorMetrics implementation

// RecordAcquireAttempt counts an acquisition attempt.
func (p *PrometheusCollector) RecordAcquireAttempt(partitionType string, acquired bool) {
	p.ensureRegistered()
	result := "empty"
	if acquired {
		result = "acquired"
	}
	p.acquireAttempts.WithLabelValues(partitionType, result).Inc()
}

// RecordPartitionCreated counts a create call.
func (p *PrometheusCollector) RecordPartitionCreated(partitionType string, created bool) {
	p.ensureRegistered()
	result := "exists"
	if created {
		result = "created"
	}
	p.partitionsCreated.WithLabelValues(partitionType, result).Inc()
}

// RecordPartitionTransition counts a status transition.
func (p *PrometheusCollector) RecordPartitionTransition(partitionType string, to types.Status) {
	p.ensureRegistered()
	p.transitions.WithLabelValues(partitionType, to.String()).Inc()
}

// RecordLeaseLost counts a refused conditional update.
func (p *PrometheusCollector) RecordLeaseLost(partitionType string) {
	p.ensureRegistered()
	p.leaseLost.WithLabelValues(partitionType).Inc()
}

// RecordStoreOperationDuration observes store latency in seconds.
func (p *PrometheusCollector) RecordStoreOperationDuration(operation string, duration float64) {
	p.ensureRegistered()
	p.storeOpDuration.WithLabelValues(operation).Observe(duration)
}

// LeaderMetrics implementation

// RecordStateTransition counts a scheduler state change.
func (p *PrometheusCollector) RecordStateTransition(from, to types.SchedulerState) {
	p.ensureRegistered()
	p.stateTransitions.WithLabelValues(from.String(), to.String()).Inc()
}

// RecordLeaderTick counts a tick outcome.
func (p *PrometheusCollector) RecordLeaderTick(result string) {
	p.ensureRegistered()
	p.leaderTicks.WithLabelValues(result).Inc()
}

// RecordDiscoveredUnits sets the discovered unit gauge for streamID.
func (p *PrometheusCollector) RecordDiscoveredUnits(streamID string, count int) {
	p.ensureRegistered()
	p.discoveredUnits.WithLabelValues(streamID).Set(float64(count))
}

