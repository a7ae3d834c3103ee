package metrics

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using the Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Reconciliation loop metrics
	cyclesTotal      prometheus.Counter
	cycleErrorsTotal prometheus.Counter
	cycleDuration    prometheus.Histogram
	cycleCandidates  prometheus.Histogram
	transitionsTotal *prometheus.CounterVec

	// Oracle metrics
	statusChecksTotal   *prometheus.CounterVec
	statusCheckDuration prometheus.Histogram

	// Fanout metrics
	notificationsTotal prometheus.Counter
	fanoutErrorsTotal  prometheus.Counter

	// EventBus metrics
	bufferSize       prometheus.Gauge
	bufferCapacity   prometheus.Gauge
	bufferSaturation prometheus.Gauge
	emitErrorsTotal  prometheus.Counter

	// Leader election metrics
	isLeader          prometheus.Gauge
	leaderAcquisition prometheus.Counter
	leaderLosses      *prometheus.CounterVec
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initLoopMetrics(reg)
	s.initOracleMetrics(reg)
	s.initFanoutMetrics(reg)
	s.initEventBusMetrics(reg)
	s.initLeaderMetrics(reg)
	return s
}

func (s *PrometheusSink) initLoopMetrics(reg prometheus.Registerer) {
	s.cyclesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "buildwatch_tracker_cycles_total",
		Help: "Total number of reconciliation cycles run.",
	})
	s.cycleErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "buildwatch_tracker_cycle_errors_total",
		Help: "Total number of reconciliation cycles that failed before checking candidates.",
	})
	s.cycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "buildwatch_tracker_cycle_duration_seconds",
		Help:    "Duration of each reconciliation cycle in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	})
	s.cycleCandidates = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "buildwatch_tracker_cycle_candidates",
		Help:    "Number of distinct (job, build) pairs checked per cycle.",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
	})
	s.transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "buildwatch_tracker_transitions_total",
		Help: "Total number of terminal transitions detected.",
	}, []string{"status"})

	s.register(reg, s.cyclesTotal, "buildwatch_tracker_cycles_total")
	s.register(reg, s.cycleErrorsTotal, "buildwatch_tracker_cycle_errors_total")
	s.register(reg, s.cycleDuration, "buildwatch_tracker_cycle_duration_seconds")
	s.register(reg, s.cycleCandidates, "buildwatch_tracker_cycle_candidates")
	s.register(reg, s.transitionsTotal, "buildwatch_tracker_transitions_total")
}

func (s *PrometheusSink) initOracleMetrics(reg prometheus.Registerer) {
	s.statusChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "buildwatch_oracle_status_checks_total",
		Help: "Total number of CI status checks by result class.",
	}, []string{"result_class"})
	s.statusCheckDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "buildwatch_oracle_status_check_duration_seconds",
		Help:    "CI status check latency in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	s.register(reg, s.statusChecksTotal, "buildwatch_oracle_status_checks_total")
	s.register(reg, s.statusCheckDuration, "buildwatch_oracle_status_check_duration_seconds")
}

func (s *PrometheusSink) initFanoutMetrics(reg prometheus.Registerer) {
	s.notificationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "buildwatch_fanout_notifications_total",
		Help: "Total number of notifications inserted into user feeds.",
	})
	s.fanoutErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "buildwatch_fanout_errors_total",
		Help: "Total number of fanout store errors.",
	})

	s.register(reg, s.notificationsTotal, "buildwatch_fanout_notifications_total")
	s.register(reg, s.fanoutErrorsTotal, "buildwatch_fanout_errors_total")
}

func (s *PrometheusSink) initEventBusMetrics(reg prometheus.Registerer) {
	s.bufferSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "buildwatch_eventbus_buffer_size",
		Help: "Current number of events in the event bus buffer.",
	})
	s.bufferCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "buildwatch_eventbus_buffer_capacity",
		Help: "Configured capacity of the event bus buffer.",
	})
	s.bufferSaturation = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "buildwatch_eventbus_buffer_saturation",
		Help: "Event bus buffer fill ratio (0 to 1).",
	})
	s.emitErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "buildwatch_eventbus_emit_errors_total",
		Help: "Total number of emit errors (buffer full or context cancelled).",
	})

	s.register(reg, s.bufferSize, "buildwatch_eventbus_buffer_size")
	s.register(reg, s.bufferCapacity, "buildwatch_eventbus_buffer_capacity")
	s.register(reg, s.bufferSaturation, "buildwatch_eventbus_buffer_saturation")
	s.register(reg, s.emitErrorsTotal, "buildwatch_eventbus_emit_errors_total")
}

func (s *PrometheusSink) initLeaderMetrics(reg prometheus.Registerer) {
	s.isLeader = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "buildwatch_leader_is_leader",
		Help: "1 if this instance currently holds the leader lock, 0 otherwise.",
	})
	s.leaderAcquisition = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "buildwatch_leader_acquisitions_total",
		Help: "Total number of times this instance acquired leadership.",
	})
	s.leaderLosses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "buildwatch_leader_losses_total",
		Help: "Total number of times this instance lost leadership, by reason.",
	}, []string{"reason"})

	s.register(reg, s.isLeader, "buildwatch_leader_is_leader")
	s.register(reg, s.leaderAcquisition, "buildwatch_leader_acquisitions_total")
	s.register(reg, s.leaderLosses, "buildwatch_leader_losses_total")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

// Reconciliation loop metrics implementation

func (s *PrometheusSink) CycleStarted() {
	s.cyclesTotal.Inc()
}

func (s *PrometheusSink) CycleCompleted(duration time.Duration, candidates, transitions int, failed bool) {
	s.cycleDuration.Observe(duration.Seconds())
	s.cycleCandidates.Observe(float64(candidates))
	if failed {
		s.cycleErrorsTotal.Inc()
	}
}

func (s *PrometheusSink) TransitionDetected(status string) {
	s.transitionsTotal.WithLabelValues(status).Inc()
}

// Oracle metrics implementation

func (s *PrometheusSink) StatusCheckCompleted(resultClass string, duration time.Duration) {
	s.statusChecksTotal.WithLabelValues(resultClass).Inc()
	s.statusCheckDuration.Observe(duration.Seconds())
}

// Fanout metrics implementation

func (s *PrometheusSink) NotificationsFanned(count int) {
	s.notificationsTotal.Add(float64(count))
}

func (s *PrometheusSink) FanoutError() {
	s.fanoutErrorsTotal.Inc()
}

// EventBus metrics implementation

func (s *PrometheusSink) BufferSizeUpdate(size int) {
	s.bufferSize.Set(float64(size))
}

func (s *PrometheusSink) BufferCapacitySet(capacity int) {
	s.bufferCapacity.Set(float64(capacity))
}

func (s *PrometheusSink) BufferSaturationUpdate(saturation float64) {
	s.bufferSaturation.Set(saturation)
}

func (s *PrometheusSink) EmitError() {
	s.emitErrorsTotal.Inc()
}

// Leader election metrics implementation

func (s *PrometheusSink) LeaderStatusChanged(isLeader bool) {
	if isLeader {
		s.isLeader.Set(1)
	} else {
		s.isLeader.Set(0)
	}
}

func (s *PrometheusSink) LeaderAcquired() {
	s.leaderAcquisition.Inc()
}

func (s *PrometheusSink) LeaderLost(reason string) {
	s.leaderLosses.WithLabelValues(reason).Inc()
}
