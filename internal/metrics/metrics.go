package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/miradorstack/incident-autopilot/internal/models"
)

const (
	// OutcomeSuccess labels successful orchestrations.
	OutcomeSuccess = "success"
	// OutcomeError labels failed orchestrations (IAM, model backend or transport issues).
	OutcomeError = "error"
)

var (
	orchestrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "incident_autopilot",
			Name:      "orchestrations_total",
			Help:      "Total number of orchestration requests served, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	orchestrationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "incident_autopilot",
			Name:      "orchestration_seconds",
			Help:      "Orchestration latency in seconds, including the model call.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 4, 5, 6, 8, 10, 15, 20},
		},
	)

	sessionRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "incident_autopilot",
			Name:      "session_runs_total",
			Help:      "Session runs by final error kind (empty kind for success).",
		},
		[]string{"kind"},
	)

	stageTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "incident_autopilot",
			Name:      "stage_transitions_total",
			Help:      "Pipeline stages reached.",
		},
		[]string{"stage"},
	)

	iamTokenFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "incident_autopilot",
			Name:      "iam_token_fetches_total",
			Help:      "IAM token lookups by source (cache or exchange).",
		},
		[]string{"source"},
	)
)

// Register attaches incident-autopilot collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		orchestrationsTotal,
		orchestrationDurationSeconds,
		sessionRunsTotal,
		stageTransitionsTotal,
		iamTokenFetchesTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveOrchestration records an orchestration duration and outcome label.
func ObserveOrchestration(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	orchestrationsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	orchestrationDurationSeconds.Observe(duration.Seconds())
}

// ObserveSessionRun counts a finished session run.
func ObserveSessionRun(kind models.ErrorKind) {
	label := string(kind)
	if label == "" {
		label = OutcomeSuccess
	}
	sessionRunsTotal.WithLabelValues(label).Inc()
}

// ObserveStage counts a stage being reached.
func ObserveStage(stage models.PipelineStage) {
	stageTransitionsTotal.WithLabelValues(stage.String()).Inc()
}

// ObserveTokenFetch counts an IAM token lookup.
func ObserveTokenFetch(source string) {
	iamTokenFetchesTotal.WithLabelValues(source).Inc()
}
