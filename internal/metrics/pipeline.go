package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StageOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zoomsync_stage_outcomes_total",
		Help: "Total number of settled stage operations by stage and outcome",
	}, []string{"stage", "outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zoomsync_stage_duration_seconds",
		Help:    "Duration of a stage operation including retries",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
	}, []string{"stage"})

	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zoomsync_events_total",
		Help: "Total number of ingested webhook events by resulting state",
	}, []string{"state"})

	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zoomsync_ticks_total",
		Help: "Total number of pipeline ticks by result",
	}, []string{"result"})

	InFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "zoomsync_inflight_records",
		Help: "Records currently held by the in-flight guard",
	}, []string{"stage"})
)

// ObserveStage records the outcome and duration of one stage operation.
// outcome is "success" or "failed"; anything else is reported as "unknown".
func ObserveStage(stage, outcome string, d time.Duration) {
	if stage == "" {
		stage = "unknown"
	}
	switch outcome {
	case "success", "failed":
	default:
		outcome = "unknown"
	}
	StageOutcomesTotal.WithLabelValues(stage, outcome).Inc()
	StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// IncEvent counts an ingested event.
func IncEvent(state string) {
	EventsTotal.WithLabelValues(state).Inc()
}

// IncTick counts a finished tick. ok=false means the tick returned an error.
func IncTick(ok bool) {
	if ok {
		TicksTotal.WithLabelValues("ok").Inc()
		return
	}
	TicksTotal.WithLabelValues("error").Inc()
}

// TrackInFlight adjusts the in-flight gauge for stage by delta.
func TrackInFlight(stage string, delta float64) {
	InFlight.WithLabelValues(stage).Add(delta)
}
