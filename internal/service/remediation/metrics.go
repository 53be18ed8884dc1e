package remediation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/heartmarshall/treecleaner/internal/domain"
)

var (
	// actionsTotal counts action attempts.
	// Labels: action_type, outcome (applied or the error code)
	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "treecleaner",
		Subsystem: "actions",
		Name:      "total",
		Help:      "Remediation actions by type and outcome",
	}, []string{"action_type", "outcome"})

	// actionDuration measures the action transaction including retries.
	// Labels: action_type
	actionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "treecleaner",
		Subsystem: "actions",
		Name:      "duration_seconds",
		Help:      "Remediation action duration in seconds",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"action_type"})
)

func observeAction(actionType domain.ActionType, start time.Time, err error) {
	outcome := "applied"
	if err != nil {
		outcome = domain.ErrorCode(err)
	}
	actionsTotal.WithLabelValues(string(actionType), outcome).Inc()
	actionDuration.WithLabelValues(string(actionType)).Observe(time.Since(start).Seconds())
}
