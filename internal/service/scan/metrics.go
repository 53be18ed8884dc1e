package scan

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// scanDuration measures a whole scan, snapshot load to commit.
	// Labels: mode (full, incremental), status (success, error)
	scanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "treecleaner",
		Subsystem: "scan",
		Name:      "duration_seconds",
		Help:      "Scan duration in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"mode", "status"})

	// detectorDuration measures one detector over one snapshot.
	// Labels: detector
	detectorDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "treecleaner",
		Subsystem: "scan",
		Name:      "detector_duration_seconds",
		Help:      "Detector run time in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	}, []string{"detector"})

	// issueTransitions counts issue lifecycle changes made by scans.
	// Labels: transition (created, updated, reopened, resolved)
	issueTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "treecleaner",
		Subsystem: "scan",
		Name:      "issue_transitions_total",
		Help:      "Issue status changes applied by scans",
	}, []string{"transition"})

	// openIssues is the number of open issues per type after the last scan.
	// Labels: issue_type
	openIssues = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "treecleaner",
		Subsystem: "scan",
		Name:      "open_issues",
		Help:      "Open issues per type after the last scan",
	}, []string{"issue_type"})
)

func modeLabel(incremental bool) string {
	if incremental {
		return "incremental"
	}
	return "full"
}
