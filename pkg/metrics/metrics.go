// Package metrics exposes the outcome of a run in the Prometheus text
// format, for pickup by the node exporter textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Stats struct {
	Term      string
	Courses   int
	Failed    int
	Added     int
	Removed   int
	Duration  time.Duration
	Succeeded bool
	Finished  time.Time
}

type Run struct {
	registry    *prometheus.Registry
	courses     *prometheus.GaugeVec
	failed      *prometheus.GaugeVec
	changes     *prometheus.GaugeVec
	duration    *prometheus.GaugeVec
	lastSuccess *prometheus.GaugeVec
}

func NewRun() *Run {
	r := &Run{
		registry: prometheus.NewRegistry(),
		courses: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rosterwatch_courses",
			Help: "Courses listed for the term in the last run.",
		}, []string{"term"}),
		failed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rosterwatch_course_fetch_failures",
			Help: "Courses whose instructors could not be fetched in the last run.",
		}, []string{"term"}),
		changes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rosterwatch_changes",
			Help: "Instructor changes detected in the last run.",
		}, []string{"term", "kind"}),
		duration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rosterwatch_run_duration_seconds",
			Help: "Wall time of the last run.",
		}, []string{"term"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rosterwatch_last_success_timestamp_seconds",
			Help: "Unix time of the last run that completed without a fatal error.",
		}, []string{"term"}),
	}
	r.registry.MustRegister(r.courses, r.failed, r.changes, r.duration, r.lastSuccess)
	return r
}

func (r *Run) Record(s Stats) {
	r.courses.WithLabelValues(s.Term).Set(float64(s.Courses))
	r.failed.WithLabelValues(s.Term).Set(float64(s.Failed))
	r.changes.WithLabelValues(s.Term, "added").Set(float64(s.Added))
	r.changes.WithLabelValues(s.Term, "removed").Set(float64(s.Removed))
	r.duration.WithLabelValues(s.Term).Set(s.Duration.Seconds())
	if s.Succeeded {
		r.lastSuccess.WithLabelValues(s.Term).Set(float64(s.Finished.Unix()))
	}
}

// WriteTextfile atomically writes the current values to path.
func (r *Run) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
