package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	subscribers *prometheus.GaugeVec
	mailsSent   prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// SetSubscribers publishes the latest active/inactive subscriber counts.
func (m *Metrics) SetSubscribers(active, inactive int64) {
	if m == nil {
		return
	}
	m.subscribers.WithLabelValues("active").Set(float64(active))
	m.subscribers.WithLabelValues("inactive").Set(float64(inactive))
}

// MailSent counts a delivered welcome mail.
func (m *Metrics) MailSent() {
	if m == nil {
		return
	}
	m.mailsSent.Inc()
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portfolio_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	subscribers := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "portfolio_newsletter_subscribers",
		Help: "Stored newsletter subscribers by state.",
	}, []string{"state"})
	mailsSent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "portfolio_newsletter_welcome_mails_total",
		Help: "Welcome mails handed to the SMTP server.",
	})
	registerer.MustRegister(runs, failures, duration, subscribers, mailsSent)
	return &Metrics{runs: runs, failures: failures, duration: duration, subscribers: subscribers, mailsSent: mailsSent}
}
