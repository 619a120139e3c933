package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder exports submission pipeline metrics to Prometheus. A nil
// *Recorder is valid and records nothing.
type Recorder struct {
	submissions   *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	stageErrors   *prometheus.CounterVec
	uploadedBytes prometheus.Counter
	linkSources   *prometheus.CounterVec
}

// New registers the pipeline collectors on reg. Collectors that are already
// registered are reused.
func New(namespace string, reg prometheus.Registerer) (*Recorder, error) {
	if namespace == "" {
		namespace = "submissions"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Recorder{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Form submissions by final outcome.",
		}, []string{"outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Latency of each external-call stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		stageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_errors_total",
			Help:      "Failed external-call stages.",
		}, []string{"stage"}),
		uploadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Bytes successfully stored with the storage provider.",
		}),
		linkSources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "share_links_total",
			Help:      "Shareable URLs by the strategy that produced them.",
		}, []string{"source"}),
	}

	collectors := map[prometheus.Collector]func(prometheus.Collector){
		r.submissions:   func(c prometheus.Collector) { r.submissions = c.(*prometheus.CounterVec) },
		r.stageDuration: func(c prometheus.Collector) { r.stageDuration = c.(*prometheus.HistogramVec) },
		r.stageErrors:   func(c prometheus.Collector) { r.stageErrors = c.(*prometheus.CounterVec) },
		r.uploadedBytes: func(c prometheus.Collector) { r.uploadedBytes = c.(prometheus.Counter) },
		r.linkSources:   func(c prometheus.Collector) { r.linkSources = c.(*prometheus.CounterVec) },
	}
	for collector, reuse := range collectors {
		if err := reg.Register(collector); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				reuse(are.ExistingCollector)
				continue
			}
			return nil, fmt.Errorf("register submission metric: %w", err)
		}
	}
	return r, nil
}

// ObserveStage records one stage attempt.
func (r *Recorder) ObserveStage(stage string, duration time.Duration, err error) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	if err != nil {
		r.stageErrors.WithLabelValues(stage).Inc()
	}
}

func (r *Recorder) ObserveSubmission(outcome string) {
	if r == nil {
		return
	}
	r.submissions.WithLabelValues(outcome).Inc()
}

func (r *Recorder) ObserveUpload(sizeBytes int64) {
	if r == nil {
		return
	}
	r.uploadedBytes.Add(float64(sizeBytes))
}

func (r *Recorder) ObserveLink(source string) {
	if r == nil {
		return
	}
	r.linkSources.WithLabelValues(source).Inc()
}
