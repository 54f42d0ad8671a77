// internal/metrics/collector.go
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricType identifies a metric held by the collector
type MetricType string

const (
	FetchAttemptsType  MetricType = "fetch_attempts"
	FetchDurationType  MetricType = "fetch_duration"
	TokensType         MetricType = "tokens"
	MediaUploadsType   MetricType = "media_uploads"
	PostsPublishedType MetricType = "posts_published"
)

const namespace = "hyperfeed"

// Collector owns a private registry so repeated runs and tests never clash
// with the global default registry.
type Collector struct {
	registry *prometheus.Registry
	metrics  sync.Map

	fetchAttempts  *prometheus.CounterVec
	fetchDuration  *prometheus.HistogramVec
	tokens         *prometheus.CounterVec
	mediaUploads   *prometheus.CounterVec
	postsPublished prometheus.Counter
}

// NewCollector creates a collector with all feed metrics registered
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		fetchAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_attempts_total",
				Help:      "Position API requests by outcome",
			},
			[]string{"token", "outcome"},
		),
		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Time spent fetching one token including retries",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"token"},
		),
		tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_total",
				Help:      "Tokens processed by final status",
			},
			[]string{"status"},
		),
		mediaUploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "media_uploads_total",
				Help:      "Table image uploads by status",
			},
			[]string{"status"},
		),
		postsPublished: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "posts_published_total",
				Help:      "Posts sent in created drafts",
			},
		),
	}
	c.initializeMetrics()
	return c
}

func (c *Collector) initializeMetrics() {
	metricsMap := map[MetricType]prometheus.Collector{
		FetchAttemptsType:  c.fetchAttempts,
		FetchDurationType:  c.fetchDuration,
		TokensType:         c.tokens,
		MediaUploadsType:   c.mediaUploads,
		PostsPublishedType: c.postsPublished,
	}

	for metricType, metric := range metricsMap {
		c.metrics.Store(metricType, metric)
		c.registry.MustRegister(metric)
	}
}

// Registry exposes the private registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Reset clears all labelled metrics
func (c *Collector) Reset() {
	c.metrics.Range(func(_, value interface{}) bool {
		switch m := value.(type) {
		case *prometheus.CounterVec:
			m.Reset()
		case *prometheus.HistogramVec:
			m.Reset()
		}
		return true
	})
}

// ObserveAttempt records one position API request
func (c *Collector) ObserveAttempt(token, outcome string) {
	c.fetchAttempts.WithLabelValues(token, outcome).Inc()
}

// ObserveFetch records the total time spent on a token
func (c *Collector) ObserveFetch(token string, d time.Duration) {
	c.fetchDuration.WithLabelValues(token).Observe(d.Seconds())
}

// ObserveToken records whether a token ended up in the thread data
func (c *Collector) ObserveToken(_ string, ok bool) {
	c.tokens.WithLabelValues(status(ok)).Inc()
}

// ObserveUpload records a media upload
func (c *Collector) ObserveUpload(ok bool) {
	c.mediaUploads.WithLabelValues(status(ok)).Inc()
}

// ObservePublished records the posts of a created draft
func (c *Collector) ObservePublished(posts int) {
	c.postsPublished.Add(float64(posts))
}

// WriteTextfile writes the registry in text exposition format, suitable
// for the node-exporter textfile collector
func (c *Collector) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "failed"
}
