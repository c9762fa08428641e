package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"img-scraper/pkg/models"
)

const namespace = "img_scraper"

// Metrics holds the collectors for one process. It satisfies fetch.Recorder.
type Metrics struct {
	FetchAttempts *prometheus.CounterVec // kind, result
	TLSFallbacks  *prometheus.CounterVec // kind
	PagesTotal    *prometheus.CounterVec // result: success, failure
	ImagesTotal   *prometheus.CounterVec // status
	TasksTotal    *prometheus.CounterVec // state
	QueueLength   prometheus.Gauge
	CrawlDuration prometheus.Histogram
}

// New registers all collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FetchAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_attempts_total",
				Help:      "HTTP attempts by request kind and result.",
			},
			[]string{"kind", "result"},
		),
		TLSFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tls_fallbacks_total",
				Help:      "Requests retried with certificate verification disabled.",
			},
			[]string{"kind"},
		),
		PagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pages_total",
				Help:      "Crawled pages by result.",
			},
			[]string{"result", "error_type"},
		),
		ImagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "images_total",
				Help:      "Image candidates by download status.",
			},
			[]string{"status"},
		),
		TasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queue_tasks_total",
				Help:      "Queue task transitions by resulting state.",
			},
			[]string{"state"},
		),
		QueueLength: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_length",
				Help:      "Pending tasks observed at the last dequeue.",
			},
		),
		CrawlDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "crawl_duration_seconds",
				Help:      "Duration of whole-page crawls.",
				Buckets:   []float64{1, 5, 10, 15, 30, 60, 120, 300},
			},
		),
	}
}

// FetchAttempt counts one HTTP attempt
func (m *Metrics) FetchAttempt(kind, result string) {
	m.FetchAttempts.WithLabelValues(kind, result).Inc()
}

// TLSFallback counts one insecure retry
func (m *Metrics) TLSFallback(kind string) {
	m.TLSFallbacks.WithLabelValues(kind).Inc()
}

// PageCrawled records a finished crawl
func (m *Metrics) PageCrawled(success bool, errorType string, d time.Duration) {
	result := "failure"
	if success {
		result = "success"
	}
	m.PagesTotal.WithLabelValues(result, errorType).Inc()
	m.CrawlDuration.Observe(d.Seconds())
}

// ImageResult counts one per-image outcome
func (m *Metrics) ImageResult(status models.ItemStatus) {
	m.ImagesTotal.WithLabelValues(status.String()).Inc()
}

// TaskTransition counts a queue task entering state
func (m *Metrics) TaskTransition(state models.TaskState) {
	m.TasksTotal.WithLabelValues(string(state)).Inc()
}

// SetQueueLength updates the pending-task gauge
func (m *Metrics) SetQueueLength(n int64) {
	m.QueueLength.Set(float64(n))
}

// Handler exposes the collectors gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
