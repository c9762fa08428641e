package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"img-scraper/pkg/models"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.FetchAttempt("page", "success")
	m.FetchAttempt("page", "success")
	m.FetchAttempt("image", "network_error")
	m.TLSFallback("image")
	m.ImageResult(models.ItemStatusDownloaded)
	m.ImageResult(models.ItemStatusSkipped)
	m.TaskTransition(models.TaskStateRetrying)
	m.SetQueueLength(7)
	m.PageCrawled(true, "", 2*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FetchAttempts.WithLabelValues("page", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchAttempts.WithLabelValues("image", "network_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TLSFallbacks.WithLabelValues("image")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImagesTotal.WithLabelValues("downloaded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TasksTotal.WithLabelValues("retrying")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.QueueLength))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PagesTotal.WithLabelValues("success", "")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.CrawlDuration))
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	// Registering twice on fresh registries must not panic
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.SetQueueLength(3)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "img_scraper_queue_length 3")
}
