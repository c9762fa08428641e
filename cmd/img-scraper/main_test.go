package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"img-scraper/pkg/config"
	"img-scraper/pkg/models"
	"img-scraper/pkg/queue"
	"img-scraper/pkg/storage"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestPrintUsageTo(t *testing.T) {
	var buf bytes.Buffer
	printUsageTo(&buf)
	for _, cmd := range []string{"crawl", "worker", "enqueue", "status", "clear", "validate", "version"} {
		assert.Contains(t, buf.String(), cmd)
	}
}

func TestDoValidate_Valid(t *testing.T) {
	path := writeConfig(t, `
output_dir: /tmp/images
max_images_per_page: 20
queue:
  backend: memory
`)
	var stdout, stderr bytes.Buffer
	exitCode := doValidate(path, &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "Configuration valid (queue backend: memory")
	assert.Empty(t, stderr.String())
}

func TestDoValidate_Warnings(t *testing.T) {
	path := writeConfig(t, "download_delay: -1s\n")
	var stdout, stderr bytes.Buffer

	exitCode := doValidate(path, &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "WARN: download_delay cannot be negative")
}

func TestDoValidate_Errors(t *testing.T) {
	t.Run("unknown backend", func(t *testing.T) {
		path := writeConfig(t, "queue:\n  backend: kafka\n")
		var stdout, stderr bytes.Buffer
		assert.Equal(t, 1, doValidate(path, &stdout, &stderr))
		assert.Contains(t, stderr.String(), "kafka")
	})

	t.Run("missing file", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		assert.Equal(t, 1, doValidate("/nonexistent/config.yaml", &stdout, &stderr))
		assert.NotEmpty(t, stderr.String())
	})
}

func TestDoCrawl(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/thread", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Thread 42</title></head><body><img src="/a.png"></body></html>`)
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Nothing</title></head><body>text</body></html>`)
	})
	mux.HandleFunc("/a.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(bytes.Repeat([]byte{7}, 4096))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	cfg := &config.AppConfig{OutputDir: t.TempDir(), MaxImagesPerPage: 10, DownloadDelay: -1}
	_, err := cfg.Validate()
	require.NoError(t, err)

	t.Run("success", func(t *testing.T) {
		var stdout bytes.Buffer
		exitCode := doCrawl(context.Background(), cfg, quietLogger(), server.URL+"/thread", "cli", &stdout)
		assert.Equal(t, 0, exitCode)

		var outcome models.CrawlOutcome
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &outcome))
		assert.True(t, outcome.Success)
		assert.Equal(t, "Thread 42", outcome.Title)
		assert.Equal(t, 1, outcome.Downloaded)
		assert.True(t, strings.HasPrefix(outcome.Folder, cfg.OutputDir))
	})

	t.Run("no images", func(t *testing.T) {
		var stdout bytes.Buffer
		exitCode := doCrawl(context.Background(), cfg, quietLogger(), server.URL+"/empty", "cli", &stdout)
		assert.Equal(t, 1, exitCode)
		assert.Contains(t, stdout.String(), `"success": false`)
		assert.Contains(t, stdout.String(), "Content_NoImages")
	})
}

func TestQueueCommands(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue(logrus.NewEntry(quietLogger()))
	hist, err := storage.NewBadgerHistory(t.TempDir(), 10, logrus.NewEntry(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { hist.Close() })

	var stdout, stderr bytes.Buffer
	exitCode := doEnqueue(ctx, q, []string{"https://example.com/a", "not a url", "https://example.com/b"}, "cli", &stdout, &stderr)
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stdout.String(), "QUEUED: https://example.com/a")
	assert.Contains(t, stdout.String(), "QUEUED: https://example.com/b")
	assert.Contains(t, stderr.String(), "REJECTED: not a url")

	require.NoError(t, hist.Append(ctx, models.HistoryRecord{
		Task:        models.TaskPayload{URL: "https://example.com/old"},
		Status:      models.RecordStatusSuccess,
		CompletedAt: time.Now(),
	}))

	stdout.Reset()
	assert.Equal(t, 0, doStatus(ctx, q, hist, 5, &stdout, &stderr))
	var status struct {
		QueueLength int64                  `json:"queue_length"`
		ResultCount int64                  `json:"result_count"`
		Recent      []models.HistoryRecord `json:"recent"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &status))
	assert.Equal(t, int64(2), status.QueueLength)
	assert.Equal(t, int64(1), status.ResultCount)
	require.Len(t, status.Recent, 1)
	assert.Equal(t, "https://example.com/old", status.Recent[0].Task.URL)

	stdout.Reset()
	assert.Equal(t, 0, doClear(ctx, q, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "Queue cleared (2 removed)")
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "output_dir: /from/yaml\nqueue:\n  backend: memory\n")
	t.Setenv("BBS_SAVE_PATH", "/from/env")
	t.Setenv("BBS_MAX_IMAGES", "7")

	cfg, err := loadConfig(path, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.OutputDir)
	assert.Equal(t, 7, cfg.MaxImagesPerPage)
	assert.Equal(t, "memory", cfg.Queue.Backend)
}

func TestOpenBackends_Memory(t *testing.T) {
	cfg := &config.AppConfig{StateDir: t.TempDir(), Queue: config.QueueConfig{Backend: "memory"}}
	_, err := cfg.Validate()
	require.NoError(t, err)

	b, err := openBackends(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	defer b.close()

	assert.IsType(t, &queue.MemoryQueue{}, b.queue)
	assert.NotNil(t, b.badger)
}
