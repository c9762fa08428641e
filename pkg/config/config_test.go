package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLookup(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
output_dir: /data/images
max_images_per_page: 25
download_delay: 250ms
page_retry:
  max_attempts: 4
  base_delay: 2s
queue:
  backend: memory
  retry_delay: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path, false)
	require.NoError(t, err)
	assert.Equal(t, "/data/images", cfg.OutputDir)
	assert.Equal(t, 25, cfg.MaxImagesPerPage)
	assert.Equal(t, 250*time.Millisecond, cfg.DownloadDelay)
	assert.Equal(t, 4, cfg.PageRetry.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.PageRetry.BaseDelay)
	assert.Equal(t, "memory", cfg.Queue.Backend)
	assert.Equal(t, 30*time.Second, cfg.Queue.RetryDelay)
}

func TestLoad_ExplicitZeroRetries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("queue:\n  backend: memory\n  max_retries: 0\n"), 0644))

	cfg, err := Load(path, false)
	require.NoError(t, err)
	_, err = cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Queue.MaxRetries)

	// Omitted key keeps the default
	require.NoError(t, os.WriteFile(path, []byte("queue:\n  backend: memory\n"), 0644))
	cfg, err = Load(path, false)
	require.NoError(t, err)
	_, err = cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, DefaultQueueMaxRetries, cfg.Queue.MaxRetries)
}

func TestApplyEnv_ExplicitZeroRetries(t *testing.T) {
	cfg := AppConfig{}
	require.NoError(t, cfg.ApplyEnv(mapLookup(map[string]string{"MAX_RETRIES": "0"})))
	_, err := cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Queue.MaxRetries)
}

func TestLoad_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.yaml")

	cfg, err := Load(path, true)
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	_, err = Load(path, false)
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output_dir: [unclosed"), 0644))

	_, err := Load(path, false)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := AppConfig{OutputDir: "/from/yaml"}
	env := map[string]string{
		"BBS_SAVE_PATH":    "/from/env",
		"BBS_MAX_IMAGES":   "12",
		"BBS_TIMEOUT":      "15",
		"REDIS_HOST":       "redis.internal",
		"REDIS_PORT":       "6380",
		"REDIS_DB":         "2",
		"QUEUE_NAME":       "custom_queue",
		"PROCESS_INTERVAL": "750ms",
		"MAX_RETRIES":      "5",
		"RETRY_DELAY":      "1.5",
	}

	require.NoError(t, cfg.ApplyEnv(mapLookup(env)))

	assert.Equal(t, "/from/env", cfg.OutputDir)
	assert.Equal(t, 12, cfg.MaxImagesPerPage)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "redis.internal:6380", cfg.Queue.RedisAddr())
	assert.Equal(t, 2, cfg.Queue.RedisDB)
	assert.Equal(t, "custom_queue", cfg.Queue.QueueKey)
	assert.Equal(t, 750*time.Millisecond, cfg.Queue.IdleInterval)
	assert.Equal(t, 5, cfg.Queue.MaxRetries)
	assert.Equal(t, 1500*time.Millisecond, cfg.Queue.RetryDelay)
}

func TestApplyEnv_EmptyValuesIgnored(t *testing.T) {
	cfg := AppConfig{OutputDir: "/keep"}
	require.NoError(t, cfg.ApplyEnv(mapLookup(map[string]string{"BBS_SAVE_PATH": ""})))
	assert.Equal(t, "/keep", cfg.OutputDir)
}

func TestApplyEnv_InvalidNumber(t *testing.T) {
	cfg := AppConfig{}
	err := cfg.ApplyEnv(mapLookup(map[string]string{"REDIS_PORT": "not-a-port"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_PORT")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("IMG_SCRAPER_TEST_KEY=from_dotenv\n"), 0644))
	t.Setenv("IMG_SCRAPER_TEST_KEY", "")
	os.Unsetenv("IMG_SCRAPER_TEST_KEY")

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from_dotenv", os.Getenv("IMG_SCRAPER_TEST_KEY"))
}
