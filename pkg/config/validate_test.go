package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"img-scraper/pkg/retry"
	"img-scraper/pkg/utils"
)

func TestAppConfig_Validate_Defaults(t *testing.T) {
	cfg := AppConfig{} // Zero value
	warnings, err := cfg.Validate()

	require.NoError(t, err)

	// Check defaults applied
	assert.Equal(t, "./images", cfg.OutputDir)
	assert.Equal(t, "./crawler_state", cfg.StateDir)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 50, cfg.MaxImagesPerPage)
	assert.Equal(t, 500*time.Millisecond, cfg.DownloadDelay)
	assert.Equal(t, int64(500), cfg.MinImageBytes)
	assert.Equal(t, 8*1024, cfg.ChunkSize)
	assert.NotEmpty(t, cfg.UserAgent)

	// Retry policies
	assert.Equal(t, 3, cfg.PageRetry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.PageRetry.BaseDelay)
	assert.Equal(t, retry.StrategyExponential, cfg.PageRetry.Strategy)
	assert.Equal(t, 2, cfg.ImageRetry.MaxAttempts)

	// Queue defaults
	assert.Equal(t, "redis", cfg.Queue.Backend)
	assert.Equal(t, "localhost:6379", cfg.Queue.RedisAddr())
	assert.Equal(t, "bbs_crawler_queue", cfg.Queue.QueueKey)
	assert.Equal(t, "bbs_crawler_results", cfg.Queue.HistoryKey)
	assert.Equal(t, 5*time.Second, cfg.Queue.PopTimeout)
	assert.Equal(t, 5*time.Second, cfg.Queue.IdleInterval)
	assert.Equal(t, 1000, cfg.Queue.HistoryLimit)
	assert.Equal(t, 3, cfg.Queue.MaxRetries)
	assert.Equal(t, 60*time.Second, cfg.Queue.RetryDelay)

	// Check HTTP client defaults
	assert.Equal(t, 100, cfg.HTTPClientSettings.MaxIdleConns)
	assert.Equal(t, 2, cfg.HTTPClientSettings.MaxIdleConnsPerHost)
	assert.Equal(t, 90*time.Second, cfg.HTTPClientSettings.IdleConnTimeout)
	assert.Equal(t, 10*time.Second, cfg.HTTPClientSettings.TLSHandshakeTimeout)
	assert.Equal(t, 15*time.Second, cfg.HTTPClientSettings.DialerTimeout)
	assert.Equal(t, 10, cfg.HTTPClientSettings.MaxRedirects)

	// Check warnings generated
	assert.True(t, containsWarning(warnings, "output_dir is empty"))
	assert.True(t, containsWarning(warnings, "max_images_per_page should be > 0"))
}

func TestAppConfig_Validate_ValidConfig(t *testing.T) {
	cfg := AppConfig{
		OutputDir:        "/output",
		StateDir:         "/state",
		RequestTimeout:   10 * time.Second,
		MaxImagesPerPage: 20,
		DownloadDelay:    500 * time.Millisecond,
		PageRetry:        retry.Exponential(5, 2*time.Second),
		Queue: QueueConfig{
			Backend:    "memory",
			MaxRetries: 1,
			RetryDelay: 5 * time.Second,
		},
	}

	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.Empty(t, warnings)

	// Values should be preserved
	assert.Equal(t, "/output", cfg.OutputDir)
	assert.Equal(t, 20, cfg.MaxImagesPerPage)
	assert.Equal(t, 500*time.Millisecond, cfg.DownloadDelay)
	assert.Equal(t, 5, cfg.PageRetry.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.PageRetry.BaseDelay)
	assert.Equal(t, "memory", cfg.Queue.Backend)
	assert.Equal(t, 1, cfg.Queue.MaxRetries)

	policy := cfg.QueueRetryPolicy()
	assert.Equal(t, retry.StrategyLinear, policy.Strategy)
	assert.Equal(t, 10*time.Second, policy.Delay(2))
}

func TestAppConfig_Validate_NegativeValues(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(*AppConfig)
		wantWarning string
		check       func(*testing.T, *AppConfig)
	}{
		{
			name: "negative download_delay",
			setup: func(c *AppConfig) {
				c.DownloadDelay = -time.Second
			},
			wantWarning: "download_delay cannot be negative",
			check: func(t *testing.T, c *AppConfig) {
				assert.Equal(t, time.Duration(0), c.DownloadDelay)
			},
		},
		{
			name: "negative request_timeout",
			setup: func(c *AppConfig) {
				c.RequestTimeout = -time.Second
			},
			wantWarning: "request_timeout cannot be negative",
			check: func(t *testing.T, c *AppConfig) {
				assert.Equal(t, 30*time.Second, c.RequestTimeout)
			},
		},
		{
			name: "negative max_retries",
			setup: func(c *AppConfig) {
				c.Queue.MaxRetries = -1
			},
			wantWarning: "max_retries cannot be negative",
			check: func(t *testing.T, c *AppConfig) {
				assert.Equal(t, 0, c.Queue.MaxRetries)
			},
		},
		{
			name: "negative redis_db",
			setup: func(c *AppConfig) {
				c.Queue.RedisDB = -3
			},
			wantWarning: "redis_db cannot be negative",
			check: func(t *testing.T, c *AppConfig) {
				assert.Equal(t, 0, c.Queue.RedisDB)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := AppConfig{OutputDir: "/out", MaxImagesPerPage: 10}
			tt.setup(&cfg)
			warnings, err := cfg.Validate()
			require.NoError(t, err)
			assert.True(t, containsWarning(warnings, tt.wantWarning), "warnings: %v", warnings)
			tt.check(t, &cfg)
		})
	}
}

func TestAppConfig_Validate_Errors(t *testing.T) {
	t.Run("unknown queue backend", func(t *testing.T) {
		cfg := AppConfig{Queue: QueueConfig{Backend: "kafka"}}
		_, err := cfg.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, utils.ErrConfigValidation)
		assert.Contains(t, err.Error(), "kafka")
	})

	t.Run("invalid extra pattern", func(t *testing.T) {
		cfg := AppConfig{ExtraImagePatterns: []string{`(unclosed`}}
		_, err := cfg.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, utils.ErrConfigValidation)
	})
}

func TestAppConfig_Validate_ExplicitZeroRetries(t *testing.T) {
	cfg := AppConfig{}
	cfg.Queue.SetMaxRetries(0)
	_, err := cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Queue.MaxRetries)
	assert.Equal(t, DefaultQueueRetryDelay, cfg.Queue.RetryDelay)

	// A zero left unset still gets the default
	unset := AppConfig{Queue: QueueConfig{RetryDelay: time.Second}}
	_, err = unset.Validate()
	require.NoError(t, err)
	assert.Equal(t, DefaultQueueMaxRetries, unset.Queue.MaxRetries)
}

// containsWarning checks if any warning contains the given substring
func containsWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}
