package config

import (
	"fmt"
	"time"

	"img-scraper/pkg/retry"
	"img-scraper/pkg/utils"
)

// Defaults applied by Validate
const (
	DefaultUserAgent        = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	DefaultAcceptLanguage   = "zh-CN,zh;q=0.8,en-US;q=0.5,en;q=0.3"
	DefaultOutputDir        = "./images"
	DefaultStateDir         = "./crawler_state"
	DefaultRequestTimeout   = 30 * time.Second
	DefaultMaxImagesPerPage = 50
	DefaultDownloadDelay    = 500 * time.Millisecond
	DefaultMinImageBytes    = 500
	DefaultChunkSize        = 8 * 1024
	DefaultMaxPageBytes     = 10 * 1024 * 1024
	DefaultQueueKey         = "bbs_crawler_queue"
	DefaultHistoryKey       = "bbs_crawler_results"
	DefaultHistoryLimit     = 1000
	DefaultQueueMaxRetries  = 3
	DefaultQueueRetryDelay  = 60 * time.Second
	DefaultPopTimeout       = 5 * time.Second
	DefaultIdleInterval     = 5 * time.Second
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// OutputDir
	if c.OutputDir == "" {
		warnings = append(warnings, "output_dir is empty, defaulting to '"+DefaultOutputDir+"'")
		c.OutputDir = DefaultOutputDir
	}

	// StateDir
	if c.StateDir == "" {
		c.StateDir = DefaultStateDir
	}

	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.AcceptLanguage == "" {
		c.AcceptLanguage = DefaultAcceptLanguage
	}

	// RequestTimeout
	if c.RequestTimeout < 0 {
		warnings = append(warnings, "request_timeout cannot be negative, using default")
		c.RequestTimeout = 0
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}

	// MaxImagesPerPage
	if c.MaxImagesPerPage <= 0 {
		warnings = append(warnings, fmt.Sprintf("max_images_per_page should be > 0, defaulting to %d", DefaultMaxImagesPerPage))
		c.MaxImagesPerPage = DefaultMaxImagesPerPage
	}

	// DownloadDelay: unset means the polite default, negative disables pacing
	if c.DownloadDelay == 0 {
		c.DownloadDelay = DefaultDownloadDelay
	} else if c.DownloadDelay < 0 {
		warnings = append(warnings, "download_delay cannot be negative, disabling pacing")
		c.DownloadDelay = 0
	}

	if c.MinImageBytes <= 0 {
		c.MinImageBytes = DefaultMinImageBytes
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.MaxPageBytes <= 0 {
		c.MaxPageBytes = DefaultMaxPageBytes
	}

	// Regex patterns must compile
	if _, errRe := utils.CompileRegexPatterns(c.ExtraImagePatterns); errRe != nil {
		return warnings, errRe
	}

	// Retry policies
	c.PageRetry = normalizePolicy(c.PageRetry, retry.Exponential(3, time.Second))
	c.ImageRetry = normalizePolicy(c.ImageRetry, retry.Exponential(2, time.Second))

	c.validateHTTPClientSettings()

	qWarnings, qErr := c.Queue.validate()
	warnings = append(warnings, qWarnings...)
	if qErr != nil {
		return warnings, qErr
	}

	return warnings, nil
}

// normalizePolicy fills unset fields of p from def
func normalizePolicy(p, def retry.Policy) retry.Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.Multiplier <= 0 {
		p.Multiplier = def.Multiplier
	}
	if p.Strategy == "" {
		p.Strategy = def.Strategy
	}
	return p
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
	if h.MaxRedirects <= 0 {
		h.MaxRedirects = 10
	}
}

// validate checks QueueConfig fields and applies defaults
func (q *QueueConfig) validate() (warnings []string, err error) {
	switch q.Backend {
	case "":
		q.Backend = "redis"
	case "redis", "memory":
	default:
		return nil, fmt.Errorf("%w: unknown queue backend '%s' (want redis or memory)", utils.ErrConfigValidation, q.Backend)
	}

	if q.RedisHost == "" {
		q.RedisHost = "localhost"
	}
	if q.RedisPort <= 0 {
		q.RedisPort = 6379
	}
	if q.RedisDB < 0 {
		warnings = append(warnings, "queue.redis_db cannot be negative, using 0")
		q.RedisDB = 0
	}
	if q.QueueKey == "" {
		q.QueueKey = DefaultQueueKey
	}
	if q.HistoryKey == "" {
		q.HistoryKey = DefaultHistoryKey
	}
	if q.PopTimeout <= 0 {
		q.PopTimeout = DefaultPopTimeout
	}
	if q.IdleInterval <= 0 {
		q.IdleInterval = DefaultIdleInterval
	}
	if q.HistoryLimit <= 0 {
		q.HistoryLimit = DefaultHistoryLimit
	}
	if q.MaxRetries < 0 {
		warnings = append(warnings, "queue.max_retries cannot be negative, setting to 0")
		q.SetMaxRetries(0)
	}
	if q.MaxRetries == 0 && !q.maxRetriesSet {
		q.MaxRetries = DefaultQueueMaxRetries
	}
	if q.RetryDelay <= 0 {
		q.RetryDelay = DefaultQueueRetryDelay
	}
	return warnings, nil
}
