package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"img-scraper/pkg/retry"
)

// AppConfig holds the application configuration consumed by the engine and the queue worker.
// It is built once at startup and passed down explicitly.
type AppConfig struct {
	OutputDir          string           `yaml:"output_dir"`               // Root under which per-page folders are created
	StateDir           string           `yaml:"state_dir"`                // Local state (Badger history when not using Redis)
	UserAgent          string           `yaml:"user_agent,omitempty"`     // Browser-like UA sent on every request
	AcceptLanguage     string           `yaml:"accept_language,omitempty"`
	RequestTimeout     time.Duration    `yaml:"request_timeout"`          // Per-request timeout (page and image)
	MaxImagesPerPage   int              `yaml:"max_images_per_page"`      // Candidates beyond this are dropped
	DownloadDelay      time.Duration    `yaml:"download_delay"`           // Pause between successive image downloads
	MinImageBytes      int64            `yaml:"min_image_bytes"`          // Smaller files are deleted as non-images
	ChunkSize          int              `yaml:"chunk_size,omitempty"`     // Streaming buffer size
	MaxPageBytes       int64            `yaml:"max_page_bytes,omitempty"` // Cap on page body size
	RespectRobots      bool             `yaml:"respect_robots,omitempty"` // Check robots.txt before fetching a page
	ExtraImagePatterns []string         `yaml:"extra_image_patterns,omitempty"`
	PageRetry          retry.Policy     `yaml:"page_retry"`  // Page fetch policy (3 attempts, 1s doubling)
	ImageRetry         retry.Policy     `yaml:"image_retry"` // Image fetch policy (2 attempts)
	HTTPClientSettings HTTPClientConfig `yaml:"http_client_settings,omitempty"`
	Queue              QueueConfig      `yaml:"queue"`
	MetricsAddr        string           `yaml:"metrics_addr,omitempty"` // Prometheus listener for the worker ("" disables)
}

// QueueConfig holds settings for the queue-driven deployment mode
type QueueConfig struct {
	Backend       string        `yaml:"backend"` // "redis" or "memory"
	RedisHost     string        `yaml:"redis_host"`
	RedisPort     int           `yaml:"redis_port"`
	RedisPassword string        `yaml:"redis_password,omitempty"`
	RedisDB       int           `yaml:"redis_db"`
	QueueKey      string        `yaml:"queue_key"`      // Redis list holding pending payloads
	HistoryKey    string        `yaml:"history_key"`    // Redis sorted set holding outcome records
	PopTimeout    time.Duration `yaml:"pop_timeout"`    // Blocking pop timeout
	IdleInterval  time.Duration `yaml:"idle_interval"`  // Sleep when the queue is empty
	HistoryLimit  int           `yaml:"history_limit"`  // Most recent records kept
	MaxRetries    int           `yaml:"max_retries"`    // Task-level retry bound
	RetryDelay    time.Duration `yaml:"retry_delay"`    // Linear backoff unit: delay = RetryDelay * attempt

	maxRetriesSet bool // an explicit max_retries (including 0) is kept by Validate
}

// UnmarshalYAML records whether max_retries was present in the document
func (q *QueueConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain QueueConfig
	if err := value.Decode((*plain)(q)); err != nil {
		return err
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		if value.Content[i].Value == "max_retries" {
			q.maxRetriesSet = true
		}
	}
	return nil
}

// SetMaxRetries sets an explicit retry bound; zero disables task-level retries
func (q *QueueConfig) SetMaxRetries(n int) {
	q.MaxRetries = n
	q.maxRetriesSet = true
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // nil=default(true), true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
	MaxRedirects          int           `yaml:"max_redirects,omitempty"`
}

// QueueRetryPolicy returns the linear task-level backoff policy
func (c *AppConfig) QueueRetryPolicy() retry.Policy {
	return retry.Linear(c.Queue.MaxRetries, c.Queue.RetryDelay)
}

// RedisAddr returns host:port for the Redis backend
func (q QueueConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", q.RedisHost, q.RedisPort)
}

// Load reads and parses a YAML config file. A missing file yields an empty config
// when allowMissing is set, so defaults and environment overrides still apply.
func Load(path string, allowMissing bool) (*AppConfig, error) {
	var cfg AppConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if allowMissing && os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
