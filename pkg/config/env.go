package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process environment.
// Variables already set are not overwritten; missing files are ignored.
func LoadDotEnv(files ...string) error {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

// ApplyEnv overrides config fields from environment variables using lookup.
// Returns an error naming the first variable that fails to parse.
func (c *AppConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
		*dst = n
		return nil
	}
	// Durations accept Go syntax ("90s") or bare seconds ("60")
	duration := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = time.Duration(secs * float64(time.Second))
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("BBS_SAVE_PATH", &c.OutputDir)
	str("REDIS_HOST", &c.Queue.RedisHost)
	str("REDIS_PASSWORD", &c.Queue.RedisPassword)
	str("QUEUE_NAME", &c.Queue.QueueKey)
	str("RESULT_KEY", &c.Queue.HistoryKey)
	str("QUEUE_BACKEND", &c.Queue.Backend)
	str("METRICS_ADDR", &c.MetricsAddr)

	for _, step := range []func() error{
		func() error { return integer("BBS_MAX_IMAGES", &c.MaxImagesPerPage) },
		func() error { return duration("BBS_TIMEOUT", &c.RequestTimeout) },
		func() error { return integer("REDIS_PORT", &c.Queue.RedisPort) },
		func() error { return integer("REDIS_DB", &c.Queue.RedisDB) },
		func() error { return duration("PROCESS_INTERVAL", &c.Queue.IdleInterval) },
		func() error {
			if v, ok := lookup("MAX_RETRIES"); ok && v != "" {
				c.Queue.maxRetriesSet = true
			}
			return integer("MAX_RETRIES", &c.Queue.MaxRetries)
		},
		func() error { return duration("RETRY_DELAY", &c.Queue.RetryDelay) },
	} {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}
