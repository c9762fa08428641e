package models

import (
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// CrawlTarget is one URL accepted for processing, plus its retry state
type CrawlTarget struct {
	ID         string    // Internal identifier used in logs
	URL        string    // Absolute URL of the page to crawl
	Source     string    // Free-form origin label ("cli", "webhook", ...)
	Timestamp  time.Time // Submission time
	RetryCount int       // Incremented on each transient failure
}

// TaskPayload is the wire format of a queued CrawlTarget
type TaskPayload struct {
	URL            string `json:"url"`
	Source         string `json:"source,omitempty"`
	Timestamp      string `json:"timestamp,omitempty"` // ISO-8601
	RetryCount     int    `json:"retry_count"`
	RetryTimestamp string `json:"retry_timestamp,omitempty"` // Set when the task is re-pushed after a failure
}

// PageDocument is a fetched and parsed page. Owned by one crawl, never persisted.
type PageDocument struct {
	Raw      []byte            // Body bytes after content decoding
	Text     string            // Body converted to UTF-8 using Encoding
	Encoding string            // Declared or detected charset name
	Doc      *goquery.Document // Parsed tag tree
	FinalURL *url.URL          // URL after redirects; used as the base for resolution
}

// ImageCandidate is a URL suspected to reference an image, prior to download validation
type ImageCandidate struct {
	URL      string
	Strategy Strategy
}

// DownloadedAsset describes a validated file on disk. Never mutated after creation.
type DownloadedAsset struct {
	Path        string `json:"path"`
	SourceURL   string `json:"source_url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type,omitempty"`
}

// ItemResult is the per-image outcome of the download stage
type ItemResult struct {
	URL    string
	Status ItemStatus
	Reason string // Error category or explanation when nothing was downloaded
	Err    error
}

// CrawlOutcome is the terminal record for a crawl invocation
type CrawlOutcome struct {
	Target      CrawlTarget       `json:"-"`
	URL         string            `json:"url"`
	Title       string            `json:"title,omitempty"`
	Success     bool              `json:"success"`
	Message     string            `json:"message"`
	Folder      string            `json:"save_path,omitempty"`
	Found       int               `json:"total_found"`
	Downloaded  int               `json:"downloaded"`
	Existing    int               `json:"existing"`
	Skipped     int               `json:"skipped"`
	Failed      int               `json:"failed"`
	Assets      []DownloadedAsset `json:"assets,omitempty"`
	ErrorType   string            `json:"error_type,omitempty"`
	CompletedAt time.Time         `json:"completed_at"`
}

// AssetPaths returns the local paths of all assets in the outcome
func (o *CrawlOutcome) AssetPaths() []string {
	paths := make([]string, 0, len(o.Assets))
	for _, a := range o.Assets {
		paths = append(paths, a.Path)
	}
	return paths
}

// HistoryRecord is one entry of the bounded outcome history
type HistoryRecord struct {
	Task        TaskPayload   `json:"task"`
	Result      *CrawlOutcome `json:"result,omitempty"`
	Status      RecordStatus  `json:"status"`
	Detail      string        `json:"detail,omitempty"` // Failure detail, or the raw payload for malformed tasks
	CompletedAt time.Time     `json:"completed_at"`
}

// QueueStatus is the snapshot returned by status queries
type QueueStatus struct {
	QueueLength int64     `json:"queue_length"`
	ResultCount int64     `json:"result_count"`
	Timestamp   time.Time `json:"timestamp"`
}
