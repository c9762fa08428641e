package models

// Strategy identifies the extraction heuristic that found a candidate
type Strategy string

const (
	StrategyTagAttribute Strategy = "tag_attribute" // <img src|data-src|...>
	StrategyAnchor       Strategy = "anchor"        // <a href> pointing at an image
	StrategyInlineStyle  Strategy = "inline_style"  // background-image: url(...)
	StrategyRawContent   Strategy = "raw_content"   // Regex over unparsed document text
)

// ItemStatus is the outcome of one image download attempt
type ItemStatus string

const (
	ItemStatusUnset      ItemStatus = ""           // Zero value = unset/unknown
	ItemStatusDownloaded ItemStatus = "downloaded" // Written and validated
	ItemStatusExisting   ItemStatus = "existing"   // Target file already present, not re-fetched
	ItemStatusSkipped    ItemStatus = "skipped"    // Content rejected (type/size)
	ItemStatusFailed     ItemStatus = "failed"     // Network or filesystem failure
)

// String implements fmt.Stringer for logging
func (s ItemStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// HasAsset reports whether the status leaves a usable file on disk
func (s ItemStatus) HasAsset() bool {
	return s == ItemStatusDownloaded || s == ItemStatusExisting
}

// TaskState is the queue processor state of a CrawlTarget
type TaskState string

const (
	TaskStatePending    TaskState = "pending"
	TaskStateProcessing TaskState = "processing"
	TaskStateSucceeded  TaskState = "succeeded"
	TaskStateRetrying   TaskState = "retrying"
	TaskStateFailed     TaskState = "failed"
)

// IsTerminal returns true if no further processing occurs after this state
func (s TaskState) IsTerminal() bool {
	return s == TaskStateSucceeded || s == TaskStateFailed
}

// RecordStatus is the status string stored in history records
type RecordStatus string

const (
	RecordStatusSuccess RecordStatus = "success"
	RecordStatusFailed  RecordStatus = "failed" // Retries exhausted
	RecordStatusError   RecordStatus = "error"  // Malformed payload
)

// IsValid returns true if the status is a known value
func (s RecordStatus) IsValid() bool {
	switch s {
	case RecordStatusSuccess, RecordStatusFailed, RecordStatusError:
		return true
	}
	return false
}
