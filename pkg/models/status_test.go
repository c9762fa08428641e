package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemStatus_String(t *testing.T) {
	tests := []struct {
		status ItemStatus
		want   string
	}{
		{ItemStatusUnset, "unset"},
		{ItemStatusDownloaded, "downloaded"},
		{ItemStatusExisting, "existing"},
		{ItemStatusSkipped, "skipped"},
		{ItemStatusFailed, "failed"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}

func TestItemStatus_HasAsset(t *testing.T) {
	assert.True(t, ItemStatusDownloaded.HasAsset())
	assert.True(t, ItemStatusExisting.HasAsset())
	assert.False(t, ItemStatusSkipped.HasAsset())
	assert.False(t, ItemStatusFailed.HasAsset())
	assert.False(t, ItemStatusUnset.HasAsset())
}

func TestTaskState_IsTerminal(t *testing.T) {
	tests := []struct {
		state TaskState
		want  bool
	}{
		{TaskStatePending, false},
		{TaskStateProcessing, false},
		{TaskStateRetrying, false},
		{TaskStateSucceeded, true},
		{TaskStateFailed, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.IsTerminal(), "TaskState(%q).IsTerminal()", string(tt.state))
	}
}

func TestRecordStatus_IsValid(t *testing.T) {
	assert.True(t, RecordStatusSuccess.IsValid())
	assert.True(t, RecordStatusFailed.IsValid())
	assert.True(t, RecordStatusError.IsValid())
	assert.False(t, RecordStatus("").IsValid())
	assert.False(t, RecordStatus("arbitrary").IsValid())
}

func TestTaskPayload_DefaultRetryCount(t *testing.T) {
	var p TaskPayload
	require.NoError(t, json.Unmarshal([]byte(`{"url":"https://example.com/t/1","source":"webhook"}`), &p))
	assert.Equal(t, 0, p.RetryCount)
	assert.Equal(t, "webhook", p.Source)
}

func TestHistoryRecord_OmitEmpty(t *testing.T) {
	rec := HistoryRecord{
		Task:        TaskPayload{URL: "https://example.com"},
		Status:      RecordStatusError,
		CompletedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	raw := string(data)
	assert.NotContains(t, raw, `"result"`)
	assert.NotContains(t, raw, `"detail"`)
	assert.Contains(t, raw, `"retry_count":0`)
}

func TestCrawlOutcome_AssetPaths(t *testing.T) {
	o := CrawlOutcome{Assets: []DownloadedAsset{{Path: "/a/1.jpg"}, {Path: "/a/2.png"}}}
	assert.Equal(t, []string{"/a/1.jpg", "/a/2.png"}, o.AssetPaths())
}
