package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"img-scraper/pkg/config"
	"img-scraper/pkg/fetch"
	"img-scraper/pkg/models"
	"img-scraper/pkg/retry"
	"img-scraper/pkg/storage"
	"img-scraper/pkg/utils"
)

const defaultSource = "unknown"

// Crawler runs one crawl to a terminal outcome
type Crawler interface {
	Crawl(ctx context.Context, target models.CrawlTarget) models.CrawlOutcome
}

// Recorder receives task lifecycle events
type Recorder interface {
	TaskTransition(state models.TaskState)
	SetQueueLength(n int64)
}

type nopRecorder struct{}

func (nopRecorder) TaskTransition(models.TaskState) {}
func (nopRecorder) SetQueueLength(int64)            {}

// Processor consumes tasks one at a time:
// Pending -> Processing -> Succeeded | Retrying (re-pushed) | Failed.
type Processor struct {
	queue    Queue
	history  storage.History
	crawler  Crawler
	cfg      config.QueueConfig
	backoff  retry.Policy
	recorder Recorder
	log      *logrus.Entry

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewProcessor creates a Processor. recorder may be nil.
func NewProcessor(q Queue, history storage.History, crawler Crawler, cfg *config.AppConfig, recorder Recorder, log *logrus.Entry) *Processor {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Processor{
		queue:    q,
		history:  history,
		crawler:  crawler,
		cfg:      cfg.Queue,
		backoff:  cfg.QueueRetryPolicy(),
		recorder: recorder,
		log:      log,
		now:      time.Now,
		sleep:    retry.Sleep,
	}
}

// Run pops and processes tasks until ctx is cancelled. Cancellation is observed before each
// dequeue; a task already being processed runs to its outcome. Returns nil on shutdown.
func (p *Processor) Run(ctx context.Context) error {
	p.log.WithField("idle_interval", p.cfg.IdleInterval).Info("Queue processor started")
	for {
		if ctx.Err() != nil {
			p.log.Info("Queue processor stopping")
			return nil
		}

		raw, ok, err := p.queue.Pop(ctx, p.cfg.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.log.WithError(err).Error("Dequeue failed")
			_ = p.sleep(ctx, p.cfg.IdleInterval)
			continue
		}
		p.observeLength(ctx)
		if !ok {
			_ = p.sleep(ctx, p.cfg.IdleInterval)
			continue
		}

		if state := p.ProcessRaw(ctx, raw); !state.IsTerminal() {
			p.log.WithField("state", state).Debug("Task handed back to the queue")
		}
	}
}

// ProcessRaw handles one payload and returns the state the task ended in
func (p *Processor) ProcessRaw(ctx context.Context, raw []byte) models.TaskState {
	p.recorder.TaskTransition(models.TaskStatePending)

	payload, err := decodePayload(raw)
	if err != nil {
		p.log.WithError(err).WithField("payload", string(raw)).Error("Malformed task payload, dropping")
		p.record(ctx, models.HistoryRecord{
			Task:   payload,
			Status: models.RecordStatusError,
			Detail: string(raw),
		})
		p.recorder.TaskTransition(models.TaskStateFailed)
		return models.TaskStateFailed
	}

	taskLog := p.log.WithFields(logrus.Fields{
		"task_url":    payload.URL,
		"source":      payload.Source,
		"retry_count": payload.RetryCount,
	})
	taskLog.Info("Processing task")
	p.recorder.TaskTransition(models.TaskStateProcessing)

	outcome := p.crawler.Crawl(ctx, targetFrom(payload))

	switch {
	case outcome.Success:
		taskLog.Infof("Task succeeded: %s", outcome.Message)
		p.record(ctx, models.HistoryRecord{Task: payload, Result: &outcome, Status: models.RecordStatusSuccess})
		p.recorder.TaskTransition(models.TaskStateSucceeded)
		return models.TaskStateSucceeded

	case ctx.Err() != nil:
		// Shutdown interrupted the crawl; hand the task back unchanged
		taskLog.Warn("Task interrupted by shutdown, re-queueing without consuming a retry")
		p.push(context.WithoutCancel(ctx), payload, taskLog)
		p.recorder.TaskTransition(models.TaskStatePending)
		return models.TaskStatePending

	case payload.RetryCount < p.cfg.MaxRetries:
		p.recorder.TaskTransition(models.TaskStateRetrying)
		next := payload.RetryCount + 1
		delay := p.backoff.Delay(next)
		taskLog.WithField("delay", delay).Warnf("Task failed (%s), retrying", outcome.Message)

		// The wait is cut short on shutdown, but the task is still re-pushed
		_ = p.sleep(ctx, delay)

		payload.RetryCount = next
		payload.RetryTimestamp = p.now().Format(time.RFC3339Nano)
		p.push(context.WithoutCancel(ctx), payload, taskLog)
		return models.TaskStateRetrying

	default:
		taskLog.Errorf("Task failed after %d retries, giving up: %s", payload.RetryCount, outcome.Message)
		detail := outcome.Message
		if outcome.ErrorType != "" {
			detail = outcome.ErrorType + ": " + detail
		}
		p.record(ctx, models.HistoryRecord{Task: payload, Result: &outcome, Status: models.RecordStatusFailed, Detail: detail})
		p.recorder.TaskTransition(models.TaskStateFailed)
		return models.TaskStateFailed
	}
}

func (p *Processor) push(ctx context.Context, payload models.TaskPayload, taskLog *logrus.Entry) {
	data, err := json.Marshal(payload)
	if err == nil {
		err = p.queue.Push(ctx, data)
	}
	if err != nil {
		taskLog.WithError(err).Error("Failed to re-queue task")
		return
	}
	taskLog.Info("Task re-queued")
}

// record appends to history; a history failure is logged and never fails the task
func (p *Processor) record(ctx context.Context, rec models.HistoryRecord) {
	rec.CompletedAt = p.now()
	if err := p.history.Append(context.WithoutCancel(ctx), rec); err != nil {
		p.log.WithError(err).Error("Failed to record task result")
		return
	}
	p.log.WithField("status", rec.Status).Debug("Task result recorded")
}

func (p *Processor) observeLength(ctx context.Context) {
	if n, err := p.queue.Len(ctx); err == nil {
		p.recorder.SetQueueLength(n)
	}
}

// Status returns a snapshot of queue length and history size
func (p *Processor) Status(ctx context.Context) (models.QueueStatus, error) {
	return Status(ctx, p.queue, p.history, p.now())
}

// Status returns a snapshot of queue length and history size
func Status(ctx context.Context, q Queue, history storage.History, now time.Time) (models.QueueStatus, error) {
	length, err := q.Len(ctx)
	if err != nil {
		return models.QueueStatus{}, err
	}
	count, err := history.Count(ctx)
	if err != nil {
		return models.QueueStatus{}, err
	}
	return models.QueueStatus{QueueLength: length, ResultCount: count, Timestamp: now}, nil
}

// Enqueue validates rawURL and pushes a fresh payload for it
func Enqueue(ctx context.Context, q Queue, rawURL, source string, now time.Time) (models.TaskPayload, error) {
	target, err := fetch.ParseTargetURL(rawURL)
	if err != nil {
		return models.TaskPayload{}, err
	}
	if source == "" {
		source = defaultSource
	}
	payload := models.TaskPayload{
		URL:       target.String(),
		Source:    source,
		Timestamp: now.Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return models.TaskPayload{}, fmt.Errorf("%w: JSON encoding task: %w", utils.ErrParsing, err)
	}
	if err := q.Push(ctx, data); err != nil {
		return models.TaskPayload{}, err
	}
	return payload, nil
}

// decodePayload parses raw into a payload with a usable URL.
// On error the returned payload holds whatever fields could be decoded.
func decodePayload(raw []byte) (models.TaskPayload, error) {
	var payload models.TaskPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return models.TaskPayload{}, fmt.Errorf("%w: %w", utils.ErrMalformedTask, err)
	}
	payload.URL = strings.TrimSpace(payload.URL)
	if payload.URL == "" {
		return payload, fmt.Errorf("%w: missing url", utils.ErrMalformedTask)
	}
	if payload.RetryCount < 0 {
		return payload, fmt.Errorf("%w: negative retry_count %d", utils.ErrMalformedTask, payload.RetryCount)
	}
	if _, err := parseTimestamp(payload.Timestamp); err != nil {
		return payload, fmt.Errorf("%w: %w", utils.ErrMalformedTask, err)
	}
	if payload.Source == "" {
		payload.Source = defaultSource
	}
	return payload, nil
}

// targetFrom expects a payload accepted by decodePayload
func targetFrom(payload models.TaskPayload) models.CrawlTarget {
	submitted, _ := parseTimestamp(payload.Timestamp)
	return models.CrawlTarget{
		ID:         uuid.NewString(),
		URL:        payload.URL,
		Source:     payload.Source,
		Timestamp:  submitted,
		RetryCount: payload.RetryCount,
	}
}

// isoLayouts covers RFC 3339 and the zone-less form emitted by other producers
var isoLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05"}

// parseTimestamp accepts an absent timestamp as the zero time; anything else must match isoLayouts
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
