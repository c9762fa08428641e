package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"img-scraper/pkg/utils"
)

// MemoryQueue is an in-process Queue for single-process runs and tests
type MemoryQueue struct {
	items  [][]byte
	mu     sync.Mutex
	cond   *sync.Cond // Signalled on push, close, timeout and cancellation
	closed bool
	log    *logrus.Entry
}

// NewMemoryQueue creates an empty MemoryQueue
func NewMemoryQueue(log *logrus.Entry) *MemoryQueue {
	q := &MemoryQueue{log: log}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push implements Queue
func (q *MemoryQueue) Push(_ context.Context, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("%w: push to closed memory queue", utils.ErrQueue)
	}
	q.items = append(q.items, append([]byte(nil), payload...))
	q.cond.Signal()
	return nil
}

// Pop implements Queue
func (q *MemoryQueue) Pop(ctx context.Context, timeout time.Duration) ([]byte, bool, error) {
	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, q.wake)
	defer timer.Stop()
	stop := context.AfterFunc(ctx, q.wake)
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		if q.closed {
			return nil, false, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		if !time.Now().Before(deadline) {
			return nil, false, nil
		}
		q.cond.Wait()
	}

	payload := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return payload, true, nil
}

func (q *MemoryQueue) wake() {
	q.mu.Lock()
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Len implements Queue
func (q *MemoryQueue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}

// Clear implements Queue
func (q *MemoryQueue) Clear(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := int64(len(q.items))
	q.items = nil
	q.log.Infof("Memory queue cleared, removed %d items", n)
	return n, nil
}

// Close wakes all waiters; pending items stay poppable
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		q.cond.Broadcast()
	}
	return nil
}
