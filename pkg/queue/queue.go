package queue

import (
	"context"
	"time"
)

// Queue is a FIFO of raw task payloads. Push appends at the tail; Pop takes from the head.
type Queue interface {
	// Push appends payload to the tail of the queue
	Push(ctx context.Context, payload []byte) error

	// Pop blocks up to timeout for a payload. Returns false (and no error) when the queue stayed empty.
	Pop(ctx context.Context, timeout time.Duration) ([]byte, bool, error)

	// Len returns the number of queued payloads
	Len(ctx context.Context) (int64, error)

	// Clear removes all queued payloads and returns the number of keys (or items) removed
	Clear(ctx context.Context) (int64, error)

	// Close releases resources owned by the queue
	Close() error
}
