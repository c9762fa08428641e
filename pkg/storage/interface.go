package storage

import (
	"context"

	"img-scraper/pkg/models"
)

// History is the bounded, time-ordered record of terminal task outcomes.
// Implementations keep at most their configured limit of records, evicting the oldest first.
type History interface {
	// Append stores rec and trims the history to its limit
	Append(ctx context.Context, rec models.HistoryRecord) error

	// Count returns the number of stored records
	Count(ctx context.Context) (int64, error)

	// Recent returns up to n records, newest first
	Recent(ctx context.Context, n int) ([]models.HistoryRecord, error)

	// Close releases resources owned by the history
	Close() error
}
