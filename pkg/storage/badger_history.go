package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"img-scraper/pkg/log"
	"img-scraper/pkg/models"
	"img-scraper/pkg/utils"
)

const (
	historyKeyPrefix = "hist:"      // Followed by big-endian unix nanos and a uuid, so keys sort by time
	historyDBDir     = "history_db" // Subdirectory name within stateDir for Badger DB files
)

// BadgerHistory implements History on an embedded BadgerDB, for runs without Redis
type BadgerHistory struct {
	db    *badger.DB
	limit int
	mu    sync.Mutex // Serializes append+trim so the count stays exact
	count int64
	log   *logrus.Entry
}

// NewBadgerHistory opens (or creates) the history database under stateDir
func NewBadgerHistory(stateDir string, limit int, logger *logrus.Entry) (*BadgerHistory, error) {
	dbPath := filepath.Join(stateDir, historyDBDir)
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create state directory %s: %w", utils.ErrFilesystem, dbPath, err)
	}

	logger.Infof("Opening history database at: %s", dbPath)
	opts := badger.DefaultOptions(dbPath).
		WithLogger(log.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dbPath, err)
	}

	h := &BadgerHistory{db: db, limit: limit, log: logger}
	keys, err := h.keys(false, 0)
	if err != nil {
		db.Close()
		return nil, err
	}
	h.count = int64(len(keys))
	return h, nil
}

func historyKey(t time.Time) []byte {
	key := make([]byte, 0, len(historyKeyPrefix)+8+16)
	key = append(key, historyKeyPrefix...)
	key = binary.BigEndian.AppendUint64(key, uint64(t.UnixNano()))
	id := uuid.New()
	return append(key, id[:]...)
}

// Append implements History
func (h *BadgerHistory) Append(_ context.Context, rec models.HistoryRecord) error {
	if !rec.Status.IsValid() {
		return utils.WrapErrorf(utils.ErrParsing, "invalid record status '%s'", rec.Status)
	}
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now()
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: JSON encoding history record: %w", utils.ErrParsing, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	key := historyKey(rec.CompletedAt)
	if err := h.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key, value))
	}); err != nil {
		return fmt.Errorf("%w: storing history record: %w", utils.ErrDatabase, err)
	}
	h.count++

	if h.limit > 0 && h.count > int64(h.limit) {
		return h.trim(int(h.count) - h.limit)
	}
	return nil
}

// trim deletes the n oldest records. Caller holds mu.
func (h *BadgerHistory) trim(n int) error {
	oldest, err := h.keys(false, n)
	if err != nil {
		return err
	}
	wb := h.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range oldest {
		if err := wb.Delete(k); err != nil {
			return fmt.Errorf("%w: trimming history: %w", utils.ErrDatabase, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("%w: trimming history: %w", utils.ErrDatabase, err)
	}
	h.count -= int64(len(oldest))
	h.log.Debugf("Trimmed %d history records", len(oldest))
	return nil
}

// keys lists up to n history keys (0 = all), oldest first unless reverse is set
func (h *BadgerHistory) keys(reverse bool, n int) ([][]byte, error) {
	var out [][]byte
	err := h.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = reverse
		opts.Prefix = []byte(historyKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(seekKey(reverse)); it.Valid(); it.Next() {
			out = append(out, it.Item().KeyCopy(nil))
			if n > 0 && len(out) >= n {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: scanning history: %w", utils.ErrDatabase, err)
	}
	return out, nil
}

// seekKey returns the iteration start; reverse iteration starts past the last possible key
func seekKey(reverse bool) []byte {
	if !reverse {
		return []byte(historyKeyPrefix)
	}
	return append([]byte(historyKeyPrefix), bytes.Repeat([]byte{0xFF}, 32)...)
}

// Count implements History
func (h *BadgerHistory) Count(_ context.Context) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count, nil
}

// Recent implements History
func (h *BadgerHistory) Recent(_ context.Context, n int) ([]models.HistoryRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	var records []models.HistoryRecord
	err := h.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(historyKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(seekKey(true)); it.Valid() && len(records) < n; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec models.HistoryRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					h.log.Warnf("Skipping undecodable history record %x: %v", it.Item().Key(), err)
					return nil
				}
				records = append(records, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: reading history: %w", utils.ErrDatabase, err)
	}
	return records, nil
}

// RunGC runs BadgerDB's value log garbage collection periodically until ctx is done
func (h *BadgerHistory) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if h.db.IsClosed() {
				return
			}
			var err error
			for err == nil {
				err = h.db.RunValueLogGC(0.5)
			}
			if !errors.Is(err, badger.ErrNoRewrite) {
				h.log.Errorf("BadgerDB GC error: %v", err)
			}
		case <-ctx.Done():
			h.log.Debugf("Stopping BadgerDB GC: %v", ctx.Err())
			return
		}
	}
}

// Close implements History
func (h *BadgerHistory) Close() error {
	if h.db == nil || h.db.IsClosed() {
		return nil
	}
	if err := h.db.Close(); err != nil {
		return fmt.Errorf("%w: closing history database: %w", utils.ErrDatabase, err)
	}
	return nil
}
