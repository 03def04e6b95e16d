package runs

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/dhedge-rebalancer/internal/domain"
)

const (
	defaultRunsDir  = "./wal/runs"
	runSegmentLimit = 1000
	runMaxSegments  = 100
	runKeyPrefix    = "rebalance_run_"
)

// WALStore keeps an append-only history of rebalance runs. It is an audit
// trail only, planning never reads from it.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore initializes a WAL-backed run history under the provided directory.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultRunsDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "run_",
		SegmentThreshold: runSegmentLimit,
		MaxSegments:      runMaxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init run history WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Save appends the run record. Callers must set record.ID.
func (s *WALStore) Save(record domain.RunRecord) error {
	if s == nil || s.wal == nil {
		return errors.New("run history is not initialized")
	}
	if record.ID == "" {
		return fmt.Errorf("run record id is required")
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "marshal run record")
	}

	key := runKeyPrefix + record.ID

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, key, payload)
}

// RunsAfter returns all run records written after the provided WAL index.
func (s *WALStore) RunsAfter(index uint64) ([]domain.RunRecordEntry, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("run history is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	entries := make([]domain.RunRecordEntry, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, ok := s.wal.Get(idx)
		if !ok || !strings.HasPrefix(key, runKeyPrefix) {
			continue
		}
		var record domain.RunRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, errors.Wrap(err, "decode run record")
		}
		entries = append(entries, domain.RunRecordEntry{
			Index:  idx,
			Record: record,
		})
	}

	return entries, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("run history is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
