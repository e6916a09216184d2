package eventstore

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// MemProcessedStore is the default ProcessedStore: an in-memory table
// living for the process lifetime. Restart safety comes from the reply
// records on disk, not from here.
type MemProcessedStore struct {
	table *xsync.MapOf[string, time.Time]
}

var _ ProcessedStore = (*MemProcessedStore)(nil)

func NewMemProcessedStore() *MemProcessedStore {
	return &MemProcessedStore{
		table: xsync.NewMapOf[string, time.Time](),
	}
}

func (s *MemProcessedStore) IsProcessed(ctx context.Context, id string) (bool, error) {
	_, ok := s.table.Load(id)
	return ok, nil
}

func (s *MemProcessedStore) MarkProcessed(ctx context.Context, id string, when time.Time) error {
	// first mark wins, re-marking keeps the original timestamp
	s.table.LoadOrStore(id, when)
	return nil
}

// Size reports how many ids have been marked.
func (s *MemProcessedStore) Size() int {
	return s.table.Size()
}
