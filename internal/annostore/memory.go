package annostore

import (
	"context"
	"sort"
	"sync"

	"github.com/docannex/annosync/internal/annotation"
)

// MemoryStore keeps annotations in process memory. It backs tests and
// trial deployments; the semantics match the Postgres strategy, including
// stable persistent ids across updates.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	docs   map[int64]map[int64]annotation.Fields
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: map[int64]map[int64]annotation.Fields{}}
}

func (s *MemoryStore) List(_ context.Context, docID int64, page *int) ([]*annotation.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.docs[docID]
	ids := make([]int64, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	records := make([]*annotation.Record, 0, len(ids))
	for _, id := range ids {
		rec := annotation.Hydrated(docID, rows[id])
		rec.SetPersistentID(id)
		if page != nil && rec.PageIndex() != *page {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *MemoryStore) Create(_ context.Context, docID int64, rec *annotation.Record) (*annotation.Record, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	if s.docs[docID] == nil {
		s.docs[docID] = map[int64]annotation.Fields{}
	}
	s.docs[docID][id] = annotation.CloneFields(rec.Fields)

	out := rec.Clone()
	out.SetPersistentID(id)
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, docID int64, rec *annotation.Record) (*annotation.Record, error) {
	id := rec.PersistentID()
	if id == 0 {
		return nil, ErrMissingPersistentID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.docs[docID]
	if _, ok := rows[id]; !ok {
		return nil, ErrNotFound
	}
	rows[id] = annotation.CloneFields(rec.Fields)
	return rec.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, docID, persistentID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.docs[docID]
	if _, ok := rows[persistentID]; !ok {
		return false, nil
	}
	delete(rows, persistentID)
	return true, nil
}

func (s *MemoryStore) Close() error { return nil }
