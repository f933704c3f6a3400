package store

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"pathology-records-server/internal/docpath"
)

type memoryEntry struct {
	doc Document
	seq uint64
}

// MemoryStore keeps documents in process memory. Data is deep-copied on the
// way in and out so callers never share maps with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]*memoryEntry
	seq         uint64
	now         func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]*memoryEntry),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Create(_ context.Context, collection string, data map[string]any) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]*memoryEntry)
		s.collections[collection] = coll
	}

	now := s.now()
	s.seq++
	entry := &memoryEntry{
		doc: Document{
			ID:        uuid.NewString(),
			Data:      copyMap(data),
			CreatedAt: now,
			UpdatedAt: now,
		},
		seq: s.seq,
	}
	coll[entry.doc.ID] = entry
	return cloneDocument(&entry.doc), nil
}

func (s *MemoryStore) Get(_ context.Context, collection, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDocument(&entry.doc), nil
}

func (s *MemoryStore) Replace(_ context.Context, collection, id string, data map[string]any) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	entry.doc.Data = copyMap(data)
	entry.doc.UpdatedAt = s.now()
	return cloneDocument(&entry.doc), nil
}

func (s *MemoryStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection][id]; !ok {
		return ErrNotFound
	}
	delete(s.collections[collection], id)
	return nil
}

func (s *MemoryStore) Find(_ context.Context, collection string, q Query) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*memoryEntry
	for _, entry := range s.collections[collection] {
		if matches(entry.doc.Data, q.Filters) {
			matched = append(matched, entry)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if q.Descending {
			return matched[i].seq > matched[j].seq
		}
		return matched[i].seq < matched[j].seq
	})
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]*Document, len(matched))
	for i, entry := range matched {
		out[i] = cloneDocument(&entry.doc)
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

func matches(data map[string]any, filters []Filter) bool {
	for _, f := range filters {
		v, ok := docpath.Get(data, f.Field)
		if !ok || !reflect.DeepEqual(v, normalizeValue(f.Value)) {
			return false
		}
	}
	return true
}

func cloneDocument(d *Document) *Document {
	c := *d
	c.Data = copyMap(d.Data)
	return &c
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	case []byte:
		return append([]byte(nil), t...)
	default:
		return v
	}
}
