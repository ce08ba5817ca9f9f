package repository

import (
	"context"
	"iter"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/k-taniguchi/sidekick/pkg/model"
)

// MemStore is an in-process MemoryStore. It serves tests, the offline
// chat command, and any deployment that does not need durability.
type MemStore struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]*model.MemoryRecord
	now        func() time.Time
}

// NewMemStore creates an empty in-process store.
func NewMemStore() *MemStore {
	return &MemStore{
		namespaces: make(map[string]map[string]*model.MemoryRecord),
		now:        time.Now,
	}
}

func (s *MemStore) Put(ctx context.Context, ns model.NamespacePath, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nsKey := ns.String()
	records, ok := s.namespaces[nsKey]
	if !ok {
		records = make(map[string]*model.MemoryRecord)
		s.namespaces[nsKey] = records
	}

	records[key] = &model.MemoryRecord{
		Namespace: ns.Child(), // copy
		Key:       key,
		Value:     value,
		UpdatedAt: s.now(),
	}
	return nil
}

func (s *MemStore) Get(ctx context.Context, ns model.NamespacePath, key string) (*model.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, ok := s.namespaces[ns.String()]
	if !ok {
		return nil, nil
	}
	record, ok := records[key]
	if !ok {
		return nil, nil
	}

	copied := *record
	return &copied, nil
}

func (s *MemStore) ListKeys(ctx context.Context, ns model.NamespacePath) (iter.Seq[string], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.namespaces[ns.String()]))
	for key := range s.namespaces[ns.String()] {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return func(yield func(string) bool) {
		for _, key := range keys {
			if !yield(key) {
				return
			}
		}
	}, nil
}

func (s *MemStore) Search(ctx context.Context, ns model.NamespacePath, query string) ([]*model.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := ns.String()
	var matched []*model.MemoryRecord
	scores := make(map[*model.MemoryRecord]int)

	for nsKey, records := range s.namespaces {
		if !inSubtree(nsKey, prefix) {
			continue
		}
		for _, record := range records {
			score := relevance(record, query)
			if score == 0 {
				continue
			}
			copied := *record
			matched = append(matched, &copied)
			scores[&copied] = score
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if scores[matched[i]] != scores[matched[j]] {
			return scores[matched[i]] > scores[matched[j]]
		}
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})

	return matched, nil
}

func (s *MemStore) Delete(ctx context.Context, ns model.NamespacePath, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if records, ok := s.namespaces[ns.String()]; ok {
		delete(records, key)
	}
	return nil
}

// inSubtree reports whether nsKey is path or a descendant of path.
// The check is segment-aligned so that "users/A" does not capture
// "users/AB".
func inSubtree(nsKey, path string) bool {
	if nsKey == path {
		return true
	}
	return strings.HasPrefix(nsKey, path+"/")
}

// relevance counts case-insensitive occurrences of query across the
// record's key and value. Zero means no match.
func relevance(record *model.MemoryRecord, query string) int {
	q := strings.ToLower(query)
	if q == "" {
		return 1
	}
	return strings.Count(strings.ToLower(record.Key), q) +
		strings.Count(strings.ToLower(record.Value), q)
}
