// Package memstore is an in-memory tablestore.Persistence backend, used by
// tests and by callers that don't need SQLite's durability.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/arborfield/actorcore/internal/tablestore"
)

type row struct {
	sort  []string
	value any
}

// Store is a mutex-guarded map of partition -> sort-key-ordered rows.
type Store struct {
	mu   sync.Mutex
	data map[string][]row
}

// New returns an empty Store.
func New() *Store {
	return &Store{data: make(map[string][]row)}
}

func joinPartition(pk tablestore.PartitionKey) string {
	return strings.Join(pk, "\x00")
}

func compareSortKeys(a, b []string) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

func hasPrefix(sortKey, prefix []string) bool {
	if len(prefix) > len(sortKey) {
		return false
	}
	for i, p := range prefix {
		if sortKey[i] != p {
			return false
		}
	}
	return true
}

func dataOf(v any) map[string]any {
	r, ok := v.(tablestore.BaseRow)
	if ok {
		return r.Data
	}
	return nil
}

func (s *Store) Load(ctx context.Context, partition tablestore.PartitionKey, sortKey tablestore.SortKey, projection []string) (any, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.data[joinPartition(partition)]
	for _, r := range rows {
		if compareSortKeys(r.sort, []string(sortKey)) == 0 {
			return r.value, true, nil
		}
	}
	return nil, false, nil
}

func (s *Store) StoreBatch(ctx context.Context, mutations []tablestore.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range mutations {
		key := joinPartition(m.Partition)
		rows := s.data[key]
		target := []string(m.Sort)
		idx := sort.Search(len(rows), func(i int) bool {
			return compareSortKeys(rows[i].sort, target) >= 0
		})
		switch {
		case idx < len(rows) && compareSortKeys(rows[idx].sort, target) == 0:
			if m.Delete {
				rows = append(rows[:idx], rows[idx+1:]...)
			} else {
				rows[idx].value = m.Value
			}
		case !m.Delete:
			rows = append(rows, row{})
			copy(rows[idx+1:], rows[idx:])
			rows[idx] = row{sort: append([]string(nil), target...), value: m.Value}
		}
		s.data[key] = rows
	}
	return nil
}

func (s *Store) Query(ctx context.Context, input tablestore.QueryInput) (tablestore.QueryResult, error) {
	s.mu.Lock()
	rows := append([]row(nil), s.data[joinPartition(input.Partition)]...)
	s.mu.Unlock()

	from := []string(input.Range.From)
	to := []string(input.Range.To)

	var matched []row
	for _, r := range rows {
		if input.Range.Strict {
			if len(from) > 0 && compareSortKeys(r.sort, from) < 0 {
				continue
			}
			if len(to) > 0 && compareSortKeys(r.sort, to) > 0 {
				continue
			}
		} else if !hasPrefix(r.sort, from) {
			continue
		}
		matched = append(matched, r)
	}

	var filtered []row
	for _, r := range matched {
		if input.Filter == nil || input.Filter(dataOf(r.value)) {
			filtered = append(filtered, r)
		}
	}

	start := 0
	if input.ContinuationToken != "" {
		for i, r := range filtered {
			if strings.Join(r.sort, "\x00") == input.ContinuationToken {
				start = i + 1
				break
			}
		}
	}

	maxItems := input.MaxItems
	if maxItems <= 0 {
		maxItems = len(filtered)
	}
	end := start + maxItems
	if end > len(filtered) {
		end = len(filtered)
	}
	if start > len(filtered) {
		start = len(filtered)
	}

	page := filtered[start:end]
	items := make([]tablestore.Item, len(page))
	for i, r := range page {
		items[i] = tablestore.Item{Sort: tablestore.SortKey(r.sort), Value: r.value}
	}

	next := ""
	if end < len(filtered) {
		next = strings.Join(page[len(page)-1].sort, "\x00")
	}

	return tablestore.QueryResult{Items: items, ContinuationToken: next}, nil
}
