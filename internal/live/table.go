package live

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/gracefellowship/fellowship/internal/gateway"
)

// Table is a keyed local copy of server rows. It is fed from two producers,
// the initial REST fetch (Hydrate) and gateway changes (Apply), and merges
// them by primary key so duplicate or overlapping deliveries never produce
// duplicate rows.
type Table[T any] struct {
	mu    sync.Mutex
	rows  map[int64]T
	key   func(T) int64
	cmp   func(a, b T) int
	merge func(stored, incoming T) T
	// streamed holds keys last written by a change event. A snapshot row
	// for such a key is older than what the stream delivered.
	streamed map[int64]struct{}
}

// NewTable creates a table keyed by key and ordered by cmp.
func NewTable[T any](key func(T) int64, cmp func(a, b T) int) *Table[T] {
	return &Table[T]{rows: make(map[int64]T), streamed: make(map[int64]struct{}), key: key, cmp: cmp}
}

// WithMerge sets how an incoming row combines with the stored one. Without
// it the incoming row replaces the stored row.
func (t *Table[T]) WithMerge(merge func(stored, incoming T) T) *Table[T] {
	t.merge = merge
	return t
}

// Hydrate merges a batch of fetched rows. Rows already received from the
// stream are kept as they are.
func (t *Table[T]) Hydrate(rows []T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range rows {
		if _, ok := t.streamed[t.key(r)]; ok {
			continue
		}
		t.upsertLocked(r)
	}
}

// Upsert merges one row and returns the previously stored row, if any.
func (t *Table[T]) Upsert(row T) (prev T, existed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.upsertLocked(row)
}

func (t *Table[T]) upsertLocked(row T) (prev T, existed bool) {
	k := t.key(row)
	prev, existed = t.rows[k]
	if existed && t.merge != nil {
		row = t.merge(prev, row)
	}
	t.rows[k] = row
	return prev, existed
}

// Apply decodes the new row of a change event and merges it.
func (t *Table[T]) Apply(change gateway.RawChange) (row T, prev T, existed bool, err error) {
	if len(change.New) == 0 {
		return row, prev, false, fmt.Errorf("change on %s has no row", change.Table)
	}
	if err := json.Unmarshal(change.New, &row); err != nil {
		return row, prev, false, fmt.Errorf("decoding %s row: %w", change.Table, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, existed = t.upsertLocked(row)
	k := t.key(row)
	t.streamed[k] = struct{}{}
	return t.rows[k], prev, existed, nil
}

// Get returns the stored row with the given key.
func (t *Table[T]) Get(key int64) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	row, ok := t.rows[key]
	return row, ok
}

// Rows returns a sorted copy of all rows.
func (t *Table[T]) Rows() []T {
	t.mu.Lock()
	out := make([]T, 0, len(t.rows))
	for _, r := range t.rows {
		out = append(out, r)
	}
	t.mu.Unlock()
	slices.SortFunc(out, t.cmp)
	return out
}

func (t *Table[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rows)
}
