package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"pos-billing/internal/remote"
)

// fakeStore is an in-memory Store for exercising the controller without a
// backend. Failure injection is keyed "op:table".
type fakeStore struct {
	mu      sync.Mutex
	tables  map[string]map[string]remote.Record
	order   map[string][]string // insertion order per table
	columns map[string][]string
	pingErr error
	failOps map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tables:  make(map[string]map[string]remote.Record),
		order:   make(map[string][]string),
		columns: make(map[string][]string),
		failOps: make(map[string]error),
	}
}

func (f *fakeStore) seed(table, id string, rec remote.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.put(table, id, rec)
}

func (f *fakeStore) put(table, id string, rec remote.Record) {
	if f.tables[table] == nil {
		f.tables[table] = make(map[string]remote.Record)
	}
	if _, exists := f.tables[table][id]; !exists {
		f.order[table] = append(f.order[table], id)
	}
	f.tables[table][id] = rec
}

func (f *fakeStore) count(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tables[table])
}

func (f *fakeStore) row(table, id string) remote.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tables[table][id]
}

func (f *fakeStore) fail(op, table string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOps[op+":"+table] = err
}

func (f *fakeStore) injected(op, table string) error {
	if err, ok := f.failOps[op+":"+table]; ok {
		return err
	}
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeStore) Select(ctx context.Context, table string, q remote.Query) ([]remote.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("select", table); err != nil {
		return nil, err
	}

	records := []remote.Record{}
	for _, id := range f.order[table] {
		rec := f.tables[table][id]
		if !matchEq(rec, q.Eq) {
			continue
		}
		if q.Since != nil && !matchSince(rec, q.SinceFields, *q.Since) {
			continue
		}
		records = append(records, copyRecord(rec))
	}

	if q.OrderBy != "" {
		sort.SliceStable(records, func(i, j int) bool {
			ti, _ := parseTimestamp(records[i][q.OrderBy])
			tj, _ := parseTimestamp(records[j][q.OrderBy])
			if q.Descending {
				return ti.After(tj)
			}
			return ti.Before(tj)
		})
	}
	if q.Limit > 0 && int64(len(records)) > q.Limit {
		records = records[:q.Limit]
	}
	return records, nil
}

func matchEq(rec remote.Record, eq map[string]any) bool {
	for k, v := range eq {
		if fmt.Sprintf("%v", rec[k]) != fmt.Sprintf("%v", v) {
			return false
		}
	}
	return true
}

func matchSince(rec remote.Record, fields []string, since time.Time) bool {
	for _, field := range fields {
		if t, ok := parseTimestamp(rec[field]); ok && !t.Before(since) {
			return true
		}
	}
	return false
}

func copyRecord(rec remote.Record) remote.Record {
	out := make(remote.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

func (f *fakeStore) Get(ctx context.Context, table, id string) (remote.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("get", table); err != nil {
		return nil, err
	}
	rec, ok := f.tables[table][id]
	if !ok {
		return nil, nil
	}
	return copyRecord(rec), nil
}

func (f *fakeStore) Insert(ctx context.Context, table string, rec remote.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("insert", table); err != nil {
		return err
	}
	id := fmt.Sprintf("%v", rec["id"])
	if _, exists := f.tables[table][id]; exists {
		return &remote.Error{Op: "insert", Table: table, Kind: remote.KindConflict, Err: errors.New("duplicate key")}
	}
	f.put(table, id, copyRecord(rec))
	return nil
}

func (f *fakeStore) Update(ctx context.Context, table, id string, rec remote.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("update", table); err != nil {
		return err
	}
	existing, ok := f.tables[table][id]
	if !ok {
		existing = remote.Record{"id": id}
	}
	merged := copyRecord(existing)
	for k, v := range rec {
		merged[k] = v
	}
	f.put(table, id, merged)
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, table, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tables[table][id]; !ok {
		return false, nil
	}
	delete(f.tables[table], id)
	ids := f.order[table]
	for i, existing := range ids {
		if existing == id {
			f.order[table] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return true, nil
}

func (f *fakeStore) Columns(ctx context.Context, table string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("columns", table); err != nil {
		return nil, err
	}
	return f.columns[table], nil
}
