package remote

import (
	"context"
	"time"
)

// Record is one row of a synchronized table, field name to value. Values are
// whatever the backend hands back: strings, numbers, time.Time, nil.
type Record = map[string]any

// Query narrows a Select. The zero value selects every row.
type Query struct {
	// Eq filters on exact field equality.
	Eq map[string]any

	// Since keeps rows whose value in any of SinceFields is at or after the
	// cursor. Ignored when nil.
	Since       *time.Time
	SinceFields []string

	OrderBy    string
	Descending bool
	Limit      int64
}

// Store is the contract the sync subsystem consumes for the authoritative
// backend. A SQL connection pool and a document store both implement it; the
// controller never sees past this interface.
type Store interface {
	// Select returns the rows of table matching q.
	Select(ctx context.Context, table string, q Query) ([]Record, error)

	// Get fetches one row by primary key. A missing row is (nil, nil), not an
	// error.
	Get(ctx context.Context, table, id string) (Record, error)

	// Insert adds a new row. A duplicate primary key surfaces as a
	// KindConflict error.
	Insert(ctx context.Context, table string, rec Record) error

	// Update applies a partial record to the row with the given id.
	Update(ctx context.Context, table, id string, rec Record) error

	// Delete removes a row, reporting whether one existed.
	Delete(ctx context.Context, table, id string) (bool, error)

	// Columns lists the real column names of table, used to filter records
	// down to fields the destination actually has before a write. A nil slice
	// means the backend cannot enumerate columns (schemaless store with no
	// data yet) and filtering is skipped.
	Columns(ctx context.Context, table string) ([]string, error)

	// Ping is the lightweight reachability probe used by status reporting and
	// as the cycle-level availability gate.
	Ping(ctx context.Context) error
}
