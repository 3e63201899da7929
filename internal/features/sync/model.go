package sync

import (
	"time"

	"pos-billing/internal/remote"
)

type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSynced  Status = "synced"
	StatusFailed  Status = "failed"
)

// Rule is the conflict-resolution class of a table.
type Rule int

const (
	// RuleLastWriterWins resolves by the later timestamp, remote on ties.
	RuleLastWriterWins Rule = iota
	// RuleLocalAlwaysWins is for transactional facts this application is the
	// sole writer of; the remote copy cannot be edited out-of-band.
	RuleLocalAlwaysWins
)

// TimestampLayout is the canonical wire format for sync cursors and journal
// timestamps: microsecond precision, zone offset preserved.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// ParentRef names a referential dependency that must exist remotely before an
// insert is allowed (the remote layer does not enforce foreign keys
// consistently across backends).
type ParentRef struct {
	Table string
	Field string
}

// TableSpec is the static per-table sync configuration. Timestamp-column
// naming is data, not branching logic: adding a table is one registry entry.
type TableSpec struct {
	Name string

	// TimestampFields, most significant first. Which ones a table carries
	// (and whether they are camelCase or snake_case) varies by table.
	TimestampFields []string

	// IDFields in lookup order; the first non-empty one keys the record.
	IDFields []string

	Rule Rule

	// Singleton tables snapshot as one object, not a list.
	Singleton bool

	// StripFields never leak into pulled snapshots or remote writes:
	// client-side-only enrichments and legacy columns kept for backward
	// compatibility.
	StripFields []string

	// Parent, when set, is checked for existence before inserts.
	Parent *ParentRef

	// CreatorField, when set, must name a user present in the remote store or
	// the record is classified as a local-only test record and not pushed.
	CreatorField string
}

var tableSpecs = map[string]TableSpec{
	"Products": {
		Name:            "Products",
		TimestampFields: []string{"updatedAt", "createdAt"},
		IDFields:        []string{"id"},
		StripFields:     []string{"barcodes", "storeId"},
	},
	"Customers": {
		Name:            "Customers",
		TimestampFields: []string{"updatedAt", "createdAt"},
		IDFields:        []string{"id"},
	},
	"Users": {
		Name:            "Users",
		TimestampFields: []string{"updatedAt", "createdAt"},
		IDFields:        []string{"id"},
	},
	"Stores": {
		Name:            "Stores",
		TimestampFields: []string{"updatedAt", "createdAt"},
		IDFields:        []string{"id"},
	},
	"SystemSettings": {
		Name:            "SystemSettings",
		TimestampFields: []string{"updatedAt"},
		IDFields:        []string{"id"},
		Singleton:       true,
	},
	"BillFormats": {
		Name:            "BillFormats",
		TimestampFields: []string{"updatedAt", "createdAt"},
		IDFields:        []string{"id"},
	},
	"Returns": {
		Name:            "Returns",
		TimestampFields: []string{"created_at"},
		IDFields:        []string{"id", "return_id"},
	},
	"Notifications": {
		Name:            "Notifications",
		TimestampFields: []string{"createdAt"},
		IDFields:        []string{"id"},
	},
	"Bills": {
		Name:            "Bills",
		TimestampFields: []string{"updatedAt", "createdAt"},
		IDFields:        []string{"id"},
		Rule:            RuleLocalAlwaysWins,
		CreatorField:    "createdBy",
		Parent:          &ParentRef{Table: "Customers", Field: "customerId"},
	},
	"BillItems": {
		Name:            "BillItems",
		TimestampFields: []string{"updatedAt", "createdAt"},
		IDFields:        []string{"id"},
		Rule:            RuleLocalAlwaysWins,
		Parent:          &ParentRef{Table: "Bills", Field: "billId"},
	},
}

// DefaultPullTables is the fixed, deterministic order pull cycles walk when
// the caller names no tables.
var DefaultPullTables = []string{
	"Products", "Customers", "Users", "Stores",
	"SystemSettings", "BillFormats", "Returns", "Notifications",
}

// PushOriginTables are the tables whose records originate locally; the
// background push worker mirrors their snapshots to the remote store.
var PushOriginTables = []string{"Bills", "BillItems", "Returns"}

// SpecFor returns the registered spec for a table, or a permissive default
// (camelCase timestamps, last-writer-wins) for tables added remotely that the
// registry does not know yet.
func SpecFor(table string) TableSpec {
	if spec, ok := tableSpecs[table]; ok {
		return spec
	}
	return TableSpec{
		Name:            table,
		TimestampFields: []string{"updatedAt", "createdAt"},
		IDFields:        []string{"id"},
	}
}

// JournalEntry is one row of the sync_table audit log.
type JournalEntry struct {
	ID            string     `json:"id"`
	TableName     string     `json:"table_name"`
	RecordID      string     `json:"record_id"`
	OperationType Operation  `json:"operation_type"`
	ChangeData    string     `json:"change_data"`
	Source        Source     `json:"source"`
	Status        Status     `json:"status"`
	SyncAttempts  int        `json:"sync_attempts"`
	CreatedAt     time.Time  `json:"created_at"`
	SyncedAt      *time.Time `json:"synced_at,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
}

// Stats aggregates one cycle's per-record outcomes.
type Stats struct {
	TotalRecords int `json:"total_records"`
	Synced       int `json:"synced"`
	Failed       int `json:"failed"`
	TestBills    int `json:"test_bills"`
}

// TestBill records a transactional record excluded from push because its
// creator does not exist remotely. Legitimate offline activity, not an error.
type TestBill struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// CycleResult is the transient outcome of one push or pull invocation. The
// scheduler keeps the latest SyncTimestamp in memory as the next delta
// cursor; nothing here is persisted.
type CycleResult struct {
	Success       bool                       `json:"success"`
	Data          map[string][]remote.Record `json:"data,omitempty"`
	SyncedIDs     map[string][]string        `json:"synced_ids,omitempty"`
	TestBills     []TestBill                 `json:"test_bills,omitempty"`
	Errors        []string                   `json:"errors"`
	Stats         Stats                      `json:"stats"`
	SyncTimestamp string                     `json:"sync_timestamp,omitempty"`
}

func newPushResult() *CycleResult {
	return &CycleResult{
		SyncedIDs: make(map[string][]string),
		Errors:    []string{},
		TestBills: []TestBill{},
	}
}

func newPullResult() *CycleResult {
	return &CycleResult{
		Data:   make(map[string][]remote.Record),
		Errors: []string{},
	}
}
