package sync

import (
	"context"
	"testing"
	"time"

	"pos-billing/internal/remote"

	"go.uber.org/zap"
)

func TestJournalLogWritesFullRow(t *testing.T) {
	store := newFakeStore()
	journal := NewJournal(store, zap.NewNop())

	journal.Log(context.Background(), "Bills", "BILL-1", OpCreate,
		remote.Record{"id": "BILL-1", "total": 420.5}, SourceLocal, StatusSynced, "")

	if store.count(JournalTable) != 1 {
		t.Fatalf("expected 1 journal row, got %d", store.count(JournalTable))
	}

	latest, err := journal.Latest(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil {
		t.Fatal("expected an entry")
	}
	if latest.TableName != "Bills" || latest.RecordID != "BILL-1" {
		t.Errorf("entry = %+v", latest)
	}
	if latest.OperationType != OpCreate || latest.Status != StatusSynced {
		t.Errorf("entry = %+v", latest)
	}
	if latest.SyncAttempts != 1 {
		t.Errorf("synced entry should count one attempt, got %d", latest.SyncAttempts)
	}
	if latest.SyncedAt == nil {
		t.Errorf("synced entry should carry synced_at")
	}
	if latest.CreatedAt.IsZero() {
		t.Errorf("created_at missing")
	}
}

func TestJournalLogFailedEntry(t *testing.T) {
	store := newFakeStore()
	journal := NewJournal(store, zap.NewNop())

	journal.Log(context.Background(), "BillItems", "ITEM-1", OpCreate,
		remote.Record{"id": "ITEM-1"}, SourceLocal, StatusFailed, "Bills BILL-9 does not exist")

	latest, err := journal.Latest(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if latest.Status != StatusFailed {
		t.Errorf("status = %v", latest.Status)
	}
	if latest.SyncAttempts != 0 {
		t.Errorf("failed entry should not count an attempt, got %d", latest.SyncAttempts)
	}
	if latest.SyncedAt != nil {
		t.Errorf("failed entry must not carry synced_at")
	}
	if latest.ErrorMessage != "Bills BILL-9 does not exist" {
		t.Errorf("error message = %q", latest.ErrorMessage)
	}
}

func TestJournalSwallowsWriteFailures(t *testing.T) {
	store := newFakeStore()
	store.fail("insert", JournalTable, &remote.Error{
		Op: "insert", Table: JournalTable, Kind: remote.KindConflict,
	})
	journal := NewJournal(store, zap.NewNop())

	// Must not panic or surface the failure; the audit trail is best-effort.
	journal.Log(context.Background(), "Bills", "BILL-1", OpCreate,
		remote.Record{"id": "BILL-1"}, SourceLocal, StatusSynced, "")

	if store.count(JournalTable) != 0 {
		t.Errorf("write should have been dropped")
	}
}

func TestJournalLatestEmpty(t *testing.T) {
	journal := NewJournal(newFakeStore(), zap.NewNop())

	latest, err := journal.Latest(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if latest != nil {
		t.Errorf("expected nil on empty journal, got %+v", latest)
	}
}

func TestJournalHistoryLimit(t *testing.T) {
	store := newFakeStore()
	journal := NewJournal(store, zap.NewNop())

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		id := string(rune('A' + i))
		store.seed(JournalTable, id, remote.Record{
			"id":             id,
			"table_name":     "Customers",
			"record_id":      "CUST-" + id,
			"operation_type": string(OpUpdate),
			"source":         string(SourceLocal),
			"status":         string(StatusSynced),
			"created_at":     base.Add(time.Duration(i) * time.Second),
		})
	}

	entries, err := journal.History(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	// Newest first.
	if entries[0].RecordID != "CUST-E" || entries[2].RecordID != "CUST-C" {
		t.Errorf("order = %v, %v, %v",
			entries[0].RecordID, entries[1].RecordID, entries[2].RecordID)
	}
}
