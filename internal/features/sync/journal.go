package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pos-billing/internal/remote"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JournalTable is the dedicated audit table in the remote store. Rows are
// appended for every attempted change and never deleted.
const JournalTable = "sync_table"

// Journal appends an audit row per attempted sync action. It is best-effort:
// a failed journal write is logged locally but never flips the outcome of the
// data write it describes.
type Journal struct {
	store remote.Store
	log   *zap.Logger
}

func NewJournal(store remote.Store, log *zap.Logger) *Journal {
	return &Journal{store: store, log: log}
}

// Log appends one entry. Duplicate-key collisions (the same record journaled
// twice in rapid succession) are tolerated with a warning, not escalated.
func (j *Journal) Log(ctx context.Context, table, recordID string, op Operation, payload remote.Record, source Source, status Status, errMsg string) {
	changeData, err := json.Marshal(payload)
	if err != nil {
		j.log.Error("failed to serialize journal payload",
			zap.String("table", table), zap.String("record_id", recordID), zap.Error(err))
		changeData = []byte("{}")
	}

	now := time.Now().UTC()
	attempts := 0
	var syncedAt any
	if status == StatusSynced {
		attempts = 1
		syncedAt = now
	}

	entry := remote.Record{
		"id":             uuid.NewString(),
		"table_name":     table,
		"record_id":      recordID,
		"operation_type": string(op),
		"change_data":    string(changeData),
		"source":         string(source),
		"status":         string(status),
		"sync_attempts":  attempts,
		"created_at":     now,
		"synced_at":      syncedAt,
		"error_message":  errMsg,
	}

	if err := j.store.Insert(ctx, JournalTable, entry); err != nil {
		if remote.IsConflict(err) {
			j.log.Warn("duplicate journal entry ignored",
				zap.String("table", table), zap.String("record_id", recordID))
			return
		}
		j.log.Error("failed to write journal entry",
			zap.String("table", table), zap.String("record_id", recordID), zap.Error(err))
	}
}

// Latest returns the most recent entry, or nil when the journal is empty.
func (j *Journal) Latest(ctx context.Context) (*JournalEntry, error) {
	entries, err := j.History(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// History returns the most recent limit entries, newest first.
func (j *Journal) History(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	records, err := j.store.Select(ctx, JournalTable, remote.Query{
		OrderBy:    "created_at",
		Descending: true,
		Limit:      int64(limit),
	})
	if err != nil {
		return nil, err
	}

	entries := make([]JournalEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, entryFromRecord(rec))
	}
	return entries, nil
}

func entryFromRecord(rec remote.Record) JournalEntry {
	entry := JournalEntry{
		ID:            stringField(rec, "id"),
		TableName:     stringField(rec, "table_name"),
		RecordID:      stringField(rec, "record_id"),
		OperationType: Operation(stringField(rec, "operation_type")),
		ChangeData:    stringField(rec, "change_data"),
		Source:        Source(stringField(rec, "source")),
		Status:        Status(stringField(rec, "status")),
		ErrorMessage:  stringField(rec, "error_message"),
	}

	switch v := rec["sync_attempts"].(type) {
	case int64:
		entry.SyncAttempts = int(v)
	case int:
		entry.SyncAttempts = v
	case float64:
		entry.SyncAttempts = int(v)
	case string:
		fmt.Sscanf(v, "%d", &entry.SyncAttempts)
	}

	if t, ok := parseTimestamp(rec["created_at"]); ok {
		entry.CreatedAt = t
	}
	if t, ok := parseTimestamp(rec["synced_at"]); ok {
		entry.SyncedAt = &t
	}

	return entry
}

func stringField(rec remote.Record, key string) string {
	if v, ok := rec[key].(string); ok {
		return v
	}
	return ""
}
