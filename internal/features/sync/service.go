package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"pos-billing/internal/localstore"
	"pos-billing/internal/remote"

	"go.uber.org/zap"
)

// SyncService reconciles records between the remote authoritative store and
// the local JSON snapshots, in both directions.
type SyncService interface {
	PushSync(ctx context.Context, syncData map[string][]remote.Record) *CycleResult
	PullSync(ctx context.Context, lastSync string, tables []string) *CycleResult
	QueueForSync(ctx context.Context, table string, rec remote.Record, op Operation) bool
	RetryPending(ctx context.Context)
	GetStatus(ctx context.Context) *StatusReport
	GetHistory(ctx context.Context, limit int) ([]JournalEntry, error)
	MergeSnapshots(result *CycleResult)
	Snapshot(ctx context.Context, table string) (any, bool)
}

// StatusReport is the getStatus payload.
type StatusReport struct {
	Status            string `json:"status"`
	DatabaseConnected bool   `json:"database_connected"`
	LastSync          string `json:"last_sync,omitempty"`
	LastSyncType      string `json:"last_sync_type,omitempty"`
	LastSyncStatus    string `json:"last_sync_status,omitempty"`
	QueueDepth        int    `json:"queue_depth"`
	Message           string `json:"message,omitempty"`
}

type SyncServiceImpl struct {
	store   remote.Store
	journal *Journal
	files   *localstore.Store
	log     *zap.Logger
	queue   retryQueue
}

func NewSyncService(store remote.Store, journal *Journal, files *localstore.Store, log *zap.Logger) SyncService {
	return &SyncServiceImpl{
		store:   store,
		journal: journal,
		files:   files,
		log:     log,
	}
}

// PushSync propagates locally-originated records to the remote store. Every
// record is its own atomic unit: one failure never aborts its siblings, and
// the stats report partial success accurately.
func (s *SyncServiceImpl) PushSync(ctx context.Context, syncData map[string][]remote.Record) *CycleResult {
	s.log.Info("starting push sync", zap.Int("tables", len(syncData)))
	result := newPushResult()

	if err := s.store.Ping(ctx); err != nil {
		s.log.Error("remote store unreachable, aborting push", zap.Error(err))
		result.Errors = append(result.Errors, fmt.Sprintf("remote store unavailable: %v", err))
		return result
	}

	for _, table := range orderedTables(syncData) {
		records := syncData[table]
		if len(records) == 0 {
			continue
		}

		spec := SpecFor(table)
		result.Stats.TotalRecords += len(records)
		syncedIDs := []string{}

		columns, err := s.store.Columns(ctx, table)
		if err != nil {
			s.log.Warn("failed to introspect columns, skipping filter",
				zap.String("table", table), zap.Error(err))
			columns = nil
		}

		for _, rec := range records {
			id, ok := recordID(rec, spec)
			if !ok {
				s.log.Warn("record missing id, rejected", zap.String("table", table))
				result.Stats.Failed++
				continue
			}

			synced, err := s.pushRecord(ctx, spec, columns, id, rec)
			if err != nil {
				s.log.Error("failed to sync record",
					zap.String("table", table), zap.String("id", id), zap.Error(err))
				result.Errors = append(result.Errors, fmt.Sprintf("%s.%s: %v", table, id, err))
				result.Stats.Failed++
				continue
			}

			switch synced {
			case pushOutcomeWritten, pushOutcomeReconciled:
				syncedIDs = append(syncedIDs, id)
				result.Stats.Synced++
			case pushOutcomeTestBill:
				result.TestBills = append(result.TestBills, TestBill{
					ID:     id,
					Reason: testBillReason(rec, spec),
				})
				result.Stats.TestBills++
				// Marked synced locally so the client stops resubmitting, but
				// never written remotely.
				syncedIDs = append(syncedIDs, id)
			}
		}

		result.SyncedIDs[table] = syncedIDs
	}

	result.Success = true
	s.log.Info("push sync finished",
		zap.Int("synced", result.Stats.Synced),
		zap.Int("failed", result.Stats.Failed),
		zap.Int("test_bills", result.Stats.TestBills))
	return result
}

type pushOutcome int

const (
	pushOutcomeWritten pushOutcome = iota
	pushOutcomeReconciled
	pushOutcomeTestBill
)

func (s *SyncServiceImpl) pushRecord(ctx context.Context, spec TableSpec, columns []string, id string, rec remote.Record) (pushOutcome, error) {
	// Orphan gate for transactional tables: a record attributable to a user
	// the remote store does not know stays local.
	if spec.CreatorField != "" {
		creator, _ := rec[spec.CreatorField].(string)
		if creator == "" || !s.userExists(ctx, creator) {
			return pushOutcomeTestBill, nil
		}
	}

	filtered, err := prepareForWrite(rec, spec, columns)
	if err != nil {
		return 0, err
	}

	existing, err := s.store.Get(ctx, spec.Name, id)
	if err != nil {
		return 0, err
	}

	if existing == nil {
		if err := s.insertWithConflictRetry(ctx, spec.Name, id, filtered); err != nil {
			return 0, err
		}
		// Audit keeps the pre-filter record for fidelity even though the
		// write sent a filtered subset.
		s.journal.Log(ctx, spec.Name, id, OpCreate, rec, SourceLocal, StatusSynced, "")
		return pushOutcomeWritten, nil
	}

	if ResolveByRule(spec, rec, existing) == WinnerLocal {
		if err := s.store.Update(ctx, spec.Name, id, filtered); err != nil {
			return 0, err
		}
		s.journal.Log(ctx, spec.Name, id, OpUpdate, rec, SourceLocal, StatusSynced, "")
		return pushOutcomeWritten, nil
	}

	// Remote copy already current; reconciled with no write needed.
	s.log.Debug("remote record newer, skipping write",
		zap.String("table", spec.Name), zap.String("id", id))
	return pushOutcomeReconciled, nil
}

// insertWithConflictRetry converts the narrow race where a row appears
// between the existence check and the insert into an update, instead of
// surfacing the duplicate-key error.
func (s *SyncServiceImpl) insertWithConflictRetry(ctx context.Context, table, id string, rec remote.Record) error {
	err := s.store.Insert(ctx, table, rec)
	if err == nil {
		return nil
	}
	if !remote.IsConflict(err) {
		return err
	}
	s.log.Warn("insert raced an existing row, retrying as update",
		zap.String("table", table), zap.String("id", id))
	return s.store.Update(ctx, table, id, rec)
}

// testBillReason distinguishes a record that never named a creator from one
// whose creator the remote store does not know.
func testBillReason(rec remote.Record, spec TableSpec) string {
	creator, _ := rec[spec.CreatorField].(string)
	if creator == "" {
		return fmt.Sprintf("record has no %s field", spec.CreatorField)
	}
	return fmt.Sprintf("creator %s does not exist in remote store", creator)
}

func (s *SyncServiceImpl) userExists(ctx context.Context, userID string) bool {
	user, err := s.store.Get(ctx, "Users", userID)
	if err != nil {
		s.log.Warn("failed to check user existence", zap.String("user_id", userID), zap.Error(err))
		return false
	}
	return user != nil
}

// PullSync fetches rows changed since lastSync (all rows when empty) for the
// named tables, defaulting to every synchronized entity. Remote is
// authoritative on pull, so no conflict resolution applies.
func (s *SyncServiceImpl) PullSync(ctx context.Context, lastSync string, tables []string) *CycleResult {
	s.log.Info("starting pull sync", zap.String("last_sync", lastSync))
	result := newPullResult()

	if len(tables) == 0 {
		tables = DefaultPullTables
	}

	if err := s.store.Ping(ctx); err != nil {
		s.log.Error("remote store unreachable, aborting pull", zap.Error(err))
		result.Errors = append(result.Errors, fmt.Sprintf("remote store unavailable: %v", err))
		return result
	}

	var cursor *time.Time
	if lastSync != "" {
		if t, ok := parseTimestamp(lastSync); ok {
			cursor = &t
		} else {
			s.log.Warn("unparseable last_sync cursor, running full pull", zap.String("last_sync", lastSync))
		}
	}

	for _, table := range tables {
		spec := SpecFor(table)

		records, err := s.store.Select(ctx, table, remote.Query{
			Since:       cursor,
			SinceFields: spec.TimestampFields,
			OrderBy:     spec.TimestampFields[0],
			Descending:  true,
		})
		if err != nil {
			s.log.Error("pull failed for table", zap.String("table", table), zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", table, err))
			continue
		}

		for _, rec := range records {
			stripFields(rec, spec)
			normalizeTimes(rec)
		}

		result.Data[table] = records
		s.log.Info("pulled table", zap.String("table", table), zap.Int("records", len(records)))
	}

	result.Success = true
	result.SyncTimestamp = time.Now().UTC().Format(TimestampLayout)
	return result
}

// QueueForSync mirrors a single user-facing write to the remote store right
// away. A false return means "keep the local copy, a later cycle retries".
func (s *SyncServiceImpl) QueueForSync(ctx context.Context, table string, rec remote.Record, op Operation) bool {
	spec := SpecFor(table)

	id, ok := recordID(rec, spec)
	if !ok {
		s.log.Error("record missing id, cannot sync", zap.String("table", table))
		return false
	}

	// Check-before-write in place of a foreign-key constraint the remote
	// layer may not enforce on every backend.
	if op == OpCreate && spec.Parent != nil {
		parentID, _ := rec[spec.Parent.Field].(string)
		if parentID != "" {
			parent, err := s.store.Get(ctx, spec.Parent.Table, parentID)
			if err != nil || parent == nil {
				s.log.Error("referenced parent does not exist, rejecting write",
					zap.String("table", table),
					zap.String("parent_table", spec.Parent.Table),
					zap.String("parent_id", parentID))
				s.journal.Log(ctx, table, id, op, rec, SourceLocal, StatusFailed,
					fmt.Sprintf("%s %s does not exist", spec.Parent.Table, parentID))
				return false
			}
		}
	}

	if err := s.writeRecord(ctx, spec, id, rec, op); err != nil {
		s.log.Error("immediate sync failed",
			zap.String("table", table), zap.String("id", id), zap.Error(err))
		s.journal.Log(ctx, table, id, op, rec, SourceLocal, StatusFailed, err.Error())
		if remote.IsTransient(err) {
			s.queue.push(retryItem{Table: table, Record: rec, Operation: op, Attempts: 1})
		}
		return false
	}

	s.journal.Log(ctx, table, id, op, rec, SourceLocal, StatusSynced, "")
	s.log.Info("immediate sync completed",
		zap.String("table", table), zap.String("id", id), zap.String("op", string(op)))
	return true
}

func (s *SyncServiceImpl) writeRecord(ctx context.Context, spec TableSpec, id string, rec remote.Record, op Operation) error {
	if op == OpDelete {
		existed, err := s.store.Delete(ctx, spec.Name, id)
		if err == nil && !existed {
			s.log.Warn("delete of a row the remote never had",
				zap.String("table", spec.Name), zap.String("id", id))
		}
		return err
	}

	columns, err := s.store.Columns(ctx, spec.Name)
	if err != nil {
		s.log.Warn("failed to introspect columns, skipping filter",
			zap.String("table", spec.Name), zap.Error(err))
		columns = nil
	}

	filtered, err := prepareForWrite(rec, spec, columns)
	if err != nil {
		return err
	}

	if op == OpUpdate {
		return s.store.Update(ctx, spec.Name, id, filtered)
	}
	return s.insertWithConflictRetry(ctx, spec.Name, id, filtered)
}

// RetryPending drains the in-memory retry queue. Items that keep failing are
// requeued until maxSyncAttempts, then journaled failed permanently.
func (s *SyncServiceImpl) RetryPending(ctx context.Context) {
	items := s.queue.drain()
	if len(items) == 0 {
		return
	}
	s.log.Info("retrying pending sync items", zap.Int("count", len(items)))

	for _, item := range items {
		spec := SpecFor(item.Table)
		id, ok := recordID(item.Record, spec)
		if !ok {
			continue
		}

		err := s.writeRecord(ctx, spec, id, item.Record, item.Operation)
		if err == nil {
			s.journal.Log(ctx, item.Table, id, item.Operation, item.Record, SourceLocal, StatusSynced, "")
			continue
		}

		item.Attempts++
		if item.Attempts >= maxSyncAttempts {
			s.log.Error("giving up on sync item",
				zap.String("table", item.Table), zap.String("id", id),
				zap.Int("attempts", item.Attempts), zap.Error(err))
			s.journal.Log(ctx, item.Table, id, item.Operation, item.Record, SourceLocal, StatusFailed,
				fmt.Sprintf("gave up after %d attempts: %v", item.Attempts, err))
			continue
		}
		s.queue.push(item)
	}
}

func (s *SyncServiceImpl) GetStatus(ctx context.Context) *StatusReport {
	report := &StatusReport{QueueDepth: s.queue.depth()}

	if err := s.store.Ping(ctx); err != nil {
		report.Status = "offline"
		report.Message = "remote store unavailable"
		return report
	}

	report.Status = "online"
	report.DatabaseConnected = true

	latest, err := s.journal.Latest(ctx)
	if err != nil {
		s.log.Debug("failed to fetch latest journal entry", zap.Error(err))
		return report
	}
	if latest != nil {
		report.LastSync = latest.CreatedAt.UTC().Format(TimestampLayout)
		report.LastSyncType = string(latest.OperationType)
		report.LastSyncStatus = string(latest.Status)
	}
	return report
}

func (s *SyncServiceImpl) GetHistory(ctx context.Context, limit int) ([]JournalEntry, error) {
	return s.journal.History(ctx, limit)
}

// MergeSnapshots folds a pull cycle's per-table results into the local files.
// A delta pull only carries the rows changed since the cursor, so pulled rows
// upsert by id into the existing snapshot rather than replacing it; rows the
// cycle did not touch stay in the cache. Singleton tables store the first
// record as a bare object.
func (s *SyncServiceImpl) MergeSnapshots(result *CycleResult) {
	for table, records := range result.Data {
		if len(records) == 0 {
			continue
		}

		spec := SpecFor(table)
		if spec.Singleton {
			if err := s.files.Write(table, records[0]); err != nil {
				s.log.Error("failed to write snapshot", zap.String("table", table), zap.Error(err))
			}
			continue
		}

		current := s.files.ReadList(table)
		index := make(map[string]int, len(current))
		for i, rec := range current {
			if id, ok := recordID(rec, spec); ok {
				index[id] = i
			}
		}

		for _, rec := range records {
			id, ok := recordID(rec, spec)
			if !ok {
				current = append(current, rec)
				continue
			}
			if i, seen := index[id]; seen {
				current[i] = rec
				continue
			}
			index[id] = len(current)
			current = append(current, rec)
		}

		if err := s.files.Write(table, current); err != nil {
			s.log.Error("failed to write snapshot", zap.String("table", table), zap.Error(err))
		}
	}
}

// Snapshot serves the remote-first read path: current remote rows when the
// store is reachable (Products enriched with their barcode list), otherwise
// the local snapshot. The second return reports which source answered.
func (s *SyncServiceImpl) Snapshot(ctx context.Context, table string) (any, bool) {
	spec := SpecFor(table)

	records, err := s.store.Select(ctx, table, remote.Query{
		OrderBy:    spec.TimestampFields[0],
		Descending: true,
	})
	if err != nil {
		s.log.Warn("remote read failed, serving local snapshot",
			zap.String("table", table), zap.Error(err))
		if spec.Singleton {
			return s.files.ReadObject(table), false
		}
		return s.files.ReadList(table), false
	}

	if table == "Products" {
		s.attachBarcodes(ctx, records)
	}
	for _, rec := range records {
		normalizeTimes(rec)
	}

	if spec.Singleton {
		if len(records) == 0 {
			return remote.Record{}, true
		}
		return records[0], true
	}
	return records, true
}

func (s *SyncServiceImpl) attachBarcodes(ctx context.Context, products []remote.Record) {
	for _, product := range products {
		id, ok := recordID(product, SpecFor("Products"))
		if !ok {
			continue
		}
		rows, err := s.store.Select(ctx, "ProductBarcodes", remote.Query{
			Eq: map[string]any{"productId": id},
		})
		if err != nil {
			s.log.Debug("barcode lookup failed", zap.String("product_id", id), zap.Error(err))
			continue
		}
		barcodes := make([]string, 0, len(rows))
		for _, row := range rows {
			if b, ok := row["barcode"].(string); ok && b != "" {
				barcodes = append(barcodes, b)
			}
		}
		product["barcodes"] = strings.Join(barcodes, ",")
	}
}

// orderedTables walks registry tables in their fixed configured order first,
// then any unregistered tables alphabetically, so cycles are deterministic.
func orderedTables(syncData map[string][]remote.Record) []string {
	var ordered []string
	seen := make(map[string]bool)

	known := append(append([]string{}, DefaultPullTables...), "Bills", "BillItems")
	for _, table := range known {
		if _, ok := syncData[table]; ok {
			ordered = append(ordered, table)
			seen[table] = true
		}
	}

	var rest []string
	for table := range syncData {
		if !seen[table] {
			rest = append(rest, table)
		}
	}
	sort.Strings(rest)
	return append(ordered, rest...)
}

// recordID extracts the primary key, trying the table's configured id fields
// in order. Records without one are rejected before any write.
func recordID(rec remote.Record, spec TableSpec) (string, bool) {
	for _, field := range spec.IDFields {
		switch v := rec[field].(type) {
		case string:
			if v != "" {
				return v, true
			}
		case nil:
		default:
			return fmt.Sprintf("%v", v), true
		}
	}
	return "", false
}

// filterToSchema keeps only the fields the destination table really has.
// Mandatory before every write: source records carry client-side-only fields
// that would otherwise fail the remote schema.
func filterToSchema(rec remote.Record, columns []string) remote.Record {
	if columns == nil {
		out := make(remote.Record, len(rec))
		for k, v := range rec {
			out[k] = v
		}
		return out
	}

	allowed := make(map[string]bool, len(columns))
	for _, c := range columns {
		allowed[c] = true
	}

	out := make(remote.Record, len(rec))
	for k, v := range rec {
		if allowed[k] {
			out[k] = v
		}
	}
	return out
}

// prepareForWrite column-filters a record, drops the configured client-only
// fields, and JSON-encodes nested lists and maps for tabular storage.
func prepareForWrite(rec remote.Record, spec TableSpec, columns []string) (remote.Record, error) {
	filtered := filterToSchema(rec, columns)
	for _, f := range spec.StripFields {
		delete(filtered, f)
	}

	for k, v := range filtered {
		switch v.(type) {
		case map[string]any, []any, []string:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("unserializable field %s: %w", k, err)
			}
			filtered[k] = string(encoded)
		}
	}
	return filtered, nil
}

// stripFields removes the client-only and legacy columns that must never leak
// into pulled snapshots.
func stripFields(rec remote.Record, spec TableSpec) {
	for _, f := range spec.StripFields {
		delete(rec, f)
	}
}

// normalizeTimes renders time values as ISO-8601 strings at fixed precision
// so snapshots are stable regardless of backend.
func normalizeTimes(rec remote.Record) {
	for k, v := range rec {
		if t, ok := v.(time.Time); ok {
			rec[k] = t.UTC().Format(TimestampLayout)
		}
	}
}
