package localstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"pos-billing/internal/config"
	"pos-billing/internal/remote"

	"go.uber.org/zap"
)

// Store keeps one pretty-printed JSON document per logical table under the
// data directory. It is the offline fallback cache, never the source of
// truth, so plain overwrite semantics are enough; a single process-wide mutex
// keeps concurrent writers from interleaving.
type Store struct {
	dir string
	log *zap.Logger
	mu  sync.Mutex
}

func New(cfg *config.Config, log *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: cfg.DataDir, log: log}, nil
}

func (s *Store) path(table string) string {
	return filepath.Join(s.dir, strings.ToLower(table)+".json")
}

// Exists reports whether a snapshot file has been written for table.
func (s *Store) Exists(table string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := os.Stat(s.path(table))
	return err == nil
}

// Read returns the parsed snapshot for table, or fallback when the file is
// missing or unreadable. Parse failures are logged and treated as "no data".
func (s *Store) Read(table string, fallback any) any {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(table))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("failed to read snapshot", zap.String("table", table), zap.Error(err))
		}
		return fallback
	}

	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		s.log.Warn("corrupt snapshot, using fallback", zap.String("table", table), zap.Error(err))
		return fallback
	}
	return value
}

// ReadList reads a list-shaped snapshot, defaulting to an empty list.
func (s *Store) ReadList(table string) []remote.Record {
	value := s.Read(table, []any{})
	items, ok := value.([]any)
	if !ok {
		return []remote.Record{}
	}
	records := make([]remote.Record, 0, len(items))
	for _, item := range items {
		if rec, ok := item.(map[string]any); ok {
			records = append(records, rec)
		}
	}
	return records
}

// ReadObject reads a singleton snapshot (e.g. system settings), defaulting to
// an empty object.
func (s *Store) ReadObject(table string) remote.Record {
	value := s.Read(table, map[string]any{})
	if rec, ok := value.(map[string]any); ok {
		return rec
	}
	return remote.Record{}
}

// Write serializes value pretty-printed so the files stay inspectable by
// hand. Date values marshal to ISO-8601 via the standard encoder.
func (s *Store) Write(table string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(value); err != nil {
		return err
	}

	return os.WriteFile(s.path(table), buf.Bytes(), 0o644)
}
