package localstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pos-billing/internal/config"
	"pos-billing/internal/remote"

	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(&config.Config{DataDir: t.TempDir()}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestWriteReadRoundtrip(t *testing.T) {
	store := newTestStore(t)

	in := []remote.Record{
		{"id": "P-1", "name": "Soap", "price": 12.5},
		{"id": "P-2", "name": "Shampoo", "price": 99.0},
	}
	if err := store.Write("Products", in); err != nil {
		t.Fatal(err)
	}

	out := store.ReadList("Products")
	if len(out) != 2 {
		t.Fatalf("expected 2 records, got %d", len(out))
	}
	if out[0]["id"] != "P-1" || out[1]["name"] != "Shampoo" {
		t.Errorf("roundtrip mismatch: %v", out)
	}
	if out[0]["price"] != 12.5 {
		t.Errorf("price = %v (%T)", out[0]["price"], out[0]["price"])
	}
}

func TestReadMissingFileReturnsFallback(t *testing.T) {
	store := newTestStore(t)

	if store.Exists("Products") {
		t.Errorf("no file should exist yet")
	}
	if got := store.ReadList("Products"); len(got) != 0 {
		t.Errorf("expected empty list, got %v", got)
	}
	if got := store.ReadObject("SystemSettings"); len(got) != 0 {
		t.Errorf("expected empty object, got %v", got)
	}
	value := store.Read("Products", "sentinel")
	if value != "sentinel" {
		t.Errorf("expected fallback, got %v", value)
	}
}

func TestReadCorruptFileReturnsFallback(t *testing.T) {
	store := newTestStore(t)

	path := filepath.Join(store.dir, "products.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := store.ReadList("Products"); len(got) != 0 {
		t.Errorf("corrupt file must read as empty, got %v", got)
	}
}

func TestReadListToleratesWrongShape(t *testing.T) {
	store := newTestStore(t)

	// An object where a list is expected reads as empty rather than panicking.
	if err := store.Write("Products", map[string]any{"oops": true}); err != nil {
		t.Fatal(err)
	}
	if got := store.ReadList("Products"); len(got) != 0 {
		t.Errorf("expected empty list, got %v", got)
	}
}

func TestWriteIsPrettyPrintedLowercase(t *testing.T) {
	store := newTestStore(t)

	if err := store.Write("SystemSettings", remote.Record{"currency": "INR", "gst": "18%"}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(store.dir, "systemsettings.json"))
	if err != nil {
		t.Fatalf("file name should be lowercased: %v", err)
	}
	if !strings.Contains(string(data), "\n  \"currency\"") {
		t.Errorf("snapshot should be indented:\n%s", data)
	}
}

func TestOverwriteReplacesSnapshot(t *testing.T) {
	store := newTestStore(t)

	if err := store.Write("Customers", []remote.Record{{"id": "C-1"}, {"id": "C-2"}}); err != nil {
		t.Fatal(err)
	}
	if err := store.Write("Customers", []remote.Record{{"id": "C-3"}}); err != nil {
		t.Fatal(err)
	}

	out := store.ReadList("Customers")
	if len(out) != 1 || out[0]["id"] != "C-3" {
		t.Errorf("overwrite should fully replace, got %v", out)
	}
}
