package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hylla/trisync/internal/adapters/storage/postgres"
	"github.com/hylla/trisync/internal/adapters/storage/sqlite"
)

func TestOpenFromDSNSchemes(t *testing.T) {
	dir := t.TempDir()
	cases := []string{
		filepath.Join(dir, "plain.db"),
		"sqlite://" + filepath.Join(dir, "scheme.db"),
		"file://" + filepath.Join(dir, "file.db"),
		"memory://open-test",
		"memory://",
	}
	for _, dsn := range cases {
		store, err := OpenFromDSN(dsn)
		if err != nil {
			t.Fatalf("OpenFromDSN(%q) error = %v", dsn, err)
		}
		if _, ok := store.(*sqlite.Repository); !ok {
			t.Fatalf("OpenFromDSN(%q) = %T, want sqlite", dsn, store)
		}
		if err := store.Set(context.Background(), "tenants/T1", map[string]any{"name": "Acme"}, false); err != nil {
			t.Fatalf("Set() on %q error = %v", dsn, err)
		}
		_ = store.Close()
	}
}

func TestOpenFromDSNPostgresIsLazy(t *testing.T) {
	store, err := OpenFromDSN("postgres://user:pw@127.0.0.1:1/db?sslmode=disable&table=employee_docs")
	if err != nil {
		t.Fatalf("OpenFromDSN() error = %v", err)
	}
	if _, ok := store.(*postgres.Store); !ok {
		t.Fatalf("OpenFromDSN() = %T, want postgres", store)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestOpenFromDSNErrors(t *testing.T) {
	if _, err := OpenFromDSN("  "); err == nil {
		t.Fatal("expected error for empty dsn")
	}
	if _, err := OpenFromDSN("mysql://db"); !errors.Is(err, ErrUnsupportedScheme) {
		t.Fatalf("expected ErrUnsupportedScheme, got %v", err)
	}
	if _, err := OpenFromDSN("sqlite://"); err == nil {
		t.Fatal("expected error for sqlite dsn without path")
	}
}

func TestSplitTableParam(t *testing.T) {
	cleaned, table, err := splitTableParam("postgres://u@h/db?sslmode=disable&table=docs")
	if err != nil {
		t.Fatalf("splitTableParam() error = %v", err)
	}
	if table != "docs" || cleaned != "postgres://u@h/db?sslmode=disable" {
		t.Fatalf("splitTableParam() = %q, %q", cleaned, table)
	}
}
