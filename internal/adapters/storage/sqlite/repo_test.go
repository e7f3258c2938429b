package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hylla/trisync/internal/app"
	"github.com/hylla/trisync/internal/domain"
)

var _ app.DocumentStore = (*Repository)(nil)

func TestRepository_DocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	repo, err := Open(filepath.Join(t.TempDir(), "nested", "docs.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})

	path := "tenants/T1/employees/E1"
	if _, err := repo.Get(ctx, path); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.Update(ctx, path, map[string]any{"name": "x"}); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("Update(missing) expected ErrNotFound, got %v", err)
	}
	if err := repo.Set(ctx, path, map[string]any{"name": "Ann", "tags": []string{"a"}}, false); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := repo.Set(ctx, path, map[string]any{"dept": "ops"}, true); err != nil {
		t.Fatalf("Set(merge) error = %v", err)
	}
	doc, err := repo.Get(ctx, path)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	want := map[string]any{"name": "Ann", "tags": []any{"a"}, "dept": "ops"}
	if diff := cmp.Diff(want, doc.Fields); diff != "" {
		t.Fatalf("merged fields mismatch (-want +got):\n%s", diff)
	}
	if doc.ID() != "E1" || doc.CreatedAt.IsZero() {
		t.Fatalf("unexpected document metadata %#v", doc)
	}

	if err := repo.Update(ctx, path, map[string]any{"name": "Ann B"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := repo.Set(ctx, path, map[string]any{"name": "Only"}, false); err != nil {
		t.Fatalf("Set(replace) error = %v", err)
	}
	doc, err = repo.Get(ctx, path)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if diff := cmp.Diff(map[string]any{"name": "Only"}, doc.Fields); diff != "" {
		t.Fatalf("replaced fields mismatch (-want +got):\n%s", diff)
	}

	if err := repo.Delete(ctx, path); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := repo.Delete(ctx, path); err != nil {
		t.Fatalf("Delete(missing) error = %v", err)
	}
	if _, err := repo.Get(ctx, path); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := repo.Set(ctx, "tenants/T1/employees", map[string]any{}, false); !errors.Is(err, domain.ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath for collection path, got %v", err)
	}
}

func TestRepository_ListQueryAndCommit(t *testing.T) {
	ctx := context.Background()
	repo, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})

	err = repo.Commit(ctx, []app.BatchOp{
		{Kind: app.BatchSet, Path: "tenants/T1", Fields: map[string]any{"name": "Acme"}},
		{Kind: app.BatchSet, Path: "tenants/T1/interns/b", Fields: map[string]any{"name": "Bea", "active": true}},
		{Kind: app.BatchSet, Path: "tenants/T1/interns/a", Fields: map[string]any{"name": "Ann", "active": false}},
		{Kind: app.BatchSet, Path: "tenants/T1/interns/a/notes/n1", Fields: map[string]any{"text": "nested"}},
		{Kind: app.BatchSet, Path: "tenants/T2/interns/c", Fields: map[string]any{"name": "Cy"}},
	})
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	docs, err := repo.List(ctx, "tenants/T1/interns")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(docs) != 2 || docs[0].ID() != "a" || docs[1].ID() != "b" {
		t.Fatalf("unexpected list %#v", docs)
	}
	matches, err := repo.Query(ctx, "tenants/T1/interns", "name", "Bea")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(matches) != 1 || matches[0].ID() != "b" {
		t.Fatalf("unexpected query result %#v", matches)
	}
	matches, err = repo.Query(ctx, "tenants/T1/interns", "active", true)
	if err != nil {
		t.Fatalf("Query(bool) error = %v", err)
	}
	if len(matches) != 1 || matches[0].ID() != "b" {
		t.Fatalf("unexpected bool query result %#v", matches)
	}

	err = repo.Commit(ctx, []app.BatchOp{
		{Kind: app.BatchDelete, Path: "tenants/T1/interns/a"},
		{Kind: app.BatchSet, Path: "tenants/T1/interns/z", Fields: map[string]any{"name": "Zed"}},
		{Kind: app.BatchSet, Path: "not-a-document"},
	})
	if !errors.Is(err, domain.ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath from failing batch, got %v", err)
	}
	if _, err := repo.Get(ctx, "tenants/T1/interns/a"); err != nil {
		t.Fatalf("failed batch must roll back the delete, Get() error = %v", err)
	}
	if _, err := repo.Get(ctx, "tenants/T1/interns/z"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("failed batch must roll back the set, got %v", err)
	}
}

func TestRepository_NamedMemoryIsolation(t *testing.T) {
	ctx := context.Background()
	first, err := OpenNamedMemory("iso-employee")
	if err != nil {
		t.Fatalf("OpenNamedMemory() error = %v", err)
	}
	t.Cleanup(func() { _ = first.Close() })
	second, err := OpenNamedMemory("iso-intern")
	if err != nil {
		t.Fatalf("OpenNamedMemory() error = %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })

	if err := first.Set(ctx, "tenants/T1", map[string]any{"name": "Acme"}, false); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, err := second.Get(ctx, "tenants/T1"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected separate databases per name, got %v", err)
	}
	if id := first.NewID(); len(id) != 20 {
		t.Fatalf("NewID() = %q, want 20 chars", id)
	}
}
