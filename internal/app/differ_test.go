package app

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hylla/trisync/internal/domain"
)

func member(t *testing.T, id string, fields map[string]any) domain.MemberRecord {
	t.Helper()
	rec, err := domain.NewMemberRecord(domain.CollectionEmployees, id, fields)
	if err != nil {
		t.Fatalf("NewMemberRecord() error = %v", err)
	}
	return rec
}

func ids(records []domain.MemberRecord) []string {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.ID)
	}
	return out
}

func TestDifferDiffSets(t *testing.T) {
	authoritative := []domain.MemberRecord{
		member(t, "b", map[string]any{"name": "Bea"}),
		member(t, "a", map[string]any{"name": "Ann", "tags": []any{"x"}}),
		member(t, "c", map[string]any{"name": "Cy", "updatedAt": "2026-01-02"}),
	}
	dependent := []domain.MemberRecord{
		member(t, "a", map[string]any{"name": "Ann", "tags": []any{"x"}, "migratedFrom": "admin", "originalId": "a"}),
		member(t, "c", map[string]any{"name": "Cy", "updatedAt": "2026-01-01"}),
		member(t, "z", map[string]any{"name": "Zed"}),
		member(t, "y", map[string]any{"name": "Yu"}),
	}

	got := NewDiffer(nil).Diff(authoritative, dependent)
	if diff := cmp.Diff([]string{"b"}, ids(got.ToAdd)); diff != "" {
		t.Fatalf("ToAdd mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"c"}, ids(got.ToUpdate)); diff != "" {
		t.Fatalf("ToUpdate mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"y", "z"}, got.ToRemove); diff != "" {
		t.Fatalf("ToRemove mismatch (-want +got):\n%s", diff)
	}

	ignoring := NewDiffer([]string{"updatedAt", " "}).Diff(authoritative, dependent)
	if len(ignoring.ToUpdate) != 0 {
		t.Fatalf("expected ignored volatile field to suppress update, got %v", ids(ignoring.ToUpdate))
	}
}

func TestDifferEmptyAndEquateEmpty(t *testing.T) {
	d := NewDiffer(nil)
	if !d.Diff(nil, nil).Empty() {
		t.Fatal("expected empty diff for empty inputs")
	}
	a := []domain.MemberRecord{member(t, "a", map[string]any{"tags": []any{}})}
	b := []domain.MemberRecord{member(t, "a", map[string]any{"tags": []any(nil)})}
	if got := d.Diff(a, b); !got.Empty() {
		t.Fatalf("expected empty and nil lists to compare equal, got %#v", got)
	}
}
