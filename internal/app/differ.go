package app

import (
	"slices"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/hylla/trisync/internal/domain"
)

// DiffResult holds the three disjoint change sets of one reconciliation pass.
type DiffResult struct {
	ToAdd    []domain.MemberRecord
	ToUpdate []domain.MemberRecord
	ToRemove []string
}

// Empty reports whether the diff requires no writes.
func (d DiffResult) Empty() bool {
	return len(d.ToAdd) == 0 && len(d.ToUpdate) == 0 && len(d.ToRemove) == 0
}

// Differ compares an authoritative collection with its dependent mirror.
// Records are keyed by id and compared as whole documents; provenance fields
// and configured volatile fields are ignored.
type Differ struct {
	ignore map[string]struct{}
}

// NewDiffer builds a differ that ignores the given fields during comparison.
func NewDiffer(ignoreFields []string) Differ {
	ignore := map[string]struct{}{}
	for _, name := range ignoreFields {
		name = strings.TrimSpace(name)
		if name != "" {
			ignore[name] = struct{}{}
		}
	}
	return Differ{ignore: ignore}
}

// Diff returns the records to add, update and remove so that dependent
// matches authoritative. Output sets are sorted by id.
func (d Differ) Diff(authoritative, dependent []domain.MemberRecord) DiffResult {
	current := make(map[string]domain.MemberRecord, len(dependent))
	for _, rec := range dependent {
		current[rec.ID] = rec
	}
	wanted := make(map[string]struct{}, len(authoritative))

	out := DiffResult{}
	for _, rec := range authoritative {
		wanted[rec.ID] = struct{}{}
		existing, ok := current[rec.ID]
		if !ok {
			out.ToAdd = append(out.ToAdd, rec)
			continue
		}
		if !d.Equal(rec.Fields, existing.Fields) {
			out.ToUpdate = append(out.ToUpdate, rec)
		}
	}
	for id := range current {
		if _, ok := wanted[id]; !ok {
			out.ToRemove = append(out.ToRemove, id)
		}
	}

	byID := func(a, b domain.MemberRecord) int { return strings.Compare(a.ID, b.ID) }
	slices.SortFunc(out.ToAdd, byID)
	slices.SortFunc(out.ToUpdate, byID)
	slices.Sort(out.ToRemove)
	return out
}

// Equal reports whether two field maps match modulo provenance and ignored fields.
func (d Differ) Equal(a, b map[string]any) bool {
	return cmp.Equal(
		domain.StripProvenance(a),
		domain.StripProvenance(b),
		cmpopts.EquateEmpty(),
		cmpopts.IgnoreMapEntries(func(key string, _ any) bool {
			_, ok := d.ignore[key]
			return ok
		}),
	)
}
