package domain

import (
	"maps"
	"strings"
	"time"
)

// Provenance fields. They are written only on mirrored copies, never on the
// authoritative admin-store record.
const (
	FieldMigratedFrom = "migratedFrom"
	FieldMigratedAt   = "migratedAt"
	FieldOriginalID   = "originalId"
)

// ProvenanceFields lists the fields that may differ between an authoritative
// record and its mirror.
func ProvenanceFields() []string {
	return []string{FieldMigratedFrom, FieldMigratedAt, FieldOriginalID}
}

// MemberRecord is an employee or intern owned by the admin store.
type MemberRecord struct {
	ID         string
	Collection string
	Fields     map[string]any
}

// NewMemberRecord validates and builds one master record. The id field in
// Fields is forced to match the document id.
func NewMemberRecord(collection, id string, fields map[string]any) (MemberRecord, error) {
	if strings.TrimSpace(id) == "" {
		id, _ = fields[FieldID].(string)
	}
	id, err := NormalizeID(id)
	if err != nil {
		return MemberRecord{}, err
	}
	if !IsMasterCollection(collection) {
		return MemberRecord{}, ErrInvalidPath
	}
	out := maps.Clone(fields)
	if out == nil {
		out = map[string]any{}
	}
	out[FieldID] = id
	return MemberRecord{ID: id, Collection: collection, Fields: out}, nil
}

// Mirrored returns a copy of the record fields stamped with provenance.
func (m MemberRecord) Mirrored(source StoreName, now time.Time) map[string]any {
	out := StripProvenance(m.Fields)
	out[FieldMigratedFrom] = string(source)
	out[FieldMigratedAt] = now.UTC().Format(time.RFC3339Nano)
	out[FieldOriginalID] = m.ID
	return out
}

// StripProvenance returns a copy of fields without provenance fields.
func StripProvenance(fields map[string]any) map[string]any {
	out := maps.Clone(fields)
	if out == nil {
		out = map[string]any{}
	}
	for _, name := range ProvenanceFields() {
		delete(out, name)
	}
	return out
}

// DisplayName picks the best human-readable name on a member record.
func (m MemberRecord) DisplayName() string {
	for _, key := range []string{"name", "fullName", "displayName"} {
		if v, ok := m.Fields[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	first, _ := m.Fields["firstName"].(string)
	last, _ := m.Fields["lastName"].(string)
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

// Email returns the member's email when present.
func (m MemberRecord) Email() string {
	v, _ := m.Fields["email"].(string)
	return strings.TrimSpace(v)
}
