package domain

import (
	"fmt"
	"strings"
)

// NormalizeID trims one document id. An id must be exactly one path segment,
// so empty ids and ids containing a slash are rejected.
func NormalizeID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", fmt.Errorf("%w: id is empty", ErrInvalidID)
	}
	if strings.Contains(id, "/") {
		return "", fmt.Errorf("%w: %q contains a path separator", ErrInvalidID, id)
	}
	return id, nil
}

// JoinPath joins path segments into one slash-separated document path.
func JoinPath(segments ...string) string {
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		seg = strings.Trim(strings.TrimSpace(seg), "/")
		if seg == "" {
			continue
		}
		out = append(out, seg)
	}
	return strings.Join(out, "/")
}

// SplitPath splits a document or collection path into trimmed segments.
func SplitPath(path string) []string {
	path = strings.Trim(strings.TrimSpace(path), "/")
	if path == "" {
		return nil
	}
	raw := strings.Split(path, "/")
	out := make([]string, 0, len(raw))
	for _, seg := range raw {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		out = append(out, seg)
	}
	return out
}

// IsDocumentPath reports whether a path addresses a document (collection/id pairs).
func IsDocumentPath(path string) bool {
	segs := SplitPath(path)
	return len(segs) > 0 && len(segs)%2 == 0
}

// ParentCollection returns the collection path containing one document.
func ParentCollection(docPath string) string {
	segs := SplitPath(docPath)
	if len(segs) < 2 {
		return ""
	}
	return strings.Join(segs[:len(segs)-1], "/")
}

// DocumentID returns the last segment of a document path.
func DocumentID(docPath string) string {
	segs := SplitPath(docPath)
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

// AncestorDocuments returns every ancestor document path of docPath, root first.
// task_boards/t1/members/m1/pending_tasks/x yields task_boards/t1 and task_boards/t1/members/m1.
func AncestorDocuments(docPath string) []string {
	segs := SplitPath(docPath)
	out := []string{}
	for end := 2; end < len(segs); end += 2 {
		out = append(out, strings.Join(segs[:end], "/"))
	}
	return out
}

// TenantRootPath returns the tenant root document path.
func TenantRootPath(tenantID string) string {
	return JoinPath(CollectionTenants, tenantID)
}

// TaskBoardRootPath returns the tenant root of the task hierarchy. It is kept
// apart from the tenant root so task fan-out never provisions a tenant.
func TaskBoardRootPath(tenantID string) string {
	return JoinPath(CollectionTaskBoards, tenantID)
}

// MemberRootPath returns the per-person root document under a tenant task board.
func MemberRootPath(tenantID, memberID string) string {
	return JoinPath(CollectionTaskBoards, tenantID, CollectionMembers, memberID)
}

// MemberTaskPath returns one task document inside a member's task collection.
func MemberTaskPath(tenantID, memberID, collection, taskID string) string {
	return JoinPath(CollectionTaskBoards, tenantID, CollectionMembers, memberID, collection, taskID)
}

// TaskAuditPath returns the tenant-wide audit copy of one task.
func TaskAuditPath(tenantID, taskID string) string {
	return JoinPath(CollectionTaskBoards, tenantID, CollectionTaskAudit, taskID)
}

// MasterCollectionPath returns the collection path of one master collection.
func MasterCollectionPath(tenantID, collection string) string {
	return JoinPath(CollectionTenants, tenantID, collection)
}

// MasterRecordPath returns the document path of one master record.
func MasterRecordPath(tenantID, collection, recordID string) string {
	return JoinPath(CollectionTenants, tenantID, collection, recordID)
}

// RecordRef identifies one master record addressed by a change notification.
type RecordRef struct {
	TenantID   string
	Collection string
	RecordID   string
}

// Path returns the canonical document path of the reference.
func (r RecordRef) Path() string {
	return MasterRecordPath(r.TenantID, r.Collection, r.RecordID)
}

// ParseRecordPath parses `tenants/{tenantId}/{collection}/{recordId}`.
func ParseRecordPath(path string) (RecordRef, error) {
	segs := SplitPath(path)
	if len(segs) != 4 || segs[0] != CollectionTenants {
		return RecordRef{}, fmt.Errorf("%w: %q must look like tenants/{tenantId}/{collection}/{recordId}", ErrInvalidPath, path)
	}
	ref := RecordRef{TenantID: segs[1], Collection: segs[2], RecordID: segs[3]}
	if !IsMasterCollection(ref.Collection) {
		return RecordRef{}, fmt.Errorf("%w: unsupported collection %q", ErrInvalidPath, ref.Collection)
	}
	return ref, nil
}
