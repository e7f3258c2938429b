package app

import (
	"context"
	"maps"
	"time"

	"github.com/hylla/trisync/internal/domain"
)

// Document is one stored document addressed by a slash-separated path.
type Document struct {
	Path      string
	Fields    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ID returns the document id (last path segment).
func (d Document) ID() string {
	return domain.DocumentID(d.Path)
}

// BatchOpKind identifies one write inside a batch commit.
type BatchOpKind string

// BatchOpKind values.
const (
	BatchSet    BatchOpKind = "set"
	BatchMerge  BatchOpKind = "merge"
	BatchDelete BatchOpKind = "delete"
)

// BatchOp is one write applied as part of an atomic commit.
type BatchOp struct {
	Kind   BatchOpKind
	Path   string
	Fields map[string]any
}

// DocumentStore is the document API of one logical store.
//
// Set with merge=true is an upsert that merges top-level fields into any
// existing document, so concurrent duplicate creates are harmless. Update
// fails with ErrNotFound when the document is missing. Delete is idempotent.
type DocumentStore interface {
	Get(ctx context.Context, path string) (Document, error)
	Set(ctx context.Context, path string, fields map[string]any, merge bool) error
	Update(ctx context.Context, path string, fields map[string]any) error
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, collectionPath string) ([]Document, error)
	Query(ctx context.Context, collectionPath, field string, value any) ([]Document, error)
	Commit(ctx context.Context, ops []BatchOp) error
	NewID() string
	Close() error
}

// Assignee is display metadata resolved for one assignee id.
type Assignee struct {
	ID    string
	Name  string
	Email string
	Role  domain.Role
}

// DirectoryLookup resolves assignee metadata. It returns ErrNotFound for unknown ids.
type DirectoryLookup interface {
	ResolveAssignee(ctx context.Context, tenantID, assigneeID string) (Assignee, error)
}

// Logger is the structured logging surface used by the service.
type Logger interface {
	Debug(msg any, keyvals ...any)
	Info(msg any, keyvals ...any)
	Warn(msg any, keyvals ...any)
	Error(msg any, keyvals ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(any, ...any) {}
func (nopLogger) Info(any, ...any)  {}
func (nopLogger) Warn(any, ...any)  {}
func (nopLogger) Error(any, ...any) {}

// cloneFields copies a field map so callers cannot alias stored state.
func cloneFields(in map[string]any) map[string]any {
	out := maps.Clone(in)
	if out == nil {
		out = map[string]any{}
	}
	return out
}
