package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hylla/trisync/internal/adapters/storage/autoid"
	"github.com/hylla/trisync/internal/app"
	"github.com/hylla/trisync/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// memorySeq keeps anonymous in-memory databases apart.
var memorySeq atomic.Int64

// Repository is a DocumentStore backed by one sqlite database.
type Repository struct {
	db *sql.DB
}

// Open opens a file-backed document store.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	return open(path)
}

// OpenInMemory opens a private in-memory document store.
func OpenInMemory() (*Repository, error) {
	return OpenNamedMemory(fmt.Sprintf("anon-%d", memorySeq.Add(1)))
}

// OpenNamedMemory opens an in-memory document store shared by every handle
// opened with the same name in this process.
func OpenNamedMemory(name string) (*Repository, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("sqlite memory name is required")
	}
	return open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
}

// open connects and migrates one database.
func open(dsn string) (*Repository, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers and keeps in-memory databases alive.
	db.SetMaxOpenConns(1)
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			path TEXT PRIMARY KEY,
			collection TEXT NOT NULL,
			fields_json TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection, path);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// Get loads one document.
func (r *Repository) Get(ctx context.Context, path string) (app.Document, error) {
	path, err := documentPath(path)
	if err != nil {
		return app.Document{}, err
	}
	row := r.db.QueryRowContext(ctx, `SELECT path, fields_json, created_at, updated_at FROM documents WHERE path = ?`, path)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return app.Document{}, app.ErrNotFound
	}
	return doc, err
}

// Set writes one document; merge=true merges top-level fields into any existing document.
func (r *Repository) Set(ctx context.Context, path string, fields map[string]any, merge bool) error {
	kind := app.BatchSet
	if merge {
		kind = app.BatchMerge
	}
	return r.Commit(ctx, []app.BatchOp{{Kind: kind, Path: path, Fields: fields}})
}

// Update merges fields into an existing document and fails when it is missing.
func (r *Repository) Update(ctx context.Context, path string, fields map[string]any) (err error) {
	path, err = documentPath(path)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	existing, err := getDocument(ctx, tx, path)
	if err != nil {
		return err
	}
	next := maps.Clone(existing.Fields)
	maps.Copy(next, fields)
	if err = writeDocument(ctx, tx, path, next, time.Now()); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes one document; deleting a missing document is a no-op.
func (r *Repository) Delete(ctx context.Context, path string) error {
	path, err := documentPath(path)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, path); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// List returns every document directly inside one collection, ordered by path.
func (r *Repository) List(ctx context.Context, collectionPath string) ([]app.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT path, fields_json, created_at, updated_at
		FROM documents
		WHERE collection = ?
		ORDER BY path ASC
	`, domain.JoinPath(collectionPath))
	if err != nil {
		return nil, err
	}
	return scanDocuments(rows)
}

// Query returns documents in one collection whose top-level field equals value.
func (r *Repository) Query(ctx context.Context, collectionPath, field string, value any) ([]app.Document, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return nil, errors.New("query field is required")
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode query value: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT path, fields_json, created_at, updated_at
		FROM documents
		WHERE collection = ? AND json_extract(fields_json, ?) = json_extract(?, '$')
		ORDER BY path ASC
	`, domain.JoinPath(collectionPath), jsonFieldPath(field), string(encoded))
	if err != nil {
		return nil, err
	}
	return scanDocuments(rows)
}

// Commit applies every op in one transaction.
func (r *Repository) Commit(ctx context.Context, ops []app.BatchOp) (err error) {
	if len(ops) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now()
	for _, op := range ops {
		if err = applyOp(ctx, tx, op, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// NewID returns a store-native document id.
func (r *Repository) NewID() string {
	return autoid.New()
}

// applyOp applies one batch op inside a transaction.
func applyOp(ctx context.Context, tx *sql.Tx, op app.BatchOp, now time.Time) error {
	path, err := documentPath(op.Path)
	if err != nil {
		return err
	}
	switch op.Kind {
	case app.BatchDelete:
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, path); err != nil {
			return fmt.Errorf("delete document: %w", err)
		}
		return nil
	case app.BatchMerge:
		existing, err := getDocument(ctx, tx, path)
		switch {
		case errors.Is(err, app.ErrNotFound):
			return writeDocument(ctx, tx, path, op.Fields, now)
		case err != nil:
			return err
		}
		next := maps.Clone(existing.Fields)
		maps.Copy(next, op.Fields)
		return writeDocument(ctx, tx, path, next, now)
	case app.BatchSet:
		return writeDocument(ctx, tx, path, op.Fields, now)
	default:
		return fmt.Errorf("unknown batch op %q", op.Kind)
	}
}

// writeDocument upserts one document, keeping created_at on conflict.
func writeDocument(ctx context.Context, tx *sql.Tx, path string, fields map[string]any, now time.Time) error {
	if fields == nil {
		fields = map[string]any{}
	}
	encoded, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode document %q: %w", path, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents(path, collection, fields_json, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			fields_json = excluded.fields_json,
			updated_at = excluded.updated_at
	`, path, domain.ParentCollection(path), string(encoded), ts(now), ts(now))
	if err != nil {
		return fmt.Errorf("write document %q: %w", path, err)
	}
	return nil
}

// getDocument loads one document inside a transaction.
func getDocument(ctx context.Context, tx *sql.Tx, path string) (app.Document, error) {
	row := tx.QueryRowContext(ctx, `SELECT path, fields_json, created_at, updated_at FROM documents WHERE path = ?`, path)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return app.Document{}, app.ErrNotFound
	}
	return doc, err
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

// scanDocument decodes one row.
func scanDocument(s scanner) (app.Document, error) {
	var (
		path       string
		fieldsJSON string
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(&path, &fieldsJSON, &createdRaw, &updatedRaw); err != nil {
		return app.Document{}, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
		return app.Document{}, fmt.Errorf("decode document %q: %w", path, err)
	}
	return app.Document{
		Path:      path,
		Fields:    fields,
		CreatedAt: parseTS(createdRaw),
		UpdatedAt: parseTS(updatedRaw),
	}, nil
}

// scanDocuments drains rows into documents.
func scanDocuments(rows *sql.Rows) ([]app.Document, error) {
	defer rows.Close()
	out := []app.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// documentPath normalizes and validates a document path.
func documentPath(path string) (string, error) {
	path = domain.JoinPath(path)
	if !domain.IsDocumentPath(path) {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidPath, path)
	}
	return path, nil
}

// jsonFieldPath quotes one top-level field name as a JSON path.
func jsonFieldPath(field string) string {
	return `$."` + strings.ReplaceAll(field, `"`, `\"`) + `"`
}

// ts formats a timestamp for storage.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}
