package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hylla/trisync/internal/adapters/storage/autoid"
	"github.com/hylla/trisync/internal/app"
	"github.com/hylla/trisync/internal/domain"
	_ "github.com/lib/pq"
)

const (
	defaultTableName = "trisync_documents"
	initTimeout      = 5 * time.Second
)

// ErrInvalidInput reports a missing DSN or table name.
var ErrInvalidInput = errors.New("invalid postgres store input")

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// Store is a DocumentStore keeping JSONB documents in one Postgres table.
// The connection and table are created lazily on first use.
type Store struct {
	dsn       string
	tableName string
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

// New builds a store over dsn; an empty table selects the default table.
func New(dsn, table string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	table = strings.TrimSpace(table)
	if table == "" {
		table = defaultTableName
	}
	return &Store{
		dsn:       dsn,
		tableName: table,
		openDB:    sql.Open,
	}, nil
}

// Get loads one document.
func (s *Store) Get(ctx context.Context, path string) (app.Document, error) {
	path, err := documentPath(path)
	if err != nil {
		return app.Document{}, err
	}
	if err := s.ensureReady(); err != nil {
		return app.Document{}, err
	}
	query := fmt.Sprintf("SELECT path, fields, created_at, updated_at FROM %s WHERE path = $1", s.table())
	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, path))
	if errors.Is(err, sql.ErrNoRows) {
		return app.Document{}, app.ErrNotFound
	}
	return doc, err
}

// Set writes one document; merge=true merges top-level fields into any existing document.
func (s *Store) Set(ctx context.Context, path string, fields map[string]any, merge bool) error {
	kind := app.BatchSet
	if merge {
		kind = app.BatchMerge
	}
	return s.Commit(ctx, []app.BatchOp{{Kind: kind, Path: path, Fields: fields}})
}

// Update merges fields into an existing document and fails when it is missing.
func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	path, err := documentPath(path)
	if err != nil {
		return err
	}
	if err := s.ensureReady(); err != nil {
		return err
	}
	payload, err := encodeFields(fields)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("UPDATE %s SET fields = fields || $2::jsonb, updated_at = NOW() WHERE path = $1", s.table())
	res, err := s.db.ExecContext(ctx, query, path, payload)
	if err != nil {
		return fmt.Errorf("update document %q: %w", path, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// Delete removes one document; deleting a missing document is a no-op.
func (s *Store) Delete(ctx context.Context, path string) error {
	path, err := documentPath(path)
	if err != nil {
		return err
	}
	if err := s.ensureReady(); err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE path = $1", s.table())
	if _, err := s.db.ExecContext(ctx, query, path); err != nil {
		return fmt.Errorf("delete document %q: %w", path, err)
	}
	return nil
}

// List returns every document directly inside one collection, ordered by path.
func (s *Store) List(ctx context.Context, collectionPath string) ([]app.Document, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT path, fields, created_at, updated_at FROM %s WHERE collection = $1 ORDER BY path ASC", s.table())
	rows, err := s.db.QueryContext(ctx, query, domain.JoinPath(collectionPath))
	if err != nil {
		return nil, err
	}
	return scanDocuments(rows)
}

// Query returns documents in one collection whose top-level field equals value.
func (s *Store) Query(ctx context.Context, collectionPath, field string, value any) ([]app.Document, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return nil, fmt.Errorf("%w: query field is required", ErrInvalidInput)
	}
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode query value: %w", err)
	}
	query := fmt.Sprintf(`
		SELECT path, fields, created_at, updated_at
		FROM %s
		WHERE collection = $1 AND fields -> $2 = $3::jsonb
		ORDER BY path ASC`, s.table())
	rows, err := s.db.QueryContext(ctx, query, domain.JoinPath(collectionPath), field, string(encoded))
	if err != nil {
		return nil, err
	}
	return scanDocuments(rows)
}

// Commit applies every op in one transaction.
func (s *Store) Commit(ctx context.Context, ops []app.BatchOp) (err error) {
	if len(ops) == 0 {
		return nil
	}
	if err := s.ensureReady(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, op := range ops {
		if err = s.applyOp(ctx, tx, op); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// NewID returns a store-native document id.
func (s *Store) NewID() string {
	return autoid.New()
}

// Close closes the connection when one was opened.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) applyOp(ctx context.Context, tx *sql.Tx, op app.BatchOp) error {
	path, err := documentPath(op.Path)
	if err != nil {
		return err
	}
	if op.Kind == app.BatchDelete {
		query := fmt.Sprintf("DELETE FROM %s WHERE path = $1", s.table())
		if _, err := tx.ExecContext(ctx, query, path); err != nil {
			return fmt.Errorf("delete document %q: %w", path, err)
		}
		return nil
	}
	payload, err := encodeFields(op.Fields)
	if err != nil {
		return err
	}
	var onConflict string
	switch op.Kind {
	case app.BatchSet:
		onConflict = "fields = EXCLUDED.fields"
	case app.BatchMerge:
		onConflict = fmt.Sprintf("fields = %s.fields || EXCLUDED.fields", s.table())
	default:
		return fmt.Errorf("unknown batch op %q", op.Kind)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (path, collection, fields, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, NOW(), NOW())
		ON CONFLICT (path)
		DO UPDATE SET %s, updated_at = NOW()`, s.table(), onConflict)
	if _, err := tx.ExecContext(ctx, query, path, domain.ParentCollection(path), payload); err != nil {
		return fmt.Errorf("write document %q: %w", path, err)
	}
	return nil
}

func (s *Store) ensureReady() error {
	if s == nil {
		return ErrInvalidInput
	}
	s.initOnce.Do(func() {
		db, err := s.openDB("postgres", s.dsn)
		if err != nil {
			s.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
		defer cancel()

		stmts := []string{
			fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %s (
					path TEXT PRIMARY KEY,
					collection TEXT NOT NULL,
					fields JSONB NOT NULL DEFAULT '{}'::jsonb,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				)`, s.table()),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (collection, path)",
				quoteIdentifier(s.tableName+"_collection_idx"), s.table()),
		}
		for _, stmt := range stmts {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				_ = db.Close()
				s.initErr = err
				return
			}
		}
		s.db = db
	})
	return s.initErr
}

func (s *Store) table() string {
	return quoteIdentifier(s.tableName)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (app.Document, error) {
	var (
		path    string
		payload []byte
		created time.Time
		updated time.Time
	)
	if err := row.Scan(&path, &payload, &created, &updated); err != nil {
		return app.Document{}, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return app.Document{}, fmt.Errorf("decode document %q: %w", path, err)
	}
	return app.Document{Path: path, Fields: fields, CreatedAt: created.UTC(), UpdatedAt: updated.UTC()}, nil
}

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

func encodeFields(fields map[string]any) (string, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode document fields: %w", err)
	}
	return string(payload), nil
}

func documentPath(path string) (string, error) {
	path = domain.JoinPath(path)
	if !domain.IsDocumentPath(path) {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidPath, path)
	}
	return path, nil
}

func quoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "\"\""
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
