package app

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hylla/trisync/internal/domain"
)

var errInjected = errors.New("injected store failure")

// fakeStore is an in-memory DocumentStore with failure injection.
type fakeStore struct {
	mu      sync.Mutex
	docs    map[string]map[string]any
	nextID  int
	prefix  string
	commits int
	lastOps []BatchOp
	closed  bool

	failSet    bool
	failCommit bool
	failGet    bool
}

func newFakeStore(prefix string) *fakeStore {
	return &fakeStore{docs: map[string]map[string]any{}, prefix: prefix}
}

func (f *fakeStore) Get(_ context.Context, path string) (Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet {
		return Document{}, errInjected
	}
	fields, ok := f.docs[path]
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{Path: path, Fields: maps.Clone(fields)}, nil
}

func (f *fakeStore) Set(_ context.Context, path string, fields map[string]any, merge bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet {
		return errInjected
	}
	f.setLocked(path, fields, merge)
	return nil
}

func (f *fakeStore) setLocked(path string, fields map[string]any, merge bool) {
	if existing, ok := f.docs[path]; ok && merge {
		maps.Copy(existing, fields)
		return
	}
	f.docs[path] = cloneFields(fields)
}

func (f *fakeStore) Update(_ context.Context, path string, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet {
		return errInjected
	}
	existing, ok := f.docs[path]
	if !ok {
		return ErrNotFound
	}
	maps.Copy(existing, fields)
	return nil
}

func (f *fakeStore) Delete(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet {
		return errInjected
	}
	delete(f.docs, path)
	return nil
}

func (f *fakeStore) List(_ context.Context, collectionPath string) ([]Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet {
		return nil, errInjected
	}
	out := []Document{}
	for path, fields := range f.docs {
		if domain.ParentCollection(path) == collectionPath {
			out = append(out, Document{Path: path, Fields: maps.Clone(fields)})
		}
	}
	slices.SortFunc(out, func(a, b Document) int { return strings.Compare(a.Path, b.Path) })
	return out, nil
}

func (f *fakeStore) Query(ctx context.Context, collectionPath, field string, value any) ([]Document, error) {
	docs, err := f.List(ctx, collectionPath)
	if err != nil {
		return nil, err
	}
	out := []Document{}
	for _, doc := range docs {
		if fmt.Sprint(doc.Fields[field]) == fmt.Sprint(value) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (f *fakeStore) Commit(_ context.Context, ops []BatchOp) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCommit {
		return errInjected
	}
	for _, op := range ops {
		switch op.Kind {
		case BatchDelete:
			delete(f.docs, op.Path)
		default:
			f.setLocked(op.Path, op.Fields, op.Kind == BatchMerge)
		}
	}
	f.commits++
	f.lastOps = slices.Clone(ops)
	return nil
}

func (f *fakeStore) NewID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return fmt.Sprintf("%s%03d", f.prefix, f.nextID)
}

func (f *fakeStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeStore) has(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.docs[path]
	return ok
}

func (f *fakeStore) field(path, name string) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[path][name]
}

func (f *fakeStore) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for path := range f.docs {
		if strings.HasPrefix(path, prefix) {
			n++
		}
	}
	return n
}

// fakeStores bundles one fake per logical store.
type fakeStores struct {
	employee *fakeStore
	intern   *fakeStore
	admin    *fakeStore
}

func newFakeStores() fakeStores {
	return fakeStores{
		employee: newFakeStore("emp"),
		intern:   newFakeStore("int"),
		admin:    newFakeStore("adm"),
	}
}

func (s fakeStores) registry() *StoreRegistry {
	return NewStoreRegistry(map[domain.StoreName]StoreOpener{
		domain.StoreEmployee: func(context.Context) (DocumentStore, error) { return s.employee, nil },
		domain.StoreIntern:   func(context.Context) (DocumentStore, error) { return s.intern, nil },
		domain.StoreAdmin:    func(context.Context) (DocumentStore, error) { return s.admin, nil },
	})
}

// fixedNow is the clock used across app tests.
var fixedNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// sequenceIDs returns a generator yielding ids in order.
func sequenceIDs(ids ...string) IDGenerator {
	idx := 0
	return func() string {
		if idx >= len(ids) {
			return ""
		}
		id := ids[idx]
		idx++
		return id
	}
}

// recordingLogger captures log messages by level.
type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) record(level string, msg any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+" "+fmt.Sprint(msg))
}

func (l *recordingLogger) Debug(msg any, _ ...any) { l.record("debug", msg) }
func (l *recordingLogger) Info(msg any, _ ...any)  { l.record("info", msg) }
func (l *recordingLogger) Warn(msg any, _ ...any)  { l.record("warn", msg) }
func (l *recordingLogger) Error(msg any, _ ...any) { l.record("error", msg) }

func (l *recordingLogger) contains(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Contains(l.lines, level+" "+msg)
}
