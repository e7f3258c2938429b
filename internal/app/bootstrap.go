package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hylla/trisync/internal/domain"
)

// AncestorBootstrapper makes sure every ancestor document of a target path
// exists before a leaf write. The read-then-create sequence is not atomic;
// racing callers may both create the same ancestor, which is harmless because
// creates are merge upserts.
type AncestorBootstrapper struct {
	clock Clock
}

// NewAncestorBootstrapper builds a bootstrapper using clock for timestamps.
func NewAncestorBootstrapper(clock Clock) AncestorBootstrapper {
	return AncestorBootstrapper{clock: clock}
}

// EnsurePath creates each missing ancestor of the document addressed by
// segments and returns the ancestor paths it created.
func (b AncestorBootstrapper) EnsurePath(ctx context.Context, store DocumentStore, segments ...string) ([]string, error) {
	ops, err := b.Plan(ctx, store, segments...)
	if err != nil {
		return nil, err
	}
	created := []string{}
	for _, op := range ops {
		if err := store.Set(ctx, op.Path, op.Fields, true); err != nil {
			return created, fmt.Errorf("create ancestor %q: %w", op.Path, err)
		}
		created = append(created, op.Path)
	}
	return created, nil
}

// Plan reads each ancestor of the addressed document and returns merge ops
// for the missing ones, root first, so callers can fold them into a commit.
func (b AncestorBootstrapper) Plan(ctx context.Context, store DocumentStore, segments ...string) ([]BatchOp, error) {
	docPath := domain.JoinPath(segments...)
	if !domain.IsDocumentPath(docPath) {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidPath, docPath)
	}
	ops := []BatchOp{}
	for _, ancestor := range domain.AncestorDocuments(docPath) {
		_, err := store.Get(ctx, ancestor)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("read ancestor %q: %w", ancestor, err)
		}
		ops = append(ops, BatchOp{Kind: BatchMerge, Path: ancestor, Fields: domain.AncestorMetadata(ancestor, b.now())})
	}
	return ops, nil
}

func (b AncestorBootstrapper) now() time.Time {
	if b.clock == nil {
		return time.Now()
	}
	return b.clock()
}
