package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/hylla/trisync/internal/domain"
	"golang.org/x/sync/singleflight"
)

// StoreOpener connects to one logical store.
type StoreOpener func(ctx context.Context) (DocumentStore, error)

// StoreRegistry lazily connects each logical store once per process and
// caches the handle. Concurrent first calls share one connection attempt;
// failed attempts are not cached.
type StoreRegistry struct {
	openers map[domain.StoreName]StoreOpener
	group   singleflight.Group

	mu     sync.RWMutex
	stores map[domain.StoreName]DocumentStore
}

// NewStoreRegistry builds a registry from per-store openers.
func NewStoreRegistry(openers map[domain.StoreName]StoreOpener) *StoreRegistry {
	copied := make(map[domain.StoreName]StoreOpener, len(openers))
	for name, opener := range openers {
		if opener != nil {
			copied[name] = opener
		}
	}
	return &StoreRegistry{
		openers: copied,
		stores:  map[domain.StoreName]DocumentStore{},
	}
}

// Store returns the connected handle for one logical store.
func (r *StoreRegistry) Store(ctx context.Context, name domain.StoreName) (DocumentStore, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStore, name)
	}
	if store, ok := r.cached(name); ok {
		return store, nil
	}
	opener, ok := r.openers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStore, name)
	}
	v, err, _ := r.group.Do(string(name), func() (any, error) {
		if store, ok := r.cached(name); ok {
			return store, nil
		}
		store, err := opener(ctx)
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", name, err)
		}
		r.mu.Lock()
		r.stores[name] = store
		r.mu.Unlock()
		return store, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(DocumentStore), nil
}

// Configured lists the stores that have an opener, in canonical order.
func (r *StoreRegistry) Configured() []domain.StoreName {
	out := []domain.StoreName{}
	for _, name := range domain.KnownStores() {
		if _, ok := r.openers[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Close closes every connected store.
func (r *StoreRegistry) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]domain.StoreName, 0, len(r.stores))
	for name := range r.stores {
		names = append(names, name)
	}
	slices.Sort(names)
	var errs []error
	for _, name := range names {
		if err := r.stores[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s store: %w", name, err))
		}
		delete(r.stores, name)
	}
	return errors.Join(errs...)
}

func (r *StoreRegistry) cached(name domain.StoreName) (DocumentStore, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	store, ok := r.stores[name]
	return store, ok
}
