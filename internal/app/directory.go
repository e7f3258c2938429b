package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/hylla/trisync/internal/domain"
)

// StoreDirectory resolves assignee metadata from the master collections of
// the authoritative store.
type StoreDirectory struct {
	stores        *StoreRegistry
	authoritative domain.StoreName
}

// NewStoreDirectory builds a directory lookup over one store.
func NewStoreDirectory(stores *StoreRegistry, authoritative domain.StoreName) *StoreDirectory {
	return &StoreDirectory{stores: stores, authoritative: authoritative}
}

// ResolveAssignee searches employees then interns; the role follows the
// collection the record was found in. Records are matched by document key
// first and then by their id field, which covers records stored under a
// store-native key.
func (d *StoreDirectory) ResolveAssignee(ctx context.Context, tenantID, assigneeID string) (Assignee, error) {
	store, err := d.stores.Store(ctx, d.authoritative)
	if err != nil {
		return Assignee{}, err
	}
	for _, collection := range domain.MasterCollections() {
		doc, err := store.Get(ctx, domain.MasterRecordPath(tenantID, collection, assigneeID))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return Assignee{}, fmt.Errorf("lookup assignee %q: %w", assigneeID, err)
		}
		return assigneeFromDocument(collection, assigneeID, doc)
	}
	for _, collection := range domain.MasterCollections() {
		docs, err := store.Query(ctx, domain.MasterCollectionPath(tenantID, collection), domain.FieldID, assigneeID)
		if err != nil {
			return Assignee{}, fmt.Errorf("query assignee %q: %w", assigneeID, err)
		}
		if len(docs) > 0 {
			return assigneeFromDocument(collection, assigneeID, docs[0])
		}
	}
	return Assignee{}, fmt.Errorf("%w: assignee %q in tenant %q", ErrNotFound, assigneeID, tenantID)
}

func assigneeFromDocument(collection, assigneeID string, doc Document) (Assignee, error) {
	rec, err := domain.NewMemberRecord(collection, assigneeID, doc.Fields)
	if err != nil {
		return Assignee{}, err
	}
	return Assignee{
		ID:    assigneeID,
		Name:  rec.DisplayName(),
		Email: rec.Email(),
		Role:  domain.RoleForCollection(collection),
	}, nil
}
