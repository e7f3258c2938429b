package app

import "strings"

// IDGenerator returns unique identifiers for new records.
type IDGenerator func() string

// IdentifierAllocator hands out the one id shared by every copy of a record.
// The external generator wins when present; otherwise the primary store's
// native id is used and then propagated unchanged to every other store.
type IdentifierAllocator struct {
	external IDGenerator
}

// NewIdentifierAllocator builds an allocator; external may be nil.
func NewIdentifierAllocator(external IDGenerator) IdentifierAllocator {
	return IdentifierAllocator{external: external}
}

// Allocate returns the shared id for one record written first to primary.
func (a IdentifierAllocator) Allocate(primary DocumentStore) string {
	if a.external != nil {
		if id := strings.TrimSpace(a.external()); id != "" {
			return id
		}
	}
	return primary.NewID()
}
