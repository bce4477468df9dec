// Package storage defines the Storage contract every backend implements —
// list/get/upload/update/delete, buffered/flush, metadata, and deletion of
// the whole collection — plus the shared Error/Kind domain error type.
package storage

import (
	"context"

	"github.com/yinjun1991/vdirstore/item"
)

// MetaKey enumerates the metadata properties a backend may support.
// Backends that cannot represent a key return MetadataValueUnsupported.
type MetaKey int

const (
	MetaDisplayName MetaKey = iota
	MetaColor
)

// ListedItem is one (href, etag) pair as returned by List.
type ListedItem struct {
	Href string
	ETag string
}

// Storage is the contract consumed by the synchronization engine (out of
// scope for this module). Implementations are owned
// by a single caller at a time and perform no internal reordering: callers
// serialize their own calls.
type Storage interface {
	// List enumerates the (href, etag) pairs currently present.
	List(ctx context.Context) ([]ListedItem, error)

	// Get fetches one item by href, returning its current etag.
	Get(ctx context.Context, href string) (*item.Item, string, error)

	// Upload creates a new item. It never overwrites an existing href;
	// a collision fails with ItemAlreadyExisting.
	Upload(ctx context.Context, it *item.Item) (href, etag string, err error)

	// Update replaces the item at href, failing WrongEtag if etag does
	// not match the current one.
	Update(ctx context.Context, href string, it *item.Item, etag string) (newETag string, err error)

	// Delete removes the item at href, failing WrongEtag if etag does
	// not match the current one.
	Delete(ctx context.Context, href, etag string) error

	// SetBuffered toggles buffered mode: while buffered, mutations are
	// only guaranteed durable after a successful Flush.
	SetBuffered(buffered bool)

	// Flush commits any buffered mutations.
	Flush(ctx context.Context) error

	// GetMeta reads a collection-level metadata property.
	GetMeta(ctx context.Context, key MetaKey) (string, error)

	// SetMeta writes a collection-level metadata property.
	SetMeta(ctx context.Context, key MetaKey, value string) error

	// DeleteCollection removes the entire collection. force must be true
	// or the call fails with BadDiscoveryConfig without making any
	// request or filesystem change — see the open-question note in
	// SPEC_FULL.md §11. The read-only HTTP backend fails with ReadOnly
	// whatever force is.
	DeleteCollection(ctx context.Context, force bool) error
}

// ConfigurableStorage describes enumerating or creating the collections a
// configuration describes. No backend type implements it as methods:
// filesystem, singlefile and dav expose package-level Discover and Create
// functions whose parameters are backend-specific; httpstorage, pointing at
// exactly one fixed URL, has neither.
type ConfigurableStorage[C any] interface {
	Discover(ctx context.Context, cfg C) ([]C, error)
	Create(ctx context.Context, cfg C) (C, error)
}
