package ingest

import (
	"context"
	"time"
)

// ItemStore is the storage contract the pipeline needs: keyed lookups,
// conditional insert and per-record updates. Lookups return (nil, nil) when
// no record matches.
type ItemStore interface {
	FindOneByGUID(ctx context.Context, collection, guid string) (*Item, error)
	FindOneByID(ctx context.Context, collection, id string) (*Item, error)
	FindOneByURI(ctx context.Context, collection, uri string) (*Item, error)
	FindByURI(ctx context.Context, collection, uri string) ([]*Item, error)
	FindByIDs(ctx context.Context, collection string, ids []string) ([]*Item, error)

	// Insert persists a new record. A duplicate GUID surfaces as an error,
	// not a silent upsert.
	Insert(ctx context.Context, collection string, item *Item) error
	Update(ctx context.Context, collection, id string, item *Item) error
	SetExpiry(ctx context.Context, collection, id string, expiry time.Time) error
	Kill(ctx context.Context, collection, id string) error

	// NextProviderSequence returns the next ingest sequence number for the
	// provider, starting at 1.
	NextProviderSequence(ctx context.Context, providerID string) (int64, error)
}

// ProfileValidator checks content profile references against the resource
// layer. A nil validator leaves profiles untouched.
type ProfileValidator interface {
	ProfileExists(ctx context.Context, id string) (bool, error)
}

// VocabEntry is one entry of a taxonomy vocabulary.
type VocabEntry struct {
	QCode        string                       `yaml:"qcode" json:"qcode"`
	Name         string                       `yaml:"name" json:"name"`
	IsActive     bool                         `yaml:"is_active" json:"is_active"`
	Subject      string                       `yaml:"subject" json:"subject"`
	Category     string                       `yaml:"category" json:"category"`
	Translations map[string]map[string]string `yaml:"translations" json:"translations"`
}

// VocabularyStore is the read-only vocabulary lookup used during taxonomy
// enrichment.
type VocabularyStore interface {
	Vocabulary(id string) ([]VocabEntry, bool)
}

// Vocabulary ids the enricher reads.
const (
	VocabCategories      = "categories"
	VocabIPTCCategoryMap = "iptc_category_map"
)

// SearchIndexer pushes persisted items into the search backend. The batch
// pipeline calls it synchronously after every batch so search stays
// consistent with storage.
type SearchIndexer interface {
	BulkInsert(ctx context.Context, collection string, items []*Item) error
}

// MediaTransferrer performs rendition file transfer. It is an out-of-process
// side effect assumed idempotent enough to retry per item.
type MediaTransferrer interface {
	// UpdateRenditions fetches the primary rendition from href and rewrites
	// the item's renditions with system media references, reusing old's
	// media when the source is unchanged.
	UpdateRenditions(ctx context.Context, item *Item, href string, old *Item) error
	// TransferRenditions downloads every rendition that has no media yet.
	TransferRenditions(ctx context.Context, renditions map[string]Rendition) error
}

// RoutingApplier applies a routing scheme to a freshly persisted item. It is
// an external collaborator; failures are the caller's to log.
type RoutingApplier interface {
	Apply(ctx context.Context, item *Item, provider *Provider, scheme *RoutingScheme) error
}

// FeedingService is the subset of the feeding service contract the item
// pipeline needs. The full fetch contract lives in app/feeding.
type FeedingService interface {
	// PrepareHref rewrites a rendition href before transfer (signing,
	// proxying); most services return it unchanged.
	PrepareHref(href, mimeType string) string
}

// Capability interfaces a feeding service may additionally implement.
// Callers probe with a type assertion and fall back to package defaults,
// so collections never need runtime attribute checks.

// CollectionNamer overrides the target storage collection.
type CollectionNamer interface {
	CollectionName() string
}

// UpdateDecider decides whether an existing record should be updated at all.
type UpdateDecider interface {
	ShouldUpdate(old, incoming *Item, provider *Provider) bool
}

// VersionDecider overrides the default new-version comparison.
type VersionDecider interface {
	IsNewVersion(incoming, old *Item) bool
}

// CancelHandler overrides the cascade applied when an item is cancelled.
type CancelHandler interface {
	CancelRelatedItems(ctx context.Context, item *Item) error
}

// LockService is the distributed exclusive lock used to serialize provider
// runs. Locks have a bounded lifetime and must be renewed by the holder.
type LockService interface {
	Acquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	Renew(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name, owner string) error
}
