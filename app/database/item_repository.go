package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/IvanJelicSF/superdesk-core/app/ingest"
)

// ItemRepository handles database operations for ingested items. The full
// item travels in the doc column; key fields are mirrored into columns for
// lookups.
type ItemRepository struct {
	db *DB
}

func NewItemRepository(db *DB) *ItemRepository {
	return &ItemRepository{db: db}
}

var _ ingest.ItemStore = (*ItemRepository)(nil)

// FindOneByGUID returns the stored item with the given GUID, (nil, nil) when
// none exists.
func (r *ItemRepository) FindOneByGUID(ctx context.Context, collection, guid string) (*ingest.Item, error) {
	return r.findOne(ctx, `SELECT doc FROM items WHERE collection = $1 AND guid = $2`, collection, guid)
}

// FindOneByID returns the stored item with the given internal id.
func (r *ItemRepository) FindOneByID(ctx context.Context, collection, id string) (*ingest.Item, error) {
	return r.findOne(ctx, `SELECT doc FROM items WHERE collection = $1 AND id = $2`, collection, id)
}

// FindOneByURI returns the first stored item with the given URI.
func (r *ItemRepository) FindOneByURI(ctx context.Context, collection, uri string) (*ingest.Item, error) {
	return r.findOne(ctx, `SELECT doc FROM items WHERE collection = $1 AND uri = $2 LIMIT 1`, collection, uri)
}

// FindByURI returns every stored item sharing the URI.
func (r *ItemRepository) FindByURI(ctx context.Context, collection, uri string) ([]*ingest.Item, error) {
	return r.find(ctx, `SELECT doc FROM items WHERE collection = $1 AND uri = $2`, collection, uri)
}

// FindByIDs returns the stored items for the given internal ids; missing ids
// are silently absent from the result.
func (r *ItemRepository) FindByIDs(ctx context.Context, collection string, ids []string) ([]*ingest.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.find(ctx, `SELECT doc FROM items WHERE collection = $1 AND id = ANY($2)`, collection, pq.Array(ids))
}

// Insert persists a new item. A duplicate GUID surfaces as
// ingest.ErrDuplicateItem.
func (r *ItemRepository) Insert(ctx context.Context, collection string, item *ingest.Item) error {
	doc, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO items (
			id, collection, guid, uri, family_id, ingest_provider,
			state, pubstatus, versioncreated, expiry, doc
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, item.ID, collection, item.GUID, item.URI, item.FamilyID, item.IngestProvider,
		item.State, item.PubStatus, nullTime(item.VersionCreated), nullTime(item.Expiry), doc)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("guid %s: %w", item.GUID, ingest.ErrDuplicateItem)
		}
		return fmt.Errorf("failed to insert item: %w", err)
	}

	return nil
}

// Update replaces the stored item in place.
func (r *ItemRepository) Update(ctx context.Context, collection, id string, item *ingest.Item) error {
	doc, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE items SET
			guid = $3, uri = $4, family_id = $5, ingest_provider = $6,
			state = $7, pubstatus = $8, versioncreated = $9, expiry = $10,
			doc = $11, updated_at = NOW()
		WHERE collection = $1 AND id = $2
	`, collection, id, item.GUID, item.URI, item.FamilyID, item.IngestProvider,
		item.State, item.PubStatus, nullTime(item.VersionCreated), nullTime(item.Expiry), doc)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}

	return requireAffected(result, id)
}

// SetExpiry refreshes a stored item's expiry without touching anything else.
func (r *ItemRepository) SetExpiry(ctx context.Context, collection, id string, expiry time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE items SET
			expiry = $3,
			doc = jsonb_set(doc, '{expiry}', to_jsonb($3::timestamptz), true),
			updated_at = NOW()
		WHERE collection = $1 AND id = $2
	`, collection, id, expiry)
	if err != nil {
		return fmt.Errorf("failed to set item expiry: %w", err)
	}

	return requireAffected(result, id)
}

// Kill marks a stored item canceled and killed.
func (r *ItemRepository) Kill(ctx context.Context, collection, id string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE items SET
			state = $3, pubstatus = $4,
			doc = doc || jsonb_build_object('state', $3::text, 'pubstatus', $4::text),
			updated_at = NOW()
		WHERE collection = $1 AND id = $2
	`, collection, id, ingest.StateKilled, ingest.PubStatusCanceled)
	if err != nil {
		return fmt.Errorf("failed to kill item: %w", err)
	}

	return requireAffected(result, id)
}

// NextProviderSequence returns the next ingest sequence number for the
// provider, starting at 1.
func (r *ItemRepository) NextProviderSequence(ctx context.Context, providerID string) (int64, error) {
	var sequence int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO provider_sequences (provider_id, sequence)
		VALUES ($1, 1)
		ON CONFLICT (provider_id) DO UPDATE SET sequence = provider_sequences.sequence + 1
		RETURNING sequence
	`, providerID).Scan(&sequence)
	if err != nil {
		return 0, fmt.Errorf("failed to get provider sequence: %w", err)
	}
	return sequence, nil
}

func (r *ItemRepository) findOne(ctx context.Context, query string, args ...interface{}) (*ingest.Item, error) {
	var doc []byte
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query item: %w", err)
	}
	return unmarshalItem(doc)
}

func (r *ItemRepository) find(ctx context.Context, query string, args ...interface{}) ([]*ingest.Item, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []*ingest.Item
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		item, err := unmarshalItem(doc)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}

	return items, nil
}

func unmarshalItem(doc []byte) (*ingest.Item, error) {
	var item ingest.Item
	if err := json.Unmarshal(doc, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return &item, nil
}

func requireAffected(result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("item %s not found", id)
	}
	return nil
}
