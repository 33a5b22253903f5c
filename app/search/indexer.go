// Package search keeps the search backend consistent with storage. Normal
// indexing may run asynchronously elsewhere; the ingest pipeline pushes the
// records it just persisted synchronously after every batch.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/IvanJelicSF/superdesk-core/app/database"
	"github.com/IvanJelicSF/superdesk-core/app/ingest"
)

// Indexer mirrors ingested items into the search_items table in bulk.
type Indexer struct {
	db *database.DB
}

func NewIndexer(db *database.DB) *Indexer {
	return &Indexer{db: db}
}

var _ ingest.SearchIndexer = (*Indexer)(nil)

// BulkInsert upserts the given items into the search index inside one
// transaction.
func (i *Indexer) BulkInsert(ctx context.Context, collection string, items []*ingest.Item) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin search sync: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO search_items (id, collection, guid, headline, slugline, versioncreated, doc)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			headline = EXCLUDED.headline,
			slugline = EXCLUDED.slugline,
			versioncreated = EXCLUDED.versioncreated,
			doc = EXCLUDED.doc,
			indexed_at = NOW()
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare search sync: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		doc, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal item %s: %w", item.GUID, err)
		}
		if _, err := stmt.ExecContext(ctx, item.ID, collection, item.GUID,
			item.Headline, item.Slugline, item.VersionCreated, doc); err != nil {
			return fmt.Errorf("failed to index item %s: %w", item.GUID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit search sync: %w", err)
	}

	slog.Debug("Search index synced", "collection", collection, "count", len(items))
	return nil
}
