// Package feeding defines the contract between the ingest scheduler and the
// pluggable provider adapters, plus their registry. Provider-specific wire
// formats live entirely behind the Service interface.
package feeding

import (
	"context"
	"errors"

	"github.com/IvanJelicSF/superdesk-core/app/config"
	"github.com/IvanJelicSF/superdesk-core/app/ingest"
)

// Done is the sentinel a cursor returns when its finite sequence of batches
// is exhausted.
var Done = errors.New("feeding: no more batches")

// Cursor drives a feeding service's lazy sequence of item batches. Each step
// receives the GUIDs that failed in the previous batch so providers can mark
// or skip bad items upstream.
type Cursor interface {
	Next(ctx context.Context, failed []string) ([]*ingest.Item, error)
}

// Service is a feeding service capability: it fetches item batches for a
// provider. Implementations may additionally satisfy the capability
// interfaces in app/ingest (CollectionNamer, UpdateDecider, VersionDecider,
// CancelHandler) to override pipeline defaults per collection.
type Service interface {
	ingest.FeedingService

	// Update starts one fetch run. The run update may be stamped by the
	// service (e.g. last ingested position) and is persisted with the
	// provider's run state.
	Update(ctx context.Context, provider *ingest.Provider, settings *config.ServiceSettings, run *ingest.ProviderRunUpdate) (Cursor, error)
}

// BatchCursor serves a fixed, already-fetched list of batches; most pull
// adapters produce their batches up front.
type BatchCursor struct {
	batches [][]*ingest.Item
	next    int
}

func NewBatchCursor(batches ...[]*ingest.Item) *BatchCursor {
	return &BatchCursor{batches: batches}
}

func (c *BatchCursor) Next(ctx context.Context, failed []string) ([]*ingest.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.next >= len(c.batches) {
		return nil, Done
	}
	batch := c.batches[c.next]
	c.next++
	return batch, nil
}
