package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/IvanJelicSF/superdesk-core/app/ingest"
)

// ProviderRepository handles database operations for ingest providers.
type ProviderRepository struct {
	db *DB
}

func NewProviderRepository(db *DB) *ProviderRepository {
	return &ProviderRepository{db: db}
}

const providerColumns = `
	id, name, config_file, feeding_service, feed_parser, source,
	update_interval_seconds, content_types, content_expiry_minutes,
	idle_hours, idle_minutes, is_closed, disable_item_updates,
	last_updated, last_item_update, last_item_arrived,
	etag, created_at, updated_at`

// Upsert inserts or updates a provider's static configuration, keeping the
// run-state timestamps owned by the database row. Returns the provider id.
func (r *ProviderRepository) Upsert(ctx context.Context, p *ingest.Provider) (string, error) {
	var contentExpiry sql.NullInt64
	if p.ContentExpiry != nil {
		contentExpiry = sql.NullInt64{Int64: int64(*p.ContentExpiry), Valid: true}
	}

	var id string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO providers (
			name, config_file, feeding_service, feed_parser, source,
			update_interval_seconds, content_types, content_expiry_minutes,
			idle_hours, idle_minutes, is_closed, disable_item_updates, etag
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (name) DO UPDATE SET
			config_file = EXCLUDED.config_file,
			feeding_service = EXCLUDED.feeding_service,
			feed_parser = EXCLUDED.feed_parser,
			source = EXCLUDED.source,
			update_interval_seconds = EXCLUDED.update_interval_seconds,
			content_types = EXCLUDED.content_types,
			content_expiry_minutes = EXCLUDED.content_expiry_minutes,
			idle_hours = EXCLUDED.idle_hours,
			idle_minutes = EXCLUDED.idle_minutes,
			is_closed = EXCLUDED.is_closed,
			disable_item_updates = EXCLUDED.disable_item_updates,
			updated_at = NOW()
		RETURNING id
	`, p.Name, p.ConfigFile, p.FeedingService, p.FeedParser, p.Source,
		int(p.UpdateInterval.Seconds()), pq.Array(p.ContentTypes), contentExpiry,
		p.IdleTime.Hours, p.IdleTime.Minutes, p.IsClosed, p.DisableItemUpdates,
		newEtag()).Scan(&id)

	if err != nil {
		return "", fmt.Errorf("failed to upsert provider: %w", err)
	}

	return id, nil
}

// GetAll returns every provider, by name.
func (r *ProviderRepository) GetAll(ctx context.Context) ([]*ingest.Provider, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+providerColumns+` FROM providers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to get providers: %w", err)
	}
	defer rows.Close()

	var providers []*ingest.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating provider rows: %w", err)
	}

	return providers, nil
}

// GetByName retrieves a provider by name, (nil, nil) when absent.
func (r *ProviderRepository) GetByName(ctx context.Context, name string) (*ingest.Provider, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+providerColumns+` FROM providers WHERE name = $1`, name)
	p, err := scanProvider(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider by name: %w", err)
	}
	return p, nil
}

// GetByID retrieves a provider by id, (nil, nil) when absent.
func (r *ProviderRepository) GetByID(ctx context.Context, id string) (*ingest.Provider, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+providerColumns+` FROM providers WHERE id = $1`, id)
	p, err := scanProvider(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider by id: %w", err)
	}
	return p, nil
}

// UpdateRunState persists the run timestamps with an optimistic concurrency
// check on the etag. A conflicting writer gets ingest.ErrEtagMismatch and
// must re-fetch; the conflict is not retried here.
func (r *ProviderRepository) UpdateRunState(ctx context.Context, id string, update ingest.ProviderRunUpdate, etag string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE providers SET
			last_updated = COALESCE($2, last_updated),
			last_item_update = COALESCE($3, last_item_update),
			last_item_arrived = COALESCE($4, last_item_arrived),
			etag = $5,
			updated_at = NOW()
		WHERE id = $1 AND etag = $6
	`, id, nullTime(update.LastUpdated), nullTime(update.LastItemUpdate),
		nullTime(update.LastItemArrived), newEtag(), etag)
	if err != nil {
		return fmt.Errorf("failed to update provider run state: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("provider %s: %w", id, ingest.ErrEtagMismatch)
	}

	return nil
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanProvider(row scannable) (*ingest.Provider, error) {
	var (
		p              ingest.Provider
		intervalSecs   int
		contentExpiry  sql.NullInt64
		lastUpdated    sql.NullTime
		lastItemUpdate sql.NullTime
		lastArrived    sql.NullTime
	)

	err := row.Scan(
		&p.ID, &p.Name, &p.ConfigFile, &p.FeedingService, &p.FeedParser, &p.Source,
		&intervalSecs, pq.Array(&p.ContentTypes), &contentExpiry,
		&p.IdleTime.Hours, &p.IdleTime.Minutes, &p.IsClosed, &p.DisableItemUpdates,
		&lastUpdated, &lastItemUpdate, &lastArrived,
		&p.ETag, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.UpdateInterval = time.Duration(intervalSecs) * time.Second
	if contentExpiry.Valid {
		minutes := int(contentExpiry.Int64)
		p.ContentExpiry = &minutes
	}
	if lastUpdated.Valid {
		p.LastUpdated = &lastUpdated.Time
	}
	if lastItemUpdate.Valid {
		p.LastItemUpdate = &lastItemUpdate.Time
	}
	if lastArrived.Valid {
		p.LastItemArrived = &lastArrived.Time
	}

	return &p, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func newEtag() string {
	return uuid.NewString()
}
