package database

import (
	"context"
	"fmt"
	"time"

	"github.com/IvanJelicSF/superdesk-core/app/ingest"
)

// LockRepository implements the distributed exclusive lock on a database
// table. A lock row whose expiry has passed is up for grabs.
type LockRepository struct {
	db *DB
}

func NewLockRepository(db *DB) *LockRepository {
	return &LockRepository{db: db}
}

var _ ingest.LockService = (*LockRepository)(nil)

// Acquire takes the named lock for owner with the given TTL. Returns false
// when another owner holds an unexpired lock.
func (r *LockRepository) Acquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO locks (name, owner, expires_at)
		VALUES ($1, $2, NOW() + $3 * INTERVAL '1 second')
		ON CONFLICT (name) DO UPDATE SET
			owner = EXCLUDED.owner,
			expires_at = EXCLUDED.expires_at,
			created_at = NOW()
		WHERE locks.expires_at < NOW()
	`, name, owner, int(ttl.Seconds()))
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// Renew extends the lock's lifetime. Returns false when the lock was lost:
// expired and taken over, or released.
func (r *LockRepository) Renew(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE locks
		SET expires_at = NOW() + $3 * INTERVAL '1 second'
		WHERE name = $1 AND owner = $2 AND expires_at >= NOW()
	`, name, owner, int(ttl.Seconds()))
	if err != nil {
		return false, fmt.Errorf("failed to renew lock %s: %w", name, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// Release drops the lock when still held by owner.
func (r *LockRepository) Release(ctx context.Context, name, owner string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM locks WHERE name = $1 AND owner = $2`, name, owner)
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", name, err)
	}
	return nil
}
