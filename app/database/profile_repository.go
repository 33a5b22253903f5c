package database

import (
	"context"
	"fmt"

	"github.com/IvanJelicSF/superdesk-core/app/ingest"
)

// ProfileRepository validates content profile references against the
// resource layer's content_profiles table.
type ProfileRepository struct {
	db *DB
}

func NewProfileRepository(db *DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

var _ ingest.ProfileValidator = (*ProfileRepository)(nil)

func (r *ProfileRepository) ProfileExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM content_profiles WHERE id = $1 AND enabled = true)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check content profile: %w", err)
	}
	return exists, nil
}
