package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"shortcast/internal/models"
)

// ArtifactRepository is the data access layer for artifact metadata.
type ArtifactRepository struct {
	db *DB
}

// NewArtifactRepository creates a new ArtifactRepository.
func NewArtifactRepository(db *DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// Create inserts a new artifact record.
func (r *ArtifactRepository) Create(ctx context.Context, a *models.Artifact) error {
	if a.Key == "" {
		a.Key = uuid.New().String()
	}
	if a.Lifecycle == "" {
		a.Lifecycle = models.LifecycleTemporary
	}
	a.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO artifacts (key, owner, content_kind, lifecycle, size_bytes, path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.Key, a.Owner, a.Kind, a.Lifecycle, a.SizeBytes, a.Path, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert artifact: %w", err)
	}
	return nil
}

// GetByKey returns the artifact with the given key, or nil if absent.
func (r *ArtifactRepository) GetByKey(ctx context.Context, key string) (*models.Artifact, error) {
	var a models.Artifact
	err := r.db.QueryRowContext(ctx, `
		SELECT key, owner, content_kind, lifecycle, size_bytes, path, created_at
		FROM artifacts WHERE key = ?`, key).
		Scan(&a.Key, &a.Owner, &a.Kind, &a.Lifecycle, &a.SizeBytes, &a.Path, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Promote changes an artifact's lifecycle to permanent. Promoting an already
// permanent artifact is a no-op. Returns models.ErrNotFound if key is absent.
func (r *ArtifactRepository) Promote(ctx context.Context, key string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE artifacts SET lifecycle = ? WHERE key = ?`,
		models.LifecyclePermanent, key)
	if err != nil {
		return fmt.Errorf("failed to promote artifact: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ListExpired returns temporary artifacts created before the cutoff.
func (r *ArtifactRepository) ListExpired(ctx context.Context, cutoff time.Time) ([]models.Artifact, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT key, owner, content_kind, lifecycle, size_bytes, path, created_at
		FROM artifacts WHERE lifecycle = ? AND created_at < ?`,
		models.LifecycleTemporary, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []models.Artifact
	for rows.Next() {
		var a models.Artifact
		if err := rows.Scan(&a.Key, &a.Owner, &a.Kind, &a.Lifecycle,
			&a.SizeBytes, &a.Path, &a.CreatedAt); err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

// Delete removes an artifact record.
func (r *ArtifactRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM artifacts WHERE key = ?`, key)
	return err
}
