package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrArtifactNotFound is returned when no blob exists under a key.
var ErrArtifactNotFound = errors.New("artifact not found")

// ArtifactRecord is one stored blob.
type ArtifactRecord struct {
	Key         string
	Content     []byte
	ContentType string
	CreatedAt   time.Time
}

// PutArtifact stores content under key. Writing the same key again
// replaces the blob; keys are derived per job so this only happens when a
// reconciliation attempt is retried.
func (s *Store) PutArtifact(ctx context.Context, key string, content []byte, contentType string, now time.Time) error {
	if key == "" {
		return errors.New("put artifact: key is required")
	}
	if content == nil {
		content = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts (key, content, content_type, size, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			content      = excluded.content,
			content_type = excluded.content_type,
			size         = excluded.size,
			created_at   = excluded.created_at
	`, key, content, contentType, len(content), now.UnixMilli())
	if err != nil {
		return fmt.Errorf("put artifact %s: %w", key, err)
	}
	return nil
}

// GetArtifact retrieves the blob stored under key.
func (s *Store) GetArtifact(ctx context.Context, key string) (ArtifactRecord, error) {
	var rec ArtifactRecord
	var createdMs int64
	err := s.db.QueryRowContext(ctx, `
		SELECT key, content, content_type, created_at FROM artifacts WHERE key = ?
	`, key).Scan(&rec.Key, &rec.Content, &rec.ContentType, &createdMs)
	if errors.Is(err, sql.ErrNoRows) {
		return ArtifactRecord{}, fmt.Errorf("get artifact %s: %w", key, ErrArtifactNotFound)
	}
	if err != nil {
		return ArtifactRecord{}, fmt.Errorf("get artifact %s: %w", key, err)
	}
	rec.CreatedAt = time.UnixMilli(createdMs).UTC()
	return rec, nil
}

// ListArtifactKeys returns stored keys with the given prefix in key order.
func (s *Store) ListArtifactKeys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key FROM artifacts
		WHERE substr(key, 1, ?) = ?
		ORDER BY key COLLATE BINARY ASC
	`, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan artifact key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return keys, nil
}
