package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"tejas.dev/portfolio-api/internal/domain"
)

// ReplaceIndexSnapshot stores snap as the only persisted index, replacing any
// previous one in a single transaction.
func (s *SQLiteStore) ReplaceIndexSnapshot(ctx context.Context, snap *Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback() // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM index_chunks"); err != nil {
		return fmt.Errorf("failed to delete index_chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM index_meta"); err != nil {
		return fmt.Errorf("failed to delete index_meta: %w", err)
	}

	_, err = tx.ExecContext(ctx, "INSERT INTO index_meta (id, model, built_at, files_json) VALUES (1, ?, ?, ?)",
		snap.Model, snap.BuiltAt.UTC(), snap.FilesJSON)
	if err != nil {
		return fmt.Errorf("failed to insert index_meta: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO index_chunks (position, text, label, kind, embedding_json) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare index_chunks insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range snap.Chunks {
		embeddingBytes, err := json.Marshal(c.Embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, c.Position, c.Text, c.Label, c.Kind, string(embeddingBytes)); err != nil {
			return fmt.Errorf("failed to execute index_chunks insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// LoadIndexSnapshot returns the persisted index, or domain.ErrNotFound when
// none has been stored.
func (s *SQLiteStore) LoadIndexSnapshot(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	var filesJSON sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT model, built_at, files_json FROM index_meta WHERE id = 1").
		Scan(&snap.Model, &snap.BuiltAt, &filesJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query index_meta: %w", err)
	}
	snap.FilesJSON = filesJSON.String

	rows, err := s.db.QueryContext(ctx, "SELECT position, text, label, kind, embedding_json FROM index_chunks ORDER BY position ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query index_chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c SnapshotChunk
		var embeddingJSON string
		if err := rows.Scan(&c.Position, &c.Text, &c.Label, &c.Kind, &embeddingJSON); err != nil {
			return nil, fmt.Errorf("failed to scan index_chunks row: %w", err)
		}
		if err := json.Unmarshal([]byte(embeddingJSON), &c.Embedding); err != nil {
			return nil, fmt.Errorf("failed to unmarshal embedding for chunk %d: %w", c.Position, err)
		}
		snap.Chunks = append(snap.Chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read index_chunks: %w", err)
	}
	return &snap, nil
}
