package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"roserade/internal/fingerprint"
)

// CommitDocument applies one commit unit: the document row, its complete
// chunk set and their vectors, atomically. Reindexing replaces the previous
// chunk set wholesale, because chunk boundaries can shift even for unchanged
// regions. On any failure the transaction rolls back and the document stays
// in its prior state.
//
// Chunk fingerprints are recomputed from chunk text here, never trusted from
// upstream. Vector dimensions are validated on every insert.
func (s *Store) CommitDocument(ctx context.Context, doc *Document, chunks []Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d chunks, %d vectors", len(chunks), len(vectors))
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin commit: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal document metadata: %w", err)
	}

	var docID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO documents (path, filename, file_type, size_bytes, content_hash,
			status, created_at, updated_at, last_indexed, mtime_ns, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			filename = excluded.filename,
			file_type = excluded.file_type,
			size_bytes = excluded.size_bytes,
			content_hash = excluded.content_hash,
			status = excluded.status,
			updated_at = excluded.updated_at,
			last_indexed = excluded.last_indexed,
			mtime_ns = excluded.mtime_ns,
			metadata = excluded.metadata
		RETURNING id`,
		doc.Path, doc.Filename, doc.FileType, doc.SizeBytes, doc.ContentHash,
		StatusIndexed, now, now, now, doc.ModTimeNS, string(meta),
	).Scan(&docID)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	// Replace the previous chunk set; vectors cascade.
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", docID); err != nil {
		return fmt.Errorf("failed to clear previous chunks: %w", err)
	}

	chunkStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (document_id, chunk_index, content, content_hash,
			start_offset, end_offset, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer func() {
		_ = chunkStmt.Close()
	}()

	vecStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO chunk_vectors (chunk_id, dim, embedding) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare vector insert: %w", err)
	}
	defer func() {
		_ = vecStmt.Close()
	}()

	for i := range chunks {
		c := &chunks[i]
		chunkMeta, err := json.Marshal(c.Meta)
		if err != nil {
			return fmt.Errorf("failed to marshal chunk metadata: %w", err)
		}

		var chunkID int64
		err = chunkStmt.QueryRowContext(ctx,
			docID, i, c.Content, fingerprint.SumString(c.Content),
			nullableInt(c.StartOffset), nullableInt(c.EndOffset), string(chunkMeta), now,
		).Scan(&chunkID)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}

		if len(vectors[i]) != s.dimension {
			return fmt.Errorf("vector %d has dimension %d, expected %d", i, len(vectors[i]), s.dimension)
		}
		if _, err := vecStmt.ExecContext(ctx, chunkID, s.dimension, encodeVector(vectors[i])); err != nil {
			return fmt.Errorf("failed to insert vector %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit document %s: %w", doc.Path, err)
	}
	doc.ID = docID
	return nil
}

// MarkDocumentFailed records a failed indexing attempt without touching any
// existing chunk data. An unknown path gets a new row in the failed state;
// a known document keeps its previous content hash so the next run still
// detects the content as unindexed.
func (s *Store) MarkDocumentFailed(ctx context.Context, path, filename, fileType string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (path, filename, file_type, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at`,
		path, filename, fileType, StatusFailed, now, now)
	if err != nil {
		return fmt.Errorf("failed to mark document failed: %w", err)
	}
	return nil
}

// TouchDocument refreshes the size/mtime pre-filter after a skip decided by
// fingerprint comparison, so the next run can skip without re-reading.
func (s *Store) TouchDocument(ctx context.Context, path string, size, mtimeNS int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE documents SET size_bytes = ?, mtime_ns = ?, updated_at = ? WHERE path = ?",
		size, mtimeNS, time.Now().UTC(), path)
	if err != nil {
		return fmt.Errorf("failed to touch document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
