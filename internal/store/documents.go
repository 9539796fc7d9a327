package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

const documentColumns = `id, path, filename, file_type, size_bytes, content_hash,
	status, created_at, updated_at, last_indexed, mtime_ns, metadata`

func scanDocument(row interface{ Scan(...any) error }) (*Document, error) {
	var (
		doc         Document
		lastIndexed sql.NullTime
		meta        string
	)
	err := row.Scan(&doc.ID, &doc.Path, &doc.Filename, &doc.FileType, &doc.SizeBytes,
		&doc.ContentHash, &doc.Status, &doc.CreatedAt, &doc.UpdatedAt,
		&lastIndexed, &doc.ModTimeNS, &meta)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}
	if lastIndexed.Valid {
		t := lastIndexed.Time
		doc.LastIndexed = &t
	}
	if meta != "" {
		if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode document metadata: %w", err)
		}
	}
	return &doc, nil
}

// FindByPath looks a document up by its stable path identifier. Returns
// ErrNotFound when the path was never indexed.
func (s *Store) FindByPath(ctx context.Context, path string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE path = ?", path)
	return scanDocument(row)
}

// ListDocuments returns documents ordered most-recently-indexed first.
// Documents that never finished indexing sort last.
func (s *Store) ListDocuments(ctx context.Context, limit, offset int) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+documentColumns+` FROM documents
		ORDER BY last_indexed IS NULL, last_indexed DESC, id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return docs, nil
}

// RemoveDocuments deletes documents whose path equals or glob-matches the
// pattern, cascading to their chunks and vectors. Returns the number of
// documents removed.
func (s *Store) RemoveDocuments(ctx context.Context, pattern string) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM documents WHERE path = ? OR path GLOB ?", pattern, pattern)
	if err != nil {
		return 0, fmt.Errorf("failed to remove documents: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count removed documents: %w", err)
	}
	return int(n), nil
}

// ChunksByDocument returns a document's chunks ordered by chunk index.
func (s *Store) ChunksByDocument(ctx context.Context, documentID int64) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, chunk_index, content, content_hash,
			start_offset, end_offset, metadata
		FROM chunks WHERE document_id = ? ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var chunks []Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return chunks, nil
}

func scanChunk(row interface{ Scan(...any) error }) (*Chunk, error) {
	var (
		c          Chunk
		start, end sql.NullInt64
		meta       string
	)
	err := row.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content, &c.ContentHash,
		&start, &end, &meta)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan chunk: %w", err)
	}
	if start.Valid {
		v := int(start.Int64)
		c.StartOffset = &v
	}
	if end.Valid {
		v := int(end.Int64)
		c.EndOffset = &v
	}
	if meta != "" {
		if err := json.Unmarshal([]byte(meta), &c.Meta); err != nil {
			return nil, fmt.Errorf("failed to decode chunk metadata: %w", err)
		}
	}
	return &c, nil
}

// VectorByChunk returns the stored embedding for one chunk.
func (s *Store) VectorByChunk(ctx context.Context, chunkID int64) ([]float32, error) {
	var (
		blob []byte
		dim  int
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT embedding, dim FROM chunk_vectors WHERE chunk_id = ?", chunkID).
		Scan(&blob, &dim)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query vector: %w", err)
	}
	return decodeVector(blob, dim)
}

// IndexStats counts indexed entities.
func (s *Store) IndexStats(ctx context.Context) (*Stats, error) {
	var st Stats
	row := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM documents),
			(SELECT COUNT(*) FROM chunks),
			(SELECT COUNT(*) FROM chunk_vectors)`)
	if err := row.Scan(&st.Documents, &st.Chunks, &st.Vectors); err != nil {
		return nil, fmt.Errorf("failed to collect stats: %w", err)
	}
	return &st, nil
}
