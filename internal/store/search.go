package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
)

// Search ranks chunks of fully indexed documents against the query vector.
// Scores come from the configured metric, strictly descending; ties break by
// ascending chunk id for determinism. Results below threshold are excluded
// before the limit applies. Chunks of documents in a non-terminal state are
// never returned; they only become visible once their commit unit lands.
func (s *Store) Search(ctx context.Context, queryVec []float32, limit int, threshold float64) ([]SearchResult, error) {
	if len(queryVec) != s.dimension {
		return nil, fmt.Errorf("query vector has dimension %d, expected %d", len(queryVec), s.dimension)
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.chunk_index, c.content, c.content_hash,
			c.start_offset, c.end_offset, c.metadata,
			d.path, d.filename, v.embedding, v.dim
		FROM chunk_vectors v
		JOIN chunks c ON c.id = v.chunk_id
		JOIN documents d ON d.id = c.document_id
		WHERE d.status = ?`, StatusIndexed)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var results []SearchResult
	for rows.Next() {
		var (
			r          SearchResult
			start, end sql.NullInt64
			blob       []byte
			dim        int
			meta       string
		)
		err := rows.Scan(&r.Chunk.ID, &r.Chunk.DocumentID, &r.Chunk.ChunkIndex,
			&r.Chunk.Content, &r.Chunk.ContentHash,
			&start, &end, &meta,
			&r.DocumentPath, &r.Filename, &blob, &dim)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search row: %w", err)
		}
		if start.Valid {
			v := int(start.Int64)
			r.Chunk.StartOffset = &v
		}
		if end.Valid {
			v := int(end.Int64)
			r.Chunk.EndOffset = &v
		}

		vec, err := decodeVector(blob, dim)
		if err != nil {
			return nil, fmt.Errorf("corrupt vector for chunk %d: %w", r.Chunk.ID, err)
		}
		r.Score = s.metric.Score(queryVec, vec)
		if r.Score < threshold {
			continue
		}
		if meta != "" {
			_ = json.Unmarshal([]byte(meta), &r.Chunk.Meta)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
