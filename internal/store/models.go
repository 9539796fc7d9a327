package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Document lifecycle states. A document reaches StatusIndexed only in the
// same transaction that lands its full chunk and vector set.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusIndexed    = "indexed"
	StatusFailed     = "failed"
)

// Document is one indexed source file. Path is the stable identifier and is
// unique across the index.
type Document struct {
	ID          int64
	Path        string
	Filename    string
	FileType    string
	SizeBytes   int64
	ContentHash string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastIndexed *time.Time
	ModTimeNS   int64
	Metadata    map[string]string
}

// QuickUnchanged is the cheap staleness pre-check: size and modification
// time match the values stored at last successful index. It avoids
// re-reading large unchanged files, but is never authoritative; content
// fingerprints are.
func (d *Document) QuickUnchanged(size, mtimeNS int64) bool {
	return d.Status == StatusIndexed && d.SizeBytes == size && d.ModTimeNS == mtimeNS
}

// IsStale reports whether the stored index state no longer matches the
// current content fingerprint. Documents that never finished indexing are
// always stale.
func (d *Document) IsStale(currentHash string) bool {
	return d.Status != StatusIndexed || d.ContentHash != currentHash
}

// ChunkMeta is segmenter-derived chunk metadata.
type ChunkMeta struct {
	WordCount     int    `json:"word_count"`
	SentenceCount int    `json:"sentence_count"`
	Strategy      string `json:"strategy"`
}

// Chunk is one retrievable unit of a document's text. (DocumentID,
// ChunkIndex) is unique and contiguous per document version. Offsets are
// byte positions into the extracted source text; nil when the segmenter
// could not report them.
type Chunk struct {
	ID          int64
	DocumentID  int64
	ChunkIndex  int
	Content     string
	ContentHash string
	StartOffset *int
	EndOffset   *int
	Meta        ChunkMeta
}

// SearchResult is one ranked hit of a similarity query.
type SearchResult struct {
	Chunk        Chunk
	DocumentPath string
	Filename     string
	Score        float64
}

// JobOptions are per-job overrides applied when the scheduler runs a job.
type JobOptions struct {
	Recursive       bool     `json:"recursive"`
	Force           bool     `json:"force"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`
}

// Job is a named recurring indexing task bound to a path.
type Job struct {
	ID           int64
	Name         string
	Path         string
	Schedule     string
	Enabled      bool
	LastRun      *time.Time
	NextRun      *time.Time
	LastSuccess  *time.Time
	FailureCount int
	Options      JobOptions
	CreatedAt    time.Time
}

// Stats summarizes the index contents.
type Stats struct {
	Documents int
	Chunks    int
	Vectors   int
}
