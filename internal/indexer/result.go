package indexer

// Pipeline stages a file can fail in.
const (
	StageExtract = "extract"
	StageSegment = "segment"
	StageEmbed   = "embed"
	StageCommit  = "commit"
)

// Per-file outcomes.
const (
	OutcomeIndexed = "indexed"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Options control a single indexing run.
type Options struct {
	// Recursive descends into subdirectories when the input is a directory.
	Recursive bool
	// Force reindexes files even when fingerprints say they are unchanged.
	Force bool
	// ExcludePatterns are extra glob patterns merged with the configured ones.
	ExcludePatterns []string
}

// FileResult records the outcome for one discovered file.
type FileResult struct {
	Path    string `json:"path"`
	Outcome string `json:"outcome"`
	// Stage names the pipeline stage that failed; empty unless Outcome is
	// failed.
	Stage  string `json:"stage,omitempty"`
	Chunks int    `json:"chunks,omitempty"`
	Err    error  `json:"-"`
}

// Result summarizes an indexing run.
type Result struct {
	RunID   string       `json:"run_id"`
	Indexed int          `json:"indexed"`
	Skipped int          `json:"skipped"`
	Failed  int          `json:"failed"`
	Files   []FileResult `json:"files"`
}

func (r *Result) tally() {
	r.Indexed, r.Skipped, r.Failed = 0, 0, 0
	for _, f := range r.Files {
		switch f.Outcome {
		case OutcomeIndexed:
			r.Indexed++
		case OutcomeSkipped:
			r.Skipped++
		case OutcomeFailed:
			r.Failed++
		}
	}
}
