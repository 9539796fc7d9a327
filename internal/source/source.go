// Package source owns file discovery and the text-extraction boundary.
//
// Discovery expands a path into the set of files the pipeline should
// consider, applying supported-extension and exclusion-pattern filters.
// Extraction turns one file into text plus a content fingerprint; any
// extraction failure is reported per file and never aborts a run.
package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"roserade/internal/fingerprint"
)

// FileInfo describes a discovered file before extraction.
type FileInfo struct {
	Path     string
	Filename string
	FileType string // lowercased extension without the leading dot, e.g. "md"
	Size     int64
	ModTime  time.Time
}

// Extracted is the result of pulling text out of one file.
type Extracted struct {
	Content  string
	Hash     string // fingerprint of the raw file bytes
	Metadata map[string]string
}

// ExtractionError wraps a per-file read or parse failure. Callers isolate it
// to the offending file and continue the run.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract %s: %s", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Extractor turns a file path into text. Implementations per format live
// behind this interface; the pipeline only sees Extracted or an error.
type Extractor interface {
	Extract(path string) (*Extracted, error)
}

// Stat returns file metadata without reading content, used for the cheap
// staleness pre-check.
func Stat(path string) (*FileInfo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, &ExtractionError{Path: abs, Err: err}
	}
	if info.IsDir() {
		return nil, &ExtractionError{Path: abs, Err: fmt.Errorf("is a directory")}
	}
	return &FileInfo{
		Path:     abs,
		Filename: filepath.Base(abs),
		FileType: strings.ToLower(strings.TrimPrefix(filepath.Ext(abs), ".")),
		Size:     info.Size(),
		ModTime:  info.ModTime(),
	}, nil
}

// DiscoverOptions filters directory expansion.
type DiscoverOptions struct {
	Recursive       bool
	Extensions      []string // with leading dot, e.g. ".md"
	ExcludePatterns []string // glob patterns matched against the full path
}

// Discover expands path into an ordered list of candidate files. A file path
// is returned as-is (extension filter still applies to directories only, so
// explicitly named files are always accepted). Excluded or unsupported files
// are silently dropped; discovery errors on unreadable subtrees are returned.
func Discover(path string, opts DiscoverOptions) ([]string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", abs, err)
	}

	if !info.IsDir() {
		if excluded(abs, opts.ExcludePatterns) {
			return nil, nil
		}
		return []string{abs}, nil
	}

	var files []string
	walkErr := filepath.WalkDir(abs, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to access %s: %w", p, err)
		}
		if d.IsDir() {
			if p != abs && !opts.Recursive {
				return filepath.SkipDir
			}
			// Hidden directories (e.g. .git, .cache) are never scanned.
			if p != abs && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !supported(p, opts.Extensions) || excluded(p, opts.ExcludePatterns) {
			return nil
		}
		files = append(files, p)
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return files, nil
}

func supported(path string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

func excluded(path string, patterns []string) bool {
	for _, pat := range patterns {
		if ok, _ := filepath.Match(pat, path); ok {
			return true
		}
		if ok, _ := filepath.Match(pat, filepath.Base(path)); ok {
			return true
		}
	}
	return false
}

// TextExtractor reads plain-text formats (txt, md) directly. Richer formats
// plug in behind the Extractor interface.
type TextExtractor struct{}

// NewTextExtractor returns an Extractor for plain-text files.
func NewTextExtractor() *TextExtractor { return &TextExtractor{} }

// Extract reads the file and fingerprints its raw bytes.
func (x *TextExtractor) Extract(path string) (*Extracted, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}
	return &Extracted{
		Content: string(data),
		Hash:    fingerprint.Sum(data),
		Metadata: map[string]string{
			"encoding": "utf-8",
		},
	}, nil
}
