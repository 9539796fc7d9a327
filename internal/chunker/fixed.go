package chunker

import (
	"strings"

	"roserade/internal/config"
)

// fixed cuts the text into rune-budget windows. Consecutive windows share
// exactly overlap runes, so the step between window starts is size-overlap.
type fixed struct {
	size    int
	overlap int
}

func newFixed(cfg config.ChunkingConfig) *fixed {
	return &fixed{size: cfg.Size, overlap: cfg.Overlap}
}

func (f *fixed) Chunk(text, fileType string) ([]Segment, error) {
	return annotate(fixedSegments(text, 0, f.size, f.overlap), config.StrategyFixed), nil
}

// fixedSegments is the shared window-cutting core. base shifts reported byte
// offsets so the semantic strategy can reuse it for force-splitting a unit
// that sits deep inside the source text. Whitespace-only windows are dropped.
func fixedSegments(text string, base, size, overlap int) []Segment {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	offs := byteOffsets(text, runes)
	step := size - overlap

	var segs []Segment
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		window := string(runes[start:end])
		if strings.TrimSpace(window) != "" {
			segs = append(segs, Segment{
				Text:  window,
				Start: base + offs[start],
				End:   base + offs[end],
			})
		}
		if end == len(runes) {
			break
		}
	}
	return segs
}
