// Package chunker segments extracted document text into ordered, retrievable
// units. Two strategies exist: fixed-size windows with a configured overlap,
// and semantic segmentation along sentence/paragraph/markdown-heading
// boundaries with min/max size bounds. The strategy is resolved from
// configuration once at startup into a concrete Chunker.
package chunker

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"roserade/internal/config"
)

// Segment is one chunk of a document's text. Offsets are byte positions into
// the source text; Start is inclusive, End exclusive. Segments are ordered by
// Start and non-overlapping except for the configured overlap window of the
// fixed strategy.
type Segment struct {
	Text          string
	Start         int
	End           int
	WordCount     int
	SentenceCount int
	Strategy      string
}

// Chunker turns document text into an ordered sequence of segments.
// An empty document yields zero segments; a document shorter than the
// configured minimum yields exactly one.
type Chunker interface {
	Chunk(text, fileType string) ([]Segment, error)
}

// New resolves the configured strategy into a concrete Chunker. The
// configuration is assumed validated (overlap < size, known strategy);
// an unknown strategy here indicates a programming error upstream.
func New(cfg config.ChunkingConfig) (Chunker, error) {
	switch cfg.Strategy {
	case config.StrategyFixed:
		return newFixed(cfg), nil
	case config.StrategySemantic:
		return newSemantic(cfg), nil
	default:
		return nil, fmt.Errorf("unknown chunking strategy %q", cfg.Strategy)
	}
}

// span is a half-open byte range into the source text.
type span struct {
	start, end int
}

func (s span) text(src string) string { return src[s.start:s.end] }

func runeLen(s string) int { return utf8.RuneCountInString(s) }

// byteOffsets returns, for each rune index, the byte offset where that rune
// starts, plus one trailing entry for the end of the text.
func byteOffsets(text string, runes []rune) []int {
	offs := make([]int, len(runes)+1)
	pos := 0
	for i, r := range runes {
		offs[i] = pos
		pos += utf8.RuneLen(r)
	}
	offs[len(runes)] = pos
	return offs
}

// annotate fills derived metadata on a finished segment set.
func annotate(segs []Segment, strategy string) []Segment {
	for i := range segs {
		segs[i].WordCount = len(strings.Fields(segs[i].Text))
		segs[i].SentenceCount = countSentences(segs[i].Text)
		segs[i].Strategy = strategy
	}
	return segs
}

// countSentences counts terminator-delimited sentences. A non-empty text
// without terminators counts as one sentence.
func countSentences(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	count := 0
	inRun := false
	for _, r := range text {
		if r == '.' || r == '!' || r == '?' {
			if !inRun {
				count++
				inRun = true
			}
		} else {
			inRun = false
		}
	}
	if count == 0 {
		return 1
	}
	return count
}

func isTerminator(r rune) bool { return r == '.' || r == '!' || r == '?' }

func isSpace(b byte) bool { return unicode.IsSpace(rune(b)) }
