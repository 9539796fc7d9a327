package chunker

import (
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	gtext "github.com/yuin/goldmark/text"

	"roserade/internal/config"
)

// semantic cuts at structural boundaries: markdown headings for markdown
// input, then paragraphs, then sentences, while keeping chunks between the
// configured min and max sizes. A single unit larger than max is force-split
// with the fixed-size algorithm.
type semantic struct {
	size    int
	overlap int
	min     int
	max     int
	parser  goldmark.Markdown
}

func newSemantic(cfg config.ChunkingConfig) *semantic {
	return &semantic{
		size:    cfg.Size,
		overlap: cfg.Overlap,
		min:     cfg.MinChunkSize,
		max:     cfg.MaxChunkSize,
		parser:  goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

func (s *semantic) Chunk(text, fileType string) ([]Segment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	sections := []span{{0, len(text)}}
	if fileType == "md" || fileType == "markdown" {
		sections = s.markdownSections(text)
	}

	// Each section assembles on its own: a heading always starts a new
	// chunk, never merges into the previous section's tail.
	var segs []Segment
	for _, sec := range sections {
		segs = append(segs, s.assemble(text, s.sectionUnits(text, sec))...)
	}
	return annotate(segs, config.StrategySemantic), nil
}

// markdownSections splits the source at heading lines. Text before the first
// heading forms its own section.
func (s *semantic) markdownSections(text string) []span {
	src := []byte(text)
	doc := s.parser.Parser().Parse(gtext.NewReader(src))

	starts := []int{0}
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		if lines := h.Lines(); lines.Len() > 0 {
			pos := lines.At(0).Start
			// Walk back to the start of the heading line to include the
			// '#' markers in the section.
			for pos > 0 && src[pos-1] != '\n' {
				pos--
			}
			starts = append(starts, pos)
		}
		return ast.WalkContinue, nil
	})

	sort.Ints(starts)
	var sections []span
	for i, start := range starts {
		end := len(text)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		if start < end && strings.TrimSpace(text[start:end]) != "" {
			sections = append(sections, span{start, end})
		}
	}
	return sections
}

// sectionUnits breaks a section into paragraphs; paragraphs over the max
// size break further into sentences. Units larger than max are left intact
// here and force-split during assembly.
func (s *semantic) sectionUnits(text string, sec span) []span {
	var units []span
	for _, p := range paragraphs(text, sec) {
		if runeLen(p.text(text)) > s.max {
			units = append(units, sentences(text, p)...)
		} else {
			units = append(units, p)
		}
	}
	return units
}

// assemble packs units into chunks: cut when adding the next unit would push
// the chunk past the target size, force-split oversized units, and merge a
// trailing fragment below min into its predecessor.
func (s *semantic) assemble(text string, units []span) []Segment {
	var segs []Segment
	cur := span{-1, -1}
	curLen := 0

	flush := func() {
		if cur.start >= 0 && strings.TrimSpace(cur.text(text)) != "" {
			segs = append(segs, Segment{Text: cur.text(text), Start: cur.start, End: cur.end})
		}
		cur = span{-1, -1}
		curLen = 0
	}

	for _, u := range units {
		uLen := runeLen(u.text(text))
		if uLen > s.max {
			flush()
			segs = append(segs, fixedSegments(u.text(text), u.start, s.size, s.overlap)...)
			continue
		}
		if cur.start >= 0 && curLen+uLen > s.size {
			flush()
		}
		if cur.start < 0 {
			cur = u
		} else {
			cur.end = u.end
		}
		curLen += uLen
	}
	flush()

	// A trailing fragment below the minimum merges into its predecessor when
	// both cover contiguous source text.
	if n := len(segs); n >= 2 {
		last, prev := segs[n-1], segs[n-2]
		if runeLen(last.Text) < s.min && prev.End <= last.Start {
			merged := Segment{Text: text[prev.Start:last.End], Start: prev.Start, End: last.End}
			segs = append(segs[:n-2], merged)
		}
	}
	return segs
}

// paragraphs splits a section on blank lines, keeping byte offsets and
// dropping whitespace-only runs.
func paragraphs(text string, sec span) []span {
	var out []span
	i := sec.start
	for i < sec.end {
		rel := strings.Index(text[i:sec.end], "\n\n")
		end := sec.end
		if rel >= 0 {
			end = i + rel
		}
		if strings.TrimSpace(text[i:end]) != "" {
			out = append(out, span{i, end})
		}
		if rel < 0 {
			break
		}
		i = end
		for i < sec.end && (text[i] == '\n' || text[i] == '\r') {
			i++
		}
	}
	return out
}

// sentences splits a paragraph after terminator runs followed by whitespace.
func sentences(text string, p span) []span {
	var out []span
	start := p.start
	i := p.start
	for i < p.end {
		r := rune(text[i])
		if isTerminator(r) {
			// Consume the terminator run, then cut before trailing space.
			j := i + 1
			for j < p.end && isTerminator(rune(text[j])) {
				j++
			}
			if j >= p.end || isSpace(text[j]) {
				if strings.TrimSpace(text[start:j]) != "" {
					out = append(out, span{start, j})
				}
				for j < p.end && isSpace(text[j]) {
					j++
				}
				start = j
			}
			i = j
			continue
		}
		i++
	}
	if start < p.end && strings.TrimSpace(text[start:p.end]) != "" {
		out = append(out, span{start, p.end})
	}
	return out
}
