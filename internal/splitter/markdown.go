package splitter

import (
	"regexp"
	"strings"

	"github.com/custodia-labs/docdex/internal/core/domain"
)

// Markdown splits at headings H1-H6 and keeps code fences, tables and
// lists as atomic blocks. Section paths are assigned from heading
// ancestry.
type Markdown struct {
	maxChunkSize int
}

// NewMarkdown creates the semantic markdown splitter. Blocks larger than
// maxChunkSize are hard-split on line boundaries so the greedy phase can
// honour its ceiling.
func NewMarkdown(maxChunkSize int) *Markdown {
	return &Markdown{maxChunkSize: maxChunkSize}
}

var _ Splitter = (*Markdown)(nil)

var (
	headingRe   = regexp.MustCompile(`^(#{1,6})\s+(.*?)\s*#*\s*$`)
	fenceRe     = regexp.MustCompile("^(```+|~~~+)")
	listItemRe  = regexp.MustCompile(`^\s{0,3}(?:[-*+]|\d{1,9}[.)])\s`)
	tableRowRe  = regexp.MustCompile(`^\s{0,3}\|`)
	tableSepRe  = regexp.MustCompile(`^\s{0,3}\|?[\s:|-]+\|[\s:|-]*$`)
	blankLineRe = regexp.MustCompile(`^\s*$`)
)

// blockKind classifies the block being accumulated.
type blockKind int

const (
	blockNone blockKind = iota
	blockParagraph
	blockCode
	blockTable
	blockList
)

// Split divides markdown into heading, code, table, list and paragraph
// pieces with hierarchical section paths.
func (m *Markdown) Split(content string) ([]Piece, error) {
	lines := strings.Split(content, "\n")

	var (
		pieces []Piece
		stack  headingStack
		block  []string
		kind   = blockNone
		fence  string
	)

	flush := func() {
		if len(block) == 0 {
			return
		}
		body := strings.TrimRight(strings.Join(block, "\n"), "\n")
		block = nil
		k := kind
		kind = blockNone
		if strings.TrimSpace(body) == "" {
			return
		}
		types := domain.ChunkTypeContent
		switch k {
		case blockCode:
			types |= domain.ChunkTypeCode
		case blockTable:
			types |= domain.ChunkTypeTable
		case blockList:
			types |= domain.ChunkTypeList
		}
		for _, part := range hardSplit(body, m.maxChunkSize) {
			pieces = append(pieces, Piece{
				Content: part,
				Section: stack.meta(),
				Types:   types,
			})
		}
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		// Inside a fence everything is literal until the closing marker.
		if kind == blockCode {
			block = append(block, line)
			if marker := fenceMarker(line); marker != "" && strings.HasPrefix(marker, fence[:1]) && len(marker) >= len(fence) {
				flush()
			}
			continue
		}

		if marker := fenceMarker(line); marker != "" {
			flush()
			fence = marker
			kind = blockCode
			block = append(block, line)
			continue
		}

		if h := headingRe.FindStringSubmatch(line); h != nil {
			flush()
			level := len(h[1])
			title := strings.TrimSpace(h[2])
			stack.enter(level, title)
			pieces = append(pieces, Piece{
				Content: line,
				Section: stack.meta(),
				Types:   domain.ChunkTypeContent | domain.ChunkTypeHeading,
			})
			continue
		}

		if blankLineRe.MatchString(line) {
			// Blank lines terminate paragraphs and tables but keep
			// loose lists together only when the next line is a list item.
			if kind == blockList && i+1 < len(lines) && listItemRe.MatchString(lines[i+1]) {
				block = append(block, line)
				continue
			}
			flush()
			continue
		}

		switch {
		case tableRowRe.MatchString(line) || tableSepRe.MatchString(line):
			if kind != blockTable {
				flush()
				kind = blockTable
			}
		case listItemRe.MatchString(line):
			if kind != blockList {
				flush()
				kind = blockList
			}
		default:
			// Continuation lines stay in table/list blocks when indented.
			if kind == blockNone {
				kind = blockParagraph
			}
			if kind == blockTable && !strings.HasPrefix(line, " ") {
				flush()
				kind = blockParagraph
			}
		}
		block = append(block, line)
	}
	flush()

	return pieces, nil
}

// fenceMarker returns the fence marker opening or closing a code block,
// or empty when the line is not a fence.
func fenceMarker(line string) string {
	m := fenceRe.FindString(strings.TrimLeft(line, " "))
	return m
}

// headingStack tracks heading ancestry for section paths.
type headingStack struct {
	levels []int
	titles []string
}

// enter records a heading, popping entries of equal or deeper level.
func (s *headingStack) enter(level int, title string) {
	for len(s.levels) > 0 && s.levels[len(s.levels)-1] >= level {
		s.levels = s.levels[:len(s.levels)-1]
		s.titles = s.titles[:len(s.titles)-1]
	}
	s.levels = append(s.levels, level)
	s.titles = append(s.titles, title)
}

// meta returns the current section metadata.
func (s *headingStack) meta() domain.SectionMeta {
	if len(s.levels) == 0 {
		return domain.SectionMeta{}
	}
	path := make(domain.SectionPath, len(s.titles))
	copy(path, s.titles)
	return domain.SectionMeta{
		Level: s.levels[len(s.levels)-1],
		Path:  path,
	}
}

// hardSplit cuts an oversized block on line boundaries so every part fits
// under max. A single line longer than max is cut mid-line.
func hardSplit(body string, max int) []string {
	if max <= 0 || sizeOf(body) <= max {
		return []string{body}
	}

	var parts []string
	var cur strings.Builder
	for _, line := range strings.Split(body, "\n") {
		for sizeOf(line) > max {
			if cur.Len() > 0 {
				parts = append(parts, cur.String())
				cur.Reset()
			}
			parts = append(parts, line[:max])
			line = line[max:]
		}
		add := sizeOf(line)
		if cur.Len() > 0 {
			add++
		}
		if cur.Len()+add > max {
			parts = append(parts, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}
