package splitter

import (
	"strings"

	"github.com/custodia-labs/docdex/internal/core/domain"
)

// Greedy is the phase-2 size optimizer. It merges adjacent semantic
// pieces toward PreferredChunkSize under three constraints:
//
//  1. A merge that would exceed MaxChunkSize is rejected.
//  2. A piece opening a major section (level 1 or 2) outside the current
//     piece's section is not merged once the accumulator has reached
//     MinChunkSize.
//  3. While the accumulator is below MinChunkSize, merging is
//     unconditional (subject to constraint 1).
type Greedy struct {
	cfg domain.SplitterConfig
}

// NewGreedy creates the optimizer for the given size targets.
func NewGreedy(cfg domain.SplitterConfig) *Greedy {
	return &Greedy{cfg: cfg}
}

// Optimize merges the semantic pieces and returns the final sequence.
func (g *Greedy) Optimize(pieces []Piece) []Piece {
	if len(pieces) == 0 {
		return nil
	}

	out := make([]Piece, 0, len(pieces))
	acc := pieces[0]

	for _, next := range pieces[1:] {
		sep := ""
		if !strings.HasSuffix(acc.Content, "\n") {
			sep = "\n"
		}
		mergedSize := sizeOf(acc.Content) + len(sep) + sizeOf(next.Content)

		switch {
		case mergedSize > g.cfg.MaxChunkSize:
			// Hard ceiling.
			out = append(out, acc)
			acc = next
		case g.opensMajorSection(next) &&
			!acc.Section.Path.SameSection(next.Section.Path) &&
			sizeOf(acc.Content) >= g.cfg.MinChunkSize:
			// Structure wins over size.
			out = append(out, acc)
			acc = next
		case sizeOf(acc.Content) < g.cfg.MinChunkSize:
			// Size-minimum rule.
			acc = fuse(acc, next, sep)
		case mergedSize <= g.cfg.PreferredChunkSize:
			acc = fuse(acc, next, sep)
		default:
			out = append(out, acc)
			acc = next
		}
	}

	return append(out, acc)
}

// opensMajorSection reports whether the piece begins a level-1 or level-2
// section.
func (g *Greedy) opensMajorSection(p Piece) bool {
	return p.Types.Has(domain.ChunkTypeHeading) && p.Section.Level >= 1 && p.Section.Level <= 2
}

// fuse merges two pieces: contents joined by sep, level the minimum of
// the non-zero levels, path the longest common prefix (or the descendant
// path when one contains the other), types the set union.
func fuse(left, right Piece, sep string) Piece {
	level := left.Section.Level
	if level == 0 || (right.Section.Level != 0 && right.Section.Level < level) {
		level = right.Section.Level
	}

	var path domain.SectionPath
	switch {
	case left.Section.Path.IsPrefixOf(right.Section.Path):
		path = right.Section.Path
	case right.Section.Path.IsPrefixOf(left.Section.Path):
		path = left.Section.Path
	default:
		path = left.Section.Path.CommonPrefix(right.Section.Path)
	}

	return Piece{
		Content: left.Content + sep + right.Content,
		Section: domain.SectionMeta{Level: level, Path: path},
		Types:   left.Types | right.Types,
	}
}
