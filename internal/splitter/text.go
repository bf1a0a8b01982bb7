package splitter

import (
	"strings"

	"github.com/custodia-labs/docdex/internal/core/domain"
)

// Text is the fallback splitter: paragraph grouping with a shallow path.
type Text struct {
	maxChunkSize int
}

// NewText creates the plain-text splitter.
func NewText(maxChunkSize int) *Text {
	return &Text{maxChunkSize: maxChunkSize}
}

var _ Splitter = (*Text)(nil)

// Split groups lines into paragraphs separated by blank lines.
func (t *Text) Split(content string) ([]Piece, error) {
	var pieces []Piece
	for _, para := range strings.Split(content, "\n\n") {
		para = strings.TrimRight(para, "\n")
		if strings.TrimSpace(para) == "" {
			continue
		}
		for _, part := range hardSplit(para, t.maxChunkSize) {
			pieces = append(pieces, Piece{
				Content: part,
				Section: domain.SectionMeta{},
				Types:   domain.ChunkTypeContent,
			})
		}
	}
	return pieces, nil
}
