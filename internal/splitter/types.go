package splitter

import "github.com/custodia-labs/docdex/internal/core/domain"

// Piece is a phase-1 semantic chunk before size optimization.
type Piece struct {
	// Content is the piece body.
	Content string

	// Section is the hierarchy metadata.
	Section domain.SectionMeta

	// Types is the classification flag set.
	Types domain.ChunkType
}

// Splitter is a phase-1 semantic splitter for one content family.
type Splitter interface {
	// Split divides content at semantic boundaries.
	Split(content string) ([]Piece, error)
}

// sizeOf returns the character length used by all size rules.
func sizeOf(s string) int {
	return len(s)
}
