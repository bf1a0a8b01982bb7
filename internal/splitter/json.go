package splitter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/custodia-labs/docdex/internal/core/domain"
)

// JSON splits a document at object and property boundaries, producing
// paths like [foo, bar, 3]. Every piece body fits under maxChunkSize;
// deep structures are flattened until they do.
type JSON struct {
	maxChunkSize int
}

// NewJSON creates the JSON splitter.
func NewJSON(maxChunkSize int) *JSON {
	return &JSON{maxChunkSize: maxChunkSize}
}

var _ Splitter = (*JSON)(nil)

// Split parses the document and walks its structure.
func (j *JSON) Split(content string) ([]Piece, error) {
	var root any
	if err := json.Unmarshal([]byte(content), &root); err != nil {
		return nil, fmt.Errorf("parsing json: %w", err)
	}

	var pieces []Piece
	j.walk(root, nil, &pieces)
	return pieces, nil
}

// walk emits the node whole when it fits, otherwise descends one level.
func (j *JSON) walk(node any, path domain.SectionPath, out *[]Piece) {
	body := compactJSON(node)
	if sizeOf(body) <= j.maxChunkSize {
		*out = append(*out, Piece{
			Content: body,
			Section: sectionAt(path),
			Types:   domain.ChunkTypeContent,
		})
		return
	}

	switch v := node.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			j.walk(v[k], append(path[:len(path):len(path)], k), out)
		}
	case []any:
		for i, item := range v {
			j.walk(item, append(path[:len(path):len(path)], strconv.Itoa(i)), out)
		}
	default:
		// A scalar larger than the ceiling: hard-split it.
		for _, part := range hardSplit(body, j.maxChunkSize) {
			*out = append(*out, Piece{
				Content: part,
				Section: sectionAt(path),
				Types:   domain.ChunkTypeContent,
			})
		}
	}
}

// sectionAt maps a JSON path onto section metadata. Depth is capped at
// heading range.
func sectionAt(path domain.SectionPath) domain.SectionMeta {
	level := len(path) + 1
	if level > 6 {
		level = 6
	}
	var cp domain.SectionPath
	if len(path) > 0 {
		cp = make(domain.SectionPath, len(path))
		copy(cp, path)
	}
	return domain.SectionMeta{Level: level, Path: cp}
}

// compactJSON renders a node in compact form. Marshalling values that
// came from json.Unmarshal cannot fail.
func compactJSON(node any) string {
	b, err := json.Marshal(node)
	if err != nil {
		return fmt.Sprintf("%v", node)
	}
	return string(b)
}
