package splitter

import (
	"regexp"
	"strings"

	"github.com/custodia-labs/docdex/internal/core/domain"
)

// SourceCode splits source files at declaration boundaries (function,
// class, type) emitting hierarchical symbol paths. Scaffolding between
// bodies (imports, package clauses) becomes structural pieces.
type SourceCode struct {
	maxChunkSize int
}

// NewSourceCode creates the source-code splitter.
func NewSourceCode(maxChunkSize int) *SourceCode {
	return &SourceCode{maxChunkSize: maxChunkSize}
}

var _ Splitter = (*SourceCode)(nil)

// declRe matches top-level declaration openers across the common
// documentation languages. The symbol name is the first capture that hits.
var declRe = regexp.MustCompile(`^(?:export\s+)?(?:public\s+|private\s+|protected\s+|static\s+|abstract\s+|async\s+)*` +
	`(?:func|function|fn|def|class|interface|struct|enum|trait|impl|type|module|namespace)\s+` +
	"[(]?([A-Za-z_$][A-Za-z0-9_$]*)")

// scaffoldRe matches file-header scaffolding lines.
var scaffoldRe = regexp.MustCompile(`^\s*(?:package|import|from|using|#include|require|use)\b`)

// Split groups the file into declaration bodies and scaffolding.
func (s *SourceCode) Split(content string) ([]Piece, error) {
	lines := strings.Split(content, "\n")

	var pieces []Piece
	var block []string
	symbol := ""

	flush := func(structural bool) {
		if len(block) == 0 {
			return
		}
		body := strings.TrimRight(strings.Join(block, "\n"), "\n")
		block = nil
		if strings.TrimSpace(body) == "" {
			return
		}
		types := domain.ChunkTypeContent | domain.ChunkTypeCode
		if structural {
			types = domain.ChunkTypeStructural | domain.ChunkTypeCode
		}
		var path domain.SectionPath
		level := 0
		if symbol != "" {
			path = domain.SectionPath{symbol}
			level = 1
		}
		for _, part := range hardSplit(body, s.maxChunkSize) {
			pieces = append(pieces, Piece{
				Content: part,
				Section: domain.SectionMeta{Level: level, Path: path},
				Types:   types,
			})
		}
	}

	inHeader := true
	for _, line := range lines {
		if m := declRe.FindStringSubmatch(line); m != nil && leadingIndent(line) == 0 {
			flush(inHeader)
			inHeader = false
			symbol = m[1]
		} else if !inHeader && leadingIndent(line) == 0 && scaffoldRe.MatchString(line) {
			// Top-level scaffolding after a body opens a new structural block.
			flush(false)
			inHeader = true
			symbol = ""
		} else if inHeader && !scaffoldRe.MatchString(line) && strings.TrimSpace(line) != "" &&
			!strings.HasPrefix(strings.TrimSpace(line), "//") && !strings.HasPrefix(strings.TrimSpace(line), "#") {
			// First non-scaffolding statement ends the header block.
			flush(true)
			inHeader = false
			symbol = ""
		}
		block = append(block, line)
	}
	flush(inHeader)

	return pieces, nil
}

// leadingIndent counts leading whitespace characters.
func leadingIndent(line string) int {
	return len(line) - len(strings.TrimLeft(line, " \t"))
}
