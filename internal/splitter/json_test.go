package splitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docdex/internal/core/domain"
)

func TestJSON_SmallDocumentIsOnePiece(t *testing.T) {
	pieces, err := NewJSON(5000).Split(`{"name":"docdex","tags":["docs","search"]}`)
	require.NoError(t, err)
	require.Len(t, pieces, 1)
	assert.Equal(t, domain.SectionPath(nil), pieces[0].Section.Path)
}

func TestJSON_DeepStructureFlattens(t *testing.T) {
	doc := `{"foo":{"bar":["aaaaaaaaaaaaaaaaaaaa","bbbbbbbbbbbbbbbbbbbb","cccccccccccccccccccc"]},"zap":"tiny"}`

	pieces, err := NewJSON(30).Split(doc)
	require.NoError(t, err)
	require.Greater(t, len(pieces), 2)

	for _, p := range pieces {
		assert.LessOrEqual(t, len(p.Content), 30)
	}

	// Array elements carry index segments in their paths.
	var keys []string
	for _, p := range pieces {
		keys = append(keys, p.Section.Path.Key())
	}
	assert.Contains(t, keys, "foo\x1fbar\x1f0")
	assert.Contains(t, keys, "zap")
}

func TestJSON_InvalidInput(t *testing.T) {
	_, err := NewJSON(5000).Split(`{"unterminated`)
	require.Error(t, err)
}
