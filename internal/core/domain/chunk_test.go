package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkType_Serialization(t *testing.T) {
	types := ChunkTypeContent | ChunkTypeCode

	data, err := json.Marshal(types)
	require.NoError(t, err)
	assert.JSONEq(t, `["content","code"]`, string(data))

	var parsed ChunkType
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, types, parsed)
}

func TestChunkType_UnknownNameRejected(t *testing.T) {
	var parsed ChunkType
	err := json.Unmarshal([]byte(`["content","mystery"]`), &parsed)
	require.Error(t, err)
}

func TestChunkType_StructuralOnly(t *testing.T) {
	assert.True(t, ChunkTypeStructural.IsStructuralOnly())
	assert.True(t, (ChunkTypeStructural | ChunkTypeCode).IsStructuralOnly())
	assert.False(t, (ChunkTypeStructural | ChunkTypeContent).IsStructuralOnly())
	assert.False(t, ChunkTypeContent.IsStructuralOnly())
}

func TestSectionPath_Relations(t *testing.T) {
	guide := SectionPath{"Guide"}
	install := SectionPath{"Guide", "Install"}
	usage := SectionPath{"Guide", "Usage"}

	assert.True(t, guide.IsPrefixOf(install))
	assert.False(t, install.IsPrefixOf(guide))
	assert.True(t, guide.SameSection(install))
	assert.True(t, install.SameSection(guide))
	assert.False(t, install.SameSection(usage))

	assert.Equal(t, guide, install.CommonPrefix(usage))
	assert.Equal(t, guide, install.Parent())
	assert.Nil(t, SectionPath(nil).Parent())
}

func TestEmbeddingHeader(t *testing.T) {
	header := EmbeddingHeader("Guide", "https://x/y", SectionPath{"A", "B"})
	assert.Equal(t, "<title>Guide</title><url>https://x/y</url><path>A / B</path>\n", header)
}
