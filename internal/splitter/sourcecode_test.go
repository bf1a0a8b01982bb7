package splitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docdex/internal/core/domain"
)

func TestSourceCode_SplitsAtDeclarations(t *testing.T) {
	src := `package main

import "fmt"

func Hello() {
	fmt.Println("hi")
}

func Goodbye() {
	fmt.Println("bye")
}
`
	pieces, err := NewSourceCode(5000).Split(src)
	require.NoError(t, err)
	require.Len(t, pieces, 3)

	// The header is structural scaffolding; bodies carry their symbol.
	assert.True(t, pieces[0].Types.IsStructuralOnly())
	assert.Equal(t, domain.SectionPath{"Hello"}, pieces[1].Section.Path)
	assert.Equal(t, domain.SectionPath{"Goodbye"}, pieces[2].Section.Path)
	assert.True(t, pieces[1].Types.Has(domain.ChunkTypeCode))
	assert.Contains(t, pieces[1].Content, "func Hello()")
}

func TestSourceCode_PythonClasses(t *testing.T) {
	src := `import os

class Loader:
    def run(self):
        pass

def main():
    pass
`
	pieces, err := NewSourceCode(5000).Split(src)
	require.NoError(t, err)
	require.Len(t, pieces, 3)
	assert.Equal(t, domain.SectionPath{"Loader"}, pieces[1].Section.Path)
	assert.Equal(t, domain.SectionPath{"main"}, pieces[2].Section.Path)
}

func TestText_ParagraphGrouping(t *testing.T) {
	pieces, err := NewText(5000).Split("first paragraph\nstill first\n\nsecond paragraph\n")
	require.NoError(t, err)
	require.Len(t, pieces, 2)
	assert.Equal(t, "first paragraph\nstill first", pieces[0].Content)
	assert.Equal(t, "second paragraph", pieces[1].Content)
	assert.Equal(t, 0, pieces[0].Section.Level)
}
