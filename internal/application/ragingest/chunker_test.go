package ragingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitChunksEmpty(t *testing.T) {
	assert.Empty(t, SplitChunks("", 0))
	assert.Empty(t, SplitChunks("   \n\n  ", 0))
}

func TestSplitChunksParagraphBoundaries(t *testing.T) {
	text := "First paragraph about spoofing.\n\nSecond paragraph about tampering.\n\nThird paragraph about repudiation."
	chunks := SplitChunks(text, 70)

	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "First paragraph about spoofing.\n\nSecond paragraph about tampering.", chunks[0].Text)
	assert.Equal(t, "Third paragraph about repudiation.", chunks[1].Text)
	for _, c := range chunks {
		assert.Equal(t, HashChunk(c.Text), c.Hash)
	}
}

func TestSplitChunksOversizedParagraph(t *testing.T) {
	long := strings.Repeat("threat ", 100)
	chunks := SplitChunks(long, 50)
	require.Len(t, chunks, 1, "a paragraph is never split mid-word")
}

func TestHashChunkStable(t *testing.T) {
	a := HashChunk("identical content")
	b := HashChunk("identical content")
	c := HashChunk("different content")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
