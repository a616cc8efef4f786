package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfchat/internal/domain"
)

func TestChunkOverlapWithinPage(t *testing.T) {
	c := NewSentenceChunker(2, 1)
	doc := domain.Document{ID: "doc", Pages: []domain.Page{
		{Number: 1, Text: "One. Two. Three."},
	}}

	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "One. Two.", chunks[0].Text)
	assert.Equal(t, "Two. Three.", chunks[1].Text)
	assert.Equal(t, "doc:1", chunks[1].ChunkID)
}

func TestChunkKeepsPageNumbers(t *testing.T) {
	c := NewSentenceChunker(5, 0)
	doc := domain.Document{ID: "d", Pages: []domain.Page{
		{Number: 1, Text: "Refunds are issued within 14 days."},
		{Number: 3, Text: "Shipping is free\nfor orders over $50"},
	}}

	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 1, chunks[0].Page)
	assert.Equal(t, 3, chunks[1].Page)
	assert.Equal(t, 1, chunks[1].Index)
	assert.Equal(t, "Shipping is free for orders over $50", chunks[1].Text)
}

func TestChunkKeepsTrailingFragment(t *testing.T) {
	c := NewSentenceChunker(5, 0)
	doc := domain.Document{ID: "d", Pages: []domain.Page{{Number: 1, Text: "First sentence. and a tail"}}}

	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "First sentence. and a tail", chunks[0].Text)
}

func TestChunkEmptyDocument(t *testing.T) {
	chunks, err := NewSentenceChunker(3, 1).Chunk(domain.Document{ID: "d", Pages: []domain.Page{{Number: 1, Text: "   "}}})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
