package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

func TestMemoryIndex_SimilaritySearch(t *testing.T) {
	ctx := context.Background()
	index := NewMemoryIndex(&keywordEmbedder{})

	ids, err := index.AddDocuments(ctx, []schema.Document{
		{PageContent: "the dog barks at the dog"},
		{PageContent: "a cat sleeps"},
		{PageContent: "fish swim near the tree"},
	})
	require.NoError(t, err)
	assert.Len(t, ids, 3)
	assert.Equal(t, 3, index.Len())

	docs, err := index.SimilaritySearch(ctx, "where is the cat", 2)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a cat sleeps", docs[0].PageContent)
	assert.InDelta(t, 1.0, docs[0].Score, 1e-6)
	assert.GreaterOrEqual(t, docs[0].Score, docs[1].Score)
}

func TestMemoryIndex_ScoreThreshold(t *testing.T) {
	ctx := context.Background()
	index := NewMemoryIndex(&keywordEmbedder{})
	_, err := index.AddDocuments(ctx, []schema.Document{
		{PageContent: "dog"},
		{PageContent: "bird"},
	})
	require.NoError(t, err)

	docs, err := index.SimilaritySearch(ctx, "dog", 5, vectorstores.WithScoreThreshold(0.5))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "dog", docs[0].PageContent)
}

func TestMemoryIndex_Empty(t *testing.T) {
	index := NewMemoryIndex(&keywordEmbedder{})
	docs, err := index.SimilaritySearch(context.Background(), "dog", 3)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestCachedEmbedder(t *testing.T) {
	ctx := context.Background()
	base := &keywordEmbedder{}
	cached := NewCachedEmbedder(base)

	first, err := cached.EmbedDocuments(ctx, []string{"cat", "dog"})
	require.NoError(t, err)
	second, err := cached.EmbedDocuments(ctx, []string{"dog", "cat", "bird"})
	require.NoError(t, err)

	assert.Equal(t, first[0], second[1])
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, 3, base.texts)
	assert.Equal(t, 3, cached.Len())

	_, err = cached.EmbedQuery(ctx, "cat")
	require.NoError(t, err)
	assert.Equal(t, 3, base.texts)
}
