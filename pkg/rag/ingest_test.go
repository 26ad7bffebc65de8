package rag

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"
)

// textLoader 把上传内容按 "---" 切成多页。
func textLoader(_ context.Context, data []byte) ([]schema.Document, error) {
	var docs []schema.Document
	for i, page := range strings.Split(string(data), "---") {
		page = strings.TrimSpace(page)
		if page == "" {
			continue
		}
		docs = append(docs, schema.Document{PageContent: page, Metadata: map[string]any{"page": i + 1}})
	}
	return docs, nil
}

func newTestIngestor(t *testing.T, embedder *keywordEmbedder, opts ...IngestorOption) *Ingestor {
	t.Helper()
	cache, err := NewFileCache(t.TempDir())
	require.NoError(t, err)
	opts = append([]IngestorOption{WithLoader(textLoader), WithTopK(2)}, opts...)
	return NewIngestor(cache, embedder, opts...)
}

func TestIngestor_IngestAndRetrieve(t *testing.T) {
	ctx := context.Background()
	ing := newTestIngestor(t, &keywordEmbedder{})

	h, err := ing.Ingest(ctx, "animals.pdf", []byte("cats are small cat animals---dogs bark, dog---fish swim"))
	require.NoError(t, err)
	assert.Equal(t, "animals.pdf", h.Name)
	assert.Equal(t, 3, h.Chunks)
	assert.FileExists(t, h.Path)

	docs, err := h.Invoke(ctx, "tell me about the dog")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Contains(t, docs[0].PageContent, "dog")
	assert.Equal(t, "animals.pdf", docs[0].Metadata["source"])
}

func TestIngestor_ReusesSameContent(t *testing.T) {
	ctx := context.Background()
	embedder := &keywordEmbedder{}
	ing := newTestIngestor(t, embedder)

	first, err := ing.Ingest(ctx, "a.pdf", []byte("cat---dog"))
	require.NoError(t, err)
	calls := embedder.calls

	second, err := ing.Ingest(ctx, "a.pdf", []byte("cat---dog"))
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, calls, embedder.calls)

	third, err := ing.Ingest(ctx, "a.pdf", []byte("bird"))
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.NotEqual(t, first.Digest, third.Digest)
}

func TestIngestor_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("no text", func(t *testing.T) {
		ing := newTestIngestor(t, &keywordEmbedder{})
		_, err := ing.Ingest(ctx, "blank.pdf", []byte("   ---  "))
		assert.ErrorIs(t, err, ErrIngest)
	})

	t.Run("loader failure", func(t *testing.T) {
		ing := newTestIngestor(t, &keywordEmbedder{}, WithLoader(func(context.Context, []byte) ([]schema.Document, error) {
			return nil, errors.New("corrupt pdf")
		}))
		_, err := ing.Ingest(ctx, "bad.pdf", []byte("%PDF"))
		assert.ErrorIs(t, err, ErrIngest)
		assert.Contains(t, err.Error(), "corrupt pdf")
	})

	t.Run("storage failure", func(t *testing.T) {
		ing := newTestIngestor(t, &keywordEmbedder{})
		_, err := ing.Ingest(ctx, "..", []byte("cat"))
		assert.ErrorIs(t, err, ErrStorage)
	})
}

func TestIngestor_ConcurrentSameNameKeepsContentPerDigest(t *testing.T) {
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	gated := func(ctx context.Context, data []byte) ([]schema.Document, error) {
		if strings.Contains(string(data), "cat") {
			once.Do(func() {
				close(entered)
				<-release
			})
		}
		return textLoader(ctx, data)
	}
	ing := newTestIngestor(t, &keywordEmbedder{}, WithLoader(gated))

	var wg sync.WaitGroup
	var first, second *Handle
	var firstErr, secondErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		first, firstErr = ing.Ingest(ctx, "shared.pdf", []byte("the cat page"))
	}()
	<-entered
	go func() {
		defer wg.Done()
		second, secondErr = ing.Ingest(ctx, "dir/shared.pdf", []byte("the dog page"))
	}()
	close(release)
	wg.Wait()
	require.NoError(t, firstErr)
	require.NoError(t, secondErr)

	docs, err := first.Invoke(ctx, "cat")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "the cat page", docs[0].PageContent)

	docs, err = second.Invoke(ctx, "dog")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "the dog page", docs[0].PageContent)

	// 再次上传第一份内容，得到的片段必须来自第一份内容
	again, err := ing.Ingest(ctx, "shared.pdf", []byte("the cat page"))
	require.NoError(t, err)
	docs, err = again.Invoke(ctx, "cat")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "the cat page", docs[0].PageContent)

	data, err := os.ReadFile(again.Path)
	require.NoError(t, err)
	assert.Equal(t, "the cat page", string(data))
}
