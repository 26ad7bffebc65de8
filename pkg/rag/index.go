package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

// MemoryIndex 是一个进程内的 vectorstores.VectorStore，按余弦相似度检索。
type MemoryIndex struct {
	embedder embeddings.Embedder

	mu      sync.RWMutex
	entries []indexEntry
}

type indexEntry struct {
	id     string
	doc    schema.Document
	vector []float32
}

var _ vectorstores.VectorStore = (*MemoryIndex)(nil)

// NewMemoryIndex creates an empty index backed by embedder.
func NewMemoryIndex(embedder embeddings.Embedder) *MemoryIndex {
	return &MemoryIndex{embedder: embedder}
}

// AddDocuments 向量化并追加文档，返回生成的 ID。
func (m *MemoryIndex) AddDocuments(ctx context.Context, docs []schema.Document, _ ...vectorstores.Option) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.PageContent
	}

	vectors, err := m.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	ids := make([]string, len(docs))
	entries := make([]indexEntry, len(docs))
	for i, d := range docs {
		ids[i] = uuid.NewString()
		entries[i] = indexEntry{id: ids[i], doc: d, vector: vectors[i]}
	}

	m.mu.Lock()
	m.entries = append(m.entries, entries...)
	m.mu.Unlock()

	return ids, nil
}

// SimilaritySearch 返回与 query 最相近的 numDocuments 个文档，按得分降序。
// 支持 vectorstores.WithScoreThreshold。
func (m *MemoryIndex) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	opts := vectorstores.Options{}
	for _, o := range options {
		o(&opts)
	}

	q, err := m.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	m.mu.RLock()
	type scored struct {
		doc   schema.Document
		score float32
	}
	results := make([]scored, 0, len(m.entries))
	for _, e := range m.entries {
		s := cosine(q, e.vector)
		if s < opts.ScoreThreshold {
			continue
		}
		results = append(results, scored{doc: e.doc, score: s})
	}
	m.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })

	if numDocuments > 0 && len(results) > numDocuments {
		results = results[:numDocuments]
	}

	docs := make([]schema.Document, len(results))
	for i, r := range results {
		docs[i] = r.doc
		docs[i].Score = r.score
	}
	return docs, nil
}

// Len returns the number of indexed chunks.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
