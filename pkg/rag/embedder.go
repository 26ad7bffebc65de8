package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
)

// CachedEmbedder 包装一个 embeddings.Embedder，按文本内容的 sha256 缓存向量。
// 同一份文档重复上传时不会再次请求 embedding 接口。
type CachedEmbedder struct {
	base embeddings.Embedder

	mu      sync.RWMutex
	vectors map[string][]float32
}

var _ embeddings.Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps base with an in-process vector cache.
func NewCachedEmbedder(base embeddings.Embedder) *CachedEmbedder {
	return &CachedEmbedder{
		base:    base,
		vectors: make(map[string][]float32),
	}
}

func textKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// EmbedDocuments 只对未命中缓存的文本调用底层 embedder。
func (c *CachedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	c.mu.RLock()
	for i, text := range texts {
		if v, ok := c.vectors[textKey(text)]; ok {
			out[i] = v
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	c.mu.RUnlock()

	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := c.base.EmbedDocuments(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(missing))
	}

	c.mu.Lock()
	for j, v := range vectors {
		c.vectors[textKey(missing[j])] = v
		out[missingIdx[j]] = v
	}
	c.mu.Unlock()

	return out, nil
}

// EmbedQuery embeds a single query, reusing cached vectors.
func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := textKey(text)

	c.mu.RLock()
	v, ok := c.vectors[key]
	c.mu.RUnlock()
	if ok {
		return v, nil
	}

	v, err := c.base.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.vectors[key] = v
	c.mu.Unlock()
	return v, nil
}

// Len 返回缓存中的向量数量。
func (c *CachedEmbedder) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vectors)
}
