package rag

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/tmc/langchaingo/vectorstores"
	"go.uber.org/zap"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 50
	DefaultTopK         = 4
)

// Retriever 按查询返回相关片段，顺序即相关性顺序。
type Retriever interface {
	Invoke(ctx context.Context, query string) ([]schema.Document, error)
}

// Loader 把上传的原始字节解析为文档。
// 直接解析内存中的字节，不回读缓存文件，避免读到并发上传写入的内容。
type Loader func(ctx context.Context, data []byte) ([]schema.Document, error)

// LoadPDF 使用 langchaingo 的 PDF loader 逐页抽取文本。
func LoadPDF(ctx context.Context, data []byte) ([]schema.Document, error) {
	return documentloaders.NewPDF(bytes.NewReader(data), int64(len(data))).Load(ctx)
}

// Handle 是一次摄入的结果，可直接作为 Retriever 使用。
type Handle struct {
	Name   string
	Digest string
	Path   string
	Chunks int

	retriever schema.Retriever
}

var _ Retriever = (*Handle)(nil)

// Invoke 检索与 query 最相关的片段。
func (h *Handle) Invoke(ctx context.Context, query string) ([]schema.Document, error) {
	docs, err := h.retriever.GetRelevantDocuments(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}
	return docs, nil
}

// IngestorOption 配置 Ingestor。
type IngestorOption func(*Ingestor)

// WithSplitter 替换默认的递归字符切分器。
func WithSplitter(s textsplitter.TextSplitter) IngestorOption {
	return func(i *Ingestor) { i.splitter = s }
}

// WithChunking 使用给定大小和重叠构造递归字符切分器。
func WithChunking(size, overlap int) IngestorOption {
	return func(i *Ingestor) {
		if size <= 0 {
			size = DefaultChunkSize
		}
		if overlap < 0 {
			overlap = DefaultChunkOverlap
		}
		i.splitter = textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
		)
	}
}

// WithLoader 替换 PDF loader，测试中用来注入纯文本。
func WithLoader(l Loader) IngestorOption {
	return func(i *Ingestor) { i.load = l }
}

// WithTopK 设置每次检索返回的片段数。
func WithTopK(k int) IngestorOption {
	return func(i *Ingestor) {
		if k > 0 {
			i.topK = k
		}
	}
}

// WithIngestLogger sets the logger.
func WithIngestLogger(l *zap.Logger) IngestorOption {
	return func(i *Ingestor) {
		if l != nil {
			i.logger = l
		}
	}
}

// Ingestor 负责 上传 -> 落盘 -> 解析 -> 切分 -> 向量化 -> Handle。
//
//	bytes --FileCache--> path
//	bytes --Loader--> pages --Splitter--> chunks --MemoryIndex--> Handle
//
// 同名且内容相同的上传直接复用上一次的 Handle。
type Ingestor struct {
	cache    *FileCache
	embedder embeddings.Embedder
	splitter textsplitter.TextSplitter
	load     Loader
	topK     int
	logger   *zap.Logger

	mu      sync.Mutex
	handles map[string]*Handle      // 以缓存路径为键，与 FileCache 同名规则一致
	locks   map[string]*sync.Mutex // 同名上传串行执行
}

// NewIngestor creates an Ingestor writing into cache and embedding with embedder.
func NewIngestor(cache *FileCache, embedder embeddings.Embedder, opts ...IngestorOption) *Ingestor {
	i := &Ingestor{
		cache:    cache,
		embedder: embedder,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(DefaultChunkSize),
			textsplitter.WithChunkOverlap(DefaultChunkOverlap),
		),
		load:    LoadPDF,
		topK:    DefaultTopK,
		logger:  zap.NewNop(),
		handles: make(map[string]*Handle),
		locks:   make(map[string]*sync.Mutex),
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

// nameLock 返回 key 对应的互斥锁。
func (i *Ingestor) nameLock(key string) *sync.Mutex {
	i.mu.Lock()
	defer i.mu.Unlock()
	l, ok := i.locks[key]
	if !ok {
		l = &sync.Mutex{}
		i.locks[key] = l
	}
	return l
}

// Ingest 摄入一份文档并返回可检索的 Handle。
// 同名上传在 写缓存 -> 解析 -> 建索引 -> 登记 Handle 的全过程中串行执行。
func (i *Ingestor) Ingest(ctx context.Context, name string, data []byte) (*Handle, error) {
	key, err := i.cache.Path(name)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	lock := i.nameLock(key)
	lock.Lock()
	defer lock.Unlock()

	i.mu.Lock()
	if h, ok := i.handles[key]; ok && h.Digest == digest {
		i.mu.Unlock()
		i.logger.Debug("reuse ingested document", zap.String("name", name), zap.String("digest", digest))
		return h, nil
	}
	i.mu.Unlock()

	path, err := i.cache.Write(name, data)
	if err != nil {
		return nil, err
	}

	pages, err := i.load(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %w", ErrIngest, name, err)
	}

	chunks, err := textsplitter.SplitDocuments(i.splitter, pages)
	if err != nil {
		return nil, fmt.Errorf("%w: split %s: %w", ErrIngest, name, err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no text extracted from %s", ErrIngest, name)
	}
	for idx := range chunks {
		if chunks[idx].Metadata == nil {
			chunks[idx].Metadata = map[string]any{}
		}
		chunks[idx].Metadata["source"] = name
	}

	index := NewMemoryIndex(i.embedder)
	if _, err := index.AddDocuments(ctx, chunks); err != nil {
		return nil, fmt.Errorf("%w: index %s: %w", ErrIngest, name, err)
	}

	h := &Handle{
		Name:      name,
		Digest:    digest,
		Path:      path,
		Chunks:    len(chunks),
		retriever: vectorstores.ToRetriever(index, i.topK),
	}

	i.mu.Lock()
	i.handles[key] = h
	i.mu.Unlock()

	i.logger.Info("document ingested",
		zap.String("name", name),
		zap.Int("pages", len(pages)),
		zap.Int("chunks", len(chunks)),
	)
	return h, nil
}
