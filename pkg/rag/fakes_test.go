package rag

import (
	"context"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

var vocabulary = []string{"cat", "dog", "fish", "bird", "tree"}

// keywordEmbedder 按关键词计数生成向量，结果可预测。
type keywordEmbedder struct {
	mu    sync.Mutex
	calls int
	texts int
}

func (e *keywordEmbedder) vector(text string) []float32 {
	text = strings.ToLower(text)
	v := make([]float32, len(vocabulary))
	for i, w := range vocabulary {
		v[i] = float32(strings.Count(text, w))
	}
	return v
}

func (e *keywordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.texts += len(texts)
	e.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *keywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.texts++
	e.mu.Unlock()
	return e.vector(text), nil
}

// recordingModel 记录最后一次请求，并按 chunks 流式返回。
type recordingModel struct {
	chunks   []string
	err      error
	empty    bool
	messages []llms.MessageContent
	opts     llms.CallOptions
}

func (m *recordingModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	m.opts = llms.CallOptions{}
	for _, o := range options {
		o(&m.opts)
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.empty {
		return &llms.ContentResponse{}, nil
	}
	var full strings.Builder
	for _, c := range m.chunks {
		if m.opts.StreamingFunc != nil {
			if err := m.opts.StreamingFunc(ctx, []byte(c)); err != nil {
				return nil, err
			}
		}
		full.WriteString(c)
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: full.String()}}}, nil
}

func (m *recordingModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func textOf(mc llms.MessageContent) string {
	var sb strings.Builder
	for _, p := range mc.Parts {
		if t, ok := p.(llms.TextContent); ok {
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}
