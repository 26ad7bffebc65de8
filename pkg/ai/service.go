package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"

	"github.com/IMBotPlatform/IMBotRAG/pkg/eval"
	"github.com/IMBotPlatform/IMBotRAG/pkg/rag"
)

// ErrModelNotFound 表示配置中不存在该模型。
var ErrModelNotFound = errors.New("model not found")

// ModelFactory 根据配置创建模型，测试中可替换。
type ModelFactory func(ctx context.Context, cfg ModelConfig) (llms.Model, error)

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithModelFactory replaces the provider switch.
func WithModelFactory(f ModelFactory) ServiceOption {
	return func(s *Service) {
		if f != nil {
			s.newModel = f
		}
	}
}

// Service 是对话逻辑的主要入口点。
// 它负责管理模型实例、会话记录以及与 LLM 的交互。
type Service struct {
	config   *Config
	store    SessionStore
	prompts  *rag.PromptBuilder
	newModel ModelFactory
	logger   *zap.Logger

	mu         sync.Mutex
	modelCache map[string]llms.Model
}

// NewService 创建一个新的服务实例。
func NewService(config *Config, store SessionStore, opts ...ServiceOption) *Service {
	s := &Service{
		config:     config,
		store:      store,
		prompts:    rag.NewPromptBuilder(config.Chat.SystemPrompt),
		newModel:   NewModel,
		logger:     zap.NewNop(),
		modelCache: make(map[string]llms.Model),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Store returns the session store.
func (s *Service) Store() SessionStore { return s.store }

// NewModel 按 provider 初始化 langchaingo 模型。
func NewModel(ctx context.Context, cfg ModelConfig) (llms.Model, error) {
	apiKey := ResolveAPIKey(cfg.APIKey)

	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{openai.WithToken(apiKey), openai.WithModel(cfg.ModelName)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)
	case "google":
		return googleai.New(ctx,
			googleai.WithAPIKey(apiKey),
			googleai.WithDefaultModel(cfg.ModelName),
		)
	case "anthropic":
		opts := []anthropic.Option{
			anthropic.WithToken(apiKey),
			anthropic.WithModel(cfg.ModelName),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		return anthropic.New(opts...)
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.ModelName)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		return ollama.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// Model 获取模型实例，空名称表示 default_model。
// 如果缓存中存在则直接返回，否则初始化一个新的模型实例并缓存。
//
//	Check Cache -> (Hit) -> Return
//	     |
//	   (Miss)
//	     v
//	Load Config -> Init Provider -> Update Cache -> Return
func (s *Service) Model(ctx context.Context, modelName string) (llms.Model, error) {
	if modelName == "" {
		modelName = s.config.DefaultModel
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if model, ok := s.modelCache[modelName]; ok {
		return model, nil
	}

	cfg, ok := s.config.FindModel(modelName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrModelNotFound, modelName)
	}

	llm, err := s.newModel(ctx, *cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create model provider: %w", err)
	}

	s.modelCache[modelName] = llm
	s.logger.Debug("model initialized", zap.String("name", modelName), zap.String("provider", cfg.Provider))
	return llm, nil
}

// Chain 返回绑定到 modelName 的生成链，温度与最大 token 取自模型配置。
func (s *Service) Chain(ctx context.Context, modelName string) (*rag.Chain, error) {
	llm, err := s.Model(ctx, modelName)
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = s.config.DefaultModel
	}
	cfg, _ := s.config.FindModel(modelName)
	return rag.NewChain(llm,
		rag.WithPrompts(s.prompts),
		rag.WithTemperature(cfg.Temperature),
		rag.WithMaxTokens(cfg.MaxTokens),
	), nil
}

// Embedder 根据 embedding 配置创建向量化客户端。
func (s *Service) Embedder(ctx context.Context) (embeddings.Embedder, error) {
	cfg := s.config.Embedding
	apiKey := ResolveAPIKey(cfg.APIKey)

	var client embeddings.EmbedderClient
	var err error
	switch cfg.Provider {
	case "openai", "":
		opts := []openai.Option{openai.WithToken(apiKey), openai.WithEmbeddingModel(cfg.ModelName)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		client, err = openai.New(opts...)
	case "google":
		client, err = googleai.New(ctx,
			googleai.WithAPIKey(apiKey),
			googleai.WithDefaultEmbeddingModel(cfg.ModelName),
		)
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.ModelName)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		client, err = ollama.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}
	return embeddings.NewEmbedder(client)
}

// ChatOptions 定义调用 Chat 时的配置。
type ChatOptions struct {
	Model     string
	Retriever rag.Retriever
	Sink      rag.TokenSink
	Evaluator *eval.Evaluator
}

// ChatOption 是配置 ChatOptions 的函数。
type ChatOption func(*ChatOptions)

// WithModel 指定使用的模型。
func WithModel(model string) ChatOption {
	return func(o *ChatOptions) { o.Model = model }
}

// WithRetriever 为本轮对话启用检索增强。
func WithRetriever(r rag.Retriever) ChatOption {
	return func(o *ChatOptions) { o.Retriever = r }
}

// WithSink 接收流式输出片段。
func WithSink(sink rag.TokenSink) ChatOption {
	return func(o *ChatOptions) { o.Sink = sink }
}

// WithEvaluator 在检索增强对话成功后记录评估样本。
func WithEvaluator(e *eval.Evaluator) ChatOption {
	return func(o *ChatOptions) { o.Evaluator = e }
}

// Chat 处理一轮对话并返回完整回复。
//
//	User Input
//	    |
//	    v
//	+----------------------------+
//	| SessionStore               |
//	| 1. Load prior history      |
//	+-------------+--------------+
//	              |
//	              v
//	+----------------------------+
//	| Retriever (optional)       |
//	| 2. Fetch context           |
//	+-------------+--------------+
//	              |
//	              v
//	+----------------------------+
//	| Chain (answer mode)        |  ---> Sink (stream to user)
//	| 3. Generate                |
//	+-------------+--------------+
//	              |
//	              v
//	+----------------------------+
//	| SessionStore               |
//	| 4. Append user + assistant |
//	+----------------------------+
//
// 任何一步失败都不会修改会话记录。
func (s *Service) Chat(ctx context.Context, sessionID, prompt string, opts ...ChatOption) (string, error) {
	options := &ChatOptions{Model: s.config.DefaultModel}
	for _, o := range opts {
		o(options)
	}

	chain, err := s.Chain(ctx, options.Model)
	if err != nil {
		return "", err
	}

	transcript, err := s.store.GetOrCreate(ctx, sessionID)
	if err != nil {
		return "", err
	}

	// 历史只包含之前的轮次，当前输入由模板单独注入
	history, err := transcript.Messages(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get history: %w", err)
	}

	var docs []schema.Document
	if options.Retriever != nil {
		docs, err = options.Retriever.Invoke(ctx, prompt)
		if err != nil {
			return "", err
		}
	}

	answer, err := chain.Invoke(ctx, rag.Input{
		Question: prompt,
		Context:  docs,
		Mode:     rag.ModeAnswer,
		History:  history,
	}, rag.WithSink(options.Sink))
	if err != nil {
		return "", err
	}

	if err := transcript.AppendTurn(ctx, prompt, answer); err != nil {
		return "", fmt.Errorf("failed to save turn: %w", err)
	}

	if options.Retriever != nil && options.Evaluator != nil {
		options.Evaluator.AddSample(prompt, answer, docs)
	}

	s.logger.Debug("chat turn completed",
		zap.String("session", sessionID),
		zap.Int("history", len(history)),
		zap.Int("context_docs", len(docs)),
	)
	return answer, nil
}
