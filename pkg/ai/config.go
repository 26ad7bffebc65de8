package ai

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ModelConfig defines the configuration for a single LLM.
type ModelConfig struct {
	Name        string  `json:"name" yaml:"name"`                             // e.g., "default", "local"
	Provider    string  `json:"provider" yaml:"provider"`                     // openai, google, anthropic, ollama
	APIKey      string  `json:"api_key" yaml:"api_key"`                       // "env:NAME" or a literal key
	BaseURL     string  `json:"base_url,omitempty" yaml:"base_url,omitempty"` // Optional: for custom endpoints
	ModelName   string  `json:"model_name" yaml:"model_name"`                 // The specific model ID
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`                 // Max output tokens, 0 for provider default
	Temperature float64 `json:"temperature" yaml:"temperature"`
}

// EmbeddingConfig selects the embedding backend used for document ingestion.
type EmbeddingConfig struct {
	Provider  string `json:"provider" yaml:"provider"` // openai, google, ollama
	APIKey    string `json:"api_key" yaml:"api_key"`
	BaseURL   string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	ModelName string `json:"model_name" yaml:"model_name"`
}

// RAGConfig controls caching, chunking and retrieval.
type RAGConfig struct {
	CacheDir     string `json:"cache_dir" yaml:"cache_dir"`
	ChunkSize    int    `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap" yaml:"chunk_overlap"`
	TopK         int    `json:"top_k" yaml:"top_k"`
}

// EvaluationConfig configures the LLM judge.
type EvaluationConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"` // default for show-evaluation toggle
	APIKey    string `json:"api_key" yaml:"api_key"`
	BaseURL   string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	ModelName string `json:"model_name" yaml:"model_name"`
}

// ChatConfig holds conversational defaults.
type ChatConfig struct {
	SystemPrompt   string `json:"system_prompt" yaml:"system_prompt"`
	DefaultMode    string `json:"default_mode" yaml:"default_mode"` // chat, rag, quiz
	DefaultSession string `json:"default_session" yaml:"default_session"`
}

// Config holds the global configuration.
type Config struct {
	DefaultModel string           `json:"default_model" yaml:"default_model"`
	Models       []ModelConfig    `json:"models" yaml:"models"`
	Embedding    EmbeddingConfig  `json:"embedding" yaml:"embedding"`
	RAG          RAGConfig        `json:"rag" yaml:"rag"`
	Evaluation   EvaluationConfig `json:"evaluation" yaml:"evaluation"`
	Chat         ChatConfig       `json:"chat" yaml:"chat"`
}

// DefaultConfig 返回只依赖 OPENAI_API_KEY 的默认配置。
func DefaultConfig() *Config {
	return &Config{
		DefaultModel: "default",
		Models: []ModelConfig{{
			Name:      "default",
			Provider:  "openai",
			APIKey:    "env:OPENAI_API_KEY",
			ModelName: "gpt-4o",
		}},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			APIKey:    "env:OPENAI_API_KEY",
			ModelName: "text-embedding-3-small",
		},
		RAG: RAGConfig{
			CacheDir:     ".cache",
			ChunkSize:    1000,
			ChunkOverlap: 50,
			TopK:         4,
		},
		Evaluation: EvaluationConfig{
			Enabled:   true,
			APIKey:    "env:OPENAI_API_KEY",
			ModelName: "gpt-4o-mini",
		},
		Chat: ChatConfig{
			DefaultMode:    "chat",
			DefaultSession: DefaultSessionID,
		},
	}
}

// LoadConfig reads and parses the configuration from a YAML file.
// Fields missing from the file keep their DefaultConfig values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Models) == 0 {
		errs = append(errs, errors.New("at least one model is required"))
	}
	if c.DefaultModel != "" {
		if _, ok := c.FindModel(c.DefaultModel); !ok {
			errs = append(errs, fmt.Errorf("default_model %q is not defined", c.DefaultModel))
		}
	}
	if c.RAG.ChunkSize <= 0 {
		errs = append(errs, errors.New("rag.chunk_size must be positive"))
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		errs = append(errs, errors.New("rag.chunk_overlap must be in [0, chunk_size)"))
	}
	if c.RAG.TopK <= 0 {
		errs = append(errs, errors.New("rag.top_k must be positive"))
	}
	switch strings.ToLower(c.Chat.DefaultMode) {
	case "", "chat", "rag", "quiz":
	default:
		errs = append(errs, fmt.Errorf("chat.default_mode %q is not one of chat, rag, quiz", c.Chat.DefaultMode))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// FindModel returns the model named name.
func (c *Config) FindModel(name string) (*ModelConfig, bool) {
	for i := range c.Models {
		if c.Models[i].Name == name {
			return &c.Models[i], true
		}
	}
	return nil, false
}

// ResolveAPIKey 解析 API 密钥。
// 如果密钥以 "env:" 开头，则从环境变量中获取实际值。
func ResolveAPIKey(key string) string {
	if strings.HasPrefix(key, "env:") {
		return os.Getenv(strings.TrimPrefix(key, "env:"))
	}
	return key
}
