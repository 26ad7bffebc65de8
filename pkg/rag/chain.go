package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// Mode 决定 Chain 的提示词模板。
type Mode int

const (
	// ModeAnswer 根据上下文回答问题。
	ModeAnswer Mode = iota
	// ModeGenerateQuestion 根据上下文出一道新题。
	ModeGenerateQuestion
)

func (m Mode) String() string {
	switch m {
	case ModeAnswer:
		return "answer"
	case ModeGenerateQuestion:
		return "generate_question"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Input 是一次生成的全部输入。
type Input struct {
	Question string
	Context  []schema.Document
	Mode     Mode
	History  []llms.ChatMessage
}

// TokenSink 接收流式片段，仅用于展示。
type TokenSink interface {
	OnToken(fragment string)
}

// TokenSinkFunc adapts a function to TokenSink.
type TokenSinkFunc func(fragment string)

func (f TokenSinkFunc) OnToken(fragment string) {
	if f != nil {
		f(fragment)
	}
}

// InvokeOptions 控制单次调用。
type InvokeOptions struct {
	Sink TokenSink
}

// InvokeOption configures InvokeOptions.
type InvokeOption func(*InvokeOptions)

// WithSink 为本次调用设置流式输出。
func WithSink(sink TokenSink) InvokeOption {
	return func(o *InvokeOptions) { o.Sink = sink }
}

// Generator 是 Chain 的抽象，quiz 与 ai 包只依赖该接口。
type Generator interface {
	Invoke(ctx context.Context, in Input, opts ...InvokeOption) (string, error)
}

// ChainOption 配置 Chain。
type ChainOption func(*Chain)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) ChainOption {
	return func(c *Chain) { c.temperature = t }
}

// WithMaxTokens limits the completion length.
func WithMaxTokens(n int) ChainOption {
	return func(c *Chain) { c.maxTokens = n }
}

// WithPrompts replaces the prompt builder.
func WithPrompts(b *PromptBuilder) ChainOption {
	return func(c *Chain) {
		if b != nil {
			c.prompts = b
		}
	}
}

// Chain 把 PromptBuilder 与 llms.Model 串起来。
type Chain struct {
	model       llms.Model
	prompts     *PromptBuilder
	temperature float64
	maxTokens   int
}

var _ Generator = (*Chain)(nil)

// NewChain creates a Chain; temperature defaults to 0.
func NewChain(model llms.Model, opts ...ChainOption) *Chain {
	c := &Chain{
		model:   model,
		prompts: NewPromptBuilder(""),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Invoke 渲染提示词并调用模型，返回去除首尾空白的完整回复。
// 设置了 Sink 时，模型产生的片段会同步转发给 Sink。
func (c *Chain) Invoke(ctx context.Context, in Input, opts ...InvokeOption) (string, error) {
	options := &InvokeOptions{}
	for _, o := range opts {
		o(options)
	}

	messages, err := c.prompts.Build(in)
	if err != nil {
		return "", fmt.Errorf("%w: build prompt: %w", ErrGeneration, err)
	}

	content := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		content = append(content, llms.TextParts(msg.GetType(), msg.GetContent()))
	}

	callOpts := []llms.CallOption{llms.WithTemperature(c.temperature)}
	if c.maxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(c.maxTokens))
	}
	if options.Sink != nil {
		sink := options.Sink
		callOpts = append(callOpts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			sink.OnToken(string(chunk))
			return nil
		}))
	}

	resp, err := c.model.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response from llm", ErrGeneration)
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}
