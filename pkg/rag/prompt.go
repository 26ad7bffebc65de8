package rag

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
	"github.com/tmc/langchaingo/schema"
)

// DefaultSystemPrompt is used for plain chat turns.
const DefaultSystemPrompt = "You are a helpful assistant. Answer the question briefly and concisely."

const groundedSystemPrompt = "You are an assistant for question-answering tasks. " +
	"Use the following pieces of retrieved context to answer the question. " +
	"If you don't know the answer, just say that you don't know. " +
	"Keep the answer concise.\n\nContext:\n{{.context}}"

const questionSystemPrompt = "You are a tutor preparing a quiz about a document. " +
	"Using only the context below, write exactly one short question that can be answered from it. " +
	"The question should be related to the seed topic but must not repeat it. " +
	"Reply with the question only.\n\nContext:\n{{.context}}"

// FormatDocuments 按顺序用空行拼接片段内容。
func FormatDocuments(docs []schema.Document) string {
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = d.PageContent
	}
	return strings.Join(parts, "\n\n")
}

// PromptBuilder 根据 Mode 选择模板并渲染出消息列表。
type PromptBuilder struct {
	plain    prompts.ChatPromptTemplate
	grounded prompts.ChatPromptTemplate
	question prompts.ChatPromptTemplate
}

// NewPromptBuilder creates the templates. An empty systemPrompt falls back to DefaultSystemPrompt.
func NewPromptBuilder(systemPrompt string) *PromptBuilder {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = DefaultSystemPrompt
	}
	history := prompts.MessagesPlaceholder{VariableName: "history"}
	human := prompts.NewHumanMessagePromptTemplate("{{.question}}", []string{"question"})

	return &PromptBuilder{
		plain: prompts.NewChatPromptTemplate([]prompts.MessageFormatter{
			prompts.NewSystemMessagePromptTemplate(systemPrompt, nil),
			history,
			human,
		}),
		grounded: prompts.NewChatPromptTemplate([]prompts.MessageFormatter{
			prompts.NewSystemMessagePromptTemplate(groundedSystemPrompt, []string{"context"}),
			history,
			human,
		}),
		question: prompts.NewChatPromptTemplate([]prompts.MessageFormatter{
			prompts.NewSystemMessagePromptTemplate(questionSystemPrompt, []string{"context"}),
			prompts.NewHumanMessagePromptTemplate("Seed topic: {{.question}}", []string{"question"}),
		}),
	}
}

// Build 渲染 in 对应的消息列表。
// ModeAnswer 没有上下文时退化为普通对话模板。
func (b *PromptBuilder) Build(in Input) ([]llms.ChatMessage, error) {
	history := in.History
	if history == nil {
		history = []llms.ChatMessage{}
	}
	values := map[string]any{
		"question": in.Question,
		"context":  FormatDocuments(in.Context),
		"history":  history,
	}

	switch in.Mode {
	case ModeAnswer:
		if len(in.Context) == 0 {
			return b.plain.FormatMessages(values)
		}
		return b.grounded.FormatMessages(values)
	case ModeGenerateQuestion:
		return b.question.FormatMessages(values)
	default:
		return nil, fmt.Errorf("unknown mode %d", int(in.Mode))
	}
}
