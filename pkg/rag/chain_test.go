package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

func TestChain_AnswerWithContext(t *testing.T) {
	model := &recordingModel{chunks: []string{"  Paris", " is the capital.  "}}
	chain := NewChain(model)

	var streamed []string
	out, err := chain.Invoke(context.Background(), Input{
		Question: "What is the capital of France?",
		Context: []schema.Document{
			{PageContent: "France is in Europe."},
			{PageContent: "Its capital is Paris."},
		},
		Mode: ModeAnswer,
		History: []llms.ChatMessage{
			llms.HumanChatMessage{Content: "hi"},
			llms.AIChatMessage{Content: "hello"},
		},
	}, WithSink(TokenSinkFunc(func(s string) { streamed = append(streamed, s) })))
	require.NoError(t, err)

	assert.Equal(t, "Paris is the capital.", out)
	assert.Equal(t, []string{"  Paris", " is the capital.  "}, streamed)

	require.Len(t, model.messages, 4)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Contains(t, textOf(model.messages[0]), "France is in Europe.\n\nIts capital is Paris.")
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, model.messages[2].Role)
	assert.Equal(t, "What is the capital of France?", textOf(model.messages[3]))
	assert.Equal(t, 0.0, model.opts.Temperature)
}

func TestChain_AnswerWithoutContextUsesPlainPrompt(t *testing.T) {
	model := &recordingModel{chunks: []string{"hi"}}
	chain := NewChain(model, WithPrompts(NewPromptBuilder("Be brief.")), WithTemperature(0.3), WithMaxTokens(64))

	_, err := chain.Invoke(context.Background(), Input{Question: "hello", Mode: ModeAnswer})
	require.NoError(t, err)

	require.Len(t, model.messages, 2)
	assert.Equal(t, "Be brief.", textOf(model.messages[0]))
	assert.Nil(t, model.opts.StreamingFunc)
	assert.Equal(t, 0.3, model.opts.Temperature)
	assert.Equal(t, 64, model.opts.MaxTokens)
}

func TestChain_GenerateQuestion(t *testing.T) {
	model := &recordingModel{chunks: []string{"What do cats eat?"}}
	chain := NewChain(model)

	out, err := chain.Invoke(context.Background(), Input{
		Question: "cats",
		Context:  []schema.Document{{PageContent: "Cats eat fish."}},
		Mode:     ModeGenerateQuestion,
		History:  []llms.ChatMessage{llms.HumanChatMessage{Content: "ignored"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "What do cats eat?", out)

	require.Len(t, model.messages, 2)
	assert.Contains(t, textOf(model.messages[0]), "Cats eat fish.")
	assert.True(t, strings.HasSuffix(textOf(model.messages[1]), "cats"))
}

func TestChain_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := NewChain(&recordingModel{err: errors.New("boom")}).Invoke(ctx, Input{Question: "q"})
	assert.ErrorIs(t, err, ErrGeneration)

	_, err = NewChain(&recordingModel{empty: true}).Invoke(ctx, Input{Question: "q"})
	assert.ErrorIs(t, err, ErrGeneration)

	_, err = NewChain(&recordingModel{}).Invoke(ctx, Input{Question: "q", Mode: Mode(9)})
	assert.ErrorIs(t, err, ErrGeneration)
}

func TestFormatDocuments(t *testing.T) {
	assert.Equal(t, "", FormatDocuments(nil))
	assert.Equal(t, "a\n\nb", FormatDocuments([]schema.Document{{PageContent: "a"}, {PageContent: "b"}}))
	assert.Equal(t, "generate_question", ModeGenerateQuestion.String())
}
