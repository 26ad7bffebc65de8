package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	DefaultJudgeModel = openai.GPT4oMini
	scoreToolName     = "submit_scores"
)

const judgeSystemPrompt = `You grade answers produced by a retrieval-augmented assistant.
Given a question, the retrieved context and the answer, report two scores between 0 and 1:
- faithfulness: the fraction of claims in the answer that are supported by the context.
- answer_relevancy: how directly and completely the answer addresses the question.
Always call the submit_scores function.`

// JudgeOption configures a Judge.
type JudgeOption func(*judgeConfig)

type judgeConfig struct {
	baseURL string
	model   string
	logger  *zap.Logger
}

// WithBaseURL points the judge at an OpenAI compatible endpoint.
func WithBaseURL(url string) JudgeOption {
	return func(c *judgeConfig) { c.baseURL = url }
}

// WithJudgeModel sets the model used for grading.
func WithJudgeModel(model string) JudgeOption {
	return func(c *judgeConfig) {
		if model != "" {
			c.model = model
		}
	}
}

// WithJudgeLogger sets the logger.
func WithJudgeLogger(l *zap.Logger) JudgeOption {
	return func(c *judgeConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Judge 用 LLM 作为裁判给样本打分，通过强制函数调用拿到结构化结果。
type Judge struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

var _ Scorer = (*Judge)(nil)

// NewJudge creates a Judge using the OpenAI chat completions API.
func NewJudge(apiKey string, opts ...JudgeOption) *Judge {
	cfg := judgeConfig{model: DefaultJudgeModel, logger: zap.NewNop()}
	for _, o := range opts {
		o(&cfg)
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if cfg.baseURL != "" {
		clientConfig.BaseURL = cfg.baseURL
	}
	return &Judge{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.model,
		logger: cfg.logger,
	}
}

type scoreArgs struct {
	Faithfulness    float64 `json:"faithfulness"`
	AnswerRelevancy float64 `json:"answer_relevancy"`
	Reason          string  `json:"reason"`
}

// Score 请求模型为样本打分。越界的分数会被截断到 [0, 1]。
func (j *Judge) Score(ctx context.Context, s Sample) (Result, error) {
	var user strings.Builder
	fmt.Fprintf(&user, "Question:\n%s\n\nContext:\n", s.Question)
	for i, c := range s.Contexts() {
		fmt.Fprintf(&user, "[%d] %s\n", i+1, c)
	}
	fmt.Fprintf(&user, "\nAnswer:\n%s", s.Answer)

	resp, err := j.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       j.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: judgeSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: user.String()},
		},
		Tools: []openai.Tool{{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        scoreToolName,
				Description: "Submit the faithfulness and answer relevancy scores",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"faithfulness":     map[string]any{"type": "number", "minimum": 0, "maximum": 1},
						"answer_relevancy": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
						"reason":           map[string]any{"type": "string"},
					},
					"required": []string{"faithfulness", "answer_relevancy"},
				},
			},
		}},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: scoreToolName},
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("judge request: %w", err)
	}
	if len(resp.Choices) == 0 || len(resp.Choices[0].Message.ToolCalls) == 0 {
		return Result{}, fmt.Errorf("judge returned no tool call")
	}

	var args scoreArgs
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.ToolCalls[0].Function.Arguments), &args); err != nil {
		return Result{}, fmt.Errorf("decode judge arguments: %w", err)
	}
	j.logger.Debug("judge scored sample",
		zap.Float64("faithfulness", args.Faithfulness),
		zap.Float64("answer_relevancy", args.AnswerRelevancy),
		zap.String("reason", args.Reason),
	)

	return Result{
		Faithfulness:    clamp(args.Faithfulness),
		AnswerRelevancy: clamp(args.AnswerRelevancy),
	}, nil
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
