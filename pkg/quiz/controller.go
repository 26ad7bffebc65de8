package quiz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"

	"github.com/IMBotPlatform/IMBotRAG/pkg/ai"
	"github.com/IMBotPlatform/IMBotRAG/pkg/eval"
	"github.com/IMBotPlatform/IMBotRAG/pkg/rag"
)

// FallbackAnswer 在模型返回空回答时展示给用户。
const FallbackAnswer = "Could not find an answer."

// ErrNoDocument 表示尚未上传文档，测验无法开始。
var ErrNoDocument = errors.New("no document loaded")

// Outcome 描述一轮测验的结果类型。
type Outcome int

const (
	// OutcomeQuestionAsked 表示本轮只提出了第一个问题。
	OutcomeQuestionAsked Outcome = iota
	// OutcomeAnswered 表示本轮给出了参考答案与下一题。
	OutcomeAnswered
)

// Turn 是一轮测验的结果。
type Turn struct {
	Outcome Outcome `json:"outcome"`
	// Question 是本轮回答的问题；OutcomeQuestionAsked 时为新提出的问题。
	Question     string            `json:"question"`
	Reference    string            `json:"reference,omitempty"`
	NextQuestion string            `json:"next_question,omitempty"`
	Context      []schema.Document `json:"-"`
	Score        *eval.Result      `json:"score,omitempty"`
}

// Reply 渲染给用户看的文本。
func (t *Turn) Reply() string {
	if t.Outcome == OutcomeQuestionAsked {
		return fmt.Sprintf("Let me ask you a related question: **%s**", t.Question)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "✅ Answer: %s\n\nNext question: **%s**", t.Reference, t.NextQuestion)
	if t.Score != nil {
		fmt.Fprintf(&sb, "\n\n📊 Evaluation\n- answer relevancy: %.3f\n- faithfulness: %.3f",
			t.Score.AnswerRelevancy, t.Score.Faithfulness)
	}
	return sb.String()
}

// TurnOptions 控制单轮行为。
type TurnOptions struct {
	Evaluate bool
	Sink     rag.TokenSink
}

// TurnOption configures TurnOptions.
type TurnOption func(*TurnOptions)

// WithEvaluation 在回答轮次中立即为新样本打分。
func WithEvaluation(enabled bool) TurnOption {
	return func(o *TurnOptions) { o.Evaluate = enabled }
}

// WithSink 转发参考答案的流式片段。
func WithSink(sink rag.TokenSink) TurnOption {
	return func(o *TurnOptions) { o.Sink = sink }
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRetriever attaches a retriever at construction time.
func WithRetriever(r rag.Retriever) Option {
	return func(c *Controller) { c.retriever = r }
}

// Controller 驱动测验状态机：
//
//	Idle --any input--> AwaitingAnswer(Q1)
//	AwaitingAnswer(Q) --answer--> AwaitingAnswer(Q')   (R 与 Q' 来自同一次检索)
//
// 一轮的所有外部调用都在提交前完成，任何失败都不会修改状态、记录或样本。
// 整轮持有互斥锁，同一个 Controller 上的轮次串行执行。
type Controller struct {
	chain      rag.Generator
	evaluator  *eval.Evaluator
	transcript *ai.Transcript
	logger     *zap.Logger

	mu        sync.Mutex
	retriever rag.Retriever
	state     State
}

// NewController creates a quiz in the Idle state.
func NewController(chain rag.Generator, evaluator *eval.Evaluator, opts ...Option) *Controller {
	c := &Controller{
		chain:      chain,
		evaluator:  evaluator,
		transcript: ai.NewTranscript(),
		logger:     zap.NewNop(),
		state:      Idle(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Attach 设置检索器，例如新上传的文档。已有的测验状态保持不变。
func (c *Controller) Attach(r rag.Retriever) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retriever = r
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transcript returns the quiz transcript.
func (c *Controller) Transcript() *ai.Transcript { return c.transcript }

// Evaluator returns the evaluator samples are committed to.
func (c *Controller) Evaluator() *eval.Evaluator { return c.evaluator }

// Handle 处理一轮输入。
func (c *Controller) Handle(ctx context.Context, input string, opts ...TurnOption) (*Turn, error) {
	options := &TurnOptions{}
	for _, o := range opts {
		o(options)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.retriever == nil {
		return nil, ErrNoDocument
	}

	var turn *Turn
	var err error
	if question, awaiting := c.state.PendingQuestion(); awaiting {
		turn, err = c.answer(ctx, question, options)
	} else {
		turn, err = c.ask(ctx, input)
	}
	if err != nil {
		c.logger.Warn("quiz turn failed", zap.Stringer("state", c.state), zap.Error(err))
		return nil, err
	}

	// 提交阶段
	if err := c.transcript.AppendTurn(ctx, input, turn.Reply()); err != nil {
		return nil, fmt.Errorf("failed to save quiz turn: %w", err)
	}
	if turn.Outcome == OutcomeAnswered {
		c.evaluator.AddSample(turn.Question, turn.Reference, turn.Context)
		c.state = AwaitingAnswer(turn.NextQuestion)
	} else {
		c.state = AwaitingAnswer(turn.Question)
	}
	return turn, nil
}

// ask 以用户输入为种子生成第一个问题。
func (c *Controller) ask(ctx context.Context, seed string) (*Turn, error) {
	docs, err := c.retriever.Invoke(ctx, seed)
	if err != nil {
		return nil, err
	}
	q, err := c.generateQuestion(ctx, seed, docs)
	if err != nil {
		return nil, err
	}
	return &Turn{Outcome: OutcomeQuestionAsked, Question: q, Context: docs}, nil
}

// answer 为 question 生成参考答案和下一题，用户的回答本身不参与打分。
func (c *Controller) answer(ctx context.Context, question string, options *TurnOptions) (*Turn, error) {
	docs, err := c.retriever.Invoke(ctx, question)
	if err != nil {
		return nil, err
	}

	reference, err := c.chain.Invoke(ctx, rag.Input{
		Question: question,
		Context:  docs,
		Mode:     rag.ModeAnswer,
	}, rag.WithSink(options.Sink))
	if err != nil {
		return nil, err
	}
	if reference == "" {
		reference = FallbackAnswer
	}

	next, err := c.nextQuestion(ctx, question, docs)
	if err != nil {
		return nil, err
	}

	turn := &Turn{
		Outcome:      OutcomeAnswered,
		Question:     question,
		Reference:    reference,
		NextQuestion: next,
		Context:      docs,
	}

	if options.Evaluate {
		score, err := c.evaluator.Score(ctx, eval.Sample{Question: question, Answer: reference, Context: docs})
		if err != nil {
			return nil, err
		}
		turn.Score = &score
	}
	return turn, nil
}

// nextQuestion 生成与 question 不同的下一题，重复时重试一次。
func (c *Controller) nextQuestion(ctx context.Context, question string, docs []schema.Document) (string, error) {
	for attempt := 0; attempt < 2; attempt++ {
		next, err := c.generateQuestion(ctx, question, docs)
		if err != nil {
			return "", err
		}
		if !strings.EqualFold(strings.TrimSpace(next), strings.TrimSpace(question)) {
			return next, nil
		}
		c.logger.Debug("generated question repeats the previous one", zap.Int("attempt", attempt+1))
	}
	return "", fmt.Errorf("%w: generated question repeats %q", rag.ErrGeneration, question)
}

func (c *Controller) generateQuestion(ctx context.Context, seed string, docs []schema.Document) (string, error) {
	q, err := c.chain.Invoke(ctx, rag.Input{
		Question: seed,
		Context:  docs,
		Mode:     rag.ModeGenerateQuestion,
	})
	if err != nil {
		return "", err
	}
	if q == "" {
		return "", fmt.Errorf("%w: empty question", rag.ErrGeneration)
	}
	return q, nil
}

// Reset 清空状态、测验记录和评估样本。与 Handle 互斥，不会出现部分清空。
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.transcript.Clear(ctx); err != nil {
		return err
	}
	c.evaluator.Reset()
	c.state = Idle()
	return nil
}
