package eval

import (
	"context"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
)

// Sample 是一条待评估的 (问题, 回答, 检索上下文) 记录。
type Sample struct {
	Question string            `json:"question"`
	Answer   string            `json:"answer"`
	Context  []schema.Document `json:"-"`
}

// Contexts returns the page contents of the retrieved context.
func (s Sample) Contexts() []string {
	out := make([]string, len(s.Context))
	for i, d := range s.Context {
		out[i] = d.PageContent
	}
	return out
}

// Result 是单条样本的两个指标，取值范围 [0, 1]。
type Result struct {
	Faithfulness    float64 `json:"faithfulness"`
	AnswerRelevancy float64 `json:"answer_relevancy"`
}

func (r Result) String() string {
	return fmt.Sprintf("answer relevancy: %.3f, faithfulness: %.3f", r.AnswerRelevancy, r.Faithfulness)
}

func (r Result) validate() error {
	if r.Faithfulness < 0 || r.Faithfulness > 1 || r.AnswerRelevancy < 0 || r.AnswerRelevancy > 1 {
		return fmt.Errorf("%w: score out of range: %s", ErrEvaluation, r)
	}
	return nil
}

// Scorer 为单条样本打分。
type Scorer interface {
	Score(ctx context.Context, s Sample) (Result, error)
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(ctx context.Context, s Sample) (Result, error)

func (f ScorerFunc) Score(ctx context.Context, s Sample) (Result, error) { return f(ctx, s) }

// Mean 返回各指标的算术平均；空切片返回零值。
func Mean(results []Result) Result {
	if len(results) == 0 {
		return Result{}
	}
	var sum Result
	for _, r := range results {
		sum.Faithfulness += r.Faithfulness
		sum.AnswerRelevancy += r.AnswerRelevancy
	}
	n := float64(len(results))
	return Result{Faithfulness: sum.Faithfulness / n, AnswerRelevancy: sum.AnswerRelevancy / n}
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.logger = l
		}
	}
}

// Evaluator 累积样本并调用 Scorer 评分。样本按追加顺序保存。
type Evaluator struct {
	scorer Scorer
	logger *zap.Logger

	mu      sync.Mutex
	samples []Sample
}

// NewEvaluator creates an Evaluator. A nil scorer makes every evaluation fail with ErrNoScorer.
func NewEvaluator(scorer Scorer, opts ...Option) *Evaluator {
	e := &Evaluator{scorer: scorer, logger: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// CanScore reports whether a scorer is configured.
func (e *Evaluator) CanScore() bool { return e.scorer != nil }

// AddSample 追加一条样本。
func (e *Evaluator) AddSample(question, answer string, context []schema.Document) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.samples = append(e.samples, Sample{Question: question, Answer: answer, Context: context})
}

// Len returns the number of accumulated samples.
func (e *Evaluator) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.samples)
}

// Samples returns a copy of the accumulated samples.
func (e *Evaluator) Samples() []Sample {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Sample, len(e.samples))
	copy(out, e.samples)
	return out
}

// Reset 清空所有样本。
func (e *Evaluator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.samples = nil
}

// Score 为一条尚未加入的样本打分，不修改 Evaluator 的状态。
func (e *Evaluator) Score(ctx context.Context, s Sample) (Result, error) {
	if e.scorer == nil {
		return Result{}, ErrNoScorer
	}
	r, err := e.scorer.Score(ctx, s)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrEvaluation, err)
	}
	if err := r.validate(); err != nil {
		return Result{}, err
	}
	return r, nil
}

// EvaluateLast 只评估最近加入的一条样本。
func (e *Evaluator) EvaluateLast(ctx context.Context) (Result, error) {
	e.mu.Lock()
	if len(e.samples) == 0 {
		e.mu.Unlock()
		return Result{}, ErrNoSamples
	}
	last := e.samples[len(e.samples)-1]
	e.mu.Unlock()

	return e.Score(ctx, last)
}

// EvaluateAll 按顺序评估当前所有样本，返回与样本一一对应的结果。
// 评分期间新加入的样本不参与本次评估。
func (e *Evaluator) EvaluateAll(ctx context.Context) ([]Result, error) {
	samples := e.Samples()
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}

	results := make([]Result, 0, len(samples))
	for i, s := range samples {
		r, err := e.Score(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		results = append(results, r)
	}
	e.logger.Info("evaluation finished",
		zap.Int("samples", len(results)),
		zap.Stringer("mean", Mean(results)),
	)
	return results, nil
}
