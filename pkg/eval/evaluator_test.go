package eval

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"
)

// lengthScorer 用回答长度构造可预测的分数。
func lengthScorer(calls *int32) ScorerFunc {
	return func(_ context.Context, s Sample) (Result, error) {
		atomic.AddInt32(calls, 1)
		v := float64(len(s.Answer)) / 10
		return Result{Faithfulness: v, AnswerRelevancy: 1 - v}, nil
	}
}

func TestEvaluator_EmptyIsNoSamples(t *testing.T) {
	e := NewEvaluator(lengthScorer(new(int32)))

	_, err := e.EvaluateLast(context.Background())
	assert.ErrorIs(t, err, ErrNoSamples)
	assert.ErrorIs(t, err, ErrEvaluation)

	_, err = e.EvaluateAll(context.Background())
	assert.ErrorIs(t, err, ErrNoSamples)
}

func TestEvaluator_EvaluateLastOnlyScoresNewest(t *testing.T) {
	var calls int32
	e := NewEvaluator(lengthScorer(&calls))
	e.AddSample("q1", "a", nil)
	e.AddSample("q2", "abcd", []schema.Document{{PageContent: "ctx"}})

	r, err := e.EvaluateLast(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.4, r.Faithfulness, 1e-9)
	assert.InDelta(t, 0.6, r.AnswerRelevancy, 1e-9)
	assert.Equal(t, int32(1), calls)
	assert.Equal(t, 2, e.Len())
}

func TestEvaluator_EvaluateAllKeepsOrder(t *testing.T) {
	var calls int32
	e := NewEvaluator(lengthScorer(&calls))
	e.AddSample("q1", "a", nil)
	e.AddSample("q2", "abc", nil)

	results, err := e.EvaluateAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.InDelta(t, 0.1, results[0].Faithfulness, 1e-9)
	assert.InDelta(t, 0.3, results[1].Faithfulness, 1e-9)

	mean := Mean(results)
	assert.InDelta(t, 0.2, mean.Faithfulness, 1e-9)
	assert.InDelta(t, 0.8, mean.AnswerRelevancy, 1e-9)
}

func TestEvaluator_ScoreDoesNotMutate(t *testing.T) {
	e := NewEvaluator(lengthScorer(new(int32)))
	_, err := e.Score(context.Background(), Sample{Question: "q", Answer: "ab"})
	require.NoError(t, err)
	assert.Equal(t, 0, e.Len())
}

func TestEvaluator_Failures(t *testing.T) {
	ctx := context.Background()

	e := NewEvaluator(nil)
	e.AddSample("q", "a", nil)
	_, err := e.EvaluateLast(ctx)
	assert.ErrorIs(t, err, ErrNoScorer)

	e = NewEvaluator(ScorerFunc(func(context.Context, Sample) (Result, error) {
		return Result{}, errors.New("rate limited")
	}))
	e.AddSample("q", "a", nil)
	_, err = e.EvaluateAll(ctx)
	assert.ErrorIs(t, err, ErrEvaluation)
	assert.Contains(t, err.Error(), "rate limited")

	e = NewEvaluator(ScorerFunc(func(context.Context, Sample) (Result, error) {
		return Result{Faithfulness: 1.5}, nil
	}))
	e.AddSample("q", "a", nil)
	_, err = e.EvaluateLast(ctx)
	assert.ErrorIs(t, err, ErrEvaluation)
}

func TestEvaluator_Reset(t *testing.T) {
	e := NewEvaluator(lengthScorer(new(int32)))
	e.AddSample("q", "a", nil)
	e.Reset()
	assert.Equal(t, 0, e.Len())
	assert.Empty(t, e.Samples())
}

func TestMean_Empty(t *testing.T) {
	assert.Equal(t, Result{}, Mean(nil))
}
