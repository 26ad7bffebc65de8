package eval

import (
	"errors"
	"fmt"
)

var (
	// ErrEvaluation 表示评分失败。
	ErrEvaluation = errors.New("evaluation error")
	// ErrNoSamples 表示没有可评估的样本。
	ErrNoSamples = fmt.Errorf("%w: no samples", ErrEvaluation)
	// ErrNoScorer 表示未配置评分器。
	ErrNoScorer = fmt.Errorf("%w: no scorer configured", ErrEvaluation)
)
